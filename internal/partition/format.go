package partition

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/propstore/internal/column"
	"github.com/hupe1980/propstore/internal/compress"
	"github.com/hupe1980/propstore/schema"
)

// File layout (little-endian):
//
//	+-------------------+  0
//	| header (64 bytes) |
//	+-------------------+ 64
//	| section header    |  16 bytes: id, codec, raw len, stored len, crc32(raw)
//	| section payload   |
//	| ...               |
//	+-------------------+
//
// Sections appear in ascending id order. Unknown section ids are skipped so
// newer writers can add sections without a version bump.
const (
	Magic         = "TPP1"
	FormatVersion = uint16(1)
	HeaderSize    = 64
	sectionSize   = 16
)

// Section identifiers. NOTE: persisted; keep them stable.
const (
	SectionValues        uint8 = 1
	SectionValueOffsets  uint8 = 2
	SectionCreationTimes uint8 = 3
	SectionPrevRows      uint8 = 4
	SectionLocalIDs      uint8 = 5
	SectionEntities      uint8 = 6
)

// SectionName returns a human-readable name for a section id.
func SectionName(id uint8) string {
	switch id {
	case SectionValues:
		return "values"
	case SectionValueOffsets:
		return "valueOffsets"
	case SectionCreationTimes:
		return "creationTimes"
	case SectionPrevRows:
		return "prevRows"
	case SectionLocalIDs:
		return "localIDs"
	case SectionEntities:
		return "entities"
	default:
		return fmt.Sprintf("section(%d)", id)
	}
}

// Header is the fixed file header.
type Header struct {
	Version      uint16
	Flags        uint16
	Kind         schema.Kind
	Compression  compress.Type
	PartitionID  uint32
	PropertyID   uint32
	Capacity     uint32
	RowCount     uint32
	SectionCount uint32
}

// SectionInfo describes one stored section.
type SectionInfo struct {
	ID        uint8
	Codec     compress.Type
	RawLen    uint32
	StoredLen uint32
	Checksum  uint32
	Offset    int64
}

// Image is a decoded partition file.
type Image struct {
	Header   Header
	Sections []SectionInfo
	Column   *column.Image
	Entities *roaring64.Bitmap
}

func (h *Header) marshal() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], Magic)
	binary.LittleEndian.PutUint16(buf[4:], h.Version)
	binary.LittleEndian.PutUint16(buf[6:], h.Flags)
	buf[8] = uint8(h.Kind)
	buf[9] = uint8(h.Compression)
	binary.LittleEndian.PutUint32(buf[12:], h.PartitionID)
	binary.LittleEndian.PutUint32(buf[16:], h.PropertyID)
	binary.LittleEndian.PutUint32(buf[20:], h.Capacity)
	binary.LittleEndian.PutUint32(buf[24:], h.RowCount)
	binary.LittleEndian.PutUint32(buf[28:], h.SectionCount)
	binary.LittleEndian.PutUint32(buf[60:], crc32.ChecksumIEEE(buf[:60]))
	return buf
}

// ReadHeader parses and validates the file header.
func ReadHeader(data []byte) (Header, error) {
	var h Header
	if len(data) < HeaderSize {
		return h, fmt.Errorf("%w: file is %d bytes, header needs %d", ErrLoadFailure, len(data), HeaderSize)
	}
	if string(data[0:4]) != Magic {
		return h, fmt.Errorf("%w: bad magic %q", ErrLoadFailure, data[0:4])
	}
	if got, want := crc32.ChecksumIEEE(data[:60]), binary.LittleEndian.Uint32(data[60:]); got != want {
		return h, fmt.Errorf("%w: header checksum %08x, want %08x", ErrLoadFailure, got, want)
	}
	h.Version = binary.LittleEndian.Uint16(data[4:])
	if h.Version != FormatVersion {
		return h, fmt.Errorf("%w: unsupported version %d", ErrLoadFailure, h.Version)
	}
	h.Flags = binary.LittleEndian.Uint16(data[6:])
	h.Kind = schema.Kind(data[8])
	h.Compression = compress.Type(data[9])
	h.PartitionID = binary.LittleEndian.Uint32(data[12:])
	h.PropertyID = binary.LittleEndian.Uint32(data[16:])
	h.Capacity = binary.LittleEndian.Uint32(data[20:])
	h.RowCount = binary.LittleEndian.Uint32(data[24:])
	h.SectionCount = binary.LittleEndian.Uint32(data[28:])

	if !h.Kind.Valid() {
		return h, fmt.Errorf("%w: invalid value kind %d", ErrLoadFailure, data[8])
	}
	if h.Capacity == 0 || h.RowCount > h.Capacity {
		return h, fmt.Errorf("%w: row count %d, capacity %d", ErrLoadFailure, h.RowCount, h.Capacity)
	}
	return h, nil
}

type section struct {
	id   uint8
	data []byte
}

// Encode serializes rows [0, img.Rows) of a column together with its entity index.
func Encode(h Header, img *column.Image, entities *roaring64.Bitmap) ([]byte, error) {
	sections := []section{{SectionValues, img.Values}}
	if !img.Kind.FixedWidth() {
		sections = append(sections, section{SectionValueOffsets, img.Offsets})
	}
	sections = append(sections,
		section{SectionCreationTimes, img.CreationTimes},
		section{SectionPrevRows, img.PrevRows},
		section{SectionLocalIDs, img.LocalIDs},
	)
	if entities != nil {
		raw, err := entities.ToBytes()
		if err != nil {
			return nil, fmt.Errorf("encode entities: %w", err)
		}
		sections = append(sections, section{SectionEntities, raw})
	}

	h.Version = FormatVersion
	h.Kind = img.Kind
	h.RowCount = uint32(img.Rows)
	h.SectionCount = uint32(len(sections))

	out := h.marshal()
	for _, s := range sections {
		stored, codec, err := compress.Encode(h.Compression, s.data)
		if err != nil {
			return nil, fmt.Errorf("compress %s: %w", SectionName(s.id), err)
		}
		var sh [sectionSize]byte
		sh[0] = s.id
		sh[1] = uint8(codec)
		binary.LittleEndian.PutUint32(sh[4:], uint32(len(s.data)))
		binary.LittleEndian.PutUint32(sh[8:], uint32(len(stored)))
		binary.LittleEndian.PutUint32(sh[12:], crc32.ChecksumIEEE(s.data))
		out = append(out, sh[:]...)
		out = append(out, stored...)
	}
	return out, nil
}

// ReadSections walks the section table without decompressing payloads.
func ReadSections(data []byte, h Header) ([]SectionInfo, error) {
	infos := make([]SectionInfo, 0, h.SectionCount)
	off := int64(HeaderSize)
	for i := uint32(0); i < h.SectionCount; i++ {
		if off+sectionSize > int64(len(data)) {
			return nil, fmt.Errorf("%w: section %d header truncated", ErrLoadFailure, i)
		}
		sh := data[off : off+sectionSize]
		info := SectionInfo{
			ID:        sh[0],
			Codec:     compress.Type(sh[1]),
			RawLen:    binary.LittleEndian.Uint32(sh[4:]),
			StoredLen: binary.LittleEndian.Uint32(sh[8:]),
			Checksum:  binary.LittleEndian.Uint32(sh[12:]),
			Offset:    off + sectionSize,
		}
		if len(infos) > 0 && info.ID <= infos[len(infos)-1].ID {
			return nil, fmt.Errorf("%w: section %s out of order", ErrLoadFailure, SectionName(info.ID))
		}
		off = info.Offset + int64(info.StoredLen)
		if off > int64(len(data)) {
			return nil, fmt.Errorf("%w: section %s truncated", ErrLoadFailure, SectionName(info.ID))
		}
		infos = append(infos, info)
	}
	if off != int64(len(data)) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrLoadFailure, int64(len(data))-off)
	}
	return infos, nil
}

func readSection(data []byte, info SectionInfo) ([]byte, error) {
	stored := data[info.Offset : info.Offset+int64(info.StoredLen)]
	raw, err := compress.Decode(info.Codec, stored, int(info.RawLen))
	if err != nil {
		return nil, fmt.Errorf("%w: section %s: %w", ErrLoadFailure, SectionName(info.ID), err)
	}
	if got := crc32.ChecksumIEEE(raw); got != info.Checksum {
		return nil, fmt.Errorf("%w: section %s checksum %08x, want %08x", ErrLoadFailure, SectionName(info.ID), got, info.Checksum)
	}
	return raw, nil
}

// Decode parses and verifies a partition file. Decoded slices do not alias data.
func Decode(data []byte) (*Image, error) {
	h, err := ReadHeader(data)
	if err != nil {
		return nil, err
	}
	infos, err := ReadSections(data, h)
	if err != nil {
		return nil, err
	}

	img := &Image{
		Header:   h,
		Sections: infos,
		Column:   &column.Image{Kind: h.Kind, Rows: int(h.RowCount)},
	}
	seen := make(map[uint8]bool, len(infos))
	for _, info := range infos {
		var dst *[]byte
		switch info.ID {
		case SectionValues:
			dst = &img.Column.Values
		case SectionValueOffsets:
			dst = &img.Column.Offsets
		case SectionCreationTimes:
			dst = &img.Column.CreationTimes
		case SectionPrevRows:
			dst = &img.Column.PrevRows
		case SectionLocalIDs:
			dst = &img.Column.LocalIDs
		case SectionEntities:
		default:
			continue
		}

		raw, err := readSection(data, info)
		if err != nil {
			return nil, err
		}
		seen[info.ID] = true
		if dst != nil {
			*dst = cloneBytes(raw)
			continue
		}
		bm := roaring64.New()
		if err := bm.UnmarshalBinary(raw); err != nil {
			return nil, fmt.Errorf("%w: section entities: %w", ErrLoadFailure, err)
		}
		img.Entities = bm
	}

	required := []uint8{SectionValues, SectionCreationTimes, SectionPrevRows, SectionLocalIDs}
	if !h.Kind.FixedWidth() {
		required = append(required, SectionValueOffsets)
	}
	for _, id := range required {
		if !seen[id] {
			return nil, fmt.Errorf("%w: missing section %s", ErrLoadFailure, SectionName(id))
		}
	}
	return img, nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
