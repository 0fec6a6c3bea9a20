// Package compress provides the block codecs used for partition file sections.
package compress

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type identifies the compression algorithm of a section.
//
// NOTE: Type values are persisted in partition files; keep them stable.
type Type uint8

const (
	// None stores sections verbatim.
	None Type = 0
	// LZ4 is fast block compression, good for hot partitions.
	LZ4 Type = 1
	// ZSTD trades speed for ratio, good for cold partitions.
	ZSTD Type = 2
)

// ErrCorrupt is returned when a block cannot be decompressed.
var ErrCorrupt = errors.New("compress: corrupt block")

// String returns the stable name of the type.
func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ParseType parses the name produced by Type.String.
func ParseType(s string) (Type, error) {
	switch s {
	case "none", "":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return ZSTD, nil
	default:
		return None, fmt.Errorf("compress: unknown type %q", s)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Encode compresses data. It returns the codec actually used: when
// compression does not shrink the block below 90% it is stored as None.
func Encode(t Type, data []byte) ([]byte, Type, error) {
	if t == None || len(data) == 0 {
		return data, None, nil
	}

	var out []byte
	switch t {
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, None, err
		}
		out = buf[:n] // n == 0 means incompressible
	case ZSTD:
		enc := getZstdEncoder()
		out = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, None, fmt.Errorf("compress: unknown type %d", t)
	}

	if len(out) == 0 || float64(len(out)) > float64(len(data))*0.9 {
		return data, None, nil
	}
	return out, t, nil
}

// Decode decompresses a block into exactly rawLen bytes.
func Decode(t Type, data []byte, rawLen int) ([]byte, error) {
	switch t {
	case None:
		if len(data) != rawLen {
			return nil, fmt.Errorf("%w: stored %d bytes, want %d", ErrCorrupt, len(data), rawLen)
		}
		return data, nil
	case LZ4:
		out := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if n != rawLen {
			return nil, fmt.Errorf("%w: lz4 produced %d bytes, want %d", ErrCorrupt, n, rawLen)
		}
		return out, nil
	case ZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(data, make([]byte, 0, rawLen))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if len(out) != rawLen {
			return nil, fmt.Errorf("%w: zstd produced %d bytes, want %d", ErrCorrupt, len(out), rawLen)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown codec %d", ErrCorrupt, t)
	}
}
