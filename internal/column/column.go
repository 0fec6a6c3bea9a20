// Package column implements the fixed-capacity typed value column that backs
// a property partition, and the Store that allocates rows in it.
//
// A column is an arena: each slot carries a value, a creation time, the owning
// entity's local id and a previous-row link. Row indices double as pointers,
// so per-entity history is threaded through the prev-row column without any
// per-value heap node.
package column

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hupe1980/propstore/schema"
)

// NoRow is the "no previous row" sentinel of the history chain.
const NoRow int32 = -1

var (
	// ErrIndexOutOfBounds is returned when a row lies outside the valid extent.
	ErrIndexOutOfBounds = errors.New("row index out of bounds")

	// ErrCapacityExceeded is returned when a partition has no free row left.
	ErrCapacityExceeded = errors.New("partition capacity exceeded")

	// ErrKindMismatch is returned when a value does not match the column kind.
	ErrKindMismatch = errors.New("value kind does not match column kind")
)

// Entry is the content of one row.
type Entry struct {
	LocalID      int64
	Value        schema.Value
	CreationTime int64
	PrevRow      int32
}

// Column is the in-memory buffer of one property for one partition.
//
// Not safe for concurrent mutation; the owning partition serializes writers.
type Column struct {
	capacity      int
	length        int
	values        valueColumn
	creationTimes []int64
	prevRows      []int32
	localIDs      []int64
}

// Allocate creates a zero-filled column of the given capacity.
// Every slot is addressable until SetRowCount truncates the extent.
func Allocate(kind schema.Kind, capacity int) (*Column, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("column: invalid capacity %d", capacity)
	}
	values, err := newValueColumn(kind, capacity)
	if err != nil {
		return nil, err
	}
	return &Column{
		capacity:      capacity,
		length:        capacity,
		values:        values,
		creationTimes: make([]int64, capacity),
		prevRows:      make([]int32, capacity),
		localIDs:      make([]int64, capacity),
	}, nil
}

// EstimateSize returns the resident footprint of a freshly allocated column
// before any variable-width payload is written.
func EstimateSize(kind schema.Kind, capacity int) int64 {
	per := int64(8 + 4 + 8) // creation time, prev row, local id
	if kind.FixedWidth() {
		per += int64(kind.Width())
	} else {
		per += 24
	}
	return per * int64(capacity)
}

// PayloadSize returns the bytes a value adds to a column beyond its slot:
// the payload of strings and byte slices, zero for fixed-width kinds.
func PayloadSize(v schema.Value) int64 {
	switch v.Kind {
	case schema.KindString:
		return int64(len(v.S))
	case schema.KindBytes:
		return int64(len(v.Raw))
	default:
		return 0
	}
}

// Kind returns the value kind of the column.
func (c *Column) Kind() schema.Kind { return c.values.kind() }

// Capacity returns the fixed number of slots.
func (c *Column) Capacity() int { return c.capacity }

// Len returns the active extent.
func (c *Column) Len() int { return c.length }

// SizeBytes returns the approximate resident size of the column.
func (c *Column) SizeBytes() int64 {
	return c.values.sizeBytes() + int64(c.capacity)*(8+4+8)
}

// SetRowCount truncates the active extent to n rows.
func (c *Column) SetRowCount(n int) error {
	if n < 0 || n > c.capacity {
		return fmt.Errorf("%w: row count %d, capacity %d", ErrIndexOutOfBounds, n, c.capacity)
	}
	c.length = n
	return nil
}

func (c *Column) check(row int32) error {
	if row < 0 || int(row) >= c.length {
		return fmt.Errorf("%w: row %d, extent %d", ErrIndexOutOfBounds, row, c.length)
	}
	return nil
}

// Get returns the content of row.
func (c *Column) Get(row int32) (Entry, error) {
	if err := c.check(row); err != nil {
		return Entry{}, err
	}
	return Entry{
		LocalID:      c.localIDs[row],
		Value:        c.values.get(int(row)),
		CreationTime: c.creationTimes[row],
		PrevRow:      c.prevRows[row],
	}, nil
}

// Set writes a never-before-written row. Writing at the end of a truncated
// extent grows the extent by one; capacity never changes.
func (c *Column) Set(row int32, e Entry) error {
	if row < 0 || int(row) >= c.capacity || int(row) > c.length {
		return fmt.Errorf("%w: row %d, extent %d, capacity %d", ErrIndexOutOfBounds, row, c.length, c.capacity)
	}
	if e.Value.Kind != c.values.kind() {
		return fmt.Errorf("%w: column %s, value %s", ErrKindMismatch, c.values.kind(), e.Value.Kind)
	}
	c.values.set(int(row), e.Value)
	c.creationTimes[row] = e.CreationTime
	c.prevRows[row] = e.PrevRow
	c.localIDs[row] = e.LocalID
	if int(row) == c.length {
		c.length++
	}
	return nil
}

// SetPrevRow rewrites the link field of an existing row.
func (c *Column) SetPrevRow(row, prev int32) error {
	if err := c.check(row); err != nil {
		return err
	}
	c.prevRows[row] = prev
	return nil
}

// CreationTime returns the creation time of row.
func (c *Column) CreationTime(row int32) (int64, error) {
	if err := c.check(row); err != nil {
		return 0, err
	}
	return c.creationTimes[row], nil
}

// PrevRow returns the link field of row.
func (c *Column) PrevRow(row int32) (int32, error) {
	if err := c.check(row); err != nil {
		return NoRow, err
	}
	return c.prevRows[row], nil
}

// LocalID returns the entity local id of row.
func (c *Column) LocalID(row int32) (int64, error) {
	if err := c.check(row); err != nil {
		return 0, err
	}
	return c.localIDs[row], nil
}

// Image is the flat little-endian form of the first Rows rows of a column.
type Image struct {
	Kind          schema.Kind
	Rows          int
	Values        []byte
	Offsets       []byte // variable-width kinds only
	CreationTimes []byte
	PrevRows      []byte
	LocalIDs      []byte
}

// Image encodes the first rows rows.
func (c *Column) Image(rows int) (*Image, error) {
	if rows < 0 || rows > c.length {
		return nil, fmt.Errorf("%w: image of %d rows, extent %d", ErrIndexOutOfBounds, rows, c.length)
	}
	img := &Image{
		Kind:          c.values.kind(),
		Rows:          rows,
		CreationTimes: make([]byte, rows*8),
		PrevRows:      make([]byte, rows*4),
		LocalIDs:      make([]byte, rows*8),
	}
	img.Values, img.Offsets = c.values.encode(rows)
	for i := 0; i < rows; i++ {
		binary.LittleEndian.PutUint64(img.CreationTimes[i*8:], uint64(c.creationTimes[i]))
		binary.LittleEndian.PutUint32(img.PrevRows[i*4:], uint32(c.prevRows[i]))
		binary.LittleEndian.PutUint64(img.LocalIDs[i*8:], uint64(c.localIDs[i]))
	}
	return img, nil
}

// FromImage rebuilds a column of the given capacity from an image and
// truncates its extent to img.Rows.
func FromImage(img *Image, capacity int) (*Column, error) {
	if img.Rows > capacity {
		return nil, fmt.Errorf("column: image has %d rows, capacity %d", img.Rows, capacity)
	}
	c, err := Allocate(img.Kind, capacity)
	if err != nil {
		return nil, err
	}
	n := img.Rows
	if len(img.CreationTimes) != n*8 || len(img.PrevRows) != n*4 || len(img.LocalIDs) != n*8 {
		return nil, fmt.Errorf("column: metadata columns do not hold %d rows", n)
	}
	if err := c.values.decode(n, img.Values, img.Offsets); err != nil {
		return nil, fmt.Errorf("column: %w", err)
	}
	for i := 0; i < n; i++ {
		c.creationTimes[i] = int64(binary.LittleEndian.Uint64(img.CreationTimes[i*8:]))
		prev := int32(binary.LittleEndian.Uint32(img.PrevRows[i*4:]))
		if prev < NoRow || int(prev) >= n {
			return nil, fmt.Errorf("column: row %d links to %d outside %d rows", i, prev, n)
		}
		c.prevRows[i] = prev
		c.localIDs[i] = int64(binary.LittleEndian.Uint64(img.LocalIDs[i*8:]))
	}
	if err := c.SetRowCount(n); err != nil {
		return nil, err
	}
	return c, nil
}
