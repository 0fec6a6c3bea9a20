package column

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hupe1980/propstore/schema"
)

// valueColumn holds the value slots of one kind.
//
// Slots are pre-allocated to the column capacity; an unwritten slot holds
// the zero value of its kind.
type valueColumn interface {
	kind() schema.Kind
	get(i int) schema.Value
	set(i int, v schema.Value)
	sizeBytes() int64
	// encode appends the first n slots. Variable-width kinds also return
	// n+1 little-endian uint32 offsets into data.
	encode(n int) (data []byte, offsets []byte)
	// decode fills the first n slots from an encoded image.
	decode(n int, data, offsets []byte) error
}

type intValues struct {
	data []int64
}

func (c *intValues) kind() schema.Kind        { return schema.KindInt }
func (c *intValues) get(i int) schema.Value   { return schema.Int(c.data[i]) }
func (c *intValues) set(i int, v schema.Value) { c.data[i] = v.I64 }
func (c *intValues) sizeBytes() int64         { return int64(cap(c.data)) * 8 }

func (c *intValues) encode(n int) ([]byte, []byte) {
	buf := make([]byte, n*8)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(c.data[i]))
	}
	return buf, nil
}

func (c *intValues) decode(n int, data, _ []byte) error {
	if len(data) != n*8 {
		return fmt.Errorf("int values: want %d bytes, got %d", n*8, len(data))
	}
	for i := 0; i < n; i++ {
		c.data[i] = int64(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return nil
}

type floatValues struct {
	data []float64
}

func (c *floatValues) kind() schema.Kind        { return schema.KindFloat }
func (c *floatValues) get(i int) schema.Value   { return schema.Float(c.data[i]) }
func (c *floatValues) set(i int, v schema.Value) { c.data[i] = v.F64 }
func (c *floatValues) sizeBytes() int64         { return int64(cap(c.data)) * 8 }

func (c *floatValues) encode(n int) ([]byte, []byte) {
	buf := make([]byte, n*8)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(c.data[i]))
	}
	return buf, nil
}

func (c *floatValues) decode(n int, data, _ []byte) error {
	if len(data) != n*8 {
		return fmt.Errorf("float values: want %d bytes, got %d", n*8, len(data))
	}
	for i := 0; i < n; i++ {
		c.data[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return nil
}

type boolValues struct {
	data []bool
}

func (c *boolValues) kind() schema.Kind        { return schema.KindBool }
func (c *boolValues) get(i int) schema.Value   { return schema.Bool(c.data[i]) }
func (c *boolValues) set(i int, v schema.Value) { c.data[i] = v.B }
func (c *boolValues) sizeBytes() int64         { return int64(cap(c.data)) }

func (c *boolValues) encode(n int) ([]byte, []byte) {
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		if c.data[i] {
			buf[i] = 1
		}
	}
	return buf, nil
}

func (c *boolValues) decode(n int, data, _ []byte) error {
	if len(data) != n {
		return fmt.Errorf("bool values: want %d bytes, got %d", n, len(data))
	}
	for i := 0; i < n; i++ {
		switch data[i] {
		case 0:
			c.data[i] = false
		case 1:
			c.data[i] = true
		default:
			return fmt.Errorf("bool values: invalid byte %d at row %d", data[i], i)
		}
	}
	return nil
}

// varValues backs both string and bytes columns; strings are kept as []byte
// internally so both kinds share one encoding.
type varValues struct {
	k    schema.Kind
	data [][]byte
	size int64
}

func (c *varValues) kind() schema.Kind { return c.k }

func (c *varValues) get(i int) schema.Value {
	if c.k == schema.KindString {
		return schema.String(string(c.data[i]))
	}
	return schema.Bytes(c.data[i])
}

func (c *varValues) set(i int, v schema.Value) {
	var b []byte
	if c.k == schema.KindString {
		b = []byte(v.S)
	} else {
		b = append([]byte(nil), v.Raw...)
	}
	c.size += int64(len(b)) - int64(len(c.data[i]))
	c.data[i] = b
}

func (c *varValues) sizeBytes() int64 {
	// slice headers plus payload
	return int64(cap(c.data))*24 + c.size
}

func (c *varValues) encode(n int) ([]byte, []byte) {
	offsets := make([]byte, (n+1)*4)
	total := 0
	for i := 0; i < n; i++ {
		total += len(c.data[i])
	}
	data := make([]byte, 0, total)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(offsets[i*4:], uint32(len(data)))
		data = append(data, c.data[i]...)
	}
	binary.LittleEndian.PutUint32(offsets[n*4:], uint32(len(data)))
	return data, offsets
}

func (c *varValues) decode(n int, data, offsets []byte) error {
	if len(offsets) != (n+1)*4 {
		return fmt.Errorf("%s values: want %d offset bytes, got %d", c.k, (n+1)*4, len(offsets))
	}
	prev := binary.LittleEndian.Uint32(offsets[0:])
	if prev != 0 {
		return fmt.Errorf("%s values: first offset is %d", c.k, prev)
	}
	c.size = 0
	for i := 0; i < n; i++ {
		end := binary.LittleEndian.Uint32(offsets[(i+1)*4:])
		if end < prev || int(end) > len(data) {
			return fmt.Errorf("%s values: offset %d out of range at row %d", c.k, end, i)
		}
		// copy out so the column does not pin the decode buffer
		b := make([]byte, end-prev)
		copy(b, data[prev:end])
		c.data[i] = b
		c.size += int64(len(b))
		prev = end
	}
	if int(prev) != len(data) {
		return fmt.Errorf("%s values: %d trailing bytes", c.k, len(data)-int(prev))
	}
	return nil
}

func newValueColumn(kind schema.Kind, capacity int) (valueColumn, error) {
	switch kind {
	case schema.KindInt:
		return &intValues{data: make([]int64, capacity)}, nil
	case schema.KindFloat:
		return &floatValues{data: make([]float64, capacity)}, nil
	case schema.KindBool:
		return &boolValues{data: make([]bool, capacity)}, nil
	case schema.KindString, schema.KindBytes:
		return &varValues{k: kind, data: make([][]byte, capacity)}, nil
	default:
		return nil, fmt.Errorf("unsupported column kind: %v", kind)
	}
}
