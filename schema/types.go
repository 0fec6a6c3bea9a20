// Package schema describes the value types a property column can hold.
//
// The schema itself is owned by the enclosing graph engine. This package only
// carries the descriptor handed to the store and the small typed Value used to
// move property values in and out of a partition.
package schema

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
)

// Kind identifies the concrete type stored in a Value.
//
// NOTE: Kind values are persisted in partition file headers; keep them stable.
type Kind uint8

const (
	// KindInvalid represents an invalid kind.
	KindInvalid Kind = iota
	// KindInt represents an int64 value.
	KindInt
	// KindFloat represents a float64 value.
	KindFloat
	// KindBool represents a boolean value.
	KindBool
	// KindString represents a variable-width UTF-8 string.
	KindString
	// KindBytes represents a variable-width opaque byte string.
	KindBytes
)

// String returns the stable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	default:
		return "invalid"
	}
}

// Valid reports whether k is a storable kind.
func (k Kind) Valid() bool {
	return k >= KindInt && k <= KindBytes
}

// FixedWidth reports whether values of this kind occupy a fixed number of bytes.
func (k Kind) FixedWidth() bool {
	switch k {
	case KindInt, KindFloat, KindBool:
		return true
	default:
		return false
	}
}

// Width returns the on-disk slot width of fixed-width kinds, 0 otherwise.
func (k Kind) Width() int {
	switch k {
	case KindInt, KindFloat:
		return 8
	case KindBool:
		return 1
	default:
		return 0
	}
}

// ParseKind parses the name produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "int":
		return KindInt, nil
	case "float":
		return KindFloat, nil
	case "bool":
		return KindBool, nil
	case "string":
		return KindString, nil
	case "bytes":
		return KindBytes, nil
	default:
		return KindInvalid, fmt.Errorf("schema: unknown kind %q", s)
	}
}

// Descriptor describes a single versioned property.
type Descriptor struct {
	// Name is informational only; the store addresses properties by id.
	Name string
	// Kind is the value type of every row in the property column.
	Kind Kind
}

// Validate checks that the descriptor can back a column.
func (d Descriptor) Validate() error {
	if !d.Kind.Valid() {
		return fmt.Errorf("schema: property %q has invalid kind %d", d.Name, d.Kind)
	}
	return nil
}

// Value is a small typed property value.
//
// Only the field matching Kind is meaningful. The zero Value has KindInvalid.
type Value struct {
	Kind Kind
	I64  int64
	F64  float64
	B    bool
	S    string
	Raw  []byte
}

// Int returns an int64 Value.
func Int(v int64) Value { return Value{Kind: KindInt, I64: v} }

// Float returns a float64 Value.
func Float(v float64) Value { return Value{Kind: KindFloat, F64: v} }

// Bool returns a boolean Value.
func Bool(v bool) Value { return Value{Kind: KindBool, B: v} }

// String returns a string Value.
func String(v string) Value { return Value{Kind: KindString, S: v} }

// Bytes returns a byte-string Value. The slice is retained, not copied.
func Bytes(v []byte) Value { return Value{Kind: KindBytes, Raw: v} }

// AsInt64 returns the int64 value if Kind is KindInt.
func (v Value) AsInt64() (int64, bool) {
	if v.Kind != KindInt {
		return 0, false
	}
	return v.I64, true
}

// AsFloat64 returns the float64 value if Kind is KindFloat.
func (v Value) AsFloat64() (float64, bool) {
	if v.Kind != KindFloat {
		return 0, false
	}
	return v.F64, true
}

// AsBool returns the boolean value if Kind is KindBool.
func (v Value) AsBool() (bool, bool) {
	if v.Kind != KindBool {
		return false, false
	}
	return v.B, true
}

// AsString returns the string value if Kind is KindString.
func (v Value) AsString() (string, bool) {
	if v.Kind != KindString {
		return "", false
	}
	return v.S, true
}

// AsBytes returns the byte value if Kind is KindBytes.
func (v Value) AsBytes() ([]byte, bool) {
	if v.Kind != KindBytes {
		return nil, false
	}
	return v.Raw, true
}

// Equal reports whether two values have the same kind and payload.
// Floats compare by bit pattern so NaN equals itself.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindInt:
		return v.I64 == o.I64
	case KindFloat:
		return math.Float64bits(v.F64) == math.Float64bits(o.F64)
	case KindBool:
		return v.B == o.B
	case KindString:
		return v.S == o.S
	case KindBytes:
		return bytes.Equal(v.Raw, o.Raw)
	default:
		return true
	}
}

// String renders the value for logs and the CLI.
func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.I64, 10)
	case KindFloat:
		return strconv.FormatFloat(v.F64, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.B)
	case KindString:
		return strconv.Quote(v.S)
	case KindBytes:
		return fmt.Sprintf("0x%x", v.Raw)
	default:
		return "<invalid>"
	}
}
