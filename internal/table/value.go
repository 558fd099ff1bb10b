package table

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind tags the content of a Value.
type Kind uint8

const (
	Null Kind = iota
	String
	Int
	Float
	Bool
	// Encoded holds compact JSON text for an opaque column.
	Encoded
)

var kindNames = [...]string{
	Null:    "null",
	String:  "string",
	Int:     "int",
	Float:   "float",
	Bool:    "bool",
	Encoded: "encoded",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if int(k) >= len(kindNames) {
		return nil, fmt.Errorf("unknown kind %d", k)
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	for i, name := range kindNames {
		if name == string(b) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown kind %q", b)
}

// Value is a single cell: either a native scalar or an encoded blob.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
}

func NullValue() Value               { return Value{} }
func StringValue(s string) Value     { return Value{kind: String, s: s} }
func IntValue(i int64) Value         { return Value{kind: Int, i: i} }
func FloatValue(f float64) Value     { return Value{kind: Float, f: f} }
func BoolValue(b bool) Value         { return Value{kind: Bool, b: b} }
func EncodedValue(blob string) Value { return Value{kind: Encoded, s: blob} }

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == Null }
func (v Value) Str() string    { return v.s }
func (v Value) Int() int64     { return v.i }
func (v Value) Float() float64 { return v.f }
func (v Value) Bool() bool     { return v.b }

// Number returns the numeric content of an Int or Float value as float64.
func (v Value) Number() float64 {
	if v.kind == Int {
		return float64(v.i)
	}
	return v.f
}

// Equal compares kind and content. Float NaN equals NaN.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case Null:
		return true
	case String, Encoded:
		return v.s == o.s
	case Int:
		return v.i == o.i
	case Float:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case Bool:
		return v.b == o.b
	}
	return false
}

// JSON renders the value as JSON text. Encoded values are returned as-is
// when valid JSON, otherwise as a JSON string holding the raw text.
func (v Value) JSON() ([]byte, error) {
	switch v.kind {
	case Null:
		return []byte("null"), nil
	case String:
		return json.Marshal(v.s)
	case Int:
		return strconv.AppendInt(nil, v.i, 10), nil
	case Float:
		return json.Marshal(v.f)
	case Bool:
		return strconv.AppendBool(nil, v.b), nil
	case Encoded:
		if json.Valid([]byte(v.s)) {
			return []byte(v.s), nil
		}
		return json.Marshal(v.s)
	}
	return nil, fmt.Errorf("unknown kind %d", v.kind)
}

// Encode converts a scalar to its Encoded form. Null and Encoded values are
// returned unchanged.
func (v Value) Encode() (Value, error) {
	if v.kind == Null || v.kind == Encoded {
		return v, nil
	}
	b, err := v.JSON()
	if err != nil {
		return Value{}, err
	}
	return EncodedValue(string(b)), nil
}

func (v Value) String() string {
	switch v.kind {
	case Null:
		return "<null>"
	case Int:
		return strconv.FormatInt(v.i, 10)
	case Float:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case Bool:
		return strconv.FormatBool(v.b)
	}
	return v.s
}
