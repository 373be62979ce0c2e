package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Errors returned when a wire value is not a scalar.
var (
	ErrNullValue    = errors.New("null value")
	ErrNotScalar    = errors.New("value is not a scalar")
	ErrInvalidValue = errors.New("invalid value")
)

// Kind identifies which member of the Value union is set.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindString
	KindNumber
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "invalid"
	}
}

// Value is a field value: exactly one of string, number or boolean.
// The zero Value is invalid. Values are immutable and safe to share.
type Value struct {
	kind Kind
	str  string
	num  decimal.Decimal
	b    bool
}

// String returns a string Value.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Number returns a numeric Value.
func Number(d decimal.Decimal) Value {
	return Value{kind: KindNumber, num: d}
}

// Float returns a numeric Value from a float64.
func Float(f float64) Value {
	return Number(decimal.NewFromFloat(f))
}

// Int returns a numeric Value from an int64.
func Int(i int64) Value {
	return Number(decimal.NewFromInt(i))
}

// Bool returns a boolean Value.
func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// ParseJSON decodes a single JSON scalar.
// null yields ErrNullValue; objects and arrays yield ErrNotScalar.
func ParseJSON(raw []byte) (Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Value{}, ErrInvalidValue
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, fmt.Errorf("decode string: %w", err)
		}
		return String(s), nil
	case 't', 'f':
		b, err := strconv.ParseBool(string(raw))
		if err != nil {
			return Value{}, ErrInvalidValue
		}
		return Bool(b), nil
	case 'n':
		if string(raw) == "null" {
			return Value{}, ErrNullValue
		}
		return Value{}, ErrInvalidValue
	case '{', '[':
		return Value{}, ErrNotScalar
	}

	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return Value{}, fmt.Errorf("decode number %q: %w", raw, ErrInvalidValue)
	}
	return Number(d), nil
}

// FromAny converts a decoded Go scalar into a Value.
func FromAny(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Value{}, ErrNullValue
	case Value:
		if !x.IsValid() {
			return Value{}, ErrInvalidValue
		}
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case json.Number:
		return ParseJSON([]byte(x))
	case decimal.Decimal:
		return Number(x), nil
	case float64:
		return Float(x), nil
	case float32:
		return Float(float64(x)), nil
	case int:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case int32:
		return Int(int64(x)), nil
	case map[string]any, []any:
		return Value{}, ErrNotScalar
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrInvalidValue, v)
	}
}

// Kind returns the member that is set.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v holds one of the three members.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// Str returns the string member.
func (v Value) Str() (string, bool) {
	return v.str, v.kind == KindString
}

// Decimal returns the numeric member.
func (v Value) Decimal() (decimal.Decimal, bool) {
	return v.num, v.kind == KindNumber
}

// Boolean returns the boolean member.
func (v Value) Boolean() (bool, bool) {
	return v.b, v.kind == KindBool
}

// String formats the value for display.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num.String()
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Equal reports whether two values have the same kind and content.
// Numbers compare by value, so 150.30 equals 150.3.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num.Equal(o.num)
	case KindBool:
		return v.b == o.b
	default:
		return true
	}
}

// MarshalJSON encodes numbers as bare JSON numbers.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return []byte(v.num.String()), nil
	case KindBool:
		return []byte(strconv.FormatBool(v.b)), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts any JSON scalar except null.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
