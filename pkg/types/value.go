// Package types provides core data types for Tessera.
package types

import (
	"fmt"
	"strconv"
	"time"
)

// ValueTypeID identifies the scalar type of a distribution column value.
type ValueTypeID int32

const (
	// TypeInvalid is the zero value and never a legal column type.
	TypeInvalid ValueTypeID = iota

	// TypeInt64 is a signed 64-bit integer column
	TypeInt64

	// TypeFloat64 is a 64-bit IEEE 754 floating point column
	TypeFloat64

	// TypeText is a variable-length UTF-8 text column
	TypeText

	// TypeBool is a boolean column (false sorts before true)
	TypeBool

	// TypeTimestamp is a UTC timestamp column with nanosecond precision
	TypeTimestamp
)

// String returns the stable name of the type, used in catalog storage
// and diagnostics.
func (t ValueTypeID) String() string {
	switch t {
	case TypeInt64:
		return "int64"
	case TypeFloat64:
		return "float64"
	case TypeText:
		return "text"
	case TypeBool:
		return "bool"
	case TypeTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("invalid(%d)", int32(t))
	}
}

// ParseValueTypeID resolves a stable type name back to its ValueTypeID.
func ParseValueTypeID(name string) (ValueTypeID, error) {
	switch name {
	case "int64":
		return TypeInt64, nil
	case "float64":
		return TypeFloat64, nil
	case "text":
		return TypeText, nil
	case "bool":
		return TypeBool, nil
	case "timestamp":
		return TypeTimestamp, nil
	default:
		return TypeInvalid, fmt.Errorf("types: %w: %q", ErrUnknownType, name)
	}
}

// Value is an immutable typed scalar: a distribution column literal or a
// shard interval bound. The zero Value has TypeInvalid and is not a legal
// operand for comparison.
type Value struct {
	typeID ValueTypeID
	i      int64 // int64, bool (0/1), timestamp (unix nanoseconds)
	f      float64
	s      string
}

// Int64Value returns an int64-typed Value.
func Int64Value(v int64) Value {
	return Value{typeID: TypeInt64, i: v}
}

// Float64Value returns a float64-typed Value.
func Float64Value(v float64) Value {
	return Value{typeID: TypeFloat64, f: v}
}

// TextValue returns a text-typed Value.
func TextValue(v string) Value {
	return Value{typeID: TypeText, s: v}
}

// BoolValue returns a bool-typed Value.
func BoolValue(v bool) Value {
	var i int64
	if v {
		i = 1
	}
	return Value{typeID: TypeBool, i: i}
}

// TimestampValue returns a timestamp-typed Value. The time is normalized
// to UTC nanoseconds.
func TimestampValue(t time.Time) Value {
	return Value{typeID: TypeTimestamp, i: t.UTC().UnixNano()}
}

// TypeID returns the scalar type of the value.
func (v Value) TypeID() ValueTypeID {
	return v.typeID
}

// IsValid reports whether the value carries a legal type.
func (v Value) IsValid() bool {
	return v.typeID != TypeInvalid
}

// Int64 returns the int64 payload. Only meaningful for TypeInt64.
func (v Value) Int64() int64 { return v.i }

// Float64 returns the float64 payload. Only meaningful for TypeFloat64.
func (v Value) Float64() float64 { return v.f }

// Text returns the text payload. Only meaningful for TypeText.
func (v Value) Text() string { return v.s }

// Bool returns the bool payload. Only meaningful for TypeBool.
func (v Value) Bool() bool { return v.i != 0 }

// Timestamp returns the timestamp payload. Only meaningful for TypeTimestamp.
func (v Value) Timestamp() time.Time { return time.Unix(0, v.i).UTC() }

// Compare orders v against other. Both values must carry the same type;
// comparing across types returns ErrTypeMismatch rather than guessing a
// coercion. Returns -1, 0, or 1.
func (v Value) Compare(other Value) (int, error) {
	if v.typeID == TypeInvalid || other.typeID == TypeInvalid {
		return 0, fmt.Errorf("types: %w: cannot compare invalid value", ErrTypeMismatch)
	}
	if v.typeID != other.typeID {
		return 0, fmt.Errorf("types: %w: %s vs %s", ErrTypeMismatch, v.typeID, other.typeID)
	}

	switch v.typeID {
	case TypeInt64, TypeBool, TypeTimestamp:
		return compareInt64(v.i, other.i), nil
	case TypeFloat64:
		if v.f < other.f {
			return -1, nil
		}
		if v.f > other.f {
			return 1, nil
		}
		return 0, nil
	case TypeText:
		if v.s < other.s {
			return -1, nil
		}
		if v.s > other.s {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("types: %w: %s", ErrUnknownType, v.typeID)
	}
}

func compareInt64(a, b int64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// EncodeText renders the value in the canonical text form used for shard
// interval bounds in the catalog. ParseValue inverts it exactly.
func (v Value) EncodeText() string {
	switch v.typeID {
	case TypeInt64:
		return strconv.FormatInt(v.i, 10)
	case TypeFloat64:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case TypeText:
		return v.s
	case TypeBool:
		if v.i != 0 {
			return "true"
		}
		return "false"
	case TypeTimestamp:
		return time.Unix(0, v.i).UTC().Format(time.RFC3339Nano)
	default:
		return ""
	}
}

// ParseValue decodes the canonical text form of a value of the given type.
func ParseValue(typeID ValueTypeID, text string) (Value, error) {
	switch typeID {
	case TypeInt64:
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("types: %w: int64 %q: %v", ErrMalformedValue, text, err)
		}
		return Int64Value(i), nil
	case TypeFloat64:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Value{}, fmt.Errorf("types: %w: float64 %q: %v", ErrMalformedValue, text, err)
		}
		return Float64Value(f), nil
	case TypeText:
		return TextValue(text), nil
	case TypeBool:
		switch text {
		case "true":
			return BoolValue(true), nil
		case "false":
			return BoolValue(false), nil
		default:
			return Value{}, fmt.Errorf("types: %w: bool %q", ErrMalformedValue, text)
		}
	case TypeTimestamp:
		t, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return Value{}, fmt.Errorf("types: %w: timestamp %q: %v", ErrMalformedValue, text, err)
		}
		return TimestampValue(t), nil
	default:
		return Value{}, fmt.Errorf("types: %w: %s", ErrUnknownType, typeID)
	}
}

// String renders the value for logs and diagnostics.
func (v Value) String() string {
	if v.typeID == TypeInvalid {
		return "<invalid>"
	}
	if v.typeID == TypeText {
		return strconv.Quote(v.s)
	}
	return v.EncodeText()
}

// Comparator orders two values of one column type. It is bound once per
// pruning call so the type check happens at bind time, not per comparison.
type Comparator func(a, b Value) (int, error)

// ComparatorFor returns the comparator for a column type. Values of any
// other type passed to the comparator fail with ErrTypeMismatch.
func ComparatorFor(typeID ValueTypeID) (Comparator, error) {
	if typeID == TypeInvalid {
		return nil, fmt.Errorf("types: %w: no comparator for invalid type", ErrUnknownType)
	}
	want := typeID
	return func(a, b Value) (int, error) {
		if a.typeID != want {
			return 0, fmt.Errorf("types: %w: comparator for %s got %s", ErrTypeMismatch, want, a.typeID)
		}
		return a.Compare(b)
	}, nil
}
