package rscp

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind identifies the wire representation of a Value.
type Kind uint8

// Wire type codes as transmitted in the item header.
const (
	KindNone      Kind = 0x00
	KindBool      Kind = 0x01
	KindInt8      Kind = 0x02
	KindUInt8     Kind = 0x03
	KindInt16     Kind = 0x04
	KindUInt16    Kind = 0x05
	KindInt32     Kind = 0x06
	KindUInt32    Kind = 0x07
	KindInt64     Kind = 0x08
	KindUInt64    Kind = 0x09
	KindFloat32   Kind = 0x0A
	KindFloat64   Kind = 0x0B
	KindBitfield  Kind = 0x0C
	KindText      Kind = 0x0D
	KindContainer Kind = 0x0E
	KindTimestamp Kind = 0x0F
	KindByteArray Kind = 0x10
	KindError     Kind = 0xFF
)

// String returns the kind name as used in error messages.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindBool:
		return "Bool"
	case KindInt8:
		return "Int8"
	case KindUInt8:
		return "UInt8"
	case KindInt16:
		return "Int16"
	case KindUInt16:
		return "UInt16"
	case KindInt32:
		return "Int32"
	case KindUInt32:
		return "UInt32"
	case KindInt64:
		return "Int64"
	case KindUInt64:
		return "UInt64"
	case KindFloat32:
		return "Float32"
	case KindFloat64:
		return "Float64"
	case KindBitfield:
		return "Bitfield"
	case KindText:
		return "Text"
	case KindContainer:
		return "Container"
	case KindTimestamp:
		return "Timestamp"
	case KindByteArray:
		return "ByteArray"
	case KindError:
		return "Error"
	default:
		return fmt.Sprintf("Kind(0x%02X)", uint8(k))
	}
}

// Value is the closed union of payload representations an item can
// carry. The zero Value has KindNone and stands for "no payload",
// which is how request items ask the device for a reading.
//
// Values are immutable once constructed. Numeric widths are preserved
// so coercions can apply per-width rules.
type Value struct {
	kind  Kind
	b     bool
	i     int64
	u     uint64
	f     float64
	s     string
	ts    time.Time
	raw   []byte
	items []Item
}

// Item is one tagged element of a frame. A nil payload is expressed
// by the zero Value (KindNone).
type Item struct {
	Tag   Tag
	Value Value
}

// NewItem builds an item carrying a value.
func NewItem(tag Tag, v Value) Item { return Item{Tag: tag, Value: v} }

// EmptyItem builds a payload-less item, the shape of most requests.
func EmptyItem(tag Tag) Item { return Item{Tag: tag} }

// Constructors for every union arm.

// Bool builds a boolean value.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Int8 builds a signed 8-bit value.
func Int8(v int8) Value { return Value{kind: KindInt8, i: int64(v)} }

// Int16 builds a signed 16-bit value.
func Int16(v int16) Value { return Value{kind: KindInt16, i: int64(v)} }

// Int32 builds a signed 32-bit value.
func Int32(v int32) Value { return Value{kind: KindInt32, i: int64(v)} }

// Int64 builds a signed 64-bit value.
func Int64(v int64) Value { return Value{kind: KindInt64, i: v} }

// UInt8 builds an unsigned 8-bit value.
func UInt8(v uint8) Value { return Value{kind: KindUInt8, u: uint64(v)} }

// UInt16 builds an unsigned 16-bit value.
func UInt16(v uint16) Value { return Value{kind: KindUInt16, u: uint64(v)} }

// UInt32 builds an unsigned 32-bit value.
func UInt32(v uint32) Value { return Value{kind: KindUInt32, u: uint64(v)} }

// UInt64 builds an unsigned 64-bit value.
func UInt64(v uint64) Value { return Value{kind: KindUInt64, u: v} }

// Float32 builds a 32-bit float value.
func Float32(v float32) Value { return Value{kind: KindFloat32, f: float64(v)} }

// Float64 builds a 64-bit float value.
func Float64(v float64) Value { return Value{kind: KindFloat64, f: v} }

// Text builds a string value.
func Text(s string) Value { return Value{kind: KindText, s: s} }

// Timestamp builds a timestamp value with nanosecond precision.
func Timestamp(t time.Time) Value { return Value{kind: KindTimestamp, ts: t} }

// ByteArray builds an opaque byte blob value.
func ByteArray(b []byte) Value { return Value{kind: KindByteArray, raw: b} }

// Bitfield builds a bitfield value.
func Bitfield(b []byte) Value { return Value{kind: KindBitfield, raw: b} }

// Container builds a container value nesting the given items.
func Container(items ...Item) Value { return Value{kind: KindContainer, items: items} }

// ErrorCode builds an error value carrying a device error code.
func ErrorCode(code uint32) Value { return Value{kind: KindError, u: uint64(code)} }

// Kind returns the wire representation of the value.
func (v Value) Kind() Kind { return v.kind }

// IsNone reports whether the value carries no payload.
func (v Value) IsNone() bool { return v.kind == KindNone }

// Items returns the nested items of a container value, or nil for
// any other kind.
func (v Value) Items() []Item {
	if v.kind != KindContainer {
		return nil
	}
	return v.items
}

// AsString coerces the value to its text form. Booleans become
// "true"/"false", integers their decimal form and floats the shortest
// decimal that round-trips at the value's original width. Containers,
// timestamps, blobs and device errors do not coerce.
func (v Value) AsString() (string, error) {
	switch v.kind {
	case KindText:
		return v.s, nil
	case KindBool:
		return strconv.FormatBool(v.b), nil
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return strconv.FormatInt(v.i, 10), nil
	case KindUInt8, KindUInt16, KindUInt32, KindUInt64:
		return strconv.FormatUint(v.u, 10), nil
	case KindFloat32:
		return strconv.FormatFloat(v.f, 'f', -1, 32), nil
	case KindFloat64:
		return strconv.FormatFloat(v.f, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("%w: cannot convert %s to string", ErrTypeMismatch, v.kind)
	}
}

// AsFloat64 coerces the value to a float64. Booleans map to 1 and 0,
// integers of any width widen, Float32 widens exactly. Text and all
// structured kinds do not coerce.
func (v Value) AsFloat64() (float64, error) {
	switch v.kind {
	case KindBool:
		if v.b {
			return 1, nil
		}
		return 0, nil
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return float64(v.i), nil
	case KindUInt8, KindUInt16, KindUInt32, KindUInt64:
		return float64(v.u), nil
	case KindFloat32, KindFloat64:
		return v.f, nil
	default:
		return 0, fmt.Errorf("%w: cannot convert %s to float64", ErrTypeMismatch, v.kind)
	}
}

// AsUint64 coerces the value to a uint64. Booleans map to 1 and 0.
// Signed integers convert only when non-negative and floats only when
// finite, non-negative and within range. Out-of-range values fail,
// they are never clamped.
func (v Value) AsUint64() (uint64, error) {
	switch v.kind {
	case KindBool:
		if v.b {
			return 1, nil
		}
		return 0, nil
	case KindInt8, KindInt16, KindInt32, KindInt64:
		if v.i < 0 {
			return 0, fmt.Errorf("%w: negative value %d cannot convert to uint64", ErrTypeMismatch, v.i)
		}
		return uint64(v.i), nil
	case KindUInt8, KindUInt16, KindUInt32, KindUInt64:
		return v.u, nil
	case KindFloat32, KindFloat64:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) || v.f < 0 || v.f >= 1<<64 {
			return 0, fmt.Errorf("%w: float %g cannot convert to uint64", ErrTypeMismatch, v.f)
		}
		return uint64(v.f), nil
	default:
		return 0, fmt.Errorf("%w: cannot convert %s to uint64", ErrTypeMismatch, v.kind)
	}
}

// boolEpsilon is the magnitude below which a float coerces to false.
const boolEpsilon = 1e-10

// AsBool coerces the value to a bool. Integers are true when nonzero,
// floats when their magnitude reaches boolEpsilon. Text and all
// structured kinds do not coerce.
func (v Value) AsBool() (bool, error) {
	switch v.kind {
	case KindBool:
		return v.b, nil
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return v.i != 0, nil
	case KindUInt8, KindUInt16, KindUInt32, KindUInt64:
		return v.u != 0, nil
	case KindFloat32, KindFloat64:
		return math.Abs(v.f) >= boolEpsilon, nil
	default:
		return false, fmt.Errorf("%w: cannot convert %s to bool", ErrTypeMismatch, v.kind)
	}
}

// Time returns the payload of a timestamp value.
func (v Value) Time() (time.Time, error) {
	if v.kind != KindTimestamp {
		return time.Time{}, fmt.Errorf("%w: cannot convert %s to time", ErrTypeMismatch, v.kind)
	}
	return v.ts, nil
}
