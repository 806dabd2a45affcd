package bytecode

import (
	"fmt"
	"math"
	"strconv"
)

// PrimitiveKind identifies the variant held by a Primitive.
type PrimitiveKind uint8

const (
	// PrimitiveInvalid is the zero Primitive. It cannot be encoded.
	PrimitiveInvalid PrimitiveKind = iota
	PrimitiveNumber
	PrimitiveString
	PrimitiveBool
	PrimitiveNull
	PrimitiveUndefined
)

// String returns the name of the kind.
func (k PrimitiveKind) String() string {
	switch k {
	case PrimitiveNumber:
		return "number"
	case PrimitiveString:
		return "string"
	case PrimitiveBool:
		return "boolean"
	case PrimitiveNull:
		return "null"
	case PrimitiveUndefined:
		return "undefined"
	default:
		return "invalid"
	}
}

// Primitive is a literal value chosen explicitly at the call site.
type Primitive struct {
	kind PrimitiveKind
	num  float64
	str  string
	b    bool
}

// Number returns a number literal.
func Number(n float64) Primitive { return Primitive{kind: PrimitiveNumber, num: n} }

// String returns a string literal.
func String(s string) Primitive { return Primitive{kind: PrimitiveString, str: s} }

// Bool returns a boolean literal.
func Bool(b bool) Primitive { return Primitive{kind: PrimitiveBool, b: b} }

// Null returns the null literal.
func Null() Primitive { return Primitive{kind: PrimitiveNull} }

// Undefined returns the undefined literal.
func Undefined() Primitive { return Primitive{kind: PrimitiveUndefined} }

// Kind returns the variant of the primitive.
func (p Primitive) Kind() PrimitiveKind { return p.kind }

// NumberValue returns the number payload.
func (p Primitive) NumberValue() float64 { return p.num }

// StringValue returns the string payload.
func (p Primitive) StringValue() string { return p.str }

// BoolValue returns the boolean payload.
func (p Primitive) BoolValue() bool { return p.b }

// String returns a readable form of the literal.
func (p Primitive) String() string {
	switch p.kind {
	case PrimitiveNumber:
		return strconv.FormatFloat(p.num, 'g', -1, 64)
	case PrimitiveString:
		return strconv.Quote(p.str)
	case PrimitiveBool:
		return strconv.FormatBool(p.b)
	case PrimitiveNull:
		return "null"
	case PrimitiveUndefined:
		return "undefined"
	default:
		return "<invalid>"
	}
}

// Operand encoding: the low 2 bits hold a tag, the upper 30 bits a payload.
const (
	TagImmediate uint32 = 0 // non-negative integer stored inline
	TagString    uint32 = 1 // payload is a string pool handle
	TagSingleton uint32 = 2 // payload is one of the Singleton* values
	TagNumber    uint32 = 3 // payload is a number pool handle

	tagBits    = 2
	tagMask    = 1<<tagBits - 1
	MaxPayload = 1<<(32-tagBits) - 1
)

// Singleton payloads.
const (
	SingletonFalse     uint32 = 0
	SingletonTrue      uint32 = 1
	SingletonNull      uint32 = 2
	SingletonUndefined uint32 = 3
)

// EncodeOperand packs a tag and payload into one operand.
func EncodeOperand(tag, payload uint32) (uint32, error) {
	if tag > tagMask {
		return 0, fmt.Errorf("invalid primitive tag %d", tag)
	}
	if payload > MaxPayload {
		return 0, fmt.Errorf("primitive payload %d exceeds %d", payload, MaxPayload)
	}
	return payload<<tagBits | tag, nil
}

// DecodeOperand splits an operand into its tag and payload.
func DecodeOperand(operand uint32) (tag, payload uint32) {
	return operand & tagMask, operand >> tagBits
}

// IsImmediateNumber reports whether n can be stored inline.
func IsImmediateNumber(n float64) bool {
	return n >= 0 && n <= MaxPayload && n == math.Trunc(n) && !math.Signbit(n)
}
