package bytecode

import "fmt"

// BlockRef is a compiled block: an inline region of a program that is
// entered by INVOKE_YIELD and left by RETURN. Params lists the symbol
// slots that receive the block's positional parameters.
type BlockRef struct {
	Start  int
	Params []int
}

// Function is a host function bound into the pool at compile time.
type Function struct {
	Name string
	Fn   any
}

// Opaque wraps a host value stored in the pool.
type Opaque struct {
	Value any
}

// Pool is the immutable constant pool of a program. Entries are one of
// string, float64, []uint32 (array of handles), *BlockRef, *Function or
// Opaque.
type Pool struct {
	entries []any
}

// NewPool creates a pool from the given entries. The slice is copied.
func NewPool(entries []any) *Pool {
	p := &Pool{entries: make([]any, len(entries))}
	for i, e := range entries {
		if arr, ok := e.([]uint32); ok {
			cp := make([]uint32, len(arr))
			copy(cp, arr)
			e = cp
		}
		p.entries[i] = e
	}
	return p
}

// Len returns the number of entries.
func (p *Pool) Len() int {
	return len(p.entries)
}

// At returns the raw entry at handle h.
func (p *Pool) At(h uint32) any {
	if int(h) >= len(p.entries) {
		panic(fmt.Sprintf("constant pool handle %d out of range (%d entries)", h, len(p.entries)))
	}
	return p.entries[h]
}

// String returns the string at handle h.
func (p *Pool) String(h uint32) string {
	s, ok := p.At(h).(string)
	if !ok {
		panic(fmt.Sprintf("constant pool handle %d is not a string (%T)", h, p.entries[h]))
	}
	return s
}

// Number returns the number at handle h.
func (p *Pool) Number(h uint32) float64 {
	n, ok := p.At(h).(float64)
	if !ok {
		panic(fmt.Sprintf("constant pool handle %d is not a number (%T)", h, p.entries[h]))
	}
	return n
}

// Array returns a copy of the handle array at h.
func (p *Pool) Array(h uint32) []uint32 {
	arr, ok := p.At(h).([]uint32)
	if !ok {
		panic(fmt.Sprintf("constant pool handle %d is not an array (%T)", h, p.entries[h]))
	}
	cp := make([]uint32, len(arr))
	copy(cp, arr)
	return cp
}

// Strings resolves the array at h into the strings it references.
func (p *Pool) Strings(h uint32) []string {
	arr := p.Array(h)
	out := make([]string, len(arr))
	for i, sh := range arr {
		out[i] = p.String(sh)
	}
	return out
}

// Block returns the block reference at h.
func (p *Pool) Block(h uint32) *BlockRef {
	b, ok := p.At(h).(*BlockRef)
	if !ok {
		panic(fmt.Sprintf("constant pool handle %d is not a block (%T)", h, p.entries[h]))
	}
	return b
}

// Value returns the opaque value at h.
func (p *Pool) Value(h uint32) any {
	v, ok := p.At(h).(Opaque)
	if !ok {
		panic(fmt.Sprintf("constant pool handle %d is not an opaque value (%T)", h, p.entries[h]))
	}
	return v.Value
}

// Primitive decodes a PRIMITIVE operand into a Go value: float64, string,
// bool, nil for null, or Undefined.
func (p *Pool) Primitive(operand uint32) any {
	tag, payload := DecodeOperand(operand)
	switch tag {
	case TagImmediate:
		return float64(payload)
	case TagString:
		return p.String(payload)
	case TagNumber:
		return p.Number(payload)
	default:
		switch payload {
		case SingletonFalse:
			return false
		case SingletonTrue:
			return true
		case SingletonNull:
			return nil
		default:
			return UndefinedValue
		}
	}
}

// UndefinedType is the type of UndefinedValue.
type UndefinedType struct{}

// String returns "undefined".
func (UndefinedType) String() string { return "undefined" }

// UndefinedValue is the runtime representation of the undefined literal.
var UndefinedValue = UndefinedType{}
