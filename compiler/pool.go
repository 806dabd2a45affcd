package compiler

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/deepnoodle-ai/rehydra/bytecode"
	"github.com/deepnoodle-ai/rehydra/errors"
)

// MaxConstants bounds the pool so every handle fits in an encoded operand.
const MaxConstants = bytecode.MaxPayload

// pool is the mutable constant pool used while compiling. Identical content
// maps to the same handle: strings and numbers by value, arrays by their
// element handles, opaque values by identity when hashable, functions by
// name.
type pool struct {
	entries []any
	strings map[string]uint32
	numbers map[uint64]uint32
	arrays  map[string]uint32
	values  map[any]uint32
	funcs   map[string]uint32
}

func newPool() *pool {
	return &pool{
		strings: map[string]uint32{},
		numbers: map[uint64]uint32{},
		arrays:  map[string]uint32{},
		values:  map[any]uint32{},
		funcs:   map[string]uint32{},
	}
}

func (p *pool) add(entry any) (uint32, error) {
	if len(p.entries) >= MaxConstants {
		return 0, errors.NewCompileError(errors.E2006, "number of constants exceeded limits")
	}
	p.entries = append(p.entries, entry)
	return uint32(len(p.entries) - 1), nil
}

func (p *pool) str(s string) (uint32, error) {
	if h, ok := p.strings[s]; ok {
		return h, nil
	}
	h, err := p.add(s)
	if err != nil {
		return 0, err
	}
	p.strings[s] = h
	return h, nil
}

func (p *pool) number(n float64) (uint32, error) {
	key := math.Float64bits(n)
	if h, ok := p.numbers[key]; ok {
		return h, nil
	}
	h, err := p.add(n)
	if err != nil {
		return 0, err
	}
	p.numbers[key] = h
	return h, nil
}

func (p *pool) array(handles []uint32) (uint32, error) {
	var b strings.Builder
	for _, h := range handles {
		fmt.Fprintf(&b, "%d,", h)
	}
	key := b.String()
	if h, ok := p.arrays[key]; ok {
		return h, nil
	}
	cp := make([]uint32, len(handles))
	copy(cp, handles)
	h, err := p.add(cp)
	if err != nil {
		return 0, err
	}
	p.arrays[key] = h
	return h, nil
}

func (p *pool) stringArray(values []string) (uint32, error) {
	handles := make([]uint32, len(values))
	for i, v := range values {
		h, err := p.str(v)
		if err != nil {
			return 0, err
		}
		handles[i] = h
	}
	return p.array(handles)
}

// value stores an opaque host value. Only values that can be hashed at run
// time are shared: a comparable struct holding a slice in an interface field
// is stored without lookup.
func (p *pool) value(v any) (uint32, error) {
	byIdentity := v == nil || reflect.ValueOf(v).Comparable()
	if byIdentity {
		if h, ok := p.values[v]; ok {
			return h, nil
		}
	}
	h, err := p.add(bytecode.Opaque{Value: v})
	if err != nil {
		return 0, err
	}
	if byIdentity {
		p.values[v] = h
	}
	return h, nil
}

// function stores a host function. Functions are not comparable in Go, so
// identity is the registered name.
func (p *pool) function(name string, fn any) (uint32, error) {
	if h, ok := p.funcs[name]; ok {
		return h, nil
	}
	h, err := p.add(&bytecode.Function{Name: name, Fn: fn})
	if err != nil {
		return 0, err
	}
	p.funcs[name] = h
	return h, nil
}

// block stores a compiled block. Blocks are never shared.
func (p *pool) block(ref *bytecode.BlockRef) (uint32, error) {
	return p.add(ref)
}
