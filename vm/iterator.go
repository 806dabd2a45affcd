package vm

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/deepnoodle-ai/rehydra/env"
)

// iterator walks the items of one list region. Keys identify items for
// diagnostics; reconciliation of existing items is positional.
type iterator struct {
	items []any
	keys  []string
	dupes int
	pos   int
}

func newIterator(items []any, keyPath string) *iterator {
	it := &iterator{items: items, keys: make([]string, len(items)), pos: -1}
	seen := make(map[string]int, len(items))
	for i, item := range items {
		key := itemKey(item, i, keyPath)
		if n, ok := seen[key]; ok {
			seen[key] = n + 1
			key = key + "#" + strconv.Itoa(n+1)
			it.dupes++
		} else {
			seen[key] = 0
		}
		it.keys[i] = key
	}
	return it
}

func (it *iterator) next() (any, int, bool) {
	it.pos++
	if it.pos >= len(it.items) {
		return nil, 0, false
	}
	return it.items[it.pos], it.pos, true
}

func itemKey(item any, index int, keyPath string) string {
	switch keyPath {
	case "@index":
		return strconv.Itoa(index)
	case "@identity", "":
		return identity(item)
	default:
		return env.ToString(env.PropertyPath(item, keyPath))
	}
}

// identity keys reference values by address and everything else by value.
func identity(v any) string {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return fmt.Sprintf("%T@%x", v, rv.Pointer())
	}
	return fmt.Sprintf("%T:%v", v, v)
}
