// Package builtins defines a default set of helpers and modifiers that
// templates can call by name.
package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/deepnoodle-ai/rehydra/dom"
	"github.com/deepnoodle-ai/rehydra/env"
)

func Len(ctx context.Context, args []any, named map[string]any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("len: expected 1 argument, got %d", len(args))
	}
	switch arg := args[0].(type) {
	case string:
		return float64(len([]rune(arg))), nil
	case map[string]any:
		return float64(len(arg)), nil
	}
	items, ok := env.Items(args[0])
	if !ok {
		return nil, fmt.Errorf("type error: len() unsupported argument (%T given)", args[0])
	}
	return float64(len(items)), nil
}

func Sprintf(ctx context.Context, args []any, named map[string]any) (any, error) {
	if len(args) < 1 || len(args) > 64 {
		return nil, fmt.Errorf("sprintf: expected 1-64 arguments, got %d", len(args))
	}
	fs, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("type error: sprintf() expected a format string (%T given)", args[0])
	}
	return fmt.Sprintf(fs, args[1:]...), nil
}

func String(ctx context.Context, args []any, named map[string]any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("string: expected 1 argument, got %d", len(args))
	}
	return env.ToString(args[0]), nil
}

func Bool(ctx context.Context, args []any, named map[string]any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("bool: expected 1 argument, got %d", len(args))
	}
	return env.Truthy(args[0]), nil
}

func Not(ctx context.Context, args []any, named map[string]any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("not: expected 1 argument, got %d", len(args))
	}
	return !env.Truthy(args[0]), nil
}

// Eq reports whether every argument equals the first. Numbers compare by
// value regardless of their Go type.
func Eq(ctx context.Context, args []any, named map[string]any) (any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("eq: expected at least 2 arguments, got %d", len(args))
	}
	for _, arg := range args[1:] {
		if !equal(args[0], arg) {
			return false, nil
		}
	}
	return true, nil
}

func Any(ctx context.Context, args []any, named map[string]any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("any: expected 1 argument, got %d", len(args))
	}
	items, ok := env.Items(args[0])
	if !ok {
		return nil, fmt.Errorf("type error: any() argument must be a list (%T given)", args[0])
	}
	for _, item := range items {
		if env.Truthy(item) {
			return true, nil
		}
	}
	return false, nil
}

func All(ctx context.Context, args []any, named map[string]any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("all: expected 1 argument, got %d", len(args))
	}
	items, ok := env.Items(args[0])
	if !ok {
		return nil, fmt.Errorf("type error: all() argument must be a list (%T given)", args[0])
	}
	for _, item := range items {
		if !env.Truthy(item) {
			return false, nil
		}
	}
	return true, nil
}

// Coalesce returns the first argument that is neither null nor undefined.
func Coalesce(ctx context.Context, args []any, named map[string]any) (any, error) {
	if len(args) > 64 {
		return nil, fmt.Errorf("coalesce: expected 0-64 arguments, got %d", len(args))
	}
	for _, arg := range args {
		if !env.IsNullish(arg) {
			return arg, nil
		}
	}
	return nil, nil
}

// Sorted returns a sorted copy of a list of strings or numbers, or the
// sorted keys of a map. With by="name", list items are ordered by that
// property instead.
func Sorted(ctx context.Context, args []any, named map[string]any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("sorted: expected 1 argument, got %d", len(args))
	}
	var items []any
	if m, ok := args[0].(map[string]any); ok {
		for key := range m {
			items = append(items, key)
		}
	} else {
		list, ok := env.Items(args[0])
		if !ok {
			return nil, fmt.Errorf("type error: sorted() unsupported argument (%T given)", args[0])
		}
		items = append(items, list...)
	}
	key := func(v any) any { return v }
	if by, ok := named["by"].(string); ok && by != "" {
		key = func(v any) any { return env.PropertyPath(v, by) }
	}
	var sortErr error
	sort.SliceStable(items, func(i, j int) bool {
		less, err := compare(key(items[i]), key(items[j]))
		if err != nil && sortErr == nil {
			sortErr = err
		}
		return less
	})
	if sortErr != nil {
		return nil, sortErr
	}
	return items, nil
}

func Reversed(ctx context.Context, args []any, named map[string]any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("reversed: expected 1 argument, got %d", len(args))
	}
	items, ok := env.Items(args[0])
	if !ok {
		return nil, fmt.Errorf("type error: reversed() unsupported argument (%T given)", args[0])
	}
	out := make([]any, len(items))
	for i, item := range items {
		out[len(items)-1-i] = item
	}
	return out, nil
}

func Keys(ctx context.Context, args []any, named map[string]any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("keys: expected 1 argument, got %d", len(args))
	}
	m, ok := args[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("type error: keys() expected a map (%T given)", args[0])
	}
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]any, len(keys))
	for i, key := range keys {
		out[i] = key
	}
	return out, nil
}

func Chunk(ctx context.Context, args []any, named map[string]any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("chunk: expected 2 arguments, got %d", len(args))
	}
	items, ok := env.Items(args[0])
	if !ok {
		return nil, fmt.Errorf("type error: chunk() expected a list (%T given)", args[0])
	}
	size, ok := toNumber(args[1])
	if !ok {
		return nil, fmt.Errorf("type error: chunk() expected a number (%T given)", args[1])
	}
	if size < 1 {
		return nil, fmt.Errorf("value error: chunk() size must be > 0 (%v given)", size)
	}
	n := int(size)
	chunks := []any{}
	for start := 0; start < len(items); start += n {
		end := min(start+n, len(items))
		chunk := make([]any, end-start)
		copy(chunk, items[start:end])
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// Join concatenates the string forms of a list's items. The separator is
// the second argument or sep="...", and defaults to ", ".
func Join(ctx context.Context, args []any, named map[string]any) (any, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("join: expected 1-2 arguments, got %d", len(args))
	}
	items, ok := env.Items(args[0])
	if !ok {
		return nil, fmt.Errorf("type error: join() expected a list (%T given)", args[0])
	}
	sep := ", "
	if s, ok := named["sep"]; ok {
		sep = env.ToString(s)
	}
	if len(args) == 2 {
		sep = env.ToString(args[1])
	}
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = env.ToString(item)
	}
	return strings.Join(parts, sep), nil
}

func Upper(ctx context.Context, args []any, named map[string]any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("upper: expected 1 argument, got %d", len(args))
	}
	return strings.ToUpper(env.ToString(args[0])), nil
}

func Lower(ctx context.Context, args []any, named map[string]any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("lower: expected 1 argument, got %d", len(args))
	}
	return strings.ToLower(env.ToString(args[0])), nil
}

// JSON encodes a value, for embedding state in a data attribute.
func JSON(ctx context.Context, args []any, named map[string]any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("json: expected 1 argument, got %d", len(args))
	}
	if env.IsUndefined(args[0]) {
		return "null", nil
	}
	data, err := json.Marshal(args[0])
	if err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	return string(data), nil
}

// Attr is a modifier that sets attributes from its named arguments once the
// element is attached, and removes them again when it is torn down.
func Attr(doc *dom.Document, el dom.Node, args []any, named map[string]any) (func(), error) {
	if len(args) != 0 {
		return nil, fmt.Errorf("attr: expected 0 positional arguments, got %d", len(args))
	}
	names := make([]string, 0, len(named))
	for name := range named {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		doc.SetAttribute(el, name, "", env.ToString(named[name]))
	}
	return func() {
		for _, name := range names {
			doc.RemoveAttribute(el, name, "")
		}
	}, nil
}

// Helpers returns the default helpers, keyed by the name templates call
// them with.
func Helpers() map[string]env.Helper {
	return map[string]env.Helper{
		"all":      All,
		"any":      Any,
		"bool":     Bool,
		"chunk":    Chunk,
		"coalesce": Coalesce,
		"eq":       Eq,
		"join":     Join,
		"json":     JSON,
		"keys":     Keys,
		"len":      Len,
		"lower":    Lower,
		"not":      Not,
		"reversed": Reversed,
		"sorted":   Sorted,
		"sprintf":  Sprintf,
		"string":   String,
		"upper":    Upper,
	}
}

// Modifiers returns the default element modifiers.
func Modifiers() map[string]env.Modifier {
	return map[string]env.Modifier{
		"attr": Attr,
	}
}

// Registry returns a new registry holding the default helpers and
// modifiers. Callers may register their own on top of it.
func Registry() *env.Registry {
	r := env.NewRegistry()
	for name, fn := range Helpers() {
		r.RegisterHelper(name, fn)
	}
	for name, fn := range Modifiers() {
		r.RegisterModifier(name, fn)
	}
	return r
}

func toNumber(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	}
	return 0, false
}

func equal(a, b any) bool {
	if x, ok := toNumber(a); ok {
		y, ok := toNumber(b)
		return ok && x == y
	}
	if env.IsNullish(a) || env.IsNullish(b) {
		return env.IsNullish(a) && env.IsNullish(b)
	}
	switch a.(type) {
	case string, bool:
		return a == b
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func compare(a, b any) (bool, error) {
	if x, ok := toNumber(a); ok {
		if y, ok := toNumber(b); ok {
			return x < y, nil
		}
	}
	x, xok := a.(string)
	y, yok := b.(string)
	if xok && yok {
		return x < y, nil
	}
	return false, fmt.Errorf("type error: unable to compare %T and %T", a, b)
}
