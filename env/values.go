package env

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/deepnoodle-ai/rehydra/bytecode"
)

// Getter is implemented by host values that resolve their own properties.
type Getter interface {
	GetProperty(name string) (any, bool)
}

// Iterable is implemented by host values that can be rendered as a list.
type Iterable interface {
	Items() []any
}

// IsUndefined reports whether v is the undefined value.
func IsUndefined(v any) bool {
	_, ok := v.(bytecode.UndefinedType)
	return ok
}

// IsNullish reports whether v is nil or undefined.
func IsNullish(v any) bool {
	return v == nil || IsUndefined(v)
}

// Property resolves name on obj. Maps are indexed by key, Getters are asked
// directly, and struct fields match by name, by name with the first letter
// upper-cased, or by json tag. Slices expose "length". Anything that cannot
// be resolved is undefined.
func Property(obj any, name string) any {
	switch obj := obj.(type) {
	case nil, bytecode.UndefinedType:
		return bytecode.UndefinedValue
	case map[string]any:
		if v, ok := obj[name]; ok {
			return v
		}
		return bytecode.UndefinedValue
	case Getter:
		if v, ok := obj.GetProperty(name); ok {
			return v
		}
		return bytecode.UndefinedValue
	}
	rv := reflect.ValueOf(obj)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return bytecode.UndefinedValue
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return bytecode.UndefinedValue
		}
		v := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return bytecode.UndefinedValue
		}
		return v.Interface()
	case reflect.Struct:
		if f, ok := structField(rv, name); ok {
			return f.Interface()
		}
	case reflect.Slice, reflect.Array, reflect.String:
		if name == "length" {
			return float64(rv.Len())
		}
		if i, err := strconv.Atoi(name); err == nil && i >= 0 && i < rv.Len() && rv.Kind() != reflect.String {
			return rv.Index(i).Interface()
		}
	}
	return bytecode.UndefinedValue
}

func structField(rv reflect.Value, name string) (reflect.Value, bool) {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if f.Name == name || f.Name == upperFirst(name) {
			return rv.Field(i), true
		}
		if tag, _, _ := strings.Cut(f.Tag.Get("json"), ","); tag == name {
			return rv.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// PropertyPath resolves a dotted path one property at a time.
func PropertyPath(obj any, path string) any {
	for _, name := range strings.Split(path, ".") {
		obj = Property(obj, name)
	}
	return obj
}

// Truthy reports whether a value selects the "then" branch of a
// conditional. Null, undefined, false, zero, the empty string and empty
// lists are falsy.
func Truthy(v any) bool {
	switch v := v.(type) {
	case nil, bytecode.UndefinedType:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0
	case int:
		return v != 0
	case Iterable:
		return len(v.Items()) > 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32:
		return rv.Float() != 0
	case reflect.Slice, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

// ToString converts a value to the text it renders as. Null and undefined
// render as the empty string.
func ToString(v any) string {
	switch v := v.(type) {
	case nil, bytecode.UndefinedType:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case fmt.Stringer:
		return v.String()
	case error:
		return v.Error()
	}
	return fmt.Sprint(v)
}

// Items returns the elements of a list value. Null and undefined are empty
// lists. The second result is false for values that cannot be iterated.
func Items(v any) ([]any, bool) {
	switch v := v.(type) {
	case nil, bytecode.UndefinedType:
		return nil, true
	case []any:
		return v, true
	case Iterable:
		return v.Items(), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, true
	}
	return nil, false
}
