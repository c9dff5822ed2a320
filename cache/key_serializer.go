package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// defaultKeySerializer implements KeySerializer by rendering every argument
// to a deterministic string and digesting the combined form with xxhash.
// The method name stays in the clear so prefix-based deletion keeps working;
// only the argument tail is hashed.
type defaultKeySerializer struct{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return &defaultKeySerializer{}
}

// SerializeKey builds a cache key of the form "method::<xxhash of args>".
// With no args the key is just the method name.
func (s *defaultKeySerializer) SerializeKey(method string, args ...any) string {
	if len(args) == 0 {
		return method
	}

	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, s.render(arg))
	}

	digest := xxhash.Sum64String(strings.Join(parts, KeySeparator))
	return fmt.Sprintf("%s%s%016x", method, KeySeparator, digest)
}

// render produces a deterministic textual form for a single argument.
func (s *defaultKeySerializer) render(v any) string {
	if v == nil {
		return "nil"
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return "nil"
		}
		return s.render(rv.Elem().Interface())
	case reflect.Func, reflect.Chan:
		// Pointer identity is stable for the process lifetime, which is the
		// scope of this in-memory cache.
		return fmt.Sprintf("%s:%p", rv.Kind(), v)
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			parts[i] = s.render(rv.Index(i).Interface())
		}
		return fmt.Sprintf("[%s]", strings.Join(parts, ","))
	case reflect.Map:
		pairs := make([]string, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			pairs = append(pairs, s.render(iter.Key().Interface())+"="+s.render(iter.Value().Interface()))
		}
		sort.Strings(pairs)
		return fmt.Sprintf("{%s}", strings.Join(pairs, ","))
	case reflect.Struct:
		return s.jsonFallback(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// jsonFallback provides JSON serialization for composite values. If marshaling
// fails the key degrades to type information rather than panicking.
func (s *defaultKeySerializer) jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("fallback:%s", reflect.TypeOf(v).String())
	}
	return "json:" + string(data)
}
