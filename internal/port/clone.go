package port

import (
	"fmt"
	"reflect"

	"github.com/danmuck/eventport/internal/graph"
)

// StructuredClone copies data for delivery to another realm. Endpoints in
// ports travel by reference; any other endpoint, function or channel fails
// with ErrDataClone. Remaining references into the sending realm (pointers,
// structs, non-string-keyed maps) arrive as nil.
func StructuredClone(data any, ports []*Endpoint) (any, error) {
	moved := make(map[*Endpoint]bool, len(ports))
	for _, p := range ports {
		moved[p] = true
	}
	var failure error
	fail := func(path graph.Path, format string, args ...any) {
		if failure == nil {
			failure = fmt.Errorf("%w: %s at %q", ErrDataClone, fmt.Sprintf(format, args...), path.String())
		}
	}

	w := graph.Walker{
		Visit: func(path graph.Path, v any) (any, bool) {
			switch t := v.(type) {
			case nil, string, bool, []byte, map[string]any, []any, graph.Object:
				return nil, false
			case *Endpoint:
				if moved[t] {
					return t, true
				}
				fail(path, "endpoint %s missing from transfer list", t.ID())
				return nil, true
			}
			rv := reflect.ValueOf(v)
			switch rv.Kind() {
			case reflect.Func, reflect.Chan, reflect.UnsafePointer:
				fail(path, "%T cannot be cloned", v)
				return nil, true
			case reflect.Pointer, reflect.Struct, reflect.Interface:
				return nil, true
			case reflect.Map:
				if rv.Type().Key().Kind() != reflect.String {
					return nil, true
				}
			}
			return nil, false
		},
	}
	out, err := w.Copy(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataClone, err)
	}
	if failure != nil {
		return nil, failure
	}
	return out, nil
}
