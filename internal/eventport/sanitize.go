package eventport

import (
	"errors"
	"math"
	"reflect"
	"strings"

	"github.com/danmuck/eventport/internal/codec"
	"github.com/danmuck/eventport/internal/graph"
)

// CyclicMarker replaces a container reached twice within one snapshot.
const CyclicMarker = "[cyclic]"

// detachedKeys are own properties that reference the origin's object
// graph; snapshots always carry them as nil.
var detachedKeys = map[string]bool{
	"view":          true,
	"currentTarget": true,
	"sourceElement": true,
	"composedPath":  true,
}

// Sanitize turns an event into a snapshot holding only transportable data.
// It never fails: unreadable properties are excluded and the pass retried.
func Sanitize(ev graph.Object) map[string]any {
	snapshot, _ := sanitize(ev)
	return snapshot
}

func sanitize(ev graph.Object) (map[string]any, int) {
	excluded := make(map[string]bool)
	retries := 0
	for {
		w := graph.Walker{
			Field: func(p graph.Path) (any, bool) {
				if len(p) == 1 && detachedKeys[p[0]] {
					return nil, true
				}
				if excluded[pathKey(p)] {
					return graph.Omit, true
				}
				return nil, false
			},
			Visit:   keepTransportable,
			Revisit: func(any) any { return CyclicMarker },
		}
		out, err := w.Copy(ev)
		var accessErr *graph.AccessError
		if errors.As(err, &accessErr) && !excluded[pathKey(accessErr.Path)] {
			excluded[pathKey(accessErr.Path)] = true
			retries++
			continue
		}
		if err != nil {
			return minimalSnapshot(ev), retries
		}
		snapshot, _ := out.(map[string]any)
		if snapshot == nil {
			return minimalSnapshot(ev), retries
		}
		normalized, err := codec.Normalize(snapshot)
		if err != nil {
			return snapshot, retries
		}
		if m, ok := normalized.(map[string]any); ok {
			return m, retries
		}
		return snapshot, retries
	}
}

func pathKey(p graph.Path) string {
	return strings.Join(p, "\x00")
}

func minimalSnapshot(ev graph.Object) map[string]any {
	typ, _ := ev.Get("type")
	out := map[string]any{"type": typ}
	for k := range detachedKeys {
		out[k] = nil
	}
	return out
}

// keepTransportable drops values with no data form: functions, channels,
// host objects and other references into the origin realm. Bytes travel as
// a list of numbers and non-finite floats as nil.
func keepTransportable(_ graph.Path, v any) (any, bool) {
	switch t := v.(type) {
	case nil, string, bool, map[string]any, []any, graph.Object:
		return nil, false
	case []byte:
		return byteList(t), true
	case float64:
		return finite(t), true
	case float32:
		return finite(float64(t)), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.String, reflect.Bool:
		return nil, false
	case reflect.Float32, reflect.Float64:
		return finite(rv.Float()), true
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			return nil, false
		}
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return byteList(rv.Bytes()), true
		}
		return nil, false
	case reflect.Array:
		return nil, false
	}
	return graph.Omit, true
}

func byteList(b []byte) []any {
	out := make([]any, len(b))
	for i, c := range b {
		out[i] = int64(c)
	}
	return out
}

func finite(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}
