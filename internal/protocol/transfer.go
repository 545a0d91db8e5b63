package protocol

import "math"

// MarkerKey tags a payload that carries mirror transfer metadata.
const MarkerKey = "__event_ports_map__"

// DataKey holds the original payload inside a wrapper.
const DataKey = "data"

// Wrap builds the transfer wrapper. indices may be empty (re-wrap of a
// payload that already looks wrapped).
func Wrap(indices []int, data any) map[string]any {
	list := make([]any, len(indices))
	for i, idx := range indices {
		list[i] = idx
	}
	return map[string]any{MarkerKey: list, DataKey: data}
}

// HasMarker reports whether v is a plain object carrying the marker.
func HasMarker(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	marker, ok := m[MarkerKey]
	return ok && marker != nil
}

// Unwrap splits a wrapper into its index list and payload. ok is false
// when v is not a wrapper or the marker is not an index list.
func Unwrap(v any) (indices []int, data any, ok bool) {
	m, isMap := v.(map[string]any)
	if !isMap {
		return nil, nil, false
	}
	raw, present := m[MarkerKey]
	if !present {
		return nil, nil, false
	}
	indices, ok = ParseIndices(raw)
	if !ok {
		return nil, nil, false
	}
	return indices, m[DataKey], true
}

// ParseIndices reads a list of non-negative integers in any shape a
// structured copy or codec round trip can produce.
func ParseIndices(v any) ([]int, bool) {
	switch t := v.(type) {
	case []int:
		for _, n := range t {
			if n < 0 {
				return nil, false
			}
		}
		return append([]int{}, t...), true
	case []any:
		out := make([]int, 0, len(t))
		for _, item := range t {
			n, ok := toIndex(item)
			if !ok {
				return nil, false
			}
			out = append(out, n)
		}
		return out, true
	}
	return nil, false
}

func toIndex(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, n >= 0
	case int64:
		return int(n), n >= 0 && n <= math.MaxInt32
	case int32:
		return int(n), n >= 0
	case uint64:
		return int(n), n <= math.MaxInt32
	case uint32:
		return int(n), true
	case float64:
		if n < 0 || n != math.Trunc(n) || n > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}
