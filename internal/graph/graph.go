// Package graph owns cycle-safe traversal of message payload graphs.
//
// Ownership boundary:
// - structured copy with substitution (transport, outgoing interception)
// - in-place substitution (incoming revival)
// - copying walks with per-property hooks (event sanitization)
package graph

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// MaxDepth bounds nesting for graphs whose containers carry no identity.
const MaxDepth = 4096

var ErrTooDeep = errors.New("graph: nesting too deep")

// Object is a property bag whose reads may fail, e.g. a protected
// property owned by another realm.
type Object interface {
	Keys() []string
	Get(key string) (any, error)
}

// Path addresses a property from the walk root.
type Path []string

func (p Path) String() string {
	return strings.Join(p, ".")
}

// AccessError reports a property read that failed during a walk.
type AccessError struct {
	Path Path
	Err  error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("graph: read %q: %v", e.Path.String(), e.Err)
}

func (e *AccessError) Unwrap() error {
	return e.Err
}

type omit struct{}

// Omit drops a property from its parent map. Inside a list it becomes nil.
var Omit any = omit{}

func isOmit(v any) bool {
	_, ok := v.(omit)
	return ok
}

// Substitute replaces a node before it is visited; ok=false keeps the
// default handling.
type Substitute func(v any) (any, bool)

// Walker configures a copying traversal. Zero value is a plain structured copy.
type Walker struct {
	// Field is consulted before a property is read. ok=true uses the
	// returned value (or drops the property for Omit) without reading.
	Field func(path Path) (any, bool)
	// Visit is consulted for every node before it is copied.
	Visit func(path Path, v any) (any, bool)
	// Revisit replaces a container reached a second time. Nil reuses the
	// first copy so shared and cyclic shapes survive.
	Revisit func(v any) any
}

// Copy returns a copy of v. Maps with string keys, lists and Objects are
// copied into map[string]any and []any; other values are carried as is.
func (w Walker) Copy(v any) (any, error) {
	c := &copier{w: w, seen: make(map[ref]any)}
	out, err := c.value(nil, v)
	if err != nil {
		return nil, err
	}
	if isOmit(out) {
		return nil, nil
	}
	return out, nil
}

// Clone is a structured copy of v preserving shared and cyclic references.
func Clone(v any, sub Substitute) (any, error) {
	w := Walker{}
	if sub != nil {
		w.Visit = func(_ Path, v any) (any, bool) {
			return sub(v)
		}
	}
	return w.Copy(v)
}

// Replace swaps, in place, every node for which sub reports ok and returns
// the possibly replaced root. Only map[string]any and []any are descended.
func Replace(v any, sub Substitute) any {
	if out, ok := sub(v); ok {
		return out
	}
	r := &replacer{sub: sub, seen: make(map[ref]struct{})}
	r.walk(v)
	return v
}

type ref struct {
	typ reflect.Type
	ptr uintptr
	n   int
}

func identity(v any) (ref, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Pointer:
		if rv.IsNil() {
			return ref{}, false
		}
		return ref{typ: rv.Type(), ptr: rv.Pointer()}, true
	case reflect.Slice:
		if rv.Len() == 0 {
			return ref{}, false
		}
		return ref{typ: rv.Type(), ptr: rv.Pointer(), n: rv.Len()}, true
	}
	return ref{}, false
}

type copier struct {
	w     Walker
	seen  map[ref]any
	depth int
}

func (c *copier) value(path Path, v any) (any, error) {
	if c.w.Visit != nil {
		if out, ok := c.w.Visit(path, v); ok {
			return out, nil
		}
	}
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return bytes.Clone(t), nil
	case map[string]any, []any, Object:
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Map:
			if rv.Type().Key().Kind() != reflect.String {
				return v, nil
			}
		case reflect.Slice, reflect.Array:
		default:
			return v, nil
		}
	}

	id, hasID := identity(v)
	if hasID {
		if prev, ok := c.seen[id]; ok {
			if c.w.Revisit != nil {
				return c.w.Revisit(v), nil
			}
			return prev, nil
		}
	}
	c.depth++
	defer func() { c.depth-- }()
	if c.depth > MaxDepth {
		return nil, fmt.Errorf("%w: %s", ErrTooDeep, path.String())
	}

	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		if hasID {
			c.seen[id] = out
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return out, c.fill(path, out, keys, func(k string) (any, error) { return t[k], nil })
	case []any:
		out := make([]any, len(t))
		if hasID {
			c.seen[id] = out
		}
		return out, c.fillList(path, out, func(i int) any { return t[i] })
	case Object:
		out := make(map[string]any)
		if hasID {
			c.seen[id] = out
		}
		return out, c.fill(path, out, t.Keys(), t.Get)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map {
		out := make(map[string]any, rv.Len())
		if hasID {
			c.seen[id] = out
		}
		keys := make([]string, 0, rv.Len())
		byName := make(map[string]reflect.Value, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
			byName[k.String()] = k
		}
		sort.Strings(keys)
		return out, c.fill(path, out, keys, func(k string) (any, error) {
			return rv.MapIndex(byName[k]).Interface(), nil
		})
	}
	out := make([]any, rv.Len())
	if hasID {
		c.seen[id] = out
	}
	return out, c.fillList(path, out, func(i int) any { return rv.Index(i).Interface() })
}

func (c *copier) fill(path Path, out map[string]any, keys []string, get func(string) (any, error)) error {
	for _, key := range keys {
		child := append(path[:len(path):len(path)], key)
		if c.w.Field != nil {
			if val, ok := c.w.Field(child); ok {
				if !isOmit(val) {
					out[key] = val
				}
				continue
			}
		}
		raw, err := get(key)
		if err != nil {
			return &AccessError{Path: child, Err: err}
		}
		val, err := c.value(child, raw)
		if err != nil {
			return err
		}
		if !isOmit(val) {
			out[key] = val
		}
	}
	return nil
}

func (c *copier) fillList(path Path, out []any, get func(int) any) error {
	for i := range out {
		child := append(path[:len(path):len(path)], fmt.Sprint(i))
		if c.w.Field != nil {
			if val, ok := c.w.Field(child); ok {
				if !isOmit(val) {
					out[i] = val
				}
				continue
			}
		}
		val, err := c.value(child, get(i))
		if err != nil {
			return err
		}
		if !isOmit(val) {
			out[i] = val
		}
	}
	return nil
}

type replacer struct {
	sub  Substitute
	seen map[ref]struct{}
}

func (r *replacer) walk(v any) {
	if id, ok := identity(v); ok {
		if _, seen := r.seen[id]; seen {
			return
		}
		r.seen[id] = struct{}{}
	}
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if out, ok := r.sub(child); ok {
				t[k] = out
				continue
			}
			r.walk(child)
		}
	case []any:
		for i, child := range t {
			if out, ok := r.sub(child); ok {
				t[i] = out
				continue
			}
			r.walk(child)
		}
	}
}
