package graph

import (
	"errors"
	"testing"

	"github.com/danmuck/eventport/internal/testutil/testlog"
)

type guardedObject struct {
	values map[string]any
	denied map[string]bool
}

var errDenied = errors.New("denied")

func (o *guardedObject) Keys() []string {
	return []string{"a", "secret", "b"}
}

func (o *guardedObject) Get(key string) (any, error) {
	if o.denied[key] {
		return nil, errDenied
	}
	return o.values[key], nil
}

type handle struct{ id int }

func TestClonePreservesCyclesAndSharing(t *testing.T) {
	testlog.Start(t)

	shared := map[string]any{"n": 1}
	root := map[string]any{"left": shared, "right": shared}
	root["self"] = root

	out, err := Clone(root, nil)
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	m := out.(map[string]any)
	if _, ok := m["self"].(map[string]any); !ok {
		t.Fatalf("expected self reference copy")
	}
	m["left"].(map[string]any)["n"] = 2
	if m["right"].(map[string]any)["n"] != 2 {
		t.Fatalf("expected shared reference to survive the copy")
	}
	if shared["n"] != 1 {
		t.Fatalf("copy aliases the input")
	}
	m["self"].(map[string]any)["marker"] = true
	if m["marker"] != true {
		t.Fatalf("expected cycle to point at the copied root")
	}
	testlog.Logf("graph/clone: cycles and sharing preserved")
}

func TestCloneSubstitutesAndConvertsTypedContainers(t *testing.T) {
	testlog.Start(t)

	h := &handle{id: 7}
	in := map[string]any{
		"h":     h,
		"list":  []any{h, "x"},
		"names": []string{"a", "b"},
		"tags":  map[string]int{"z": 1},
		"raw":   []byte("hi"),
	}
	out, err := Clone(in, func(v any) (any, bool) {
		if v == any(h) {
			return "replaced", true
		}
		return nil, false
	})
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	m := out.(map[string]any)
	if m["h"] != "replaced" || m["list"].([]any)[0] != "replaced" {
		t.Fatalf("substitution not applied: %#v", m)
	}
	names, ok := m["names"].([]any)
	if !ok || len(names) != 2 || names[1] != "b" {
		t.Fatalf("unexpected names: %#v", m["names"])
	}
	tags, ok := m["tags"].(map[string]any)
	if !ok || tags["z"] != 1 {
		t.Fatalf("unexpected tags: %#v", m["tags"])
	}
	raw := m["raw"].([]byte)
	raw[0] = 'H'
	if string(in["raw"].([]byte)) != "hi" {
		t.Fatalf("byte slices must be copied")
	}
}

func TestWalkerRevisitMarksRepeats(t *testing.T) {
	testlog.Start(t)

	child := map[string]any{"v": 1}
	root := map[string]any{"a": child, "b": child}
	root["c"] = root

	out, err := Walker{Revisit: func(any) any { return "[seen]" }}.Copy(root)
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	m := out.(map[string]any)
	if _, ok := m["a"].(map[string]any); !ok {
		t.Fatalf("expected first visit to copy: %#v", m["a"])
	}
	if m["b"] != "[seen]" || m["c"] != "[seen]" {
		t.Fatalf("expected repeats to be marked: %#v", m)
	}
}

func TestWalkerFieldAndVisitHooks(t *testing.T) {
	testlog.Start(t)

	in := map[string]any{
		"keep": "x",
		"drop": "y",
		"null": "z",
		"fn":   func() {},
		"list": []any{func() {}, 1},
	}
	w := Walker{
		Field: func(p Path) (any, bool) {
			switch p.String() {
			case "drop":
				return Omit, true
			case "null":
				return nil, true
			}
			return nil, false
		},
		Visit: func(_ Path, v any) (any, bool) {
			if _, ok := v.(func()); ok {
				return Omit, true
			}
			return nil, false
		},
	}
	out, err := w.Copy(in)
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	m := out.(map[string]any)
	if _, ok := m["drop"]; ok {
		t.Fatalf("expected drop to be omitted")
	}
	if v, ok := m["null"]; !ok || v != nil {
		t.Fatalf("expected null to be forced nil, got=%v ok=%v", v, ok)
	}
	if _, ok := m["fn"]; ok {
		t.Fatalf("expected function to be omitted")
	}
	list := m["list"].([]any)
	if len(list) != 2 || list[0] != nil || list[1] != 1 {
		t.Fatalf("unexpected list: %#v", list)
	}
}

func TestWalkerReportsAccessErrorPath(t *testing.T) {
	testlog.Start(t)

	obj := &guardedObject{
		values: map[string]any{"a": 1, "b": 2},
		denied: map[string]bool{"secret": true},
	}
	_, err := Walker{}.Copy(map[string]any{"outer": obj})
	var accessErr *AccessError
	if !errors.As(err, &accessErr) {
		t.Fatalf("expected AccessError, got=%v", err)
	}
	if accessErr.Path.String() != "outer.secret" || !errors.Is(err, errDenied) {
		t.Fatalf("unexpected access error: %v", accessErr)
	}

	out, err := Walker{Field: func(p Path) (any, bool) {
		if p.String() == "outer.secret" {
			return Omit, true
		}
		return nil, false
	}}.Copy(map[string]any{"outer": obj})
	if err != nil {
		t.Fatalf("copy with exclusion: %v", err)
	}
	outer := out.(map[string]any)["outer"].(map[string]any)
	if outer["a"] != 1 || outer["b"] != 2 || len(outer) != 2 {
		t.Fatalf("unexpected object copy: %#v", outer)
	}
}

func TestReplaceInPlaceHandlesCycles(t *testing.T) {
	testlog.Start(t)

	h := &handle{id: 1}
	inner := []any{h, "keep"}
	root := map[string]any{"list": inner, "h": h}
	root["self"] = root

	got := Replace(root, func(v any) (any, bool) {
		if p, ok := v.(*handle); ok && p == h {
			return "swapped", true
		}
		return nil, false
	})
	m := got.(map[string]any)
	if m["h"] != "swapped" || inner[0] != "swapped" || inner[1] != "keep" {
		t.Fatalf("expected in-place replacement: %#v", m)
	}

	if Replace(h, func(v any) (any, bool) { return "root", v == any(h) }) != "root" {
		t.Fatalf("expected root replacement")
	}
}
