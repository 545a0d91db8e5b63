package eventport

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/danmuck/eventport/internal/event"
	"github.com/danmuck/eventport/internal/port"
	"github.com/danmuck/eventport/internal/window"
	"github.com/danmuck/eventport/internal/worker"
)

// RegistryVersion identifies the set of instrumentable kinds.
const RegistryVersion = 1

var (
	ErrKindExists  = errors.New("eventport: instrument kind already exists")
	ErrInvalidKind = errors.New("eventport: invalid instrument kind")
)

// Kind is one instrumentable object shape.
type Kind struct {
	ID    string
	Since int
	Match func(rt *Runtime, obj any) bool
	Apply func(rt *Runtime, obj any) error
}

// KindInfo describes a registered kind.
type KindInfo struct {
	ID    string `json:"id"`
	Since int    `json:"since"`
}

// Registry is the finite, ordered list of instrumentable kinds.
type Registry struct {
	kinds []Kind
	byID  map[string]int
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]int)}
}

// channel is implemented by every object that both sends and receives
// messages: endpoints, worker handles and worker scopes.
type channel interface {
	SetInterceptor(port.Interceptor) error
	Target() *event.EventTarget
}

func instrumentChannel(rt *Runtime, obj any) error {
	c := obj.(channel)
	if err := c.SetInterceptor(rt.BeforeSend); err != nil {
		return err
	}
	c.Target().SetHook("message", rt.reviver)
	return nil
}

// DefaultRegistry returns the kinds of RegistryVersion.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	kinds := []Kind{
		{
			ID:    "port.endpoint",
			Since: 1,
			Match: func(_ *Runtime, obj any) bool { _, ok := obj.(*port.Endpoint); return ok },
			Apply: instrumentChannel,
		},
		{
			ID:    "worker.handle",
			Since: 1,
			Match: func(_ *Runtime, obj any) bool { _, ok := obj.(*worker.Handle); return ok },
			Apply: instrumentChannel,
		},
		{
			ID:    "worker.scope",
			Since: 1,
			Match: func(_ *Runtime, obj any) bool { _, ok := obj.(*worker.Scope); return ok },
			Apply: instrumentChannel,
		},
		{
			ID:    "realm.global",
			Since: 1,
			Match: func(rt *Runtime, obj any) bool {
				t, ok := obj.(*event.EventTarget)
				return ok && t == rt.realm.Global()
			},
			Apply: func(rt *Runtime, obj any) error {
				obj.(*event.EventTarget).SetHook("message", rt.reviver)
				return nil
			},
		},
		{
			ID:    "window.proxy",
			Since: 1,
			Match: func(_ *Runtime, obj any) bool { _, ok := obj.(*window.Proxy); return ok },
			Apply: func(rt *Runtime, obj any) error {
				return obj.(*window.Proxy).SetInterceptor(rt.BeforeSend)
			},
		},
	}
	for _, k := range kinds {
		if err := r.Register(k); err != nil {
			panic("eventport: default registry: " + err.Error())
		}
	}
	return r
}

// Register appends a kind. Kinds are matched in registration order.
func (r *Registry) Register(k Kind) error {
	id := strings.TrimSpace(k.ID)
	if !isValidID(id) {
		return fmt.Errorf("%w: invalid id format %q", ErrInvalidKind, k.ID)
	}
	if k.Match == nil || k.Apply == nil {
		return fmt.Errorf("%w: %s needs match and apply", ErrInvalidKind, id)
	}
	if k.Since < 1 || k.Since > RegistryVersion {
		return fmt.Errorf("%w: %s since=%d outside 1..%d", ErrInvalidKind, id, k.Since, RegistryVersion)
	}
	if _, ok := r.byID[id]; ok {
		return ErrKindExists
	}
	k.ID = id
	r.byID[id] = len(r.kinds)
	r.kinds = append(r.kinds, k)
	return nil
}

// Resolve returns the first kind matching obj.
func (r *Registry) Resolve(rt *Runtime, obj any) (Kind, bool) {
	for _, k := range r.kinds {
		if k.Match(rt, obj) {
			return k, true
		}
	}
	return Kind{}, false
}

// List returns deterministic kind ordering by id.
func (r *Registry) List() []KindInfo {
	list := make([]KindInfo, 0, len(r.kinds))
	for _, k := range r.kinds {
		list = append(list, KindInfo{ID: k.ID, Since: k.Since})
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
	return list
}

func isValidID(id string) bool {
	if id == "" {
		return false
	}
	lastSep := false
	for i := 0; i < len(id); i++ {
		c := id[i]
		isLower := c >= 'a' && c <= 'z'
		isDigit := c >= '0' && c <= '9'
		isSep := c == '.' || c == '-' || c == '_'
		if !(isLower || isDigit || isSep) {
			return false
		}
		if i == 0 || i == len(id)-1 {
			if isSep {
				return false
			}
		}
		if isSep && lastSep {
			return false
		}
		lastSep = isSep
	}
	return true
}
