// Package event owns DOM-style events, listeners and event targets.
//
// Ownership boundary:
// - event shape and propagation flags
// - listener identity and options
// - the origin target contract and its in-memory implementation
package event

import (
	"sort"
	"time"
)

// Event is one dispatched occurrence. Fields holds the type-specific own
// properties (offsetX, data, ports, ...).
type Event struct {
	Type          string
	Target        any
	CurrentTarget any
	TimeStamp     float64
	IsTrusted     bool
	Fields        map[string]any

	inert            bool
	stopped          bool
	stoppedImmediate bool
	canceled         bool
}

// New creates an event stamped with the current time in milliseconds.
func New(typ string, fields map[string]any) *Event {
	if fields == nil {
		fields = make(map[string]any)
	}
	return &Event{
		Type:      typ,
		TimeStamp: float64(time.Now().UnixNano()) / float64(time.Millisecond),
		Fields:    fields,
	}
}

// Inert builds the view handed to subscribers of a relayed snapshot.
// Propagation and default-prevention methods are no-ops on the view.
func Inert(snapshot map[string]any, target any) *Event {
	e := &Event{Target: target, Fields: make(map[string]any, len(snapshot)), inert: true}
	for k, v := range snapshot {
		switch k {
		case "type":
			e.Type, _ = v.(string)
		case "timeStamp":
			e.TimeStamp = toFloat(v)
		case "isTrusted":
			e.IsTrusted, _ = v.(bool)
		case "target", "defaultPrevented":
		case "currentTarget":
			e.CurrentTarget = v
		default:
			e.Fields[k] = v
		}
	}
	return e
}

// Field returns one own property, nil when absent.
func (e *Event) Field(key string) any {
	return e.Fields[key]
}

func (e *Event) StopPropagation() {
	if e.inert {
		return
	}
	e.stopped = true
}

func (e *Event) StopImmediatePropagation() {
	if e.inert {
		return
	}
	e.stopped = true
	e.stoppedImmediate = true
}

func (e *Event) PreventDefault() {
	if e.inert {
		return
	}
	e.canceled = true
}

func (e *Event) DefaultPrevented() bool {
	return e.canceled
}

func (e *Event) PropagationStopped() bool {
	return e.stopped
}

func (e *Event) ImmediatePropagationStopped() bool {
	return e.stoppedImmediate
}

// IsInert reports whether e is a relayed view.
func (e *Event) IsInert() bool {
	return e.inert
}

var baseKeys = []string{"type", "target", "currentTarget", "timeStamp", "isTrusted", "defaultPrevented"}

// Keys lists own enumerable properties: base keys first, then fields by name.
func (e *Event) Keys() []string {
	keys := make([]string, 0, len(baseKeys)+len(e.Fields))
	keys = append(keys, baseKeys...)
	extra := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		if !isBaseKey(k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(keys, extra...)
}

// Get reads one own property. Reads fail only when a field holds a Guard.
func (e *Event) Get(key string) (any, error) {
	switch key {
	case "type":
		return e.Type, nil
	case "target":
		return e.Target, nil
	case "currentTarget":
		return e.CurrentTarget, nil
	case "timeStamp":
		return e.TimeStamp, nil
	case "isTrusted":
		return e.IsTrusted, nil
	case "defaultPrevented":
		return e.canceled, nil
	}
	v := e.Fields[key]
	if g, ok := v.(Guard); ok {
		return g()
	}
	return v, nil
}

// Guard is a field whose value is computed on read and may refuse access.
type Guard func() (any, error)

func isBaseKey(k string) bool {
	for _, b := range baseKeys {
		if b == k {
			return true
		}
	}
	return false
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case uint64:
		return float64(n)
	}
	return 0
}
