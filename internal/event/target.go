package event

import (
	"fmt"
	"sync"
)

// Listener receives dispatched events.
type Listener interface {
	HandleEvent(e *Event)
}

type funcListener struct {
	fn func(*Event)
}

func (l *funcListener) HandleEvent(e *Event) {
	l.fn(e)
}

// Func adapts fn into a Listener. Each call returns a distinct identity.
func Func(fn func(*Event)) Listener {
	return &funcListener{fn: fn}
}

// Options mirrors the DOM listener option set.
type Options struct {
	Capture bool
	Once    bool
	Passive bool
}

// Target is anything listeners can be attached to.
type Target interface {
	AddEventListener(typ string, l Listener, opts Options)
	RemoveEventListener(typ string, l Listener, opts Options)
}

// Dispatcher re-dispatches synthesized events on a target.
type Dispatcher interface {
	DispatchEvent(e *Event) bool
}

type registration struct {
	listener Listener
	opts     Options
	removed  bool
}

// EventTarget is the in-memory Target implementation.
type EventTarget struct {
	mu        sync.Mutex
	owner     any
	listeners map[string][]*registration
	hooks     map[string]Listener
	report    func(error)
}

// NewEventTarget creates a target. owner is used as Target/CurrentTarget
// during dispatch; nil means the EventTarget itself.
func NewEventTarget(owner any) *EventTarget {
	t := &EventTarget{listeners: make(map[string][]*registration)}
	t.owner = owner
	if owner == nil {
		t.owner = t
	}
	return t
}

// SetOwner changes the object events are dispatched as.
func (t *EventTarget) SetOwner(owner any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.owner = owner
}

// SetErrorReporter routes listener panics to report instead of re-panicking.
func (t *EventTarget) SetErrorReporter(report func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report = report
}

// SetHook installs the pre-dispatch hook for typ; nil clears it. A hook
// that stops immediate propagation keeps the event from every listener.
func (t *EventTarget) SetHook(typ string, hook Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if hook == nil {
		delete(t.hooks, typ)
		return
	}
	if t.hooks == nil {
		t.hooks = make(map[string]Listener)
	}
	t.hooks[typ] = hook
}

// Hook returns the pre-dispatch hook for typ.
func (t *EventTarget) Hook(typ string) Listener {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hooks[typ]
}

func (t *EventTarget) AddEventListener(typ string, l Listener, opts Options) {
	if l == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, reg := range t.listeners[typ] {
		if SameListener(reg.listener, l) && reg.opts.Capture == opts.Capture {
			return
		}
	}
	t.listeners[typ] = append(t.listeners[typ], &registration{listener: l, opts: opts})
}

func (t *EventTarget) RemoveEventListener(typ string, l Listener, opts Options) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(typ, func(reg *registration) bool {
		return SameListener(reg.listener, l) && reg.opts.Capture == opts.Capture
	})
}

func (t *EventTarget) removeLocked(typ string, match func(*registration) bool) {
	list := t.listeners[typ]
	for i, reg := range list {
		if match(reg) {
			reg.removed = true
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(t.listeners, typ)
		return
	}
	t.listeners[typ] = list
}

// ListenerCount reports the listeners attached for typ.
func (t *EventTarget) ListenerCount(typ string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.listeners[typ])
}

// DispatchEvent runs the hook and listeners for e.Type in registration
// order and reports whether the default action was not prevented.
func (t *EventTarget) DispatchEvent(e *Event) bool {
	t.mu.Lock()
	owner := t.owner
	hook := t.hooks[e.Type]
	list := append([]*registration(nil), t.listeners[e.Type]...)
	report := t.report
	t.mu.Unlock()

	if e.Target == nil {
		e.Target = owner
	}
	prev := e.CurrentTarget
	e.CurrentTarget = owner
	defer func() { e.CurrentTarget = prev }()

	if hook != nil {
		t.invoke(hook, e, report)
		if e.stoppedImmediate {
			return !e.canceled
		}
	}
	for _, reg := range list {
		t.mu.Lock()
		if reg.removed {
			t.mu.Unlock()
			continue
		}
		if reg.opts.Once {
			t.removeLocked(e.Type, func(r *registration) bool { return r == reg })
		}
		t.mu.Unlock()
		t.invoke(reg.listener, e, report)
		if e.stoppedImmediate {
			break
		}
	}
	return !e.canceled
}

func (t *EventTarget) invoke(l Listener, e *Event, report func(error)) {
	if report == nil {
		l.HandleEvent(e)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			report(PanicError(e.Type, r))
		}
	}()
	l.HandleEvent(e)
}

// PanicError converts a recovered listener panic into an error.
func PanicError(typ string, r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("event: listener for %q panicked: %w", typ, err)
	}
	return fmt.Errorf("event: listener for %q panicked: %v", typ, r)
}

// SameListener compares identities without panicking on non-comparable
// listener types.
func SameListener(a, b Listener) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}
