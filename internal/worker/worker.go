// Package worker owns worker-like handles and their global scopes.
//
// Ownership boundary:
// - spawning a child realm linked to its parent by a private channel
// - the parent-side Handle and child-side Scope message surfaces
package worker

import (
	"github.com/danmuck/eventport/internal/event"
	"github.com/danmuck/eventport/internal/port"
	"github.com/danmuck/eventport/internal/realm"
)

// Script is the body run as the first task of a worker realm.
type Script func(*Scope)

// Handle is the parent-side view of a worker.
type Handle struct {
	name  string
	ep    *port.Endpoint
	child *realm.Realm
}

// Scope is the worker's global scope.
type Scope struct {
	name  string
	ep    *port.Endpoint
	realm *realm.Realm
}

// Spawn starts a worker realm under parent and runs script in it. Both
// sides are exposed to their realm's instrumenters before any code uses
// them.
func Spawn(parent *realm.Realm, name string, script Script) *Handle {
	child := parent.Spawn(name)
	outer, inner := port.NewLink(parent, child)

	h := &Handle{name: name, ep: outer, child: child}
	s := &Scope{name: name, ep: inner, realm: child}
	outer.SetOwner(h)
	inner.SetOwner(s)
	outer.Start()
	inner.Start()

	child.Expose(s)
	parent.Expose(h)
	if script != nil {
		child.Queue(func() { script(s) })
	}
	child.Logger().Debug().Str("worker", name).Msg("worker spawned")
	return h
}

func (h *Handle) Name() string {
	return h.name
}

// Realm is the worker's own realm.
func (h *Handle) Realm() *realm.Realm {
	return h.child
}

func (h *Handle) PostMessage(data any, transfer []any) error {
	return h.ep.PostMessage(data, transfer)
}

func (h *Handle) AddEventListener(typ string, l event.Listener, opts event.Options) {
	h.ep.AddEventListener(typ, l, opts)
}

func (h *Handle) RemoveEventListener(typ string, l event.Listener, opts event.Options) {
	h.ep.RemoveEventListener(typ, l, opts)
}

func (h *Handle) DispatchEvent(e *event.Event) bool {
	return h.ep.DispatchEvent(e)
}

func (h *Handle) SetOnMessage(l event.Listener) {
	h.ep.SetOnMessage(l)
}

func (h *Handle) SetInterceptor(fn port.Interceptor) error {
	return h.ep.SetInterceptor(fn)
}

// Target exposes the handle's listener chain.
func (h *Handle) Target() *event.EventTarget {
	return h.ep.Target()
}

// Terminate closes the link and the worker realm.
func (h *Handle) Terminate() {
	h.ep.Close()
	h.child.Close()
}

func (s *Scope) Name() string {
	return s.name
}

func (s *Scope) Realm() *realm.Realm {
	return s.realm
}

func (s *Scope) PostMessage(data any, transfer []any) error {
	return s.ep.PostMessage(data, transfer)
}

func (s *Scope) AddEventListener(typ string, l event.Listener, opts event.Options) {
	s.ep.AddEventListener(typ, l, opts)
}

func (s *Scope) RemoveEventListener(typ string, l event.Listener, opts event.Options) {
	s.ep.RemoveEventListener(typ, l, opts)
}

func (s *Scope) DispatchEvent(e *event.Event) bool {
	return s.ep.DispatchEvent(e)
}

func (s *Scope) SetOnMessage(l event.Listener) {
	s.ep.SetOnMessage(l)
}

func (s *Scope) SetInterceptor(fn port.Interceptor) error {
	return s.ep.SetInterceptor(fn)
}

func (s *Scope) Target() *event.EventTarget {
	return s.ep.Target()
}

// Close ends the worker from the inside.
func (s *Scope) Close() {
	s.ep.Close()
	s.realm.Close()
}
