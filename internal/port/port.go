// Package port owns in-memory channel endpoint pairs.
//
// Ownership boundary:
// - order-preserving duplex endpoints with transfer lists
// - structured copy of message data
// - endpoint ownership moves between realms
// - send interceptor and receive hook slots used by instrumentation
package port

import (
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/eventport/internal/event"
	"github.com/danmuck/eventport/internal/realm"
	"github.com/google/uuid"
)

var (
	ErrDataClone   = errors.New("port: data clone failed")
	ErrInvalidPort = errors.New("port: invalid transfer")
)

// Interceptor rewrites an outgoing message before it is copied.
type Interceptor func(data any, transfer []any) (any, []any)

type message struct {
	data  any
	ports []*Endpoint
}

// Endpoint is one side of a channel. Delivery runs on the owning realm.
type Endpoint struct {
	id string

	mu        sync.Mutex
	peer      *Endpoint
	owner     *realm.Realm
	self      any
	target    *event.EventTarget
	started   bool
	closed    bool
	gen       uint64
	inbox     []message
	intercept Interceptor
	onmessage event.Listener
}

// NewChannel creates a linked pair owned by r and exposes both to r.
func NewChannel(r *realm.Realm) (*Endpoint, *Endpoint) {
	a, b := NewLink(r, r)
	r.Expose(a)
	r.Expose(b)
	return a, b
}

// NewLink links an endpoint owned by ra with one owned by rb. Neither is
// exposed; the caller wraps them.
func NewLink(ra, rb *realm.Realm) (*Endpoint, *Endpoint) {
	a := newEndpoint(ra)
	b := newEndpoint(rb)
	a.peer = b
	b.peer = a
	return a, b
}

func newEndpoint(r *realm.Realm) *Endpoint {
	e := &Endpoint{id: uuid.NewString(), owner: r}
	e.self = e
	e.target = e.newTarget()
	return e
}

func (e *Endpoint) newTarget() *event.EventTarget {
	t := event.NewEventTarget(e.self)
	t.SetErrorReporter(e.report)
	return t
}

func (e *Endpoint) report(err error) {
	if r := e.Realm(); r != nil {
		r.ReportError(err)
	}
}

func (e *Endpoint) ID() string {
	return e.id
}

// Realm returns the owning realm; nil while the endpoint is in transit.
func (e *Endpoint) Realm() *realm.Realm {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.owner
}

// SetOwner changes the object message events are dispatched as.
func (e *Endpoint) SetOwner(obj any) {
	e.mu.Lock()
	e.self = obj
	t := e.target
	e.mu.Unlock()
	t.SetOwner(obj)
}

// Target exposes the endpoint's listener chain.
func (e *Endpoint) Target() *event.EventTarget {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.target
}

func (e *Endpoint) AddEventListener(typ string, l event.Listener, opts event.Options) {
	e.Target().AddEventListener(typ, l, opts)
}

func (e *Endpoint) RemoveEventListener(typ string, l event.Listener, opts event.Options) {
	e.Target().RemoveEventListener(typ, l, opts)
}

func (e *Endpoint) DispatchEvent(ev *event.Event) bool {
	return e.Target().DispatchEvent(ev)
}

// SetOnMessage replaces the message handler and starts the endpoint.
func (e *Endpoint) SetOnMessage(l event.Listener) {
	e.mu.Lock()
	prev := e.onmessage
	e.onmessage = l
	t := e.target
	e.mu.Unlock()
	if prev != nil {
		t.RemoveEventListener("message", prev, event.Options{})
	}
	if l != nil {
		t.AddEventListener("message", l, event.Options{})
		e.Start()
	}
}

// SetInterceptor installs the send hook; nil clears it.
func (e *Endpoint) SetInterceptor(fn Interceptor) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.intercept = fn
	return nil
}

func (e *Endpoint) Interceptor() Interceptor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.intercept
}

// Start releases queued messages. Listeners added with AddEventListener
// receive nothing until the endpoint is started.
func (e *Endpoint) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.closed {
		return
	}
	e.started = true
	if e.owner != nil {
		e.scheduleLocked(len(e.inbox))
	}
}

func (e *Endpoint) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Close disentangles both sides. Each side still owned by a realm gets a
// "close" event.
func (e *Endpoint) Close() {
	e.closeSide()
	if e.peer != nil {
		e.peer.closeSide()
	}
}

func (e *Endpoint) closeSide() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.inbox = nil
	r := e.owner
	t := e.target
	e.mu.Unlock()
	if r != nil {
		r.Queue(func() { t.DispatchEvent(event.New("close", nil)) })
	}
}

// PostMessage sends a structured copy of data to the peer. Endpoints in
// transfer move to the receiving realm. Posting on a closed endpoint is
// dropped.
func (e *Endpoint) PostMessage(data any, transfer []any) error {
	e.mu.Lock()
	fn := e.intercept
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil
	}
	if fn != nil {
		data, transfer = fn(data, transfer)
	}
	ports, err := CollectTransfer(transfer, e, e.peer)
	if err != nil {
		return err
	}
	copied, err := StructuredClone(data, ports)
	if err != nil {
		return err
	}
	Detach(ports)
	e.peer.Deliver(copied, ports)
	return nil
}

// CollectTransfer validates a transfer list and returns its endpoints in
// order. Non-endpoint entries are accepted and carried in the data.
func CollectTransfer(transfer []any, forbidden ...*Endpoint) ([]*Endpoint, error) {
	var ports []*Endpoint
	seen := make(map[*Endpoint]bool, len(transfer))
	for i, item := range transfer {
		if item == nil {
			return nil, fmt.Errorf("%w: transfer[%d] is nil", ErrDataClone, i)
		}
		p, ok := item.(*Endpoint)
		if !ok {
			continue
		}
		for _, f := range forbidden {
			if f != nil && p == f {
				return nil, fmt.Errorf("%w: transfer[%d] is the sending channel", ErrInvalidPort, i)
			}
		}
		if seen[p] {
			return nil, fmt.Errorf("%w: transfer[%d] listed twice", ErrDataClone, i)
		}
		if p.Closed() {
			return nil, fmt.Errorf("%w: transfer[%d] is closed", ErrDataClone, i)
		}
		seen[p] = true
		ports = append(ports, p)
	}
	return ports, nil
}

// Detach marks endpoints as in transit: listeners and hooks of the old
// realm are dropped and incoming messages wait for adoption.
func Detach(ports []*Endpoint) {
	for _, p := range ports {
		p.detach()
	}
}

func (e *Endpoint) detach() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.owner = nil
	e.gen++
	e.started = false
	e.intercept = nil
	e.onmessage = nil
	e.target = e.newTarget()
}

// Adopt moves e into r and exposes it to r's instrumenters.
func (e *Endpoint) Adopt(r *realm.Realm) {
	e.mu.Lock()
	if e.owner == r {
		e.mu.Unlock()
		return
	}
	e.owner = r
	e.gen++
	e.mu.Unlock()
	r.Expose(e)
}

// Deliver queues one message for e.
func (e *Endpoint) Deliver(data any, ports []*Endpoint) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.inbox = append(e.inbox, message{data: data, ports: ports})
	if e.owner != nil && e.started {
		e.scheduleLocked(1)
	}
}

func (e *Endpoint) scheduleLocked(n int) {
	r := e.owner
	gen := e.gen
	for i := 0; i < n; i++ {
		r.Queue(func() { e.dispatchNext(gen) })
	}
}

func (e *Endpoint) dispatchNext(gen uint64) {
	e.mu.Lock()
	if e.closed || e.gen != gen || e.owner == nil || len(e.inbox) == 0 {
		e.mu.Unlock()
		return
	}
	msg := e.inbox[0]
	e.inbox[0] = message{}
	e.inbox = e.inbox[1:]
	r := e.owner
	t := e.target
	e.mu.Unlock()

	for _, p := range msg.ports {
		p.Adopt(r)
	}
	t.DispatchEvent(MessageEvent(msg.data, msg.ports, nil))
}

// MessageEvent builds a "message" event; extra fields are merged in.
func MessageEvent(data any, ports []*Endpoint, extra map[string]any) *event.Event {
	if ports == nil {
		ports = []*Endpoint{}
	}
	fields := map[string]any{"data": data, "ports": ports}
	for k, v := range extra {
		fields[k] = v
	}
	return event.New("message", fields)
}

// Data returns the payload of a message event.
func Data(e *event.Event) any {
	return e.Field("data")
}

// Ports returns the endpoints delivered with a message event.
func Ports(e *event.Event) []*Endpoint {
	ports, _ := e.Field("ports").([]*Endpoint)
	return ports
}
