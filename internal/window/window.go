// Package window owns browsing contexts and the proxies realms use to
// address them.
//
// Ownership boundary:
// - top-level windows, popups and frames (one realm each)
// - window postMessage with targetOrigin filtering
// - accessor proxies (parent, opener, frames, open, message source)
package window

import (
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/eventport/internal/port"
	"github.com/danmuck/eventport/internal/realm"
)

var (
	ErrCrossOrigin = errors.New("window: cross-origin access denied")
	ErrClosed      = errors.New("window: closed")
)

type windowKey struct{}

// Window is one browsing context.
type Window struct {
	name   string
	origin string
	realm  *realm.Realm
	parent *Window
	opener *Window

	mu     sync.Mutex
	frames []*Window
	closed bool
}

// New attaches a top-level window to r.
func New(r *realm.Realm, name, origin string) *Window {
	w := &Window{name: name, origin: origin, realm: r}
	r.SetValue(windowKey{}, w)
	return w
}

// Of returns the window attached to r.
func Of(r *realm.Realm) (*Window, bool) {
	w, ok := r.Value(windowKey{}).(*Window)
	return w, ok
}

func (w *Window) Name() string {
	return w.name
}

func (w *Window) Origin() string {
	return w.origin
}

func (w *Window) Realm() *realm.Realm {
	return w.realm
}

// Self is the window's proxy for its own code.
func (w *Window) Self() *Proxy {
	return w.proxyFor(w)
}

func (w *Window) proxyFor(caller *Window) *Proxy {
	p := &Proxy{win: w, caller: caller}
	caller.realm.Expose(p)
	return p
}

func (w *Window) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *Window) receive(data any, ports []*port.Endpoint, source *Window) {
	w.realm.Queue(func() {
		if w.isClosed() {
			return
		}
		for _, p := range ports {
			p.Adopt(w.realm)
		}
		ev := port.MessageEvent(data, ports, map[string]any{
			"origin": source.origin,
			"source": source.proxyFor(w),
		})
		w.realm.Global().DispatchEvent(ev)
	})
}

func (w *Window) spawn(name, origin string) *Window {
	child := &Window{name: name, origin: origin, realm: w.realm.Spawn(name)}
	child.realm.SetValue(windowKey{}, child)
	return child
}

// Proxy is how code running in the caller's realm reaches a window.
type Proxy struct {
	win    *Window
	caller *Window

	mu        sync.Mutex
	intercept port.Interceptor
}

func (p *Proxy) Name() string {
	return p.win.name
}

func (p *Proxy) Origin() string {
	return p.win.origin
}

// SameOrigin reports whether the caller may patch this proxy.
func (p *Proxy) SameOrigin() bool {
	return p.caller.origin == p.win.origin
}

// SetInterceptor installs the send hook; cross-origin proxies refuse it.
func (p *Proxy) SetInterceptor(fn port.Interceptor) error {
	if !p.SameOrigin() {
		return fmt.Errorf("%w: %s -> %s", ErrCrossOrigin, p.caller.origin, p.win.origin)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.intercept = fn
	return nil
}

func (p *Proxy) Interceptor() port.Interceptor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.intercept
}

// PostMessage delivers a structured copy of data to the window's realm.
// targetOrigin is "*", "/" (the caller's origin) or an exact origin; a
// mismatch drops the message.
func (p *Proxy) PostMessage(data any, targetOrigin string, transfer []any) error {
	if p.win.isClosed() {
		return nil
	}
	if fn := p.Interceptor(); fn != nil {
		data, transfer = fn(data, transfer)
	}
	ports, err := port.CollectTransfer(transfer)
	if err != nil {
		return err
	}
	copied, err := port.StructuredClone(data, ports)
	if err != nil {
		return err
	}
	switch targetOrigin {
	case "*":
	case "/":
		if p.caller.origin != p.win.origin {
			return nil
		}
	default:
		if targetOrigin != p.win.origin {
			p.caller.realm.Logger().Debug().
				Str("target_origin", targetOrigin).
				Str("origin", p.win.origin).
				Msg("postMessage dropped on origin mismatch")
			return nil
		}
	}
	port.Detach(ports)
	p.win.receive(copied, ports, p.caller)
	return nil
}

// Open creates a popup whose opener is this window.
func (p *Proxy) Open(name, origin string) (*Proxy, error) {
	if p.win.isClosed() {
		return nil, ErrClosed
	}
	popup := p.win.spawn(name, origin)
	popup.opener = p.win
	return popup.proxyFor(p.caller), nil
}

// AppendFrame adds a child frame and returns its contentWindow.
func (p *Proxy) AppendFrame(name, origin string) (*Proxy, error) {
	if p.win.isClosed() {
		return nil, ErrClosed
	}
	frame := p.win.spawn(name, origin)
	frame.parent = p.win
	p.win.mu.Lock()
	p.win.frames = append(p.win.frames, frame)
	p.win.mu.Unlock()
	return frame.proxyFor(p.caller), nil
}

// Frame returns the named child frame's contentWindow.
func (p *Proxy) Frame(name string) (*Proxy, bool) {
	p.win.mu.Lock()
	var found *Window
	for _, f := range p.win.frames {
		if f.name == name {
			found = f
			break
		}
	}
	p.win.mu.Unlock()
	if found == nil {
		return nil, false
	}
	return found.proxyFor(p.caller), true
}

// Parent returns the parent window; a top-level window is its own parent.
func (p *Proxy) Parent() *Proxy {
	if p.win.parent == nil {
		return p.win.proxyFor(p.caller)
	}
	return p.win.parent.proxyFor(p.caller)
}

// Opener returns the window that opened this popup, if any.
func (p *Proxy) Opener() (*Proxy, bool) {
	if p.win.opener == nil {
		return nil, false
	}
	return p.win.opener.proxyFor(p.caller), true
}

// Close closes the window and its realm.
func (p *Proxy) Close() {
	p.win.mu.Lock()
	if p.win.closed {
		p.win.mu.Unlock()
		return
	}
	p.win.closed = true
	p.win.mu.Unlock()
	p.win.realm.Close()
}

func (p *Proxy) Closed() bool {
	return p.win.isClosed()
}
