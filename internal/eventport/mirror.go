package eventport

import (
	"reflect"

	"github.com/danmuck/eventport/internal/codec"
	"github.com/danmuck/eventport/internal/event"
	"github.com/danmuck/eventport/internal/observability"
	"github.com/danmuck/eventport/internal/port"
	"github.com/danmuck/eventport/internal/protocol"
)

// defaultOptionsKey is the canonical key of an absent option set.
var defaultOptionsKey = func() string {
	raw, err := codec.Marshal(map[string]any{"once": false})
	if err != nil {
		panic("eventport: options key initialization failed: " + err.Error())
	}
	return string(raw)
}()

// Mirror is the remote stand-in for an origin target. Its state lives in
// the runtime that created or revived it.
type Mirror struct {
	id string
	rt *Runtime
}

type mirrorState struct {
	ep    *port.Endpoint
	slots map[string]*slot
}

// slot holds the local listeners of one event type, in registration order.
type slot struct {
	entries []*entry
}

type entry struct {
	listener event.Listener
	options  map[string]any
	key      string
	once     bool
	removed  bool
}

func (rt *Runtime) newMirror(ep *port.Endpoint, source string) *Mirror {
	m := &Mirror{id: ep.ID(), rt: rt}
	st := &mirrorState{ep: ep, slots: make(map[string]*slot)}
	rt.mu.Lock()
	rt.storage[m] = st
	rt.mu.Unlock()

	ep.AddEventListener("close", event.Func(func(*event.Event) { rt.forget(m) }), event.Options{})
	ep.SetOnMessage(event.Func(func(e *event.Event) { rt.deliver(m, e) }))
	observability.RecordMirrorCreated(rt.realm.Name(), source)
	rt.log.Debug().Str("mirror", m.id).Str("source", source).Msg("mirror created")
	return m
}

// ID is the identifier of the mirror's channel endpoint.
func (m *Mirror) ID() string {
	return m.id
}

// Attached reports whether the mirror still belongs to its runtime's realm.
func (m *Mirror) Attached() bool {
	return m.rt.state(m) != nil
}

// AddEventListener subscribes l to typ. options may be omitted, a bool
// (the once flag), event.Options or a map[string]any. The first listener
// of a type asks the origin to attach its real listener.
func (m *Mirror) AddEventListener(typ string, l event.Listener, options ...any) {
	if l == nil {
		return
	}
	st := m.rt.state(m)
	if st == nil {
		m.rt.log.Debug().Str("mirror", m.id).Msg("add on detached mirror ignored")
		return
	}
	opts, key, once := normalizeOptions(options)
	s, ok := st.slots[typ]
	if !ok {
		s = &slot{}
		st.slots[typ] = s
		m.rt.sendControl(st, typ, protocol.ActionAdd)
	}
	for _, en := range s.entries {
		if en.key == key && event.SameListener(en.listener, l) {
			return
		}
	}
	s.entries = append(s.entries, &entry{listener: l, options: opts, key: key, once: once})
}

// RemoveEventListener unsubscribes the entry matching l and options. The
// last removal of a type asks the origin to detach.
func (m *Mirror) RemoveEventListener(typ string, l event.Listener, options ...any) {
	st := m.rt.state(m)
	if st == nil {
		return
	}
	_, key, _ := normalizeOptions(options)
	s, ok := st.slots[typ]
	if !ok {
		return
	}
	for _, en := range s.entries {
		if en.key == key && event.SameListener(en.listener, l) {
			m.rt.removeEntry(st, typ, en)
			return
		}
	}
}

// ListenerCount reports local subscribers of typ.
func (m *Mirror) ListenerCount(typ string) int {
	st := m.rt.state(m)
	if st == nil {
		return 0
	}
	if s, ok := st.slots[typ]; ok {
		return len(s.entries)
	}
	return 0
}

// Close disentangles the mirror; the origin drops every real listener.
func (m *Mirror) Close() {
	st := m.rt.state(m)
	if st == nil {
		return
	}
	m.rt.forget(m)
	st.ep.Close()
}

func (rt *Runtime) removeEntry(st *mirrorState, typ string, target *entry) {
	s, ok := st.slots[typ]
	if !ok {
		return
	}
	for i, en := range s.entries {
		if en != target {
			continue
		}
		en.removed = true
		s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
		if len(s.entries) == 0 {
			delete(st.slots, typ)
			rt.sendControl(st, typ, protocol.ActionRemove)
		}
		return
	}
}

func (rt *Runtime) sendControl(st *mirrorState, typ string, action protocol.Action) {
	msg := protocol.Control{Type: typ, Action: action}
	if err := st.ep.PostMessage(msg.Map(), nil); err != nil {
		rt.log.Error().Err(err).Str("type", typ).Str("action", string(action)).Msg("control message failed")
		return
	}
	observability.RecordControlMessage(rt.realm.Name(), string(action))
	rt.log.Debug().Str("type", typ).Str("action", string(action)).Msg("control message sent")
}

// deliver fans one snapshot out to the slot of its type.
func (rt *Runtime) deliver(m *Mirror, e *event.Event) {
	st := rt.state(m)
	if st == nil {
		return
	}
	snapshot, typ, err := protocol.SnapshotType(port.Data(e))
	if err != nil {
		rt.log.Debug().Err(err).Msg("snapshot dropped")
		return
	}
	s, ok := st.slots[typ]
	if !ok {
		return
	}
	view := event.Inert(snapshot, m)
	entries := append([]*entry(nil), s.entries...)
	var fired []*entry
	for _, en := range entries {
		if en.removed {
			continue
		}
		if en.once {
			fired = append(fired, en)
		}
		rt.invoke(en.listener, view)
	}
	for _, en := range fired {
		if !en.removed {
			rt.removeEntry(st, typ, en)
		}
	}
}

func (rt *Runtime) invoke(l event.Listener, view *event.Event) {
	defer func() {
		if r := recover(); r != nil {
			observability.RecordListenerError(rt.realm.Name())
			rt.realm.ReportError(event.PanicError(view.Type, r))
		}
	}()
	l.HandleEvent(view)
}

// normalizeOptions returns the option set, its canonical key and the once
// flag. A bare bool is the once flag.
func normalizeOptions(options []any) (map[string]any, string, bool) {
	opts := map[string]any{"once": false}
	if len(options) > 0 {
		switch o := options[0].(type) {
		case bool:
			opts["once"] = o
		case event.Options:
			opts["once"] = o.Once
			if o.Capture {
				opts["capture"] = true
			}
			if o.Passive {
				opts["passive"] = true
			}
		case map[string]any:
			for k, v := range o {
				opts[k] = v
			}
		}
	}
	key := defaultOptionsKey
	if raw, err := codec.Marshal(opts); err == nil {
		key = string(raw)
	}
	return opts, key, truthy(opts["once"])
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	rv := reflect.ValueOf(v)
	switch {
	case rv.CanInt():
		return rv.Int() != 0
	case rv.CanUint():
		return rv.Uint() != 0
	case rv.CanFloat():
		return rv.Float() != 0
	}
	return true
}
