package eventport

import (
	"time"

	"github.com/danmuck/eventport/internal/event"
	"github.com/danmuck/eventport/internal/observability"
	"github.com/danmuck/eventport/internal/port"
	"github.com/danmuck/eventport/internal/protocol"
)

// origin is the origin-side half of a mirror pair.
type origin struct {
	rt       *Runtime
	target   event.Target
	inner    *port.Endpoint
	attached map[string]bool
	relay    event.Listener
}

// CreateMirror pairs target with a new Mirror. A nil target means the
// realm global. The mirror may be used locally or transferred.
func (rt *Runtime) CreateMirror(target event.Target) *Mirror {
	if target == nil {
		target = rt.realm.Global()
	}
	inner, outer := port.NewChannel(rt.realm)
	o := &origin{
		rt:       rt,
		target:   target,
		inner:    inner,
		attached: make(map[string]bool),
	}
	o.relay = event.Func(o.forward)
	inner.AddEventListener("close", event.Func(o.detachAll), event.Options{})
	inner.SetOnMessage(event.Func(o.control))
	return rt.newMirror(outer, "origin")
}

func (o *origin) control(e *event.Event) {
	msg, err := protocol.ParseControl(port.Data(e))
	if err != nil {
		o.rt.log.Debug().Err(err).Msg("control message ignored")
		return
	}
	switch msg.Action {
	case protocol.ActionAdd:
		if o.attached[msg.Type] {
			return
		}
		o.target.AddEventListener(msg.Type, o.relay, event.Options{Passive: true})
		o.attached[msg.Type] = true
		o.rt.log.Debug().Str("type", msg.Type).Msg("origin listener attached")
	case protocol.ActionRemove:
		if !o.attached[msg.Type] {
			return
		}
		o.target.RemoveEventListener(msg.Type, o.relay, event.Options{Passive: true})
		delete(o.attached, msg.Type)
		o.rt.log.Debug().Str("type", msg.Type).Msg("origin listener detached")
	}
}

func (o *origin) forward(e *event.Event) {
	start := time.Now()
	snapshot, retries := sanitize(e)
	if err := o.inner.PostMessage(snapshot, nil); err != nil {
		o.rt.log.Error().Err(err).Str("type", e.Type).Msg("snapshot relay failed")
		return
	}
	observability.RecordEventRelayed(o.rt.realm.Name(), e.Type, time.Since(start), retries)
	o.rt.log.Debug().Str("type", e.Type).Int("retries", retries).Func(diag("snapshot", snapshot)).Msg("event relayed")
}

func (o *origin) detachAll(*event.Event) {
	for typ := range o.attached {
		o.target.RemoveEventListener(typ, o.relay, event.Options{Passive: true})
		delete(o.attached, typ)
	}
	o.rt.log.Debug().Msg("origin pair closed")
}
