package eventport

import (
	"testing"

	"github.com/danmuck/eventport/internal/event"
	"github.com/danmuck/eventport/internal/port"
	"github.com/danmuck/eventport/internal/protocol"
	"github.com/danmuck/eventport/internal/realm"
)

// originTarget counts real listener attachments on an origin.
type originTarget struct {
	*event.EventTarget
	adds    map[string]int
	removes map[string]int
}

func newOriginTarget() *originTarget {
	return &originTarget{
		EventTarget: event.NewEventTarget(nil),
		adds:        make(map[string]int),
		removes:     make(map[string]int),
	}
}

func (o *originTarget) AddEventListener(typ string, l event.Listener, opts event.Options) {
	o.adds[typ]++
	o.EventTarget.AddEventListener(typ, l, opts)
}

func (o *originTarget) RemoveEventListener(typ string, l event.Listener, opts event.Options) {
	o.removes[typ]++
	o.EventTarget.RemoveEventListener(typ, l, opts)
}

func newFixture(t *testing.T) (*realm.Group, *realm.Realm, *Runtime) {
	t.Helper()
	g := realm.NewGroup()
	main := g.New("main", realm.WithBootstrap(Bootstrap))
	rt, ok := For(main)
	if !ok {
		t.Fatalf("expected runtime installed by bootstrap")
	}
	return g, main, rt
}

// rawMirror builds a mirror whose peer records control messages.
func rawMirror(t *testing.T, r *realm.Realm, rt *Runtime) (*Mirror, *[]protocol.Control) {
	t.Helper()
	a, b := port.NewChannel(r)
	m := rt.newMirror(a, "test")
	var controls []protocol.Control
	b.SetOnMessage(event.Func(func(e *event.Event) {
		c, err := protocol.ParseControl(port.Data(e))
		if err != nil {
			t.Errorf("unexpected control payload: %v", err)
			return
		}
		controls = append(controls, c)
	}))
	return m, &controls
}

func noop() event.Listener {
	return event.Func(func(*event.Event) {})
}
