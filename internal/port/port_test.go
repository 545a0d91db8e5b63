package port

import (
	"errors"
	"testing"

	"github.com/danmuck/eventport/internal/event"
	"github.com/danmuck/eventport/internal/realm"
	"github.com/danmuck/eventport/internal/testutil/testlog"
)

type exposeRecorder struct {
	seen []any
}

func (r *exposeRecorder) Instrument(obj any) {
	r.seen = append(r.seen, obj)
}

func collect(ep *Endpoint) *[]any {
	var got []any
	ep.SetOnMessage(event.Func(func(e *event.Event) {
		got = append(got, Data(e))
	}))
	return &got
}

func TestMessagesArriveInOrderAsCopies(t *testing.T) {
	testlog.Start(t)

	g := realm.NewGroup()
	r := g.New("main")
	a, b := NewChannel(r)
	got := collect(b)

	payload := map[string]any{"n": 1}
	if err := a.PostMessage(payload, nil); err != nil {
		t.Fatalf("post: %v", err)
	}
	payload["n"] = 2
	if err := a.PostMessage("second", nil); err != nil {
		t.Fatalf("post: %v", err)
	}
	if len(*got) != 0 {
		t.Fatalf("delivery must be asynchronous")
	}
	g.Settle()

	if len(*got) != 2 {
		t.Fatalf("expected 2 messages, got=%d", len(*got))
	}
	first := (*got)[0].(map[string]any)
	if first["n"] != 1 || (*got)[1] != "second" {
		t.Fatalf("unexpected deliveries: %#v", *got)
	}
	testlog.Logf("port/order: deliveries=%v", *got)
}

func TestMessagesWaitForStart(t *testing.T) {
	testlog.Start(t)

	g := realm.NewGroup()
	r := g.New("main")
	a, b := NewChannel(r)
	var got []any
	b.AddEventListener("message", event.Func(func(e *event.Event) {
		got = append(got, Data(e))
	}), event.Options{})

	_ = a.PostMessage("held", nil)
	g.Settle()
	if len(got) != 0 {
		t.Fatalf("expected message held until start")
	}
	b.Start()
	g.Settle()
	if len(got) != 1 || got[0] != "held" {
		t.Fatalf("unexpected deliveries after start: %v", got)
	}
}

func TestTransferMovesEndpointAcrossRealms(t *testing.T) {
	testlog.Start(t)

	g := realm.NewGroup()
	main := g.New("main")
	worker := main.Spawn("worker")
	rec := &exposeRecorder{}
	worker.Use(rec)

	toWorker, inWorker := NewLink(main, worker)
	var received *Endpoint
	inWorker.SetOnMessage(event.Func(func(e *event.Event) {
		ports := Ports(e)
		if len(ports) == 1 {
			received = ports[0]
		}
	}))

	x, y := NewChannel(main)
	if err := toWorker.PostMessage(map[string]any{"port": y}, []any{y}); err != nil {
		t.Fatalf("post with transfer: %v", err)
	}
	if y.Realm() != nil {
		t.Fatalf("expected transferred endpoint to be in transit")
	}
	_ = x.PostMessage("early", nil)
	g.Settle()

	if received != y || y.Realm() != worker {
		t.Fatalf("expected endpoint adopted by worker, got=%v realm=%v", received, y.Realm())
	}
	if len(rec.seen) != 1 || rec.seen[0] != y {
		t.Fatalf("expected adopted endpoint exposed to worker instrumenters: %v", rec.seen)
	}

	got := collect(y)
	g.Settle()
	if len(*got) != 1 || (*got)[0] != "early" {
		t.Fatalf("expected early message delivered after adoption: %v", *got)
	}
}

func TestTransferValidation(t *testing.T) {
	testlog.Start(t)

	r := realm.New("main")
	a, b := NewChannel(r)
	c, d := NewChannel(r)

	if err := a.PostMessage(nil, []any{a}); !errors.Is(err, ErrInvalidPort) {
		t.Fatalf("expected self transfer rejection, got=%v", err)
	}
	if err := a.PostMessage(nil, []any{b}); !errors.Is(err, ErrInvalidPort) {
		t.Fatalf("expected peer transfer rejection, got=%v", err)
	}
	if err := a.PostMessage(nil, []any{c, c}); !errors.Is(err, ErrDataClone) {
		t.Fatalf("expected duplicate rejection, got=%v", err)
	}
	d.Close()
	if err := a.PostMessage(nil, []any{c}); !errors.Is(err, ErrDataClone) {
		t.Fatalf("expected closed endpoint rejection, got=%v", err)
	}
	if err := a.PostMessage(nil, []any{nil}); !errors.Is(err, ErrDataClone) {
		t.Fatalf("expected nil transfer rejection, got=%v", err)
	}
	if err := a.PostMessage(nil, []any{"opaque-transferable"}); err != nil {
		t.Fatalf("expected non-endpoint transferable accepted, got=%v", err)
	}
}

func TestInterceptorRewritesOutgoing(t *testing.T) {
	testlog.Start(t)

	g := realm.NewGroup()
	r := g.New("main")
	a, b := NewChannel(r)
	got := collect(b)
	_ = a.SetInterceptor(func(data any, transfer []any) (any, []any) {
		return map[string]any{"wrapped": data}, transfer
	})
	_ = a.PostMessage("x", nil)
	g.Settle()
	m, ok := (*got)[0].(map[string]any)
	if !ok || m["wrapped"] != "x" {
		t.Fatalf("unexpected delivery: %#v", *got)
	}
}

func TestCloseNotifiesBothSidesAndDropsMessages(t *testing.T) {
	testlog.Start(t)

	g := realm.NewGroup()
	r := g.New("main")
	a, b := NewChannel(r)
	got := collect(b)
	closes := 0
	for _, ep := range []*Endpoint{a, b} {
		ep.AddEventListener("close", event.Func(func(*event.Event) { closes++ }), event.Options{})
	}

	_ = a.PostMessage("lost", nil)
	a.Close()
	if err := a.PostMessage("after", nil); err != nil {
		t.Fatalf("posting on a closed endpoint must be silent, got=%v", err)
	}
	g.Settle()
	if len(*got) != 0 {
		t.Fatalf("expected queued messages dropped on close: %v", *got)
	}
	if closes != 2 {
		t.Fatalf("expected close on both sides, got=%d", closes)
	}
}

func TestCloneFailureSurfaces(t *testing.T) {
	testlog.Start(t)

	r := realm.New("main")
	a, _ := NewChannel(r)
	bad := event.New("x", map[string]any{
		"secret": event.Guard(func() (any, error) { return nil, errors.New("denied") }),
	})
	if err := a.PostMessage(bad, nil); !errors.Is(err, ErrDataClone) {
		t.Fatalf("expected clone error, got=%v", err)
	}
}
