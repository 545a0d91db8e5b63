package realm

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/eventport/internal/event"
	"github.com/danmuck/eventport/internal/testutil/testlog"
)

type recordingInstrumenter struct {
	seen []any
}

func (r *recordingInstrumenter) Instrument(obj any) {
	r.seen = append(r.seen, obj)
}

func TestQueueRunsInOrderAcrossNestedTasks(t *testing.T) {
	testlog.Start(t)

	r := New("main")
	var order []string
	r.Queue(func() {
		order = append(order, "a")
		r.Queue(func() { order = append(order, "c") })
	})
	r.Queue(func() { order = append(order, "b") })

	if n := r.RunUntilIdle(); n != 3 {
		t.Fatalf("expected 3 tasks, got=%d", n)
	}
	if strings.Join(order, "") != "abc" {
		t.Fatalf("unexpected order: %v", order)
	}
	testlog.Logf("realm/queue: order=%v", order)
}

func TestReportErrorIsAsynchronous(t *testing.T) {
	testlog.Start(t)

	r := New("main")
	var got []string
	r.Global().AddEventListener("error", event.Func(func(e *event.Event) {
		got = append(got, e.Field("message").(string))
	}), event.Options{})

	r.ReportError(errors.New("late"))
	if len(got) != 0 {
		t.Fatalf("error must not surface synchronously")
	}
	r.RunUntilIdle()
	if len(got) != 1 || got[0] != "late" {
		t.Fatalf("unexpected error events: %v", got)
	}
}

func TestPanickingTaskIsReported(t *testing.T) {
	testlog.Start(t)

	r := New("main")
	var messages []string
	r.Global().AddEventListener("error", event.Func(func(e *event.Event) {
		messages = append(messages, e.Field("message").(string))
	}), event.Options{})
	ran := false
	r.Queue(func() { panic("boom") })
	r.Queue(func() { ran = true })
	r.RunUntilIdle()

	if !ran {
		t.Fatalf("expected loop to survive a panicking task")
	}
	if len(messages) != 1 || !strings.Contains(messages[0], "boom") {
		t.Fatalf("unexpected reports: %v", messages)
	}
}

func TestSpawnInheritsBootstrapsAndSettles(t *testing.T) {
	testlog.Start(t)

	var booted []string
	g := NewGroup()
	main := g.New("main", WithBootstrap(func(r *Realm) {
		booted = append(booted, r.Name())
	}))
	child := main.Spawn("worker")
	grandchild := child.Spawn("sub")

	if strings.Join(booted, ",") != "main,main/worker,main/worker/sub" {
		t.Fatalf("unexpected bootstraps: %v", booted)
	}

	hops := 0
	main.Queue(func() {
		hops++
		child.Queue(func() {
			hops++
			grandchild.Queue(func() { hops++ })
		})
	})
	if n := g.Settle(); n != 3 || hops != 3 {
		t.Fatalf("unexpected settle result n=%d hops=%d", n, hops)
	}
	if _, ok := g.Lookup("main/worker/sub"); !ok {
		t.Fatalf("expected spawned realm to be registered")
	}
	status := g.Status()
	if len(status) != 3 || status[0].TasksRun != 1 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestExposeRunsInstrumenters(t *testing.T) {
	testlog.Start(t)

	r := New("main")
	rec := &recordingInstrumenter{}
	r.Expose("before")
	r.Use(rec)
	r.Expose("after")
	r.Expose(nil)
	if len(rec.seen) != 1 || rec.seen[0] != "after" {
		t.Fatalf("unexpected instrumented objects: %v", rec.seen)
	}

	r.SetValue("k", 42)
	if r.Value("k") != 42 {
		t.Fatalf("expected realm value")
	}
}

func TestCloseRejectsTasks(t *testing.T) {
	testlog.Start(t)

	r := New("main")
	r.Queue(func() {})
	r.Close()
	if r.Queue(func() {}) {
		t.Fatalf("expected closed realm to reject tasks")
	}
	if r.Pending() != 0 || r.RunUntilIdle() != 0 {
		t.Fatalf("expected queue dropped on close")
	}
}

func TestGroupRunDrivesSpawnedRealms(t *testing.T) {
	testlog.Start(t)

	g := NewGroup()
	main := g.New("main")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	var hits atomic.Int32
	reached := make(chan struct{})
	main.Queue(func() {
		child := main.Spawn("worker")
		child.Queue(func() {
			hits.Add(1)
			close(reached)
		})
	})

	select {
	case <-reached:
	case <-time.After(2 * time.Second):
		t.Fatalf("spawned realm never ran its task")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("group run: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("unexpected hits: %d", hits.Load())
	}
}
