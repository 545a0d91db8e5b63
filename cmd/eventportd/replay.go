package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/eventport/internal/config"
	"github.com/danmuck/eventport/internal/event"
	"github.com/danmuck/eventport/internal/eventport"
	"github.com/danmuck/eventport/internal/realm"
	"github.com/danmuck/eventport/internal/worker"
	"github.com/rs/zerolog"
)

// replay hands a mirror of the top realm's global down a chain of nested
// workers. The deepest worker tracks pointer moves until the first click.
type replay struct {
	top      *realm.Realm
	scenario config.Scenario
	log      zerolog.Logger

	mu       sync.Mutex
	received []string
}

func newReplay(top *realm.Realm, scenario config.Scenario, log zerolog.Logger) *replay {
	return &replay{top: top, scenario: scenario, log: log}
}

// stage queues the chain setup on the top realm.
func (rp *replay) stage() {
	rp.top.Queue(func() {
		rt, ok := eventport.For(rp.top)
		if !ok {
			rp.log.Error().Msg("top realm has no eventport runtime")
			return
		}
		h := rp.spawn(rp.top, 1)
		m := rt.CreateMirror(nil)
		if err := h.PostMessage(map[string]any{"eventPort": m}, []any{m}); err != nil {
			rp.log.Error().Err(err).Msg("mirror handoff failed")
		}
	})
}

func (rp *replay) spawn(parent *realm.Realm, level int) *worker.Handle {
	name := fmt.Sprintf("worker-%d", level)
	return worker.Spawn(parent, name, func(s *worker.Scope) {
		if level >= rp.scenario.Depth {
			s.AddEventListener("message", event.Func(rp.subscribe), event.Options{})
			return
		}
		next := rp.spawn(s.Realm(), level+1)
		s.AddEventListener("message", event.Func(func(e *event.Event) {
			for _, m := range eventport.EventPorts(e) {
				if err := next.PostMessage(map[string]any{"eventPort": m}, []any{m}); err != nil {
					rp.log.Error().Err(err).Str("worker", name).Msg("mirror forward failed")
				}
			}
		}), event.Options{})
	})
}

func (rp *replay) subscribe(e *event.Event) {
	for _, m := range eventport.EventPorts(e) {
		mirror := m
		move := event.Func(rp.record)
		mirror.AddEventListener("mousemove", move)
		mirror.AddEventListener("click", event.Func(func(e *event.Event) {
			rp.record(e)
			mirror.RemoveEventListener("mousemove", move)
		}), true)
	}
}

func (rp *replay) record(e *event.Event) {
	rp.mu.Lock()
	rp.received = append(rp.received, e.Type)
	rp.mu.Unlock()
	rp.log.Info().
		Str("type", e.Type).
		Interface("offset_x", e.Field("offsetX")).
		Interface("offset_y", e.Field("offsetY")).
		Msg("event received")
}

// fire queues every scenario event on the top realm's global.
func (rp *replay) fire(ctx context.Context, interval time.Duration) error {
	for _, spec := range rp.scenario.Events {
		for i := 0; i < spec.Repeat; i++ {
			if interval > 0 {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(interval):
				}
			}
			ev := spec
			rp.top.Queue(func() {
				rp.top.Global().DispatchEvent(event.New(ev.Type, map[string]any{
					"offsetX": ev.OffsetX,
					"offsetY": ev.OffsetY,
				}))
			})
		}
	}
	rp.log.Info().Int("dispatched", rp.scenario.Dispatches()).Msg("scenario dispatched")
	return nil
}

// Received lists event types seen by the deepest worker.
func (rp *replay) Received() []string {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return append([]string(nil), rp.received...)
}
