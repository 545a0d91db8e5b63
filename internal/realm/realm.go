// Package realm owns isolated execution contexts and their task loops.
//
// Ownership boundary:
// - single-threaded cooperative task queues
// - asynchronous error reporting on the realm global
// - bootstrap inheritance and instrumentation hooks
// - realm groups (run, settle, status)
package realm

import (
	"fmt"
	"sync"

	"github.com/danmuck/eventport/internal/event"
	"github.com/danmuck/eventport/internal/logging"
	"github.com/danmuck/eventport/internal/observability"
	"github.com/rs/zerolog"
)

// Bootstrap runs against a realm at creation and is inherited by every
// realm spawned from it.
type Bootstrap func(*Realm)

// Instrumenter patches objects as they become reachable inside a realm.
type Instrumenter interface {
	Instrument(obj any)
}

type Option func(*Realm)

func WithBootstrap(b Bootstrap) Option {
	return func(r *Realm) {
		if b != nil {
			r.bootstraps = append(r.bootstraps, b)
		}
	}
}

// Realm is one isolated context. Tasks never run concurrently with each
// other; Queue is the only method safe to call from foreign goroutines
// while the realm runs.
type Realm struct {
	name   string
	group  *Group
	log    zerolog.Logger
	global *event.EventTarget

	mu       sync.Mutex
	tasks    []func()
	wake     chan struct{}
	closed   bool
	tasksRun uint64

	bootstraps    []Bootstrap
	instrumenters []Instrumenter
	values        map[any]any
}

// New creates a standalone realm in its own group.
func New(name string, opts ...Option) *Realm {
	return NewGroup().New(name, opts...)
}

func newRealm(g *Group, name string, bootstraps []Bootstrap, opts []Option) *Realm {
	r := &Realm{
		name:       name,
		group:      g,
		log:        logging.Component("realm").With().Str("realm", name).Logger(),
		wake:       make(chan struct{}, 1),
		bootstraps: append([]Bootstrap(nil), bootstraps...),
		values:     make(map[any]any),
	}
	r.global = event.NewEventTarget(nil)
	r.global.SetErrorReporter(func(err error) {
		r.log.Error().Err(err).Msg("error listener failed")
	})
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Realm) Name() string {
	return r.name
}

func (r *Realm) Group() *Group {
	return r.group
}

func (r *Realm) Logger() *zerolog.Logger {
	return &r.log
}

// Global is the realm's ambient event target.
func (r *Realm) Global() *event.EventTarget {
	return r.global
}

// Spawn creates a child realm in the same group carrying r's bootstraps.
func (r *Realm) Spawn(name string, opts ...Option) *Realm {
	r.mu.Lock()
	boots := append([]Bootstrap(nil), r.bootstraps...)
	r.mu.Unlock()
	return r.group.create(r.name+"/"+name, boots, opts)
}

// Queue schedules task on a future turn. It reports false once closed.
func (r *Realm) Queue(task func()) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	r.tasks = append(r.tasks, task)
	r.mu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
	return true
}

// RunUntilIdle runs queued tasks, including ones they queue, until the
// queue is empty, and returns how many ran.
func (r *Realm) RunUntilIdle() int {
	n := 0
	for {
		r.mu.Lock()
		if len(r.tasks) == 0 {
			r.tasksRun += uint64(n)
			r.mu.Unlock()
			observability.RecordRealmTasks(r.name, n)
			return n
		}
		task := r.tasks[0]
		r.tasks[0] = nil
		r.tasks = r.tasks[1:]
		r.mu.Unlock()
		r.runTask(task)
		n++
	}
}

func (r *Realm) runTask(task func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.ReportError(fmt.Errorf("realm %s: task panicked: %v", r.name, rec))
		}
	}()
	task()
}

// Pending reports the number of queued tasks.
func (r *Realm) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Close drops queued tasks and rejects new ones.
func (r *Realm) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.tasks = nil
	r.mu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
	r.log.Debug().Msg("realm closed")
}

func (r *Realm) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// ReportError surfaces err on a future turn: it is logged and dispatched
// as an "error" event on the realm global.
func (r *Realm) ReportError(err error) {
	if err == nil {
		return
	}
	observability.RecordRealmError(r.name)
	queued := r.Queue(func() {
		r.log.Error().Err(err).Msg("uncaught error")
		r.global.DispatchEvent(event.New("error", map[string]any{
			"error":   err,
			"message": err.Error(),
		}))
	})
	if !queued {
		r.log.Error().Err(err).Msg("uncaught error after close")
	}
}

// Use registers an instrumenter for objects exposed from now on.
func (r *Realm) Use(i Instrumenter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instrumenters = append(r.instrumenters, i)
}

// Expose passes obj through every registered instrumenter.
func (r *Realm) Expose(obj any) {
	if obj == nil {
		return
	}
	r.mu.Lock()
	list := append([]Instrumenter(nil), r.instrumenters...)
	r.mu.Unlock()
	for _, i := range list {
		i.Instrument(obj)
	}
}

func (r *Realm) SetValue(key, v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = v
}

func (r *Realm) Value(key any) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.values[key]
}

func (r *Realm) status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{Name: r.name, Pending: len(r.tasks), TasksRun: r.tasksRun, Closed: r.closed}
}
