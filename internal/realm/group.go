package realm

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// SettleLimit caps the rounds Settle runs before giving up on a group that
// never goes idle.
const SettleLimit = 10000

// Status is one realm's scheduler snapshot.
type Status struct {
	Name     string `json:"name"`
	Pending  int    `json:"pending"`
	TasksRun uint64 `json:"tasks_run"`
	Closed   bool   `json:"closed"`
}

// Group owns the realms of one runtime graph (page, workers, popups).
type Group struct {
	mu      sync.Mutex
	realms  []*Realm
	running bool
	ctx     context.Context
	eg      *errgroup.Group
}

func NewGroup() *Group {
	return &Group{}
}

// New creates a top-level realm in g.
func (g *Group) New(name string, opts ...Option) *Realm {
	return g.create(name, nil, opts)
}

func (g *Group) create(name string, inherited []Bootstrap, opts []Option) *Realm {
	r := newRealm(g, name, inherited, opts)

	g.mu.Lock()
	g.realms = append(g.realms, r)
	if g.running {
		ctx := g.ctx
		g.eg.Go(func() error { return r.Run(ctx) })
	}
	g.mu.Unlock()

	for _, b := range r.bootstraps {
		b(r)
	}
	return r
}

// Realms returns the group's realms in creation order.
func (g *Group) Realms() []*Realm {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*Realm(nil), g.realms...)
}

// Lookup finds a realm by name.
func (g *Group) Lookup(name string) (*Realm, bool) {
	for _, r := range g.Realms() {
		if r.name == name {
			return r, true
		}
	}
	return nil, false
}

// Settle drains every realm, round after round, until the whole group is
// idle. It must not be used while Run is active.
func (g *Group) Settle() int {
	total := 0
	for round := 0; round < SettleLimit; round++ {
		ran := 0
		for _, r := range g.Realms() {
			ran += r.RunUntilIdle()
		}
		total += ran
		if ran == 0 {
			return total
		}
	}
	return total
}

// Run runs every realm loop, including realms spawned later, until ctx
// is done.
func (g *Group) Run(ctx context.Context) error {
	eg, egctx := errgroup.WithContext(ctx)

	g.mu.Lock()
	g.running = true
	g.ctx = egctx
	g.eg = eg
	for _, r := range g.realms {
		r := r
		eg.Go(func() error { return r.Run(egctx) })
	}
	g.mu.Unlock()

	err := eg.Wait()

	g.mu.Lock()
	g.running = false
	g.mu.Unlock()
	return err
}

// Status reports scheduler state for every realm.
func (g *Group) Status() []Status {
	realms := g.Realms()
	out := make([]Status, 0, len(realms))
	for _, r := range realms {
		out = append(out, r.status())
	}
	return out
}

// Run executes r's task loop until ctx is done or r is closed.
func (r *Realm) Run(ctx context.Context) error {
	for {
		r.RunUntilIdle()
		if r.Closed() {
			return nil
		}
		select {
		case <-r.wake:
		case <-ctx.Done():
			return nil
		}
	}
}
