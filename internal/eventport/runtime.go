package eventport

import (
	"sync"

	"github.com/danmuck/eventport/internal/codec"
	"github.com/danmuck/eventport/internal/event"
	"github.com/danmuck/eventport/internal/logging"
	"github.com/danmuck/eventport/internal/observability"
	"github.com/danmuck/eventport/internal/port"
	"github.com/danmuck/eventport/internal/realm"
	"github.com/rs/zerolog"
)

type runtimeKey struct{}

// Runtime is the eventport state of one realm.
type Runtime struct {
	realm    *realm.Realm
	log      zerolog.Logger
	registry *Registry
	reviver  event.Listener

	mu      sync.Mutex
	storage map[*Mirror]*mirrorState
}

// Stats is a point-in-time view of a runtime.
type Stats struct {
	Realm           string `json:"realm"`
	Mirrors         int    `json:"mirrors"`
	RegistryVersion int    `json:"registry_version"`
}

// Install creates r's runtime once and instruments r's global.
func Install(r *realm.Realm) *Runtime {
	if rt, ok := For(r); ok {
		return rt
	}
	rt := &Runtime{
		realm:    r,
		log:      logging.Component("eventport").With().Str("realm", r.Name()).Logger(),
		registry: DefaultRegistry(),
		storage:  make(map[*Mirror]*mirrorState),
	}
	rt.reviver = event.Func(rt.handleIncoming)
	r.SetValue(runtimeKey{}, rt)
	r.Use(rt)
	rt.Instrument(r.Global())
	observability.RegisterMetrics()
	rt.log.Debug().Int("registry_version", RegistryVersion).Msg("runtime installed")
	return rt
}

// diag attaches the CBOR diagnostic form of v to an enabled log event.
func diag(key string, v any) func(*zerolog.Event) {
	return func(e *zerolog.Event) {
		out, err := codec.Diagnose(v)
		if err != nil {
			e.AnErr(key+"_error", err)
			return
		}
		e.Str(key, out)
	}
}

// Bootstrap installs the runtime in every realm created from one that
// carries it.
func Bootstrap(r *realm.Realm) {
	Install(r)
}

// For returns r's runtime.
func For(r *realm.Realm) (*Runtime, bool) {
	rt, ok := r.Value(runtimeKey{}).(*Runtime)
	return rt, ok
}

func (rt *Runtime) Realm() *realm.Realm {
	return rt.realm
}

func (rt *Runtime) Registry() *Registry {
	return rt.registry
}

// Instrument patches obj when its kind is registered. Failures leave obj
// uninstrumented.
func (rt *Runtime) Instrument(obj any) {
	kind, ok := rt.registry.Resolve(rt, obj)
	if !ok {
		return
	}
	if err := kind.Apply(rt, obj); err != nil {
		observability.RecordInstrumentFailure(rt.realm.Name(), kind.ID)
		rt.log.Debug().Err(err).Str("kind", kind.ID).Msg("instrumentation skipped")
	}
}

// Mirrors counts live mirrors held by this realm.
func (rt *Runtime) Mirrors() int {
	rt.mu.Lock()
	mirrors := make([]*Mirror, 0, len(rt.storage))
	for m := range rt.storage {
		mirrors = append(mirrors, m)
	}
	rt.mu.Unlock()
	n := 0
	for _, m := range mirrors {
		if rt.state(m) != nil {
			n++
		}
	}
	return n
}

func (rt *Runtime) Stats() Stats {
	return Stats{Realm: rt.realm.Name(), Mirrors: rt.Mirrors(), RegistryVersion: RegistryVersion}
}

// state returns m's storage entry while m's endpoint still belongs to this
// realm, pruning entries whose endpoint moved away or closed.
func (rt *Runtime) state(m *Mirror) *mirrorState {
	if m == nil {
		return nil
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	st, ok := rt.storage[m]
	if !ok {
		return nil
	}
	if st.ep.Closed() {
		delete(rt.storage, m)
		return nil
	}
	if owner := st.ep.Realm(); owner != rt.realm {
		if owner != nil {
			delete(rt.storage, m)
		}
		return nil
	}
	return st
}

func (rt *Runtime) forget(m *Mirror) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	delete(rt.storage, m)
}

// endpointOf returns the raw endpoint of a mirror held by this realm.
func (rt *Runtime) endpointOf(m *Mirror) *port.Endpoint {
	st := rt.state(m)
	if st == nil {
		return nil
	}
	return st.ep
}
