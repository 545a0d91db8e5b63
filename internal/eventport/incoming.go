package eventport

import (
	"slices"
	"sort"

	"github.com/danmuck/eventport/internal/event"
	"github.com/danmuck/eventport/internal/graph"
	"github.com/danmuck/eventport/internal/observability"
	"github.com/danmuck/eventport/internal/port"
	"github.com/danmuck/eventport/internal/protocol"
)

// EventPortsKey lists the revived mirrors on a replacement message event.
const EventPortsKey = "eventPorts"

// EventPorts returns the mirrors revived for a message event.
func EventPorts(e *event.Event) []*Mirror {
	mirrors, _ := e.Field(EventPortsKey).([]*Mirror)
	return mirrors
}

func (rt *Runtime) handleIncoming(e *event.Event) {
	d, ok := e.CurrentTarget.(event.Dispatcher)
	if !ok {
		rt.log.Debug().Msgf("revival target %T cannot dispatch", e.CurrentTarget)
		return
	}
	replacement, ok := rt.Revive(e)
	if !ok {
		return
	}
	e.StopImmediatePropagation()
	d.DispatchEvent(replacement)
}

// Revive rebuilds the mirrors described by a wrapped message. Messages
// without ports are never unwrapped. It returns the replacement event, or
// false when e must pass through unchanged.
func (rt *Runtime) Revive(e *event.Event) (*event.Event, bool) {
	if _, done := e.Fields[EventPortsKey]; done {
		return nil, false
	}
	ports := port.Ports(e)
	if len(ports) == 0 {
		return nil, false
	}
	indices, data, ok := protocol.Unwrap(port.Data(e))
	if !ok {
		return nil, false
	}
	if !validIndices(indices, len(ports)) {
		rt.log.Debug().Ints("indices", indices).Int("ports", len(ports)).Msg("malformed transfer metadata")
		return nil, false
	}

	remaining := append([]*port.Endpoint{}, ports...)
	desc := append([]int(nil), indices...)
	sort.Sort(sort.Reverse(sort.IntSlice(desc)))
	revived := make([]*Mirror, 0, len(desc))
	for _, idx := range desc {
		raw := remaining[idx]
		m := rt.newMirror(raw, "revived")
		data = graph.Replace(data, func(v any) (any, bool) {
			p, ok := v.(*port.Endpoint)
			if ok && p == raw {
				return m, true
			}
			return nil, false
		})
		remaining = slices.Delete(remaining, idx, idx+1)
		revived = append(revived, m)
	}
	slices.Reverse(revived)

	fields := make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		fields[k] = v
	}
	fields["data"] = data
	fields["ports"] = remaining
	fields[EventPortsKey] = revived

	replacement := event.New(e.Type, fields)
	replacement.IsTrusted = e.IsTrusted
	replacement.TimeStamp = e.TimeStamp
	if len(revived) > 0 {
		observability.RecordMirrorsRevived(rt.realm.Name(), len(revived))
	}
	return replacement, true
}

func validIndices(indices []int, n int) bool {
	seen := make(map[int]bool, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= n || seen[idx] {
			return false
		}
		seen[idx] = true
	}
	return true
}
