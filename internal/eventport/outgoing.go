package eventport

import (
	"github.com/danmuck/eventport/internal/graph"
	"github.com/danmuck/eventport/internal/observability"
	"github.com/danmuck/eventport/internal/port"
	"github.com/danmuck/eventport/internal/protocol"
)

// BeforeSend rewrites an outgoing message: mirrors held by this realm are
// replaced by their raw endpoints in transfer and data, and data is wrapped
// with their positions in the receiver's port list. A payload that already
// carries the marker and travels with endpoints is wrapped with an empty
// list so the receiver unwraps exactly one layer. Without endpoints the
// receiver never unwraps, so the payload is left alone.
func (rt *Runtime) BeforeSend(data any, transfer []any) (any, []any) {
	if transfer == nil {
		return data, nil
	}

	out := make([]any, len(transfer))
	replaced := make(map[*Mirror]*port.Endpoint)
	var indices []int
	next := 0
	for i, item := range transfer {
		out[i] = item
		switch t := item.(type) {
		case *Mirror:
			ep := rt.endpointOf(t)
			if ep == nil {
				continue
			}
			out[i] = ep
			replaced[t] = ep
			indices = append(indices, next)
			next++
		case *port.Endpoint:
			next++
		}
	}

	if len(indices) > 0 {
		swapped, err := graph.Clone(data, func(v any) (any, bool) {
			m, ok := v.(*Mirror)
			if !ok {
				return nil, false
			}
			ep, ok := replaced[m]
			return ep, ok
		})
		if err != nil {
			rt.log.Debug().Err(err).Msg("mirror substitution failed")
			swapped = data
		}
		observability.RecordTransferWrapped(rt.realm.Name(), "wrap")
		wrapped := protocol.Wrap(indices, swapped)
		rt.log.Debug().Ints("indices", indices).Func(diag("payload", wrapped)).Msg("mirrors wrapped for transfer")
		return wrapped, out
	}
	if next > 0 && protocol.HasMarker(data) {
		observability.RecordTransferWrapped(rt.realm.Name(), "rewrap")
		wrapped := protocol.Wrap(nil, data)
		rt.log.Debug().Func(diag("payload", wrapped)).Msg("marked payload rewrapped")
		return wrapped, out
	}
	return data, out
}
