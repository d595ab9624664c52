package relay

import (
	"context"
	"time"

	"github.com/btcp-relay/btcp/internal/metrics"
	"github.com/btcp-relay/btcp/internal/protocol"
)

// forwardOutcome names the terminal state of one forward() call, recorded
// in the btcp_forward_duration_seconds histogram.
type forwardOutcome string

const (
	outcomeResolved forwardOutcome = "resolved"
	outcomeTimeout  forwardOutcome = "timeout"
	outcomeFallback forwardOutcome = "fallback"
	outcomeDropped  forwardOutcome = "dropped"
)

// forward allocates an internal id, registers a pending route, rewrites
// and pushes the request to the provider, then races the provider's
// response against the forward timeout and ctx cancellation.
// cachedFallback, when true, resolves a timeout with a success response
// carrying the session's current tool list instead of a timeout error —
// an availability fallback used for tools/list but not tools/call.
func (srv *Server) forward(ctx context.Context, session *Session, caller *Peer, provider *Peer, req *protocol.Message, timeout time.Duration, cachedFallback bool) *protocol.Message {
	start := time.Now()
	internalID := protocol.NewInternalID()
	route := session.RegisterPending(internalID, caller.ID, req.ID, req.Method)

	forwarded := &protocol.Message{
		Kind:   protocol.KindRequest,
		ID:     protocol.StringToID(internalID),
		Method: req.Method,
		Params: req.Params,
	}

	if !provider.Push(*forwarded) {
		session.CancelPending(internalID)
		metrics.RecordForward(req.Method, string(outcomeDropped), time.Since(start).Seconds())
		return protocol.NewErrorResponse(req.ID, protocol.NewError(protocol.KindConnection, "provider push channel unavailable"))
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-route.resultCh:
		if !ok || resp == nil {
			// The route was cancelled by session teardown (drainPending),
			// which happens only once no caller is left; nothing to send.
			return nil
		}
		metrics.RecordForward(req.Method, string(outcomeResolved), time.Since(start).Seconds())
		return rewriteResponseID(resp, req.ID)

	case <-timer.C:
		if _, cancelled := session.CancelPending(internalID); !cancelled {
			// The provider answered in the instant between timer fire and
			// CancelPending; prefer its answer.
			select {
			case resp := <-route.resultCh:
				if resp != nil {
					metrics.RecordForward(req.Method, string(outcomeResolved), time.Since(start).Seconds())
					return rewriteResponseID(resp, req.ID)
				}
			default:
			}
		}
		if cachedFallback {
			metrics.RecordForward(req.Method, string(outcomeFallback), time.Since(start).Seconds())
			resp, _ := protocol.NewResultResponse(req.ID, map[string]any{"tools": session.Tools()})
			return resp
		}
		metrics.RecordForward(req.Method, string(outcomeTimeout), time.Since(start).Seconds())
		return protocol.NewErrorResponse(req.ID, protocol.NewError(protocol.KindTimeout, "provider did not respond before the forward timeout"))

	case <-ctx.Done():
		session.CancelPending(internalID)
		metrics.RecordForward(req.Method, string(outcomeDropped), time.Since(start).Seconds())
		return protocol.NewErrorResponse(req.ID, protocol.NewError(protocol.KindConnection, "request cancelled"))
	}
}

// rewriteResponseID restores the caller's original id on the return leg.
func rewriteResponseID(resp *protocol.Message, originalID []byte) *protocol.Message {
	out := *resp
	out.ID = originalID
	return &out
}
