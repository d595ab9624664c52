package relay

import (
	"time"

	"github.com/btcp-relay/btcp/internal/metrics"
	"github.com/btcp-relay/btcp/internal/protocol"
)

// RegisterPending installs a PendingRoute keyed by internalID, covering
// any forwarded method, not just tool calls.
func (s *Session) RegisterPending(internalID, callerPeerID string, originalID []byte, method string) *PendingRoute {
	route := &PendingRoute{
		CallerPeerID: callerPeerID,
		OriginalID:   originalID,
		Method:       method,
		EnqueuedAt:   time.Now(),
		resultCh:     make(chan *protocol.Message, 1),
	}
	s.mu.Lock()
	s.pending[internalID] = route
	s.mu.Unlock()
	metrics.PendingRoutes.Inc()
	return route
}

// ResolvePending delivers msg to the waiting forward goroutine and removes
// the entry. Returns false if the route was already resolved or cancelled
// (the timer and the provider response race; whichever arrives first
// wins, the other is discarded).
func (s *Session) ResolvePending(internalID string, msg *protocol.Message) bool {
	s.mu.Lock()
	route, ok := s.pending[internalID]
	if ok {
		delete(s.pending, internalID)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	metrics.PendingRoutes.Dec()

	route.once.Do(func() {
		select {
		case route.resultCh <- msg:
		default:
		}
	})
	return true
}

// CancelPending removes and closes a route without a result, used by the
// forward timeout path and by session teardown.
func (s *Session) CancelPending(internalID string) (*PendingRoute, bool) {
	s.mu.Lock()
	route, ok := s.pending[internalID]
	if ok {
		delete(s.pending, internalID)
	}
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	metrics.PendingRoutes.Dec()
	route.once.Do(func() { close(route.resultCh) })
	return route, true
}

// drainPending cancels every pending route still registered on the session,
// so a forward goroutine waiting on a route whose session was just reaped
// doesn't block until its own timer fires.
func (s *Session) drainPending() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.CancelPending(id)
	}
}
