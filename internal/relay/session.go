package relay

import (
	"sync"
	"time"

	"github.com/btcp-relay/btcp/internal/protocol"
)

// Peer is one attached push-channel connection: either the session's sole
// Provider or one of its Callers.
type Peer struct {
	ID        string
	Role      protocol.Role
	SessionID string

	push chan protocol.Message
	done chan struct{}

	closeOnce sync.Once
}

func newPeer(id string, role protocol.Role, sessionID string) *Peer {
	return &Peer{
		ID:        id,
		Role:      role,
		SessionID: sessionID,
		push:      make(chan protocol.Message, 64),
		done:      make(chan struct{}),
	}
}

// Push enqueues a message for delivery on this peer's SSE stream. The send
// is non-blocking so one slow peer cannot stall the session's
// serialization point; a full buffer drops the frame.
func (p *Peer) Push(msg protocol.Message) bool {
	select {
	case p.push <- msg:
		return true
	case <-p.done:
		return false
	default:
		return false
	}
}

// Close marks the peer disconnected and unblocks its writer goroutine.
func (p *Peer) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

func (p *Peer) Done() <-chan struct{} { return p.done }

// PendingRoute pairs a relay-internal forwarding id with the caller that
// originated the request.
type PendingRoute struct {
	CallerPeerID string
	OriginalID   []byte
	Method       string
	EnqueuedAt   time.Time

	resultCh chan *protocol.Message
	timer    *time.Timer
	once     sync.Once
}

// Session is the named meeting point between at most one provider and zero
// or more callers.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	provider *Peer
	callers  map[string]*Peer
	tools    []protocol.ToolDescriptor
	pending  map[string]*PendingRoute
}

func newSession(id string) *Session {
	return &Session{
		ID:        id,
		CreatedAt: time.Now(),
		callers:   make(map[string]*Peer),
		pending:   make(map[string]*PendingRoute),
	}
}

// Snapshot is the read-only view of a session used for /sessions and for
// session/join responses; callers only ever read snapshots, never the
// live session struct.
type Snapshot struct {
	ID          string
	HasProvider bool
	CallerCount int
	ToolCount   int
	Tools       []protocol.ToolDescriptor
	CreatedAt   time.Time
}

func (s *Session) snapshotLocked() Snapshot {
	tools := make([]protocol.ToolDescriptor, len(s.tools))
	copy(tools, s.tools)
	return Snapshot{
		ID:          s.ID,
		HasProvider: s.provider != nil,
		CallerCount: len(s.callers),
		ToolCount:   len(tools),
		Tools:       tools,
		CreatedAt:   s.CreatedAt,
	}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// isIdleLocked reports whether the session has neither a provider nor any
// caller attached.
func (s *Session) isIdleLocked() bool {
	return s.provider == nil && len(s.callers) == 0
}
