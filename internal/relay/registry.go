package relay

import (
	"sync"

	"github.com/btcp-relay/btcp/internal/metrics"
	"github.com/btcp-relay/btcp/internal/protocol"
)

// Registry owns the set of live sessions. Sessions are created lazily on
// first attach and destroyed once idle.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) getOrCreate(sessionID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		s = newSession(sessionID)
		r.sessions[sessionID] = s
		metrics.SessionsActive.Set(float64(len(r.sessions)))
	}
	return s
}

func (r *Registry) get(sessionID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// reapIfIdle removes s from the registry once it has neither a provider nor
// any caller left. Must be called without s.mu held.
func (r *Registry) reapIfIdle(s *Session) {
	s.mu.Lock()
	idle := s.isIdleLocked()
	s.mu.Unlock()
	if !idle {
		return
	}
	r.mu.Lock()
	reaped := false
	if cur, ok := r.sessions[s.ID]; ok && cur == s {
		delete(r.sessions, s.ID)
		metrics.SessionsActive.Set(float64(len(r.sessions)))
		reaped = true
	}
	r.mu.Unlock()
	if reaped {
		s.drainPending()
	}
}

// Snapshots returns a read-only view of every live session, for /sessions.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	return out
}

// AttachProvider installs peer as the session's provider, evicting any
// incumbent (provider takeover). Returns the evicted peer, if any, so the
// caller can deliver its terminal error and close its channel outside the
// session lock.
func (r *Registry) AttachProvider(sessionID string, peer *Peer) (session *Session, evicted *Peer) {
	s := r.getOrCreate(sessionID)
	s.mu.Lock()
	evicted = s.provider
	s.provider = peer
	s.mu.Unlock()
	metrics.PeersActive.WithLabelValues("provider").Inc()
	return s, evicted
}

// AttachCaller adds peer to the session's caller map.
func (r *Registry) AttachCaller(sessionID string, peer *Peer) *Session {
	s := r.getOrCreate(sessionID)
	s.mu.Lock()
	s.callers[peer.ID] = peer
	s.mu.Unlock()
	metrics.PeersActive.WithLabelValues("caller").Inc()
	return s
}

// Detach removes peer from its session (provider or caller slot) and
// destroys the session if it is now idle. Returns the set of remaining
// callers to notify of a provider disconnect, if peer was the provider.
func (r *Registry) Detach(s *Session, peer *Peer) (remainingCallers []*Peer, wasProvider bool) {
	s.mu.Lock()
	if s.provider == peer {
		s.provider = nil
		wasProvider = true
	}
	delete(s.callers, peer.ID)
	for _, c := range s.callers {
		remainingCallers = append(remainingCallers, c)
	}
	s.mu.Unlock()

	if peer.Role == protocol.RoleProvider {
		metrics.PeersActive.WithLabelValues("provider").Dec()
	} else {
		metrics.PeersActive.WithLabelValues("caller").Dec()
	}

	r.reapIfIdle(s)
	return remainingCallers, wasProvider
}

func (r *Registry) GetSession(sessionID string) (*Session, bool) {
	return r.get(sessionID)
}
