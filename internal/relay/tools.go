package relay

import "github.com/btcp-relay/btcp/internal/protocol"

// SetTools replaces the session's tool catalogue wholesale. Only the
// current provider may call this.
func (s *Session) SetTools(tools []protocol.ToolDescriptor) {
	s.mu.Lock()
	s.tools = tools
	s.mu.Unlock()
}

// Tools returns a snapshot of the catalogue for read-only consumers.
func (s *Session) Tools() []protocol.ToolDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.ToolDescriptor, len(s.tools))
	copy(out, s.tools)
	return out
}

func (s *Session) Provider() *Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider
}

func (s *Session) Caller(peerID string) (*Peer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.callers[peerID]
	return p, ok
}

func (s *Session) Callers() []*Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Peer, 0, len(s.callers))
	for _, c := range s.callers {
		out = append(out, c)
	}
	return out
}
