package relay

import (
	"testing"

	"github.com/btcp-relay/btcp/internal/protocol"
)

func TestAttachProviderTakeoverEvictsIncumbent(t *testing.T) {
	r := NewRegistry()
	first := newPeer("peer:1", protocol.RoleProvider, "s1")
	second := newPeer("peer:2", protocol.RoleProvider, "s1")

	session, evicted := r.AttachProvider("s1", first)
	if evicted != nil {
		t.Fatalf("expected no eviction on first attach, got %v", evicted)
	}

	_, evicted = r.AttachProvider("s1", second)
	if evicted != first {
		t.Fatalf("expected first provider to be evicted, got %v", evicted)
	}
	if session.Provider() != second {
		t.Fatal("expected second provider to hold the slot")
	}
}

func TestAttachCallerAddsToSession(t *testing.T) {
	r := NewRegistry()
	caller := newPeer("peer:1", protocol.RoleCaller, "s1")
	session := r.AttachCaller("s1", caller)

	if len(session.Callers()) != 1 {
		t.Fatalf("expected 1 caller, got %d", len(session.Callers()))
	}
	if _, ok := session.Caller("peer:1"); !ok {
		t.Fatal("expected to find the attached caller")
	}
}

func TestDetachReapsIdleSession(t *testing.T) {
	r := NewRegistry()
	caller := newPeer("peer:1", protocol.RoleCaller, "s1")
	r.AttachCaller("s1", caller)

	if _, ok := r.GetSession("s1"); !ok {
		t.Fatal("expected session to exist before detach")
	}

	r.Detach(mustGet(t, r, "s1"), caller)

	if _, ok := r.GetSession("s1"); ok {
		t.Fatal("expected session to be reaped once idle")
	}
}

func TestDetachKeepsSessionAliveWithRemainingCallers(t *testing.T) {
	r := NewRegistry()
	c1 := newPeer("peer:1", protocol.RoleCaller, "s1")
	c2 := newPeer("peer:2", protocol.RoleCaller, "s1")
	r.AttachCaller("s1", c1)
	r.AttachCaller("s1", c2)

	session := mustGet(t, r, "s1")
	remaining, wasProvider := r.Detach(session, c1)
	if wasProvider {
		t.Fatal("c1 was never the provider")
	}
	if len(remaining) != 1 || remaining[0] != c2 {
		t.Fatalf("expected c2 to remain, got %v", remaining)
	}
	if _, ok := r.GetSession("s1"); !ok {
		t.Fatal("expected session to remain live with a caller still attached")
	}
}

func TestDetachProviderNotifiesRemainingCallers(t *testing.T) {
	r := NewRegistry()
	provider := newPeer("peer:provider", protocol.RoleProvider, "s1")
	caller := newPeer("peer:caller", protocol.RoleCaller, "s1")
	session, _ := r.AttachProvider("s1", provider)
	r.AttachCaller("s1", caller)

	remaining, wasProvider := r.Detach(session, provider)
	if !wasProvider {
		t.Fatal("expected wasProvider to be true")
	}
	if len(remaining) != 1 || remaining[0] != caller {
		t.Fatalf("expected caller to remain, got %v", remaining)
	}
}

func mustGet(t *testing.T, r *Registry, id string) *Session {
	t.Helper()
	s, ok := r.GetSession(id)
	if !ok {
		t.Fatalf("expected session %s to exist", id)
	}
	return s
}
