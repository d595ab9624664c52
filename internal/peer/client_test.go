package peer

import (
	"context"
	"testing"

	"github.com/btcp-relay/btcp/internal/config"
	"github.com/btcp-relay/btcp/internal/protocol"
)

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateIdle:         "idle",
		StateConnecting:   "connecting",
		StateConnected:    "connected",
		StateDisconnected: "disconnected",
		StateReconnecting: "reconnecting",
		StateTerminal:     "terminal",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestNewProviderRegistersBuiltinToolCallHandler(t *testing.T) {
	c := New(config.DefaultPeerConfig(), protocol.RoleProvider)
	if _, ok := c.handlers["tools/call"]; !ok {
		t.Error("expected a provider client to have a built-in tools/call handler")
	}
}

func TestNewCallerHasNoToolCallHandler(t *testing.T) {
	c := New(config.DefaultPeerConfig(), protocol.RoleCaller)
	if _, ok := c.handlers["tools/call"]; ok {
		t.Error("expected a caller client to have no built-in tools/call handler")
	}
}

func TestRegisterHandlerAddsDispatchEntry(t *testing.T) {
	c := New(config.DefaultPeerConfig(), protocol.RoleCaller)
	called := false
	c.RegisterHandler("custom", func(ctx context.Context, params []byte) (any, error) {
		called = true
		return nil, nil
	})
	h, ok := c.handlers["custom"]
	if !ok {
		t.Fatal("expected custom handler to be registered")
	}
	h(nil, nil)
	if !called {
		t.Error("expected the registered handler to run")
	}
}

func TestInitialStateIsIdle(t *testing.T) {
	c := New(config.DefaultPeerConfig(), protocol.RoleCaller)
	if c.State() != StateIdle {
		t.Errorf("expected StateIdle, got %v", c.State())
	}
}
