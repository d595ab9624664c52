package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/btcp-relay/btcp/internal/peer"
	"github.com/btcp-relay/btcp/internal/protocol"
)

// errKind reverse-maps a wire error's numeric code back to the stable Kind
// the relay and peer packages reason about, for scenario assertions.
func errKind(we *protocol.WireError) protocol.Kind {
	if we == nil {
		return 0
	}
	k, _ := protocol.KindFromCode(we.Code)
	return k
}

// newSessionID returns a fresh session id for one scenario run, prefixed
// with the scenario name, so runs never share a session on the relay.
func newSessionID(scenario string) string {
	return scenario + "-" + protocol.NewInternalID()
}

func echoTool() protocol.ToolDescriptor {
	return protocol.ToolDescriptor{
		Tool: mcp_sdk.Tool{
			Name:        "echo",
			Description: "returns its text argument unchanged",
			InputSchema: protocol.MustSchema(map[string]any{
				"type":       "object",
				"properties": map[string]any{"text": map[string]any{"type": "string"}},
				"required":   []any{"text"},
			}),
		},
	}
}

func slowTool() protocol.ToolDescriptor {
	return protocol.ToolDescriptor{
		Tool: mcp_sdk.Tool{
			Name:        "slow",
			Description: "sleeps past the relay's forward timeout before replying",
		},
	}
}

// attachProvider opens a provider's push channel and registers its
// descriptors. It fails the scenario if the channel never opens.
func attachProvider(ctx context.Context, h *harness, sessionID string, tools ...protocol.ToolDescriptor) (*peer.Client, error) {
	pv := h.newProvider(sessionID)
	for _, t := range tools {
		switch t.Name {
		case "echo":
			pv.RegisterTool(t, func(ctx context.Context, args map[string]any) (any, error) {
				text, _ := args["text"].(string)
				return text, nil
			})
		case "slow":
			pv.RegisterTool(t, func(ctx context.Context, args map[string]any) (any, error) {
				select {
				case <-time.After(2 * time.Minute):
				case <-ctx.Done():
				}
				return "too late", nil
			})
		}
	}

	if err := pv.Attach(ctx); err != nil {
		return nil, fmt.Errorf("provider attach: %w", err)
	}
	if _, err := pv.RegisterTools(ctx, nil); err != nil {
		return nil, fmt.Errorf("tools/register: %w", err)
	}
	return pv, nil
}

func scenarioEcho(ctx context.Context, h *harness) error {
	sessionID := newSessionID("echo")
	pv, err := attachProvider(ctx, h, sessionID, echoTool())
	if err != nil {
		return err
	}
	defer pv.Disconnect()

	caller := h.newCaller(sessionID)
	if err := caller.Attach(ctx); err != nil {
		return fmt.Errorf("caller attach: %w", err)
	}
	defer caller.Disconnect()

	var resp *protocol.Message
	err = h.track(ctx, "echo tools/call", func(ctx context.Context) error {
		r, err := caller.Request(ctx, "tools/call", map[string]any{
			"name":      "echo",
			"arguments": map[string]any{"text": "hello"},
		})
		resp = r
		return err
	})
	if err != nil {
		return fmt.Errorf("tools/call: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("unexpected error response: %s", resp.Error.Message)
	}
	return nil
}

func scenarioMissingProvider(ctx context.Context, h *harness) error {
	sessionID := newSessionID("missing-provider")
	caller := h.newCaller(sessionID)
	if err := caller.Attach(ctx); err != nil {
		return fmt.Errorf("caller attach: %w", err)
	}
	defer caller.Disconnect()

	resp, err := caller.Request(ctx, "tools/call", map[string]any{
		"name":      "echo",
		"arguments": map[string]any{"text": "hello"},
	})
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	if resp.Error == nil {
		return fmt.Errorf("expected a session error with no provider attached, got success")
	}
	if errKind(resp.Error) != protocol.KindSession {
		return fmt.Errorf("expected kind session, got code %d", resp.Error.Code)
	}
	return nil
}

func scenarioToolNotFound(ctx context.Context, h *harness) error {
	sessionID := newSessionID("tool-not-found")
	pv, err := attachProvider(ctx, h, sessionID, echoTool())
	if err != nil {
		return err
	}
	defer pv.Disconnect()

	caller := h.newCaller(sessionID)
	if err := caller.Attach(ctx); err != nil {
		return fmt.Errorf("caller attach: %w", err)
	}
	defer caller.Disconnect()

	resp, err := caller.Request(ctx, "tools/call", map[string]any{
		"name":      "ghost",
		"arguments": map[string]any{},
	})
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	if resp.Error == nil {
		return fmt.Errorf("expected tool-not-found error, got success")
	}
	if errKind(resp.Error) != protocol.KindToolNotFound {
		return fmt.Errorf("expected kind tool-not-found, got code %d", resp.Error.Code)
	}
	return nil
}

func scenarioForwardTimeout(ctx context.Context, h *harness) error {
	sessionID := newSessionID("timeout")
	pv, err := attachProvider(ctx, h, sessionID, slowTool())
	if err != nil {
		return err
	}
	defer pv.Disconnect()

	caller := h.newCaller(sessionID)
	if err := caller.Attach(ctx); err != nil {
		return fmt.Errorf("caller attach: %w", err)
	}
	defer caller.Disconnect()

	resp, err := caller.Request(ctx, "tools/call", map[string]any{
		"name":      "slow",
		"arguments": map[string]any{},
	})
	if err != nil {
		// the peer's own request timeout fired before the relay's forward
		// timeout did; still an acceptable outcome for this scenario.
		return nil
	}
	if resp.Error == nil {
		return fmt.Errorf("expected a timeout error for the slow tool, got success")
	}
	if errKind(resp.Error) != protocol.KindTimeout {
		return fmt.Errorf("expected kind timeout, got code %d", resp.Error.Code)
	}
	return nil
}

func scenarioProviderTakeover(ctx context.Context, h *harness) error {
	sessionID := newSessionID("takeover")
	first := h.newProvider(sessionID)
	first.RegisterTool(echoTool(), func(ctx context.Context, args map[string]any) (any, error) {
		text, _ := args["text"].(string)
		return text, nil
	})
	if err := first.Attach(ctx); err != nil {
		return fmt.Errorf("first provider attach: %w", err)
	}
	defer first.Disconnect()
	if _, err := first.RegisterTools(ctx, nil); err != nil {
		return fmt.Errorf("first tools/register: %w", err)
	}

	evicted := make(chan struct{}, 1)
	first.On("disconnect", func(any) {
		select {
		case evicted <- struct{}{}:
		default:
		}
	})

	second := h.newProvider(sessionID)
	second.RegisterTool(echoTool(), func(ctx context.Context, args map[string]any) (any, error) {
		text, _ := args["text"].(string)
		return text, nil
	})
	if err := second.Attach(ctx); err != nil {
		return fmt.Errorf("second provider attach: %w", err)
	}
	defer second.Disconnect()
	if _, err := second.RegisterTools(ctx, nil); err != nil {
		return fmt.Errorf("second tools/register: %w", err)
	}

	caller := h.newCaller(sessionID)
	if err := caller.Attach(ctx); err != nil {
		return fmt.Errorf("caller attach: %w", err)
	}
	defer caller.Disconnect()

	resp, err := caller.Request(ctx, "tools/call", map[string]any{
		"name":      "echo",
		"arguments": map[string]any{"text": "still-here"},
	})
	if err != nil {
		return fmt.Errorf("request after takeover: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("expected the surviving provider to answer, got error %s", resp.Error.Message)
	}
	return nil
}

func scenarioFanIn(ctx context.Context, h *harness, workers int) error {
	sessionID := newSessionID("fan-in")
	pv, err := attachProvider(ctx, h, sessionID, echoTool())
	if err != nil {
		return err
	}
	defer pv.Disconnect()

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			caller := h.newCaller(sessionID)
			if err := caller.Attach(ctx); err != nil {
				errs <- fmt.Errorf("caller %d attach: %w", n, err)
				return
			}
			defer caller.Disconnect()

			resp, err := caller.Request(ctx, "tools/call", map[string]any{
				"name":      "echo",
				"arguments": map[string]any{"text": fmt.Sprintf("caller-%d", n)},
			})
			if err != nil {
				errs <- fmt.Errorf("caller %d request: %w", n, err)
				return
			}
			if resp.Error != nil {
				errs <- fmt.Errorf("caller %d got error: %s", n, resp.Error.Message)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
