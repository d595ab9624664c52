package relay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/btcp-relay/btcp/internal/config"
	"github.com/btcp-relay/btcp/internal/protocol"
)

// sseClient is a minimal test double for internal/peer's real SSE reader,
// scoped to what these end-to-end tests need: read frames off a GET
// /events response body until one matches a predicate.
type sseClient struct {
	scanner *bufio.Scanner
	body    interface{ Close() error }
}

func openEvents(t *testing.T, baseURL, sessionID, role string) *sseClient {
	t.Helper()
	resp, err := http.Get(fmt.Sprintf("%s/events?sessionId=%s&role=%s", baseURL, sessionID, role))
	if err != nil {
		t.Fatalf("open events: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	return &sseClient{scanner: bufio.NewScanner(resp.Body), body: resp.Body}
}

func (c *sseClient) next(t *testing.T) *protocol.Message {
	t.Helper()
	var data strings.Builder
	for c.scanner.Scan() {
		line := c.scanner.Text()
		switch {
		case strings.HasPrefix(line, "data: "):
			data.WriteString(strings.TrimPrefix(line, "data: "))
		case line == "" && data.Len() > 0:
			msg, err := protocol.Parse([]byte(data.String()))
			if err != nil {
				t.Fatalf("parse frame: %v", err)
			}
			return msg
		}
	}
	t.Fatal("event stream closed before producing a frame")
	return nil
}

func TestEndToEndEchoRoundTrip(t *testing.T) {
	srv := NewServer(config.DefaultRelayConfig())
	ts := httptest.NewServer(srv.mux())
	defer ts.Close()

	providerEvents := openEvents(t, ts.URL, "s1", "provider")
	connected := providerEvents.next(t)
	var connParams struct {
		PeerID string `json:"peerId"`
	}
	mustUnmarshalParams(t, connected, &connParams)

	registerReq, _ := protocol.NewRequest("reg-1", "tools/register", map[string]any{
		"tools": []protocol.ToolDescriptor{{Tool: mcp_sdk.Tool{Name: "echo"}}},
	})
	postMessage(t, ts.URL, "s1", connParams.PeerID, registerReq)
	providerEvents.next(t) // tools/register response

	callerEvents := openEvents(t, ts.URL, "s1", "caller")
	callerConnected := callerEvents.next(t)
	var callerParams struct {
		PeerID string `json:"peerId"`
	}
	mustUnmarshalParams(t, callerConnected, &callerParams)
	callerEvents.next(t) // sessions-snapshot frame

	callReq, _ := protocol.NewRequest("call-1", "tools/call", map[string]any{
		"name":      "echo",
		"arguments": map[string]any{"text": "hello"},
	})
	postMessage(t, ts.URL, "s1", callerParams.PeerID, callReq)

	forwarded := providerEvents.next(t)
	if forwarded.Method != "tools/call" {
		t.Fatalf("expected the provider to receive the forwarded tools/call, got %s", forwarded.Method)
	}

	toolResp, _ := protocol.NewResultResponse(forwarded.ID, map[string]any{
		"content": []protocol.ContentItem{protocol.TextItem("hello")},
		"isError": false,
	})
	postMessage(t, ts.URL, "s1", connParams.PeerID, toolResp)

	result := callerEvents.next(t)
	if result.StringID() != "call-1" {
		t.Errorf("expected the caller's original id to be restored, got %s", result.StringID())
	}
	if result.Error != nil {
		t.Errorf("unexpected error in final response: %+v", result.Error)
	}
}

func TestEndToEndMissingProviderReturnsSessionError(t *testing.T) {
	srv := NewServer(config.DefaultRelayConfig())
	ts := httptest.NewServer(srv.mux())
	defer ts.Close()

	callerEvents := openEvents(t, ts.URL, "s2", "caller")
	connected := callerEvents.next(t)
	var params struct {
		PeerID string `json:"peerId"`
	}
	mustUnmarshalParams(t, connected, &params)
	callerEvents.next(t) // sessions-snapshot frame

	callReq, _ := protocol.NewRequest("call-1", "tools/call", map[string]any{"name": "echo", "arguments": map[string]any{}})
	postMessage(t, ts.URL, "s2", params.PeerID, callReq)

	resp := callerEvents.next(t)
	if resp.Error == nil {
		t.Fatal("expected a session error with no attached provider")
	}
	kind, _ := protocol.KindFromCode(resp.Error.Code)
	if kind != protocol.KindSession {
		t.Errorf("expected KindSession, got %v", kind)
	}
}

func TestEndToEndProviderTakeoverEvictsIncumbent(t *testing.T) {
	srv := NewServer(config.DefaultRelayConfig())
	ts := httptest.NewServer(srv.mux())
	defer ts.Close()

	first := openEvents(t, ts.URL, "s3", "provider")
	first.next(t) // connected

	second := openEvents(t, ts.URL, "s3", "provider")
	second.next(t) // connected

	terminal := first.next(t)
	if terminal.Error == nil {
		t.Fatal("expected the evicted provider to receive a terminal error")
	}
	kind, _ := protocol.KindFromCode(terminal.Error.Code)
	if kind != protocol.KindSession {
		t.Errorf("expected KindSession for the takeover notice, got %v", kind)
	}
}

func TestHealthAndSessionsEndpoints(t *testing.T) {
	srv := NewServer(config.DefaultRelayConfig())
	ts := httptest.NewServer(srv.mux())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/sessions")
	if err != nil {
		t.Fatalf("GET /sessions: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func postMessage(t *testing.T, baseURL, sessionID, peerID string, msg *protocol.Message) {
	t.Helper()
	data, err := msg.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	url := fmt.Sprintf("%s/message?sessionId=%s&peerId=%s", baseURL, sessionID, peerID)
	resp, err := http.Post(url, "application/json", strings.NewReader(string(data)))
	if err != nil {
		t.Fatalf("post message: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		t.Fatalf("unexpected ingest status: %d", resp.StatusCode)
	}
	// give the async router a moment to process before the test reads the
	// next SSE frame.
	time.Sleep(20 * time.Millisecond)
}

func mustUnmarshalParams(t *testing.T, msg *protocol.Message, v any) {
	t.Helper()
	if err := json.Unmarshal(msg.Params, v); err != nil {
		t.Fatalf("unmarshal params: %v", err)
	}
}
