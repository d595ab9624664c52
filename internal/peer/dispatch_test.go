package peer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/btcp-relay/btcp/internal/config"
	"github.com/btcp-relay/btcp/internal/protocol"
)

// newPostCapturingServer returns a test server recording every posted
// message body on the returned channel and acking with {"success":true}.
func newPostCapturingServer(t *testing.T) (*httptest.Server, chan *protocol.Message) {
	t.Helper()
	captured := make(chan *protocol.Message, 8)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		msg, err := protocol.Parse(body)
		if err == nil {
			captured <- msg
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	return ts, captured
}

func newTestClient(serverURL string) *Client {
	cfg := config.DefaultPeerConfig()
	cfg.ServerURL = serverURL
	c := New(cfg, protocol.RoleProvider)
	c.sessionID = "s1"
	c.peerID = "peer:1"
	return c
}

func TestDispatchRequestRepliesWithNormalizedResult(t *testing.T) {
	ts, captured := newPostCapturingServer(t)
	defer ts.Close()

	c := newTestClient(ts.URL)
	c.RegisterHandler("echo", func(ctx context.Context, params []byte) (any, error) {
		var p struct {
			Text string `json:"text"`
		}
		json.Unmarshal(params, &p)
		return p.Text, nil
	})

	req, _ := protocol.NewRequest("1", "echo", map[string]any{"text": "hi"})
	c.dispatch(context.Background(), req)

	select {
	case reply := <-captured:
		if reply.Kind != protocol.KindResponse || reply.StringID() != "1" {
			t.Fatalf("unexpected reply: %+v", reply)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a reply to be posted")
	}
}

func TestDispatchRequestUnknownMethodRepliesMethodNotFound(t *testing.T) {
	ts, captured := newPostCapturingServer(t)
	defer ts.Close()

	c := newTestClient(ts.URL)
	req, _ := protocol.NewRequest("1", "ghost", nil)
	c.dispatch(context.Background(), req)

	select {
	case reply := <-captured:
		if reply.Error == nil {
			t.Fatal("expected an error reply")
		}
		kind, _ := protocol.KindFromCode(reply.Error.Code)
		if kind != protocol.KindMethodNotFound {
			t.Errorf("expected KindMethodNotFound, got %v", kind)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a reply to be posted")
	}
}

func TestDispatchToolCallFailureUsesPairedErrorShape(t *testing.T) {
	ts, captured := newPostCapturingServer(t)
	defer ts.Close()

	c := newTestClient(ts.URL)
	c.RegisterHandler("tools/call", func(ctx context.Context, params []byte) (any, error) {
		return nil, protocol.NewError(protocol.KindExecution, "boom")
	})

	req, _ := protocol.NewRequest("1", "tools/call", map[string]any{"name": "x"})
	c.dispatch(context.Background(), req)

	select {
	case reply := <-captured:
		if reply.Error == nil {
			t.Fatal("expected a top-level error")
		}
		var result struct {
			IsError bool `json:"isError"`
		}
		json.Unmarshal(reply.Result, &result)
		if !result.IsError {
			t.Error("expected result.isError true alongside the top-level error")
		}
	case <-time.After(time.Second):
		t.Fatal("expected a reply to be posted")
	}
}

func TestDispatchRequestRecoversPanic(t *testing.T) {
	ts, captured := newPostCapturingServer(t)
	defer ts.Close()

	c := newTestClient(ts.URL)
	c.RegisterHandler("boom", func(ctx context.Context, params []byte) (any, error) {
		panic("oh no")
	})

	req, _ := protocol.NewRequest("1", "boom", nil)
	c.dispatch(context.Background(), req)

	select {
	case reply := <-captured:
		if reply.Error == nil {
			t.Fatal("expected an error reply after a handler panic")
		}
	case <-time.After(time.Second):
		t.Fatal("expected a reply to be posted despite the panic")
	}
}

func TestDispatchResponseResolvesPending(t *testing.T) {
	c := newTestClient("http://unused")
	pending := &localPending{resultCh: make(chan *protocol.Message, 1)}
	c.pending["1"] = pending

	resp, _ := protocol.NewResultResponse(protocol.StringToID("1"), map[string]any{"ok": true})
	c.dispatch(context.Background(), resp)

	select {
	case got := <-pending.resultCh:
		if got != resp {
			t.Error("expected the pending request to be resolved with the response")
		}
	default:
		t.Fatal("expected the pending request's channel to receive a value")
	}
}
