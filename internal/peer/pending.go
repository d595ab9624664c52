package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/btcp-relay/btcp/internal/protocol"
)

// localPending is the peer-side counterpart of relay.PendingRoute: one
// outstanding request() call awaiting its correlated response.
type localPending struct {
	resultCh chan *protocol.Message
	once     sync.Once
}

func unmarshalParams(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// Request posts method/params to the relay and awaits the correlated
// response, failing with a typed error on timeout or disconnect. Local
// request failures are never retried by the multiplexer.
func (c *Client) Request(ctx context.Context, method string, params any) (*protocol.Message, error) {
	id := c.idgen.Next()
	req, err := protocol.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	pending := &localPending{resultCh: make(chan *protocol.Message, 1)}
	c.mu.Lock()
	c.pending[id] = pending
	c.mu.Unlock()

	if err := c.post(ctx, req); err != nil {
		c.removePending(id)
		return nil, protocol.NewError(protocol.KindConnection, fmt.Sprintf("failed to post request: %v", err))
	}

	timer := time.NewTimer(c.cfg.ConnectionTimeout())
	defer timer.Stop()

	select {
	case resp, ok := <-pending.resultCh:
		if !ok || resp == nil {
			return nil, protocol.NewError(protocol.KindConnection, "request cancelled before a response arrived")
		}
		return resp, nil
	case <-timer.C:
		c.removePending(id)
		return nil, protocol.NewError(protocol.KindTimeout, fmt.Sprintf("no response to %s within timeout", method))
	case <-ctx.Done():
		c.removePending(id)
		return nil, protocol.NewError(protocol.KindConnection, "request context cancelled")
	}
}

func (c *Client) removePending(id string) {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if ok {
		p.once.Do(func() { close(p.resultCh) })
	}
}

// resolvePending delivers an inbound response to its waiting Request call.
func (c *Client) resolvePending(id string, msg *protocol.Message) bool {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	p.once.Do(func() {
		select {
		case p.resultCh <- msg:
		default:
		}
	})
	return true
}

// failAllPending cancels every outstanding local request, used on
// disconnect: a connection failure fails every in-flight request on both
// sides rather than leaving them to time out individually.
func (c *Client) failAllPending(_ *protocol.Error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]*localPending)
	c.mu.Unlock()

	for _, p := range pending {
		p.once.Do(func() { close(p.resultCh) })
	}
}

// post POSTs msg to /message?sessionId=&peerId=.
func (c *Client) post(ctx context.Context, msg *protocol.Message) error {
	data, err := msg.Marshal()
	if err != nil {
		return err
	}

	u := fmt.Sprintf("%s/message?sessionId=%s", c.cfg.ServerURL, c.SessionID())
	if id := c.PeerID(); id != "" {
		u += "&peerId=" + id
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ingest rejected message: status %d", resp.StatusCode)
	}
	return nil
}
