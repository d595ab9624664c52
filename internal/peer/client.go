// Package peer implements the BTCP peer-side multiplexer used by both
// provider and caller peers: it opens the SSE push channel, posts outbound
// messages, correlates inbound responses with in-flight requests, and
// dispatches inbound requests to a registered handler table.
package peer

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/btcp-relay/btcp/internal/config"
	"github.com/btcp-relay/btcp/internal/logger"
	"github.com/btcp-relay/btcp/internal/protocol"
)

// State is the peer connection state machine: Idle -> Connecting ->
// Connected -> Disconnected -> {Reconnecting | Terminal}.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateReconnecting
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// HandlerFunc handles one inbound request. Its return value is normalized
// into content items by the dispatch loop.
type HandlerFunc func(ctx context.Context, params []byte) (any, error)

// Client is the peer multiplexer instantiated by both provider and caller
// peers.
type Client struct {
	cfg       config.PeerConfig
	role      protocol.Role
	sessionID string
	idgen     *protocol.IDGenerator
	http      *http.Client

	mu       sync.Mutex
	state    State
	peerID   string
	handlers map[string]HandlerFunc
	pending  map[string]*localPending
	attempt  int

	events *eventBus
	tools  *toolTable

	cancel context.CancelFunc
}

// New creates a peer multiplexer for the given role. cfg.SessionID may be
// empty, in which case New generates a random "session-<uuid>" id; the
// relay echoes the id back in the "connected" notification on attach.
func New(cfg config.PeerConfig, role protocol.Role) *Client {
	c := &Client{
		cfg:       cfg,
		role:      role,
		sessionID: cfg.SessionID,
		idgen:     protocol.NewIDGenerator(),
		http:      &http.Client{Timeout: 0},
		handlers:  make(map[string]HandlerFunc),
		pending:   make(map[string]*localPending),
		events:    newEventBus(),
		tools:     newToolTable(),
		state:     StateIdle,
	}
	if c.sessionID == "" {
		c.sessionID = "session-" + uuid.NewString()
	}
	if role == protocol.RoleProvider {
		c.handlers["tools/call"] = c.handleToolCall
	}
	return c
}

// RegisterHandler installs a dispatch entry for an inbound method.
func (c *Client) RegisterHandler(method string, h HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[method] = h
}

// On subscribes an observer to one of: connect, disconnect, error, message,
// toolCall.
func (c *Client) On(kind string, cb func(any)) {
	c.events.subscribe(kind, cb)
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) PeerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerID
}

func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Attach opens the SSE push channel and blocks until the first connection
// attempt either opens the channel (Connected) or fails; a failure is
// returned at once and Attach does not wait for retries. While
// cfg.AutoReconnect is set, the connect loop keeps retrying in the
// background after any failure, with exponential backoff
// (baseDelayMs * 2^(attempt-1)) up to cfg.MaxReconnectAttempts.
func (c *Client) Attach(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.setState(StateConnecting)
	opened := make(chan error, 1)
	go c.connectLoop(ctx, opened)

	select {
	case err := <-opened:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) connectLoop(ctx context.Context, opened chan<- error) {
	for {
		err := c.streamOnce(ctx, opened)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			// streamOnce only returns nil when the context ended.
			return
		}

		c.setState(StateDisconnected)
		c.events.emit("disconnect", err)
		c.failAllPending(protocol.NewError(protocol.KindConnection, "push channel disconnected"))

		if !c.cfg.AutoReconnect {
			c.setState(StateTerminal)
			return
		}

		c.mu.Lock()
		c.attempt++
		attempt := c.attempt
		c.mu.Unlock()

		if attempt > c.cfg.MaxReconnectAttempts {
			c.setState(StateTerminal)
			select {
			case opened <- fmt.Errorf("exhausted %d reconnect attempts: %w", c.cfg.MaxReconnectAttempts, err):
			default:
			}
			return
		}

		c.setState(StateReconnecting)
		delay := c.cfg.ReconnectBaseDelay() * time.Duration(1<<uint(attempt-1))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		c.setState(StateConnecting)
	}
}

// streamOnce opens one SSE connection and processes frames until it
// closes or errors. opened is offered (without blocking) the outcome of
// the connection attempt: nil once the stream opens, or the error that
// kept it from opening.
func (c *Client) streamOnce(ctx context.Context, opened chan<- error) error {
	u := fmt.Sprintf("%s/events?sessionId=%s&role=%s", c.cfg.ServerURL, url.QueryEscape(c.sessionID), c.role)

	connectCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectionTimeout())
	req, err := http.NewRequestWithContext(connectCtx, http.MethodGet, u, nil)
	if err != nil {
		cancel()
		trySend(opened, err)
		c.setState(StateTerminal)
		return err
	}

	resp, err := c.http.Do(req)
	cancel()
	if err != nil {
		trySend(opened, err)
		return err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		err := fmt.Errorf("attach failed with status %d", resp.StatusCode)
		trySend(opened, err)
		return err
	}
	defer resp.Body.Close()

	c.setState(StateConnected)
	c.mu.Lock()
	c.attempt = 0
	c.mu.Unlock()
	c.events.emit("connect", nil)
	trySend(opened, nil)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	var dataLine strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data: "):
			dataLine.WriteString(strings.TrimPrefix(line, "data: "))
		case line == "":
			if dataLine.Len() > 0 {
				c.handleFrame(ctx, []byte(dataLine.String()))
				dataLine.Reset()
			}
		case strings.HasPrefix(line, ":"):
			// heartbeat comment, ignore
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("push channel closed by relay")
}

func trySend(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}

func (c *Client) handleFrame(ctx context.Context, data []byte) {
	msg, err := protocol.Parse(data)
	if err != nil {
		logger.WarnContext(ctx, "dropping malformed frame", "error", err)
		return
	}

	if msg.Kind == protocol.KindNotification && msg.Method == "connected" {
		var params struct {
			PeerID    string `json:"peerId"`
			SessionID string `json:"sessionId"`
		}
		if err := unmarshalParams(msg.Params, &params); err == nil {
			c.mu.Lock()
			c.peerID = params.PeerID
			c.sessionID = params.SessionID
			c.mu.Unlock()
		}
	}

	c.dispatch(ctx, msg)
}

// Disconnect closes the push channel, cancels all pending local requests
// with kind connection, and inhibits auto-reconnect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.cfg.AutoReconnect = false
	c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	c.setState(StateTerminal)
	c.failAllPending(protocol.NewError(protocol.KindConnection, "disconnected"))
}
