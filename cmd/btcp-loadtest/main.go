// Command btcp-loadtest is a smoke-test harness for a running relay. It
// opens simulated provider and caller peers against --server-url and drives
// the protocol's documented end-to-end scenarios, reporting pass/fail for
// each. It does not replace package tests; it exercises a real relay process
// the way a handful of real peers would.
//
// The staleness-reaping tracker below repurposes a pendingConn-style
// queue and cleanupLoop ticker to watch in-flight simulated requests
// instead of paired sockets awaiting a partner.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/btcp-relay/btcp/internal/config"
	"github.com/btcp-relay/btcp/internal/logger"
	"github.com/btcp-relay/btcp/internal/peer"
	"github.com/btcp-relay/btcp/internal/protocol"
)

const staleAfter = 15 * time.Second

// inflight is one simulated request awaiting its outcome, tracked purely
// for reporting: a harness run that hangs should say which call is stuck
// rather than silently timing out the whole process.
type inflight struct {
	description string
	startedAt   time.Time
}

// tracker holds a set of in-progress items, each reported by a ticking
// cleanup loop once stale. Stale items are logged, not removed or closed --
// a loadtest has no socket to sever; finish removes an item.
type tracker struct {
	mu    sync.Mutex
	items map[string]*inflight
}

func newTracker() *tracker {
	return &tracker{items: make(map[string]*inflight)}
}

func (t *tracker) start(id, description string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[id] = &inflight{description: description, startedAt: time.Now()}
}

func (t *tracker) finish(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.items, id)
}

func (t *tracker) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.mu.Lock()
			for id, item := range t.items {
				if time.Since(item.startedAt) > staleAfter {
					logger.Slog().Warn("stale in-flight request", "id", id, "description", item.description, "age", time.Since(item.startedAt))
				}
			}
			t.mu.Unlock()
		}
	}
}

type harness struct {
	serverURL string
	tracker   *tracker
}

func (h *harness) peerConfig(sessionID string) config.PeerConfig {
	c := config.DefaultPeerConfig()
	c.ServerURL = h.serverURL
	c.SessionID = sessionID
	c.AutoReconnect = false
	c.ConnectionTimeoutMs = 5000
	return c
}

func (h *harness) newProvider(sessionID string) *peer.Client {
	return peer.New(h.peerConfig(sessionID), protocol.RoleProvider)
}

func (h *harness) newCaller(sessionID string) *peer.Client {
	return peer.New(h.peerConfig(sessionID), protocol.RoleCaller)
}

// track wraps a call with tracker bookkeeping so a hang shows up in the
// cleanup loop's stale-item warnings.
func (h *harness) track(ctx context.Context, description string, fn func(ctx context.Context) error) error {
	id := protocol.NewInternalID()
	h.tracker.start(id, description)
	defer h.tracker.finish(id)
	return fn(ctx)
}

type scenario struct {
	name string
	run  func(ctx context.Context, h *harness) error
}

func main() {
	serverURL := flag.String("server-url", "http://localhost:8765", "relay base URL")
	only := flag.String("scenario", "all", "scenario to run: all, echo, missing-provider, tool-not-found, timeout, takeover, fan-in")
	fanInWorkers := flag.Int("fan-in-workers", 8, "number of concurrent callers for the fan-in scenario")
	flag.Parse()

	logger.Init(false, true)

	h := &harness{serverURL: *serverURL, tracker: newTracker()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.tracker.cleanupLoop(ctx)

	scenarios := []scenario{
		{"echo", scenarioEcho},
		{"missing-provider", scenarioMissingProvider},
		{"tool-not-found", scenarioToolNotFound},
		{"timeout", scenarioForwardTimeout},
		{"takeover", scenarioProviderTakeover},
		{"fan-in", func(ctx context.Context, h *harness) error { return scenarioFanIn(ctx, h, *fanInWorkers) }},
	}

	failures := 0
	ran := 0
	for _, s := range scenarios {
		if *only != "all" && *only != s.name {
			continue
		}
		ran++
		sctx, cancel := context.WithTimeout(ctx, 20*time.Second)
		err := s.run(sctx, h)
		cancel()
		if err != nil {
			failures++
			fmt.Printf("FAIL %-20s %v\n", s.name, err)
			continue
		}
		fmt.Printf("PASS %-20s\n", s.name)
	}

	if ran == 0 {
		fmt.Fprintf(os.Stderr, "no scenario matched %q\n", *only)
		os.Exit(2)
	}
	if failures > 0 {
		os.Exit(1)
	}
}
