package relay

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/btcp-relay/btcp/internal/logger"
	"github.com/btcp-relay/btcp/internal/protocol"
	"github.com/btcp-relay/btcp/internal/validation"
)

// handleEvents serves GET /events?sessionId=&role=, the long-lived SSE push
// channel for one peer. One writer goroutine per connection drains the
// peer's push channel and emits heartbeat comments; nothing else writes to
// the response after the handshake.
func (srv *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	roleParam := r.URL.Query().Get("role")
	if err := validation.ValidateSessionID(sessionID); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusBadRequest)
		return
	}
	if err := validation.ValidateRole(roleParam); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusBadRequest)
		return
	}
	role, _ := protocol.ParseRole(roleParam)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming unsupported"}`, http.StatusInternalServerError)
		return
	}

	peer := newPeer(protocol.NewPeerID(), role, sessionID)

	var session *Session
	var evicted *Peer
	if role == protocol.RoleProvider {
		session, evicted = srv.registry.AttachProvider(sessionID, peer)
	} else {
		session = srv.registry.AttachCaller(sessionID, peer)
	}

	ctx := logger.WithSessionID(logger.WithPeerID(r.Context(), peer.ID), sessionID)
	logger.InfoContext(ctx, "peer attached", "role", role)

	if evicted != nil {
		terminal := protocol.NewErrorResponse(protocol.StringToID("takeover"), protocol.NewError(protocol.KindSession, "another provider connected"))
		evicted.Push(*terminal)
		evicted.Close()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	connected, _ := protocol.NewNotification("connected", map[string]any{
		"peerId":    peer.ID,
		"sessionId": sessionID,
		"role":      string(role),
	})
	writeSSEFrame(w, *connected)
	flusher.Flush()

	if role == protocol.RoleCaller {
		snapshotMsg, _ := protocol.NewResultResponse(protocol.StringToID("sessions-snapshot"), map[string]any{
			"sessions": toSessionList(srv.registry.Snapshots()),
		})
		writeSSEFrame(w, *snapshotMsg)
		flusher.Flush()
	}

	heartbeat := time.NewTicker(srv.cfg.KeepAlive())
	defer heartbeat.Stop()

	for {
		select {
		case msg := <-peer.push:
			writeSSEFrame(w, msg)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			srv.disconnectPeer(ctx, session, peer)
			return
		case <-peer.Done():
			// Close only unblocks after any takeover/teardown frame has been
			// enqueued, but select picks among ready cases at random, so drain
			// whatever is already buffered before giving up the connection.
			drainPeerPush(w, flusher, peer)
			return
		}
	}
}

// drainPeerPush flushes any frames already buffered on peer.push, such as a
// takeover or teardown notice enqueued just before Close.
func drainPeerPush(w http.ResponseWriter, flusher http.Flusher, peer *Peer) {
	for {
		select {
		case msg := <-peer.push:
			writeSSEFrame(w, msg)
			flusher.Flush()
		default:
			return
		}
	}
}

func writeSSEFrame(w http.ResponseWriter, msg protocol.Message) {
	data, err := msg.Marshal()
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// disconnectPeer clears the heartbeat (the deferred Stop in handleEvents),
// demotes a provider and notifies callers, or drops a caller, then reaps
// the session if it is now idle.
func (srv *Server) disconnectPeer(ctx context.Context, session *Session, peer *Peer) {
	logger.InfoContext(ctx, "peer disconnected")
	remainingCallers, wasProvider := srv.registry.Detach(session, peer)
	if wasProvider {
		notice, err := protocol.NewNotification("provider/disconnected", map[string]any{"sessionId": session.ID})
		if err == nil {
			for _, c := range remainingCallers {
				c.Push(*notice)
			}
		}
	}
	peer.Close()
}

func toSessionList(snaps []Snapshot) []map[string]any {
	out := make([]map[string]any, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, map[string]any{
			"id":          s.ID,
			"hasProvider": s.HasProvider,
			"callerCount": s.CallerCount,
			"toolCount":   s.ToolCount,
			"createdAt":   s.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}
