package relay

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/btcp-relay/btcp/internal/logger"
	"github.com/btcp-relay/btcp/internal/metrics"
	"github.com/btcp-relay/btcp/internal/protocol"
	"github.com/btcp-relay/btcp/internal/validation"
)

const maxMessageBytes = 1 << 20 // 1 MiB ingest body limit

// mux builds the relay's HTTP surface: unauthenticated health/sessions/
// metrics probes, plus the two peer-facing endpoints, wrapped by request-id
// logging and metrics middleware. No auth or rate-limit layer sits in
// front of it; both are out of scope.
func (srv *Server) mux() http.Handler {
	root := http.NewServeMux()
	root.HandleFunc("GET /events", srv.handleEvents)
	root.HandleFunc("POST /message", srv.handleMessage)
	root.HandleFunc("GET /health", srv.handleHealth)
	root.HandleFunc("GET /sessions", srv.handleSessions)
	root.Handle("GET /metrics", metrics.Handler())

	return corsMiddleware(requestLoggingMiddleware(metrics.Middleware(root)))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := generateRequestID()
		ctx := logger.WithRequestID(r.Context(), requestID)
		logger.InfoContext(ctx, "request received", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func generateRequestID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// handleMessage serves POST /message?sessionId=&peerId=. The POST is
// acknowledged immediately; all semantic results flow down the sender's
// push channel, except for shape violations which are reported
// synchronously in the HTTP response itself.
func (srv *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if err := validation.ValidateSessionID(sessionID); err != nil {
		writeIngestError(w, http.StatusBadRequest, err.Error())
		return
	}
	peerID := r.URL.Query().Get("peerId")
	if peerID != "" {
		if err := validation.ValidatePeerID(peerID); err != nil {
			writeIngestError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes+1))
	if err != nil {
		writeIngestError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) > maxMessageBytes {
		writeIngestError(w, http.StatusRequestEntityTooLarge, "message exceeds size limit")
		return
	}

	msg, err := protocol.Parse(body)
	if err != nil {
		writeIngestError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, ok := srv.registry.GetSession(sessionID)
	if !ok {
		// No peer is attached to an unknown session, so no sender can be
		// resolved and there is no push channel to carry a semantic error;
		// report it synchronously instead.
		writeIngestError(w, http.StatusNotFound, fmt.Sprintf("session %s not found", sessionID))
		return
	}

	sender, perr := srv.resolveSender(session, peerID, msg)
	if perr != nil {
		writeIngestError(w, http.StatusBadRequest, perr.Message)
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{"success": true})

	ctx := logger.WithSessionID(logger.WithPeerID(r.Context(), sender.ID), sessionID)
	go srv.process(ctx, session, sender, msg)
}

// resolveSender identifies which attached peer sent this ingest POST.
// peerId is the unambiguous path. Absent it, the provider resolves for
// tools/register, a lone caller resolves for any message, and the provider
// resolves for any message when the session has no callers; anything else
// is rejected. This keeps the dual caller-session-id ambiguity the source
// itself never resolved (design note 1).
func (srv *Server) resolveSender(session *Session, peerID string, msg *protocol.Message) (*Peer, *protocol.Error) {
	if peerID != "" {
		if p := session.Provider(); p != nil && p.ID == peerID {
			return p, nil
		}
		if p, ok := session.Caller(peerID); ok {
			return p, nil
		}
		return nil, protocol.NewError(protocol.KindSession, fmt.Sprintf("peer %s not attached to session %s", peerID, session.ID))
	}

	if p := session.Provider(); p != nil && msg.Method == "tools/register" {
		return p, nil
	}
	callers := session.Callers()
	if len(callers) == 1 {
		return callers[0], nil
	}
	if p := session.Provider(); p != nil && len(callers) == 0 {
		return p, nil
	}
	return nil, protocol.NewError(protocol.KindInvalidRequest, "peerId is required to disambiguate sender in this session")
}

// process routes msg and, if it yields an immediate reply, pushes it down
// the sender's own channel.
func (srv *Server) process(ctx context.Context, session *Session, sender *Peer, msg *protocol.Message) {
	reply := srv.Route(ctx, session, sender, msg)
	if reply != nil {
		sender.Push(*reply)
	}
}

func writeIngestError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message})
}

func (srv *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snaps := srv.registry.Snapshots()
	peers := 0
	for _, s := range snaps {
		peers += s.CallerCount
		if s.HasProvider {
			peers++
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":        "ok",
		"sessions":      len(snaps),
		"peers":         peers,
		"uptimeSeconds": time.Since(srv.startedAt).Seconds(),
	})
}

func (srv *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"sessions": toSessionList(srv.registry.Snapshots())})
}
