// Package relay implements the BTCP relay: session/peer bookkeeping,
// the method routing matrix, id-rewriting request forwarding, and the
// HTTP transport (SSE push channel + POST ingest).
package relay

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/btcp-relay/btcp/internal/config"
	"github.com/btcp-relay/btcp/internal/logger"
)

// Server is the top-level relay process: registry + HTTP transport.
type Server struct {
	cfg        config.RelayConfig
	registry   *Registry
	httpServer *http.Server
	startedAt  time.Time
}

func NewServer(cfg config.RelayConfig) *Server {
	return &Server{
		cfg:       cfg,
		registry:  NewRegistry(),
		startedAt: time.Now(),
	}
}

// Serve starts the HTTP listener and blocks until it stops, composing
// ServeMux + middleware + http.ListenAndServe.
func (srv *Server) Serve() error {
	addr := fmt.Sprintf("%s:%d", srv.cfg.Host, srv.cfg.Port)
	srv.httpServer = &http.Server{
		Addr:    addr,
		Handler: srv.mux(),
	}
	logger.Slog().Info("relay listening", "addr", addr)
	if err := srv.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP listener on signal.
func (srv *Server) Shutdown(ctx context.Context) error {
	if srv.httpServer == nil {
		return nil
	}
	return srv.httpServer.Shutdown(ctx)
}
