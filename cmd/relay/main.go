// Command relay runs the BTCP relay process: it binds the configured
// host/port and brokers sessions between provider and caller peers until
// terminated.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcp-relay/btcp/internal/config"
	"github.com/btcp-relay/btcp/internal/logger"
	"github.com/btcp-relay/btcp/internal/relay"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.RelayConfigFromFlags(os.Args[1:])
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	logger.Init(cfg.JSONLogs, cfg.Debug)

	srv := relay.NewServer(cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("relay exited: %w", err)
		}
		return nil
	case sig := <-sigCh:
		logger.Slog().Info("received signal, shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Slog().Info("relay stopped")
	return nil
}
