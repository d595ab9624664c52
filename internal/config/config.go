// Package config defines the relay's and the peer's configuration
// surfaces, loaded from flags with environment-variable fallback in the
// same flag-first style the server entrypoint has always used.
package config

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// RelayConfig is the configuration surface for the relay process: the
// options of the external interfaces section plus JSONLogs, which selects
// the log output format.
type RelayConfig struct {
	Port             int
	Host             string
	KeepAliveMs      int
	RequestTimeoutMs int
	Debug            bool
	JSONLogs         bool
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		Port:             8765,
		Host:             "0.0.0.0",
		KeepAliveMs:      30000,
		RequestTimeoutMs: 30000,
		Debug:            false,
		JSONLogs:         false,
	}
}

// RelayConfigFromFlags parses flags (falling back to environment
// variables, falling back to the documented defaults) into a RelayConfig.
func RelayConfigFromFlags(args []string) (RelayConfig, error) {
	cfg := DefaultRelayConfig()
	envOverride(&cfg)

	fs := flag.NewFlagSet("relay", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "port to listen on")
	fs.StringVar(&cfg.Host, "host", cfg.Host, "host/interface to bind")
	fs.IntVar(&cfg.KeepAliveMs, "keep-alive-ms", cfg.KeepAliveMs, "SSE heartbeat interval in milliseconds")
	fs.IntVar(&cfg.RequestTimeoutMs, "request-timeout-ms", cfg.RequestTimeoutMs, "forward timeout for caller requests in milliseconds")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "enable verbose logging")
	fs.BoolVar(&cfg.JSONLogs, "json-logs", cfg.JSONLogs, "emit logs as JSON")

	if err := fs.Parse(args); err != nil {
		return RelayConfig{}, err
	}
	return cfg, nil
}

func (c RelayConfig) KeepAlive() time.Duration {
	return time.Duration(c.KeepAliveMs) * time.Millisecond
}

func (c RelayConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

func envOverride(cfg *RelayConfig) {
	if v := os.Getenv("BTCP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("BTCP_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("BTCP_KEEP_ALIVE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.KeepAliveMs = n
		}
	}
	if v := os.Getenv("BTCP_REQUEST_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RequestTimeoutMs = n
		}
	}
	if v := os.Getenv("BTCP_DEBUG"); v != "" {
		cfg.Debug = v == "1" || v == "true"
	}
	if v := os.Getenv("BTCP_JSON_LOGS"); v != "" {
		cfg.JSONLogs = v == "1" || v == "true"
	}
}

// PeerConfig is the configuration surface consumed by internal/peer's
// multiplexer.
type PeerConfig struct {
	ServerURL              string
	SessionID              string
	AutoReconnect          bool
	ReconnectBaseDelayMs   int
	MaxReconnectAttempts   int
	ConnectionTimeoutMs    int
	Debug                  bool
}

func DefaultPeerConfig() PeerConfig {
	return PeerConfig{
		ServerURL:            "http://localhost:8765",
		AutoReconnect:        true,
		ReconnectBaseDelayMs: 1000,
		MaxReconnectAttempts: 5,
		ConnectionTimeoutMs:  30000,
		Debug:                false,
	}
}

func (c PeerConfig) ReconnectBaseDelay() time.Duration {
	return time.Duration(c.ReconnectBaseDelayMs) * time.Millisecond
}

func (c PeerConfig) ConnectionTimeout() time.Duration {
	return time.Duration(c.ConnectionTimeoutMs) * time.Millisecond
}
