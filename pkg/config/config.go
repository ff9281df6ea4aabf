// Package config provides environment-driven configuration, following
// the same getEnv-with-defaults pattern used throughout this codebase's
// ambient stack.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every knob this server reads from its environment.
type Config struct {
	// BlocksDir is where content-addressed blocks are stored when using
	// the filesystem backend.
	BlocksDir string
	// UseKVBackend selects the embedded key/value engine backend
	// instead of one-file-per-block storage.
	UseKVBackend bool
	// KVDir is the embedded engine's data directory, used when
	// UseKVBackend is set.
	KVDir string

	// StreamsDir holds one persisted file per VerifierMap entry.
	StreamsDir string
	// StreamsDebounce bounds how often an accepted update is flushed to
	// disk; zero flushes after every accepted update.
	StreamsDebounce time.Duration

	// SecretDir holds the server's own persisted key material.
	SecretDir string

	// ListenAddr is the websocket server's bind address.
	ListenAddr string
	// DeferWorkers sizes the shared worker pool long-running session
	// commands run through.
	DeferWorkers int

	// MetricsAddr is the bind address for the /metrics and /health HTTP
	// endpoints. Empty disables the HTTP server entirely.
	MetricsAddr string

	// AuditDSN, if set, is a postgres connection string for the
	// external audit-log sink. Empty disables the audit log.
	AuditDSN string
}

// Load reads a Config from the environment, applying the defaults this
// system ships with.
func Load() (Config, error) {
	cfg := Config{
		BlocksDir:       getEnv("HASHTREE_BLOCKS_DIR", "public/blocks"),
		UseKVBackend:    getEnvBool("HASHTREE_USE_KV_BACKEND", false),
		KVDir:           getEnv("HASHTREE_KV_DIR", "public/kv"),
		StreamsDir:      getEnv("HASHTREE_STREAMS_DIR", "secret/streams"),
		StreamsDebounce: getEnvDuration("HASHTREE_STREAMS_DEBOUNCE", 0),
		SecretDir:       getEnv("HASHTREE_SECRET_DIR", "secret"),
		ListenAddr:      getEnv("HASHTREE_LISTEN_ADDR", "127.0.0.1:3001"),
		DeferWorkers:    getEnvInt("HASHTREE_DEFER_WORKERS", 4),
		MetricsAddr:     getEnv("HASHTREE_METRICS_ADDR", "127.0.0.1:9100"),
		AuditDSN:        getEnv("HASHTREE_AUDIT_DSN", ""),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks for configuration that would otherwise fail confusingly
// deep inside startup.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: HASHTREE_LISTEN_ADDR must not be empty")
	}
	if c.DeferWorkers < 1 {
		return fmt.Errorf("config: HASHTREE_DEFER_WORKERS must be at least 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
