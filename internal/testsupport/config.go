// Package testsupport provides shared fixtures for package tests.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"nomadcastd/internal/config"
)

// ConfigOption customizes the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a validated config seeded with unique temp
// directories per test: a storage root, a local transport directory,
// and a subscriptions file path, all under t.TempDir().
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	transportDir := filepath.Join(base, "transport")
	if err := os.MkdirAll(transportDir, 0o755); err != nil {
		t.Fatalf("create transport dir: %v", err)
	}

	cfg := config.Default()
	cfg.Server.Bind = "127.0.0.1:0"
	cfg.Storage.Path = filepath.Join(base, "storage")
	cfg.Transport.LocalDir = transportDir
	cfg.Subscriptions.Path = filepath.Join(base, "subscriptions.yaml")
	cfg.Subscriptions.Watch = false
	cfg.Logging.Dir = ""

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithEpisodesPerShow overrides the default retention window.
func WithEpisodesPerShow(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Cache.EpisodesPerShow = n
	}
}

// WithStrictEnclosures enables strict cached-only enclosure rewriting.
func WithStrictEnclosures() ConfigOption {
	return func(cfg *config.Config) {
		cfg.Cache.StrictCachedEnclosures = true
	}
}

// WithWatch enables the subscription file watcher.
func WithWatch() ConfigOption {
	return func(cfg *config.Config) {
		cfg.Subscriptions.Watch = true
	}
}
