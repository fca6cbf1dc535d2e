package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"nomadcastd/internal/config"
	"nomadcastd/internal/locator"
)

// WriteSubscriptions replaces the subscription file contents.
func WriteSubscriptions(t testing.TB, cfg *config.Config, body string) {
	t.Helper()
	if err := os.WriteFile(cfg.Subscriptions.Path, []byte(body), 0o644); err != nil {
		t.Fatalf("write subscriptions: %v", err)
	}
}

// SeedTransportFeed places publisher RSS where the local-directory
// fetcher will find it, mimicking a publisher node's announcement.
func SeedTransportFeed(t testing.TB, cfg *config.Config, loc locator.Locator, rss []byte) {
	t.Helper()
	writeTransportFile(t, cfg, loc, filepath.Join("file", loc.Name, "feed.rss"), rss)
}

// SeedTransportMedia places one episode file on the fake transport.
func SeedTransportMedia(t testing.TB, cfg *config.Config, loc locator.Locator, filename string, data []byte) {
	t.Helper()
	writeTransportFile(t, cfg, loc, filepath.Join("file", loc.Name, "media", filename), data)
}

func writeTransportFile(t testing.TB, cfg *config.Config, loc locator.Locator, rel string, data []byte) {
	t.Helper()
	path := filepath.Join(cfg.Transport.LocalDir, loc.Hash, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create transport path: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write transport file: %v", err)
	}
}
