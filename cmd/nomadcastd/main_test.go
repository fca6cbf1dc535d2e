package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nomadcastd/internal/cache"
	"nomadcastd/internal/daemon"
	"nomadcastd/internal/locator"
	"nomadcastd/internal/subscriptions"
)

const testHash = "a3f1c2d4e5b6978812345678deadbeef"

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	transport := filepath.Join(dir, "transport")
	if err := os.MkdirAll(transport, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "config.toml")
	body := `
[server]
bind = "127.0.0.1:5050"

[storage]
path = "` + filepath.Join(dir, "storage") + `"

[transport]
local_dir = "` + transport + `"

[subscriptions]
path = "` + filepath.Join(dir, "subscriptions.yaml") + `"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootShowsHelp(t *testing.T) {
	out, err := runCommand(t)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	for _, want := range []string{"run", "status", "config", "subscribe", "version"} {
		if !strings.Contains(out, want) {
			t.Errorf("help output missing %q", want)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if strings.TrimSpace(out) == "" {
		t.Error("version output is empty")
	}
}

func TestConfigShow(t *testing.T) {
	path := writeTestConfig(t)
	out, err := runCommand(t, "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	for _, want := range []string{"127.0.0.1:5050", "storage", "subscriptions.yaml"} {
		if !strings.Contains(out, want) {
			t.Errorf("config show output missing %q:\n%s", want, out)
		}
	}
}

func TestSubscribeCommand(t *testing.T) {
	path := writeTestConfig(t)

	out, err := runCommand(t, "--config", path, "subscribe", "nomadcast:"+testHash+":dispatch", "--episodes", "3")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out, "subscribed to nomadcast:"+testHash+":dispatch") {
		t.Errorf("unexpected output: %s", out)
	}

	// Confirm it landed in the file next to the config.
	subsPath := filepath.Join(filepath.Dir(path), "subscriptions.yaml")
	entries, err := subscriptions.Load(subsPath, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Locator.Hash != testHash || entries[0].Episodes != 3 {
		t.Errorf("entries = %+v", entries)
	}

	// A second subscribe of the same show is rejected.
	if _, err := runCommand(t, "--config", path, "subscribe", testHash+":other"); err == nil {
		t.Error("duplicate subscribe should fail")
	}
}

func TestSubscribeRejectsBadLocator(t *testing.T) {
	path := writeTestConfig(t)
	if _, err := runCommand(t, "--config", path, "subscribe", "not-a-locator"); err == nil {
		t.Error("Execute() error = nil, want locator error")
	}
}

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
		{3 * 1024 * 1024 * 1024, "3.0 GiB"},
	}
	for _, tc := range cases {
		if got := formatBytes(tc.in); got != tc.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRenderStatusTable(t *testing.T) {
	refreshed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	status := &daemon.Status{
		QueueDepth: 2,
		Storage:    "/var/lib/nomadcast",
	}
	status.Shows = append(status.Shows, cache.ShowStatus{
		Locator:         locator.Locator{Hash: testHash, Name: "dispatch"},
		Title:           "Nightly Dispatch",
		LastRefreshedAt: &refreshed,
		CachedEpisodes:  4,
		PendingEpisodes: 1,
		CachedBytes:     2048,
	})

	out := renderStatus(status)
	for _, want := range []string{"dispatch", "Nightly Dispatch", "2.0 KiB", "Queue depth: 2", "/var/lib/nomadcast"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered status missing %q:\n%s", want, out)
		}
	}
}
