package subscriptions

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nomadcastd/internal/locator"
)

const testHash = "a3f1c2d4e5b6978812345678deadbeef"

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "subscriptions.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
subscriptions:
  - locator: nomadcast:`+testHash+`:dispatch
    episodes: 10
    max_bytes: 500000000
  - locator: ffffffffffffffffffffffffffffffff:other
`)
	entries, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	first := entries[0]
	if first.Locator.Hash != testHash || first.Locator.Name != "dispatch" {
		t.Errorf("entry 0 locator = %v", first.Locator)
	}
	if first.Episodes != 10 || first.MaxBytes != 500000000 {
		t.Errorf("entry 0 overrides = %d/%d", first.Episodes, first.MaxBytes)
	}
	if entries[1].Episodes != 0 {
		t.Errorf("entry 1 should have no override, got %d", entries[1].Episodes)
	}
}

func TestLoadMissingFile(t *testing.T) {
	entries, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	if err != nil {
		t.Fatalf("Load() missing file error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("len = %d, want 0", len(entries))
	}
}

func TestLoadSkipsInvalidEntries(t *testing.T) {
	cases := []struct {
		name     string
		content  string
		wantKept []string
	}{
		{
			"bad locator",
			"subscriptions:\n  - locator: nothex:show\n  - locator: " + testHash + ":dispatch\n",
			[]string{testHash},
		},
		{
			"duplicate show keeps first",
			"subscriptions:\n  - locator: " + testHash + ":a\n  - locator: " + testHash + ":b\n",
			[]string{testHash},
		},
		{
			"negative episodes",
			"subscriptions:\n  - locator: " + testHash + ":a\n    episodes: -1\n",
			nil,
		},
		{
			"negative max_bytes",
			"subscriptions:\n  - locator: " + testHash + ":a\n    max_bytes: -1\n",
			nil,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entries, err := Load(writeFile(t, tc.content), nil)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if len(entries) != len(tc.wantKept) {
				t.Fatalf("len = %d, want %d (%+v)", len(entries), len(tc.wantKept), entries)
			}
			for i, hash := range tc.wantKept {
				if entries[i].Locator.Hash != hash {
					t.Errorf("entry %d hash = %s, want %s", i, entries[i].Locator.Hash, hash)
				}
			}
		})
	}
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	_, err := Load(writeFile(t, "{{{{"), nil)
	if err == nil {
		t.Fatal("Load() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "parse") {
		t.Errorf("error %q does not mention parse", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subscriptions.yaml")
	want := []Entry{
		{Locator: locator.Locator{Hash: testHash, Name: "dispatch"}, Episodes: 3},
		{Locator: locator.Locator{Hash: "ffffffffffffffffffffffffffffffff", Name: "other"}, MaxBytes: 1024},
	}
	if err := Save(path, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestWatchFiresOnWrite(t *testing.T) {
	path := writeFile(t, "subscriptions: []\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, nil, func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
	}()

	// Give the watcher a moment to install before the write.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("subscriptions:\n  - locator: "+testHash+":a\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the write")
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Watch() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch() did not return after cancel")
	}
}
