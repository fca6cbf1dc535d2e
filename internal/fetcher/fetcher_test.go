package fetcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

const testHash = "a3f1c2d4e5b6978812345678deadbeef"

func TestNewCommandValidation(t *testing.T) {
	cases := []struct {
		name    string
		argv    []string
		wantErr bool
	}{
		{"valid", []string{"rncp", "--fetch", "{dest}", "{path}"}, false},
		{"placeholders in one arg", []string{"sh", "-c", "fetch {dest}:{path}"}, false},
		{"missing dest", []string{"rncp", "{path}"}, true},
		{"missing path", []string{"rncp", "{dest}"}, true},
		{"empty", nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCommand(tc.argv, time.Second, nil)
			if (err != nil) != tc.wantErr {
				t.Errorf("NewCommand(%v) error = %v, wantErr %v", tc.argv, err, tc.wantErr)
			}
		})
	}
}

func TestCommandFetch(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	cmd, err := NewCommand([]string{"sh", "-c", "printf '%s|%s' {dest} {path}"}, time.Second, nil)
	if err != nil {
		t.Fatalf("NewCommand() error = %v", err)
	}
	got, err := cmd.Fetch(context.Background(), Ref{DestHash: testHash, Path: "index.rss"})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if want := testHash + "|index.rss"; string(got) != want {
		t.Errorf("Fetch() = %q, want %q", got, want)
	}
}

func TestCommandFetchClassifiesExitCodes(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	cases := []struct {
		name      string
		script    string
		wantKind  Kind
		retryable bool
	}{
		{"not found", "echo 'no such file: {path}' >&2; exit 2", KindNotFound, false},
		{"link down", "exit 3", KindLinkDown, true},
		{"unknown failure", "exit 1", KindLinkDown, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, err := NewCommand([]string{"sh", "-c", tc.script + " # {dest} {path}"}, time.Second, nil)
			if err != nil {
				t.Fatalf("NewCommand() error = %v", err)
			}
			_, err = cmd.Fetch(context.Background(), Ref{DestHash: testHash, Path: "x.mp3"})
			var fetchErr *Error
			if !errors.As(err, &fetchErr) {
				t.Fatalf("Fetch() error = %v, want *Error", err)
			}
			if fetchErr.Kind != tc.wantKind {
				t.Errorf("Kind = %v, want %v", fetchErr.Kind, tc.wantKind)
			}
			if fetchErr.Retryable() != tc.retryable {
				t.Errorf("Retryable() = %v, want %v", fetchErr.Retryable(), tc.retryable)
			}
		})
	}
}

func TestCommandFetchTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	cmd, err := NewCommand([]string{"sh", "-c", "sleep 5 # {dest} {path}"}, 50*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewCommand() error = %v", err)
	}
	_, err = cmd.Fetch(context.Background(), Ref{DestHash: testHash, Path: "x.mp3"})
	var fetchErr *Error
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Fetch() error = %v, want *Error", err)
	}
	if fetchErr.Kind != KindTimeout {
		t.Errorf("Kind = %v, want KindTimeout", fetchErr.Kind)
	}
	if !fetchErr.Retryable() {
		t.Error("timeouts must be retryable")
	}
}

func TestDirFetch(t *testing.T) {
	root := t.TempDir()
	showDir := filepath.Join(root, testHash)
	if err := os.MkdirAll(showDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(showDir, "index.rss"), []byte("<rss/>"), 0o644); err != nil {
		t.Fatal(err)
	}

	dir, err := NewDir(root)
	if err != nil {
		t.Fatalf("NewDir() error = %v", err)
	}

	got, err := dir.Fetch(context.Background(), Ref{DestHash: testHash, Path: "index.rss"})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(got) != "<rss/>" {
		t.Errorf("Fetch() = %q", got)
	}

	_, err = dir.Fetch(context.Background(), Ref{DestHash: testHash, Path: "missing.mp3"})
	var fetchErr *Error
	if !errors.As(err, &fetchErr) || fetchErr.Kind != KindNotFound {
		t.Errorf("Fetch() missing file error = %v, want KindNotFound", err)
	}

	if _, err = dir.Fetch(context.Background(), Ref{DestHash: testHash, Path: "../escape"}); err == nil {
		t.Error("Fetch() with traversal path should fail")
	}
}

func TestDirRequiresDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewDir(file); err == nil {
		t.Error("NewDir() on a file should fail")
	}
	if _, err := NewDir(filepath.Join(file, "missing")); err == nil {
		t.Error("NewDir() on a missing path should fail")
	}
}
