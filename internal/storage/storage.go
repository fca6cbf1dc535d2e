package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"nomadcastd/internal/locator"
)

const (
	publisherRSSName = "publisher_rss.xml"
	clientRSSName    = "client_rss.xml"
	episodesDirName  = "episodes"
	tmpDirName       = "tmp"
)

// Layout holds the resolved paths for one show's cache directory.
type Layout struct {
	ShowDir      string
	PublisherRSS string
	ClientRSS    string
	EpisodesDir  string
	TmpDir       string
}

// LayoutFor derives the show layout from the storage root and the
// locator. Only the destination hash participates in the path; the show
// name may contain characters unfit for filesystems.
func LayoutFor(root string, loc locator.Locator) Layout {
	showDir := filepath.Join(root, "shows", loc.Hash)
	return Layout{
		ShowDir:      showDir,
		PublisherRSS: filepath.Join(showDir, publisherRSSName),
		ClientRSS:    filepath.Join(showDir, clientRSSName),
		EpisodesDir:  filepath.Join(showDir, episodesDirName),
		TmpDir:       filepath.Join(showDir, tmpDirName),
	}
}

// EpisodePath returns the blob path for a cached episode filename.
func (l Layout) EpisodePath(filename string) string {
	return filepath.Join(l.EpisodesDir, filename)
}

// Ensure creates the show directory tree.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.ShowDir, l.EpisodesDir, l.TmpDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure show directory: %w", err)
		}
	}
	return nil
}

// WriteAtomic writes data to path via a temp file in the same directory
// followed by a rename. Readers observe either the previous contents or
// the new contents, never a partial write.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// ReadIfExists returns the file contents and whether the file existed.
func ReadIfExists(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// RemoveAll deletes a directory tree, treating a missing tree as
// success.
func RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// Remove deletes path, treating a missing file as success.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
