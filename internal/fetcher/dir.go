package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Dir serves fetches from a local directory laid out as
// <root>/<dest hash>/<path>. It exists for development and tests, where
// no transport stack is running.
type Dir struct {
	root string
}

func NewDir(root string) (*Dir, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("local fetch dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local fetch dir %s is not a directory", root)
	}
	return &Dir{root: root}, nil
}

func (d *Dir) Fetch(ctx context.Context, ref Ref) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.Contains(ref.Path, "..") {
		return nil, &Error{Kind: KindNotFound, Ref: ref, Err: errors.New("path escapes root")}
	}
	data, err := os.ReadFile(filepath.Join(d.root, ref.DestHash, filepath.FromSlash(ref.Path)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &Error{Kind: KindNotFound, Ref: ref, Err: err}
	}
	if err != nil {
		return nil, &Error{Kind: KindLinkDown, Ref: ref, Err: err}
	}
	return data, nil
}
