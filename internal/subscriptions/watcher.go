package subscriptions

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"nomadcastd/internal/logging"
)

const debounceDelay = 500 * time.Millisecond

// Watch invokes onChange after the subscription file is written, until
// ctx is canceled. It watches the parent directory because editors
// replace the file by rename, which drops a watch on the file itself.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func()) error {
	if logger == nil {
		logger = logging.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(path)
	logger.Info("watching subscriptions", logging.String("path", target))

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(debounceDelay)
			} else {
				debounce.Stop()
				debounce.Reset(debounceDelay)
			}
			fire = debounce.C
		case <-fire:
			fire = nil
			logger.Info("subscriptions changed, reloading")
			onChange()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", logging.Error(err))
		}
	}
}
