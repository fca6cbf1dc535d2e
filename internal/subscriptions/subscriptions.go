package subscriptions

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"nomadcastd/internal/locator"
	"nomadcastd/internal/logging"
)

// Entry is one subscribed show with optional per-show overrides.
type Entry struct {
	Locator  locator.Locator
	Episodes int
	MaxBytes int64
}

type fileFormat struct {
	Subscriptions []entryFormat `yaml:"subscriptions"`
}

type entryFormat struct {
	Locator  string `yaml:"locator"`
	Episodes int    `yaml:"episodes,omitempty"`
	MaxBytes int64  `yaml:"max_bytes,omitempty"`
}

// Load reads the subscription file. A missing file is an empty
// subscription list, not an error; a daemon with nothing to mirror is
// still a running daemon. Invalid entries are logged and skipped so
// one bad line never takes the remaining shows down with it.
func Load(path string, logger *slog.Logger) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read subscriptions: %w", err)
	}
	return parse(data, logger)
}

func parse(data []byte, logger *slog.Logger) ([]Entry, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	var file fileFormat
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse subscriptions: %w", err)
	}

	entries := make([]Entry, 0, len(file.Subscriptions))
	seen := make(map[string]int)
	for i, raw := range file.Subscriptions {
		if err := validateEntry(raw, seen); err != nil {
			logger.Warn("skipping invalid subscription",
				logging.Int("entry", i+1),
				logging.String("locator", raw.Locator),
				logging.Error(err))
			continue
		}
		loc, _ := locator.Parse(raw.Locator)
		seen[loc.Hash] = i + 1
		entries = append(entries, Entry{
			Locator:  loc,
			Episodes: raw.Episodes,
			MaxBytes: raw.MaxBytes,
		})
	}
	return entries, nil
}

func validateEntry(raw entryFormat, seen map[string]int) error {
	loc, err := locator.Parse(raw.Locator)
	if err != nil {
		return err
	}
	if prev, dup := seen[loc.Hash]; dup {
		return fmt.Errorf("duplicates show %s from entry %d", loc.Hash, prev)
	}
	if raw.Episodes < 0 {
		return fmt.Errorf("episodes must not be negative")
	}
	if raw.MaxBytes < 0 {
		return fmt.Errorf("max_bytes must not be negative")
	}
	return nil
}

// Save writes the subscription list, for `nomadcastd subscribe` style
// tooling. Entries keep their order.
func Save(path string, entries []Entry) error {
	file := fileFormat{Subscriptions: make([]entryFormat, len(entries))}
	for i, entry := range entries {
		file.Subscriptions[i] = entryFormat{
			Locator:  entry.Locator.URI(),
			Episodes: entry.Episodes,
			MaxBytes: entry.MaxBytes,
		}
	}
	data, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("encode subscriptions: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write subscriptions: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace subscriptions: %w", err)
	}
	return nil
}
