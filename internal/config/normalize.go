package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = defaultStoragePath
	}
	if c.Storage.Path, err = expandPath(c.Storage.Path); err != nil {
		return fmt.Errorf("storage.path: %w", err)
	}
	if strings.TrimSpace(c.Subscriptions.Path) == "" {
		c.Subscriptions.Path = defaultSubscriptionsPath
	}
	if c.Subscriptions.Path, err = expandPath(c.Subscriptions.Path); err != nil {
		return fmt.Errorf("subscriptions.path: %w", err)
	}
	if c.Transport.LocalDir != "" {
		if c.Transport.LocalDir, err = expandPath(c.Transport.LocalDir); err != nil {
			return fmt.Errorf("transport.local_dir: %w", err)
		}
	}
	if c.Logging.Dir != "" {
		if c.Logging.Dir, err = expandPath(c.Logging.Dir); err != nil {
			return fmt.Errorf("logging.dir: %w", err)
		}
	}

	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultBind
	}
	c.Server.PublicHost = strings.TrimSpace(c.Server.PublicHost)

	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	return nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
