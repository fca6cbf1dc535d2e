package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Server contains the HTTP bind address and URL rewriting behavior.
type Server struct {
	Bind string `toml:"bind"`
	// PublicHost overrides the host used in rewritten enclosure URLs.
	// When empty, the listen host is used, with 0.0.0.0 mapped to
	// 127.0.0.1 so feeds never advertise a wildcard address.
	PublicHost string `toml:"public_host"`
}

// Storage contains the cache root location.
type Storage struct {
	Path string `toml:"path"`
}

// Cache contains retention defaults applied to every show unless a
// subscription entry overrides them.
type Cache struct {
	EpisodesPerShow int   `toml:"episodes_per_show"`
	MaxBytesPerShow int64 `toml:"max_bytes_per_show"`
	// StrictCachedEnclosures limits rewriting to enclosures whose
	// episode is already cached; others keep their publisher URL.
	StrictCachedEnclosures bool `toml:"strict_cached_enclosures"`
}

// Refresh contains scheduler pacing and retry behavior.
type Refresh struct {
	RSSPollSeconds      int `toml:"rss_poll_seconds"`
	JitterSeconds       int `toml:"jitter_seconds"`
	RetryBackoffSeconds int `toml:"retry_backoff_seconds"`
	MaxBackoffSeconds   int `toml:"max_backoff_seconds"`
	MaxAttempts         int `toml:"max_attempts"`
	FetchTimeoutSeconds int `toml:"fetch_timeout_seconds"`
	FetchConcurrency    int `toml:"fetch_concurrency"`
	TickSeconds         int `toml:"tick_seconds"`
}

// Transport selects the fetcher binding for the mesh transport.
type Transport struct {
	// FetchCommand is the external transport client invoked per fetch.
	// The placeholders {dest} and {path} are substituted; the payload is
	// read from stdout. When empty, LocalDir must be set.
	FetchCommand []string `toml:"fetch_command"`
	// LocalDir serves objects from <dir>/<dest_hash>/<path> instead of a
	// real transport. Intended for development and tests.
	LocalDir string `toml:"local_dir"`
}

// Subscriptions locates the subscription file.
type Subscriptions struct {
	Path  string `toml:"path"`
	Watch bool   `toml:"watch"`
}

// Logging contains log output settings.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Dir    string `toml:"dir"`
}

// Config encapsulates all configuration values for the daemon.
type Config struct {
	Server        Server        `toml:"server"`
	Storage       Storage       `toml:"storage"`
	Cache         Cache         `toml:"cache"`
	Refresh       Refresh       `toml:"refresh"`
	Transport     Transport     `toml:"transport"`
	Subscriptions Subscriptions `toml:"subscriptions"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/nomadcast/config.toml")
}

// SampleConfig returns the embedded sample configuration text.
func SampleConfig() string {
	return sampleConfig
}

// Load locates, parses, and validates a configuration file. The
// returned config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	projectPath, err := filepath.Abs("nomadcast.toml")
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// RSSPollInterval returns the minimum interval between periodic feed
// refreshes for a show.
func (c *Config) RSSPollInterval() time.Duration {
	return time.Duration(c.Refresh.RSSPollSeconds) * time.Second
}

// RefreshJitter returns the maximum jitter added to periodic refreshes.
func (c *Config) RefreshJitter() time.Duration {
	return time.Duration(c.Refresh.JitterSeconds) * time.Second
}

// RetryBackoff returns the base retry delay.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Refresh.RetryBackoffSeconds) * time.Second
}

// MaxBackoff returns the retry delay ceiling.
func (c *Config) MaxBackoff() time.Duration {
	return time.Duration(c.Refresh.MaxBackoffSeconds) * time.Second
}

// FetchTimeout returns the per-attempt fetch deadline.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Refresh.FetchTimeoutSeconds) * time.Second
}

// TickInterval returns the scheduler polling interval.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Refresh.TickSeconds) * time.Second
}

// BaseURL returns the URL prefix written into rewritten enclosure
// URLs. public_host wins when set; otherwise the bind address is used,
// with wildcard hosts replaced by the loopback address.
func (c *Config) BaseURL() string {
	if c.Server.PublicHost != "" {
		return "http://" + c.Server.PublicHost
	}
	host, port, err := net.SplitHostPort(c.Server.Bind)
	if err != nil {
		return "http://" + c.Server.Bind
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// EnsureDirectories creates the storage root and log directory.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Storage.Path}
	if c.Logging.Dir != "" {
		dirs = append(dirs, c.Logging.Dir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
