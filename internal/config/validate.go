package config

import (
	"errors"
	"fmt"
	"net"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateRefresh(); err != nil {
		return err
	}
	if err := c.validateTransport(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateServer() error {
	if _, _, err := net.SplitHostPort(c.Server.Bind); err != nil {
		return fmt.Errorf("server.bind must be host:port: %w", err)
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.EpisodesPerShow < 1 {
		return errors.New("cache.episodes_per_show must be at least 1")
	}
	if c.Cache.MaxBytesPerShow < 0 {
		return errors.New("cache.max_bytes_per_show must not be negative")
	}
	return nil
}

func (c *Config) validateRefresh() error {
	if c.Refresh.RSSPollSeconds < 1 {
		return errors.New("refresh.rss_poll_seconds must be at least 1")
	}
	if c.Refresh.RetryBackoffSeconds < 1 {
		return errors.New("refresh.retry_backoff_seconds must be at least 1")
	}
	if c.Refresh.MaxBackoffSeconds < c.Refresh.RetryBackoffSeconds {
		return errors.New("refresh.max_backoff_seconds must not be below retry_backoff_seconds")
	}
	if c.Refresh.MaxAttempts < 1 {
		return errors.New("refresh.max_attempts must be at least 1")
	}
	if c.Refresh.FetchTimeoutSeconds < 1 {
		return errors.New("refresh.fetch_timeout_seconds must be at least 1")
	}
	if c.Refresh.FetchConcurrency < 1 {
		return errors.New("refresh.fetch_concurrency must be at least 1")
	}
	if c.Refresh.TickSeconds < 1 {
		return errors.New("refresh.tick_seconds must be at least 1")
	}
	if c.Refresh.JitterSeconds < 0 {
		return errors.New("refresh.jitter_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateTransport() error {
	if len(c.Transport.FetchCommand) == 0 && c.Transport.LocalDir == "" {
		return errors.New("transport: set fetch_command or local_dir")
	}
	return nil
}
