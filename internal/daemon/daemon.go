package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"nomadcastd/internal/cache"
	"nomadcastd/internal/config"
	"nomadcastd/internal/fetcher"
	"nomadcastd/internal/logging"
	"nomadcastd/internal/scheduler"
	"nomadcastd/internal/store"
	"nomadcastd/internal/subscriptions"
)

// Daemon owns every long-lived component and enforces single-instance
// execution over the storage root.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	store     *store.Store
	cache     *cache.Manager
	fetcher   fetcher.Fetcher
	scheduler *scheduler.Scheduler

	lockPath string
	lock     *flock.Flock
}

// New constructs a daemon and its dependency graph from configuration.
// Nothing is started and no lock is taken yet.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}

	mgr, err := cache.NewManager(cache.Options{
		Root:             cfg.Storage.Path,
		Store:            st,
		BaseURL:          cfg.BaseURL(),
		EpisodesPerShow:  cfg.Cache.EpisodesPerShow,
		MaxBytesPerShow:  cfg.Cache.MaxBytesPerShow,
		StrictCachedOnly: cfg.Cache.StrictCachedEnclosures,
		Logger:           logging.NewComponentLogger(logger, "cache"),
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	ftch, err := newFetcher(cfg, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	sched, err := scheduler.New(scheduler.Options{
		Cache:        mgr,
		Fetcher:      ftch,
		Logger:       logging.NewComponentLogger(logger, "scheduler"),
		PollInterval: cfg.RSSPollInterval(),
		Jitter:       cfg.RefreshJitter(),
		RetryBackoff: cfg.RetryBackoff(),
		MaxBackoff:   cfg.MaxBackoff(),
		MaxAttempts:  cfg.Refresh.MaxAttempts,
		Concurrency:  cfg.Refresh.FetchConcurrency,
		TickInterval: cfg.TickInterval(),
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	lockPath := filepath.Join(cfg.Storage.Path, "nomadcastd.lock")
	return &Daemon{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		cache:     mgr,
		fetcher:   ftch,
		scheduler: sched,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

func newFetcher(cfg *config.Config, logger *slog.Logger) (fetcher.Fetcher, error) {
	if len(cfg.Transport.FetchCommand) > 0 {
		return fetcher.NewCommand(cfg.Transport.FetchCommand, cfg.FetchTimeout(),
			logging.NewComponentLogger(logger, "fetcher"))
	}
	return fetcher.NewDir(cfg.Transport.LocalDir)
}

// Run blocks until ctx is canceled or a component fails. It owns the
// scheduler loop, the HTTP server, and the subscription watcher.
func (d *Daemon) Run(ctx context.Context) error {
	locked, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another nomadcastd instance holds %s", d.lockPath)
	}
	defer func() { _ = d.lock.Unlock() }()

	if err := d.Reload(ctx); err != nil {
		return err
	}

	srv, err := newServer(d, logging.NewComponentLogger(d.logger, "http"))
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := d.scheduler.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		return srv.run(ctx)
	})
	if d.cfg.Subscriptions.Watch {
		group.Go(func() error {
			err := subscriptions.Watch(ctx, d.cfg.Subscriptions.Path,
				logging.NewComponentLogger(d.logger, "subscriptions"),
				func() {
					if err := d.Reload(ctx); err != nil {
						d.logger.Error("reload failed", logging.Error(err))
					}
				})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	d.logger.Info("daemon running",
		logging.String("bind", d.cfg.Server.Bind),
		logging.String("storage", d.cfg.Storage.Path))
	err = group.Wait()
	if closeErr := d.store.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// Reload re-reads the subscription file and reconciles the cache and
// scheduler with it: new shows are registered and refreshed, removed
// shows are forgotten, and every current show gets a refresh queued.
func (d *Daemon) Reload(ctx context.Context) error {
	entries, err := subscriptions.Load(d.cfg.Subscriptions.Path,
		logging.NewComponentLogger(d.logger, "subscriptions"))
	if err != nil {
		return err
	}

	current := make(map[string]bool, len(entries))
	for _, entry := range entries {
		current[entry.Locator.Hash] = true
		err := d.cache.EnsureShow(ctx, entry.Locator, cache.ShowOptions{
			Episodes: entry.Episodes,
			MaxBytes: entry.MaxBytes,
		})
		if err != nil {
			return err
		}
	}
	for _, hash := range d.cache.Hashes() {
		if current[hash] {
			continue
		}
		d.scheduler.Forget(hash)
		if err := d.cache.ForgetShow(ctx, hash); err != nil {
			return err
		}
	}
	for hash := range current {
		d.scheduler.RequestRefresh(hash)
	}

	d.logger.Info("subscriptions applied", logging.Int("shows", len(entries)))
	return nil
}

// Status summarizes the daemon for the API and CLI.
type Status struct {
	Shows      []cache.ShowStatus `json:"shows"`
	QueueDepth int                `json:"queue_depth"`
	Storage    string             `json:"storage"`
}

func (d *Daemon) status(ctx context.Context) (Status, error) {
	shows, err := d.cache.Status(ctx)
	if err != nil {
		return Status{}, err
	}
	if shows == nil {
		shows = []cache.ShowStatus{}
	}
	return Status{
		Shows:      shows,
		QueueDepth: d.scheduler.QueueDepth(),
		Storage:    d.cfg.Storage.Path,
	}, nil
}
