package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"nomadcastd/internal/cache"
	"nomadcastd/internal/feed"
	"nomadcastd/internal/fetcher"
	"nomadcastd/internal/logging"
)

// Key identifies one unit of transport work. An empty Filename means
// the show's feed; otherwise one episode file.
type Key struct {
	Hash     string
	Filename string
}

func (k Key) String() string {
	if k.Filename == "" {
		return k.Hash + "/feed"
	}
	return k.Hash + "/" + k.Filename
}

type task struct {
	key       Key
	attempts  int
	notBefore time.Time
	inflight  bool
}

// Options configures a Scheduler.
type Options struct {
	Cache   *cache.Manager
	Fetcher fetcher.Fetcher
	Logger  *slog.Logger

	// PollInterval is the base feed refresh cadence; Jitter is added on
	// top of it, uniformly.
	PollInterval time.Duration
	Jitter       time.Duration
	// RetryBackoff doubles per attempt and is capped at MaxBackoff.
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
	// MaxAttempts bounds retries per task; once exhausted the task is
	// dropped until something re-requests it.
	MaxAttempts int
	// Concurrency bounds simultaneous transfers across all shows.
	Concurrency int
	// TickInterval is how often the run loop scans for due work.
	TickInterval time.Duration
}

// Scheduler owns the work queue and the workers draining it.
type Scheduler struct {
	opts   Options
	logger *slog.Logger
	rng    *rand.Rand

	mu            sync.Mutex
	tasks         map[Key]*task
	inflightShows map[string]bool
	inflightCount int
	nextRefresh   map[string]time.Time
}

// New builds a Scheduler. Cache and Fetcher are required.
func New(opts Options) (*Scheduler, error) {
	if opts.Cache == nil {
		return nil, errors.New("cache manager is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if opts.PollInterval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}
	if opts.RetryBackoff <= 0 || opts.MaxBackoff < opts.RetryBackoff {
		return nil, errors.New("retry backoff must be positive and no greater than max backoff")
	}
	if opts.MaxAttempts <= 0 {
		return nil, errors.New("max attempts must be positive")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{
		opts:          opts,
		logger:        logger,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		tasks:         make(map[Key]*task),
		inflightShows: make(map[string]bool),
		nextRefresh:   make(map[string]time.Time),
	}, nil
}

// RequestRefresh asks for a show's feed to be fetched as soon as a
// worker is free. Calling it repeatedly while a task is queued or in
// flight is a no-op.
func (s *Scheduler) RequestRefresh(hash string) {
	s.enqueue(Key{Hash: hash}, time.Now())
}

// RequestEpisode asks for one episode's media to be fetched.
func (s *Scheduler) RequestEpisode(hash, filename string) {
	s.enqueue(Key{Hash: hash, Filename: filename}, time.Now())
}

// Forget drops any queued work and refresh schedule for a show. An
// in-flight transfer finishes on its own; its commit will fail against
// the now-unregistered show and be dropped.
func (s *Scheduler) Forget(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.tasks {
		if key.Hash == hash && !t.inflight {
			delete(s.tasks, key)
		}
	}
	delete(s.nextRefresh, hash)
}

// QueueDepth reports queued plus in-flight tasks.
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Run drains the queue until ctx is canceled. It owns all worker
// goroutines; when it returns, none are left.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.opts.Concurrency)
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case now := <-ticker.C:
			s.scheduleDueRefreshes(now)
			for _, t := range s.collectRunnable(now) {
				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					s.release(t, false, 0)
					wg.Wait()
					return ctx.Err()
				}
				wg.Add(1)
				go func(t *task) {
					defer wg.Done()
					defer func() { <-sem }()
					s.execute(ctx, t)
				}(t)
			}
		}
	}
}

func (s *Scheduler) enqueue(key Key, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.tasks[key]; ok {
		// Collapse into the queued task, but let an explicit request
		// override a backoff delay.
		if !existing.inflight && existing.notBefore.After(now) {
			existing.notBefore = now
		}
		return
	}
	s.tasks[key] = &task{key: key, notBefore: now}
	s.logger.Debug("task queued", logging.String("task", key.String()))
}

// scheduleDueRefreshes queues feed refreshes for shows whose jittered
// poll interval has elapsed.
func (s *Scheduler) scheduleDueRefreshes(now time.Time) {
	for _, hash := range s.opts.Cache.Hashes() {
		s.mu.Lock()
		due, known := s.nextRefresh[hash]
		s.mu.Unlock()
		if known && now.Before(due) {
			continue
		}
		s.enqueue(Key{Hash: hash}, now)
		interval := s.refreshInterval()
		s.mu.Lock()
		// Pushed out now so a slow fetch does not queue a second
		// refresh every tick; success reschedules on commit.
		s.nextRefresh[hash] = now.Add(interval)
		s.mu.Unlock()
	}
}

// collectRunnable claims every task that is due, keeping the one
// transfer per show invariant. Claimed tasks must be passed to execute
// or released.
func (s *Scheduler) collectRunnable(now time.Time) []*task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*task
	for _, t := range s.tasks {
		if t.inflight || now.Before(t.notBefore) || s.inflightShows[t.key.Hash] {
			continue
		}
		due = append(due, t)
	}
	// Oldest first, feeds before episodes of the same show.
	sort.Slice(due, func(i, j int) bool {
		if !due[i].notBefore.Equal(due[j].notBefore) {
			return due[i].notBefore.Before(due[j].notBefore)
		}
		return due[i].key.String() < due[j].key.String()
	})

	var claimed []*task
	for _, t := range due {
		if s.inflightCount >= s.opts.Concurrency {
			break
		}
		if s.inflightShows[t.key.Hash] {
			continue
		}
		t.inflight = true
		s.inflightShows[t.key.Hash] = true
		s.inflightCount++
		claimed = append(claimed, t)
	}
	return claimed
}

// release returns a claimed task to the queue (retry) or drops it.
func (s *Scheduler) release(t *task, retry bool, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.inflight = false
	delete(s.inflightShows, t.key.Hash)
	s.inflightCount--
	if retry {
		t.notBefore = time.Now().Add(delay)
		return
	}
	delete(s.tasks, t.key)
}

func (s *Scheduler) execute(ctx context.Context, t *task) {
	var err error
	if t.key.Filename == "" {
		err = s.fetchFeed(ctx, t.key.Hash)
	} else {
		err = s.fetchEpisode(ctx, t.key.Hash, t.key.Filename)
	}
	if err == nil {
		s.release(t, false, 0)
		return
	}
	if errors.Is(err, context.Canceled) {
		// Shutdown, not failure; leave the task queued for next start.
		s.release(t, true, 0)
		return
	}

	t.attempts++
	if s.retryable(err) && t.attempts < s.opts.MaxAttempts {
		delay := Backoff(s.opts.RetryBackoff, s.opts.MaxBackoff, t.attempts)
		s.logger.Warn("task failed, will retry",
			logging.String("task", t.key.String()),
			logging.Int("attempt", t.attempts),
			logging.Duration("retry_in", delay),
			logging.Error(err))
		s.release(t, true, delay)
		return
	}

	s.logger.Error("task abandoned",
		logging.String("task", t.key.String()),
		logging.Int("attempts", t.attempts),
		logging.Error(err))
	s.opts.Cache.RecordFailure(ctx, t.key.Hash, err)
	s.release(t, false, 0)
}

func (s *Scheduler) fetchFeed(ctx context.Context, hash string) error {
	ref, err := s.opts.Cache.ResolveFeedRef(hash)
	if err != nil {
		return err
	}
	raw, err := s.opts.Fetcher.Fetch(ctx, ref)
	if err != nil {
		return err
	}
	plan, err := s.opts.Cache.CommitFeed(ctx, hash, raw)
	if err != nil {
		return err
	}
	now := time.Now()
	interval := s.refreshInterval()
	s.mu.Lock()
	s.nextRefresh[hash] = now.Add(interval)
	s.mu.Unlock()
	for _, filename := range plan {
		s.enqueue(Key{Hash: hash, Filename: filename}, now)
	}
	return nil
}

func (s *Scheduler) fetchEpisode(ctx context.Context, hash, filename string) error {
	ref, err := s.opts.Cache.ResolveEpisodeRef(hash, filename)
	if err != nil {
		return err
	}
	data, err := s.opts.Fetcher.Fetch(ctx, ref)
	if err != nil {
		return err
	}
	return s.opts.Cache.CommitEpisode(ctx, hash, filename, data)
}

// retryable decides whether a later attempt could succeed. Malformed
// feeds and unknown files will not self-heal; timeouts and link
// failures might.
func (s *Scheduler) retryable(err error) bool {
	if feed.IsParseError(err) {
		return false
	}
	var fetchErr *fetcher.Error
	if errors.As(err, &fetchErr) {
		return fetchErr.Retryable()
	}
	if errors.Is(err, cache.ErrUnknownShow) || errors.Is(err, cache.ErrNoSuchEpisode) {
		return false
	}
	return true
}

func (s *Scheduler) refreshInterval() time.Duration {
	interval := s.opts.PollInterval
	if s.opts.Jitter > 0 {
		s.mu.Lock()
		jitter := time.Duration(s.rng.Int63n(int64(s.opts.Jitter)))
		s.mu.Unlock()
		interval += jitter
	}
	return interval
}

// Backoff returns the delay before retry number attempt (1-based):
// base doubled per attempt, capped at max.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
