package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"nomadcastd/internal/feed"
	"nomadcastd/internal/fetcher"
	"nomadcastd/internal/locator"
	"nomadcastd/internal/logging"
	"nomadcastd/internal/storage"
	"nomadcastd/internal/store"
)

var (
	// ErrUnknownShow means the hash is not a current subscription.
	ErrUnknownShow = errors.New("unknown show")
	// ErrNotCached means the content is expected but has not arrived
	// from the transport yet. HTTP maps this to 503 with Retry-After.
	ErrNotCached = errors.New("not cached yet")
	// ErrNoSuchEpisode means the filename is not in the show's current
	// retention window. HTTP maps this to 404.
	ErrNoSuchEpisode = errors.New("no such episode")
	// ErrBadFilename means the filename failed validation. HTTP maps
	// this to 400.
	ErrBadFilename = errors.New("bad filename")
)

// Options configures a Manager.
type Options struct {
	// Root is the storage root; each show lives under Root/shows/<hash>.
	Root string
	// Store persists show and episode metadata.
	Store *store.Store
	// BaseURL is the externally reachable prefix clients use, e.g.
	// "http://127.0.0.1:5050". Rewritten enclosure URLs start with it.
	BaseURL string
	// EpisodesPerShow is the default retention window.
	EpisodesPerShow int
	// MaxBytesPerShow bounds a show's episode bytes on disk. Zero means
	// unbounded.
	MaxBytesPerShow int64
	// StrictCachedOnly leaves enclosure URLs pointing at the publisher
	// until the episode bytes are actually on disk.
	StrictCachedOnly bool

	Logger *slog.Logger
}

// ShowOptions are per-subscription overrides. Zero values fall back to
// the Manager defaults.
type ShowOptions struct {
	Episodes int
	MaxBytes int64
}

// ShowStatus is a read-only snapshot for status reporting.
type ShowStatus struct {
	Locator         locator.Locator `json:"locator"`
	Title           string          `json:"title,omitempty"`
	LastRefreshedAt *time.Time      `json:"last_refreshed_at,omitempty"`
	LastError       string          `json:"last_error,omitempty"`
	CachedEpisodes  int             `json:"cached_episodes"`
	PendingEpisodes int             `json:"pending_episodes"`
	CachedBytes     int64           `json:"cached_bytes"`
}

type candidate struct {
	sourceURL   string
	publishedAt *time.Time
	order       int
}

type showState struct {
	mu         sync.Mutex
	loc        locator.Locator
	opts       ShowOptions
	layout     storage.Layout
	candidates map[string]candidate
}

// Manager coordinates all cache reads and writes.
type Manager struct {
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	shows map[string]*showState
}

// NewManager builds a Manager. The store must already be open.
func NewManager(opts Options) (*Manager, error) {
	if opts.Root == "" {
		return nil, errors.New("cache root is required")
	}
	if opts.Store == nil {
		return nil, errors.New("metadata store is required")
	}
	if opts.EpisodesPerShow <= 0 {
		return nil, errors.New("episodes per show must be positive")
	}
	if opts.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		opts:   opts,
		logger: logger,
		shows:  make(map[string]*showState),
	}, nil
}

// EnsureShow registers a subscription, creates its directories, and
// rebuilds the retention window from the publisher feed already on disk
// so restarts do not re-fetch what is cached.
func (m *Manager) EnsureShow(ctx context.Context, loc locator.Locator, opts ShowOptions) error {
	layout := storage.LayoutFor(m.opts.Root, loc)
	if err := layout.Ensure(); err != nil {
		return fmt.Errorf("ensure show %s: %w", loc, err)
	}
	if err := m.opts.Store.UpsertShow(ctx, loc.Hash, loc.Name); err != nil {
		return err
	}

	state := &showState{
		loc:        loc,
		opts:       opts,
		layout:     layout,
		candidates: make(map[string]candidate),
	}
	if raw, exists, err := storage.ReadIfExists(layout.PublisherRSS); err != nil {
		return fmt.Errorf("restore show %s: %w", loc, err)
	} else if exists {
		parsed, err := feed.Parse(raw)
		if err != nil {
			// A corrupt cached feed is not fatal; the next refresh
			// replaces it.
			m.logger.Warn("cached publisher feed unreadable",
				logging.String("show", loc.Canonical()), logging.Error(err))
		} else {
			state.candidates = m.selectCandidates(loc, parsed, opts)
		}
	}

	m.mu.Lock()
	m.shows[loc.Hash] = state
	m.mu.Unlock()
	m.logger.Info("show registered",
		logging.String("show", loc.Canonical()),
		logging.Int("candidates", len(state.candidates)))
	return nil
}

// ForgetShow drops a subscription and everything cached for it.
func (m *Manager) ForgetShow(ctx context.Context, hash string) error {
	m.mu.Lock()
	state, ok := m.shows[hash]
	delete(m.shows, hash)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("forget %s: %w", hash, ErrUnknownShow)
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if err := storage.RemoveAll(state.layout.ShowDir); err != nil {
		return fmt.Errorf("forget %s: %w", hash, err)
	}
	if err := m.opts.Store.DeleteShow(ctx, hash); err != nil {
		return err
	}
	m.logger.Info("show forgotten", logging.String("show", state.loc.Canonical()))
	return nil
}

// Hashes returns the hashes of every registered show.
func (m *Manager) Hashes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	hashes := make([]string, 0, len(m.shows))
	for hash := range m.shows {
		hashes = append(hashes, hash)
	}
	sort.Strings(hashes)
	return hashes
}

// GetFeed returns the rewritten client feed for a show. It never waits
// on the transport: a registered show with nothing on disk yet returns
// ErrNotCached.
func (m *Manager) GetFeed(hash string) ([]byte, error) {
	state, err := m.lookup(hash)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	raw, exists, err := storage.ReadIfExists(state.layout.ClientRSS)
	if err != nil {
		return nil, fmt.Errorf("read client feed %s: %w", hash, err)
	}
	if !exists {
		return nil, fmt.Errorf("feed %s: %w", hash, ErrNotCached)
	}
	return raw, nil
}

// GetEpisode returns the on-disk path of a cached episode. The error
// distinguishes "still fetching" (ErrNotCached) from "never will be"
// (ErrNoSuchEpisode) so the HTTP layer can answer 503 vs 404.
func (m *Manager) GetEpisode(hash, filename string) (string, error) {
	if !locator.ValidFilename(filename) {
		return "", fmt.Errorf("episode %q: %w", filename, ErrBadFilename)
	}
	state, err := m.lookup(hash)
	if err != nil {
		return "", err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	path := state.layout.EpisodePath(filename)
	if _, statErr := os.Stat(path); statErr == nil {
		return path, nil
	}
	if _, ok := state.candidates[filename]; ok {
		return "", fmt.Errorf("episode %s/%s: %w", hash, filename, ErrNotCached)
	}
	return "", fmt.Errorf("episode %s/%s: %w", hash, filename, ErrNoSuchEpisode)
}

// ResolveFeedRef maps a show to the transport location of its feed.
func (m *Manager) ResolveFeedRef(hash string) (fetcher.Ref, error) {
	state, err := m.lookup(hash)
	if err != nil {
		return fetcher.Ref{}, err
	}
	return fetcher.FeedRef(state.loc), nil
}

// ResolveEpisodeRef maps a retention-window episode to its transport
// location. Episodes outside the window resolve to ErrNoSuchEpisode.
func (m *Manager) ResolveEpisodeRef(hash, filename string) (fetcher.Ref, error) {
	state, err := m.lookup(hash)
	if err != nil {
		return fetcher.Ref{}, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	if _, ok := state.candidates[filename]; !ok {
		return fetcher.Ref{}, fmt.Errorf("episode %s/%s: %w", hash, filename, ErrNoSuchEpisode)
	}
	return fetcher.MediaRef(state.loc, filename), nil
}

// CommitFeed stores freshly fetched publisher RSS, regenerates the
// client feed, evicts episodes that fell out of retention, and returns
// the filenames that still need fetching, newest first. Malformed RSS
// fails with *feed.ParseError and leaves the previous feed serving.
func (m *Manager) CommitFeed(ctx context.Context, hash string, raw []byte) ([]string, error) {
	state, err := m.lookup(hash)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	parsed, err := feed.Parse(raw)
	if err != nil {
		return nil, err
	}
	candidates := m.selectCandidates(state.loc, parsed, state.opts)

	cached := make(map[string]bool, len(candidates))
	for filename := range candidates {
		if _, statErr := os.Stat(state.layout.EpisodePath(filename)); statErr == nil {
			cached[filename] = true
		}
	}

	rewritten, err := feed.Rewrite(raw, func(sourceURL string) (string, bool) {
		loc, filename, parseErr := locator.ParseMediaURL(sourceURL)
		if parseErr != nil || loc.Hash != state.loc.Hash {
			return "", false
		}
		if _, ok := candidates[filename]; !ok {
			return "", false
		}
		if m.opts.StrictCachedOnly && !cached[filename] {
			return "", false
		}
		return m.mediaURL(state.loc, filename), true
	})
	if err != nil {
		return nil, err
	}

	if err := storage.WriteAtomic(state.layout.PublisherRSS, raw); err != nil {
		return nil, fmt.Errorf("write publisher feed: %w", err)
	}
	if err := storage.WriteAtomic(state.layout.ClientRSS, rewritten); err != nil {
		return nil, fmt.Errorf("write client feed: %w", err)
	}
	if err := m.opts.Store.RecordRefresh(ctx, hash, parsed.Title, time.Now()); err != nil {
		return nil, err
	}
	state.candidates = candidates

	if err := m.evictOutOfWindow(ctx, state); err != nil {
		return nil, err
	}
	if err := m.evictOverBudget(ctx, state); err != nil {
		return nil, err
	}

	plan := planFetches(candidates, cached)
	m.logger.Info("feed committed",
		logging.String("show", state.loc.Canonical()),
		logging.Int("candidates", len(candidates)),
		logging.Int("to_fetch", len(plan)))
	return plan, nil
}

// CommitEpisode lands fetched media bytes for an episode in the current
// retention window.
func (m *Manager) CommitEpisode(ctx context.Context, hash, filename string, data []byte) error {
	state, err := m.lookup(hash)
	if err != nil {
		return err
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	cand, ok := state.candidates[filename]
	if !ok {
		return fmt.Errorf("episode %s/%s: %w", hash, filename, ErrNoSuchEpisode)
	}
	if err := storage.WriteAtomic(state.layout.EpisodePath(filename), data); err != nil {
		return fmt.Errorf("write episode: %w", err)
	}
	err = m.opts.Store.UpsertEpisode(ctx, store.Episode{
		ShowHash:    hash,
		Filename:    filename,
		SourceURL:   cand.sourceURL,
		SizeBytes:   int64(len(data)),
		PublishedAt: cand.publishedAt,
		FetchedAt:   time.Now(),
	})
	if err != nil {
		return err
	}
	if err := m.evictOverBudget(ctx, state); err != nil {
		return err
	}
	if m.opts.StrictCachedOnly {
		if err := m.regenerateClientFeed(state); err != nil {
			return err
		}
	}
	m.logger.Info("episode cached",
		logging.String("show", state.loc.Canonical()),
		logging.String("episode", filename),
		logging.Int("bytes", len(data)))
	return nil
}

// RecordFailure stores the latest refresh error for status reporting.
func (m *Manager) RecordFailure(ctx context.Context, hash string, cause error) {
	if err := m.opts.Store.RecordFailure(ctx, hash, cause.Error()); err != nil {
		m.logger.Warn("record failure", logging.String("show", hash), logging.Error(err))
	}
}

// Status summarizes every registered show.
func (m *Manager) Status(ctx context.Context) ([]ShowStatus, error) {
	m.mu.Lock()
	states := make([]*showState, 0, len(m.shows))
	for _, state := range m.shows {
		states = append(states, state)
	}
	m.mu.Unlock()
	sort.Slice(states, func(i, j int) bool { return states[i].loc.Canonical() < states[j].loc.Canonical() })

	statuses := make([]ShowStatus, 0, len(states))
	for _, state := range states {
		state.mu.Lock()
		status := ShowStatus{Locator: state.loc, PendingEpisodes: len(state.candidates)}
		row, err := m.opts.Store.GetShow(ctx, state.loc.Hash)
		if err == nil {
			status.Title = row.Title
			status.LastRefreshedAt = row.LastRefreshedAt
			status.LastError = row.LastError
		} else if !errors.Is(err, store.ErrNotFound) {
			state.mu.Unlock()
			return nil, err
		}
		episodes, err := m.opts.Store.ListEpisodes(ctx, state.loc.Hash)
		if err != nil {
			state.mu.Unlock()
			return nil, err
		}
		for _, ep := range episodes {
			status.CachedEpisodes++
			status.CachedBytes += ep.SizeBytes
			if _, pending := state.candidates[ep.Filename]; pending {
				status.PendingEpisodes--
			}
		}
		if status.PendingEpisodes < 0 {
			status.PendingEpisodes = 0
		}
		state.mu.Unlock()
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func (m *Manager) lookup(hash string) (*showState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.shows[hash]
	if !ok {
		return nil, fmt.Errorf("show %s: %w", hash, ErrUnknownShow)
	}
	return state, nil
}

// selectCandidates maps the newest in-retention items to their media
// filenames. Enclosures pointing at other shows or carrying unsafe
// filenames are skipped.
func (m *Manager) selectCandidates(loc locator.Locator, parsed *feed.Feed, opts ShowOptions) map[string]candidate {
	limit := m.opts.EpisodesPerShow
	if opts.Episodes > 0 {
		limit = opts.Episodes
	}
	candidates := make(map[string]candidate)
	for order, item := range feed.SelectNewest(parsed.Items, limit) {
		// One episode per item: items with several enclosures only
		// contribute their first valid one, keeping the cached count
		// within the retention window.
		for _, sourceURL := range item.EnclosureURLs {
			itemLoc, filename, err := locator.ParseMediaURL(sourceURL)
			if err != nil || itemLoc.Hash != loc.Hash {
				continue
			}
			if _, dup := candidates[filename]; dup {
				continue
			}
			candidates[filename] = candidate{
				sourceURL:   sourceURL,
				publishedAt: item.PublishedAt,
				order:       order,
			}
			break
		}
	}
	return candidates
}

func (m *Manager) mediaURL(loc locator.Locator, filename string) string {
	return m.opts.BaseURL + "/media/" + loc.PathSegment() + "/" + url.PathEscape(filename)
}

// evictOutOfWindow removes cached episodes that the latest feed no
// longer retains.
func (m *Manager) evictOutOfWindow(ctx context.Context, state *showState) error {
	episodes, err := m.opts.Store.ListEpisodes(ctx, state.loc.Hash)
	if err != nil {
		return err
	}
	for _, ep := range episodes {
		if _, keep := state.candidates[ep.Filename]; keep {
			continue
		}
		if err := m.dropEpisode(ctx, state, ep.Filename); err != nil {
			return err
		}
	}
	return nil
}

// evictOverBudget deletes the oldest cached episodes until the show
// fits its byte budget. The newest episode always survives, even when
// it alone exceeds the budget.
func (m *Manager) evictOverBudget(ctx context.Context, state *showState) error {
	budget := m.opts.MaxBytesPerShow
	if state.opts.MaxBytes > 0 {
		budget = state.opts.MaxBytes
	}
	if budget <= 0 {
		return nil
	}
	episodes, err := m.opts.Store.ListEpisodes(ctx, state.loc.Hash)
	if err != nil {
		return err
	}
	var total int64
	for _, ep := range episodes {
		total += ep.SizeBytes
	}
	// ListEpisodes is newest first; trim from the tail.
	for i := len(episodes) - 1; i > 0 && total > budget; i-- {
		ep := episodes[i]
		if err := m.dropEpisode(ctx, state, ep.Filename); err != nil {
			return err
		}
		total -= ep.SizeBytes
		m.logger.Info("episode evicted for byte budget",
			logging.String("show", state.loc.Canonical()),
			logging.String("episode", ep.Filename),
			logging.Int64("freed", ep.SizeBytes))
	}
	return nil
}

func (m *Manager) dropEpisode(ctx context.Context, state *showState, filename string) error {
	if err := storage.Remove(state.layout.EpisodePath(filename)); err != nil {
		return fmt.Errorf("evict episode %s: %w", filename, err)
	}
	return m.opts.Store.DeleteEpisode(ctx, state.loc.Hash, filename)
}

// regenerateClientFeed re-rewrites the stored publisher feed. Used in
// strict mode, where an enclosure flips to the local URL only once its
// bytes are on disk.
func (m *Manager) regenerateClientFeed(state *showState) error {
	raw, exists, err := storage.ReadIfExists(state.layout.PublisherRSS)
	if err != nil || !exists {
		return err
	}
	rewritten, err := feed.Rewrite(raw, func(sourceURL string) (string, bool) {
		loc, filename, parseErr := locator.ParseMediaURL(sourceURL)
		if parseErr != nil || loc.Hash != state.loc.Hash {
			return "", false
		}
		if _, ok := state.candidates[filename]; !ok {
			return "", false
		}
		if _, statErr := os.Stat(state.layout.EpisodePath(filename)); statErr != nil {
			return "", false
		}
		return m.mediaURL(state.loc, filename), true
	})
	if err != nil {
		return err
	}
	return storage.WriteAtomic(state.layout.ClientRSS, rewritten)
}

// planFetches orders the uncached candidates newest first so the most
// recent episode lands first on a slow link.
func planFetches(candidates map[string]candidate, cached map[string]bool) []string {
	type pending struct {
		filename string
		order    int
	}
	var missing []pending
	for filename, cand := range candidates {
		if !cached[filename] {
			missing = append(missing, pending{filename: filename, order: cand.order})
		}
	}
	sort.Slice(missing, func(i, j int) bool {
		if missing[i].order != missing[j].order {
			return missing[i].order < missing[j].order
		}
		return missing[i].filename < missing[j].filename
	})
	plan := make([]string, len(missing))
	for i, p := range missing {
		plan[i] = p.filename
	}
	return plan
}
