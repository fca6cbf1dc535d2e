package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"nomadcastd/internal/cache"
	"nomadcastd/internal/locator"
	"nomadcastd/internal/logging"
)

// server is the HTTP surface podcast clients talk to. Handlers answer
// from the cache only; misses queue scheduler work and return
// immediately.
type server struct {
	daemon *Daemon
	logger *slog.Logger
	http   *http.Server
}

func newServer(d *Daemon, logger *slog.Logger) (*server, error) {
	if d == nil {
		return nil, errors.New("daemon is required")
	}
	srv := &server{daemon: d, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/feeds/", srv.handleFeed)
	mux.HandleFunc("/media/", srv.handleMedia)
	mux.HandleFunc("/reload", srv.handleReload)
	mux.HandleFunc("/api/status", srv.handleStatus)

	srv.http = &http.Server{
		Addr:              d.cfg.Server.Bind,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No WriteTimeout: media downloads over slow client links may
		// legitimately take a long time.
		IdleTimeout: 60 * time.Second,
	}
	return srv, nil
}

// run serves until ctx is canceled, then drains connections.
func (s *server) run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	}
}

// handleFeed serves GET /feeds/<show>. A registered show without a
// cached feed answers 503 with Retry-After and queues a refresh.
func (s *server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	segment := strings.TrimPrefix(r.URL.EscapedPath(), "/feeds/")
	if segment == "" || strings.Contains(segment, "/") {
		http.NotFound(w, r)
		return
	}
	loc, err := locator.ParsePathSegment(segment)
	if err != nil {
		http.Error(w, "invalid show locator", http.StatusBadRequest)
		return
	}

	raw, err := s.daemon.cache.GetFeed(loc.Hash)
	switch {
	case err == nil:
		// Serve the cached copy immediately and refresh behind it.
		s.daemon.scheduler.RequestRefresh(loc.Hash)
		w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(raw)))
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(raw)
	case errors.Is(err, cache.ErrNotCached):
		s.daemon.scheduler.RequestRefresh(loc.Hash)
		s.logger.Info("feed miss, refresh queued", logging.String("show", loc.Canonical()))
		w.Header().Set("Retry-After", strconv.Itoa(s.daemon.cfg.Refresh.RSSPollSeconds))
		http.Error(w, "feed not cached yet", http.StatusServiceUnavailable)
	case errors.Is(err, cache.ErrUnknownShow):
		http.NotFound(w, r)
	default:
		s.logger.Error("feed read failed", logging.String("show", loc.Canonical()), logging.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// handleMedia serves GET /media/<show>/<filename> with full Range
// support. An episode still in the retention window but not yet on
// disk answers 503 and queues its fetch; anything outside the window
// is 404.
func (s *server) handleMedia(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.EscapedPath(), "/media/")
	segment, encodedName, ok := strings.Cut(rest, "/")
	if !ok || segment == "" || encodedName == "" || strings.Contains(encodedName, "/") {
		http.NotFound(w, r)
		return
	}
	loc, err := locator.ParsePathSegment(segment)
	if err != nil {
		http.Error(w, "invalid show locator", http.StatusBadRequest)
		return
	}
	filename, err := url.PathUnescape(encodedName)
	if err != nil {
		http.Error(w, "invalid filename", http.StatusBadRequest)
		return
	}

	path, err := s.daemon.cache.GetEpisode(loc.Hash, filename)
	switch {
	case err == nil:
		s.serveEpisode(w, r, filename, path)
	case errors.Is(err, cache.ErrNotCached):
		s.daemon.scheduler.RequestEpisode(loc.Hash, filename)
		s.logger.Info("media miss, fetch queued",
			logging.String("show", loc.Canonical()),
			logging.String("episode", filename))
		w.Header().Set("Retry-After", strconv.Itoa(s.daemon.cfg.Refresh.FetchTimeoutSeconds))
		http.Error(w, "episode not cached yet", http.StatusServiceUnavailable)
	case errors.Is(err, cache.ErrBadFilename):
		http.Error(w, "invalid filename", http.StatusBadRequest)
	case errors.Is(err, cache.ErrNoSuchEpisode), errors.Is(err, cache.ErrUnknownShow):
		http.NotFound(w, r)
	default:
		s.logger.Error("media read failed", logging.String("episode", filename), logging.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// serveEpisode hands the file to http.ServeContent, which implements
// Range, 206, 416, and If-Range handling.
func (s *server) serveEpisode(w http.ResponseWriter, r *http.Request, filename, path string) {
	file, err := os.Open(path)
	if err != nil {
		s.logger.Error("open episode", logging.String("path", path), logging.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = file.Close() }()
	info, err := file.Stat()
	if err != nil {
		s.logger.Error("stat episode", logging.String("path", path), logging.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	// Pin the type rather than letting ServeContent sniff it from the
	// filename extension.
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeContent(w, r, filename, info.ModTime(), file)
}

// handleReload re-applies the subscription file on demand.
func (s *server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.daemon.Reload(r.Context()); err != nil {
		s.logger.Error("reload failed", logging.Error(err))
		http.Error(w, "reload failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	status, err := s.daemon.status(r.Context())
	if err != nil {
		s.logger.Error("status failed", logging.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Warn("encode status", logging.Error(err))
	}
}
