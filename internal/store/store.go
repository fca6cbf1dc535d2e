package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; the cache directory can always be rebuilt from the transport,
// so old databases are simply rejected.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was written by a different
// schema version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store manages cache metadata persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Show is the per-subscription row.
type Show struct {
	Hash            string
	Name            string
	Title           string
	LastRefreshedAt *time.Time
	LastError       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Episode maps a cached media file back to its publisher enclosure URL.
type Episode struct {
	ShowHash    string
	Filename    string
	SourceURL   string
	SizeBytes   int64
	PublishedAt *time.Time
	FetchedAt   time.Time
}

// Open initializes or connects to the metadata database at
// <root>/nomadcast.db.
func Open(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("ensure storage root: %w", err)
	}

	dbPath := filepath.Join(root, "nomadcast.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the location of the database file.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to rebuild)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// UpsertShow creates the show row if it is missing and refreshes its
// subscription name.
func (s *Store) UpsertShow(ctx context.Context, hash, name string) error {
	now := timestamp(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO shows (hash, name, created_at, updated_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(hash) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`,
		hash, name, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert show: %w", err)
	}
	return nil
}

// GetShow returns the show row for hash, or ErrNotFound.
func (s *Store) GetShow(ctx context.Context, hash string) (*Show, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT hash, name, title, last_refreshed_at, last_error, created_at, updated_at
         FROM shows WHERE hash = ?`, hash)
	show, err := scanShow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("show %s: %w", hash, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get show: %w", err)
	}
	return show, nil
}

// ListShows returns every show row ordered by subscription name.
func (s *Store) ListShows(ctx context.Context) ([]*Show, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hash, name, title, last_refreshed_at, last_error, created_at, updated_at
         FROM shows ORDER BY name, hash`)
	if err != nil {
		return nil, fmt.Errorf("list shows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var shows []*Show
	for rows.Next() {
		show, err := scanShow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan show: %w", err)
		}
		shows = append(shows, show)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shows: %w", err)
	}
	return shows, nil
}

// RecordRefresh marks a successful feed refresh.
func (s *Store) RecordRefresh(ctx context.Context, hash, title string, when time.Time) error {
	ts := timestamp(when)
	res, err := s.db.ExecContext(ctx,
		`UPDATE shows SET title = ?, last_refreshed_at = ?, last_error = NULL, updated_at = ?
         WHERE hash = ?`,
		title, ts, timestamp(time.Now()), hash,
	)
	if err != nil {
		return fmt.Errorf("record refresh: %w", err)
	}
	return requireRow(res, hash)
}

// RecordFailure stores the most recent refresh error without touching
// the last successful refresh time.
func (s *Store) RecordFailure(ctx context.Context, hash, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE shows SET last_error = ?, updated_at = ? WHERE hash = ?`,
		message, timestamp(time.Now()), hash,
	)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return requireRow(res, hash)
}

// UpsertEpisode records a cached media file for a show.
func (s *Store) UpsertEpisode(ctx context.Context, ep Episode) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO episodes (show_hash, filename, source_url, size_bytes, published_at, fetched_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(show_hash, filename) DO UPDATE SET
             source_url = excluded.source_url,
             size_bytes = excluded.size_bytes,
             published_at = excluded.published_at,
             fetched_at = excluded.fetched_at`,
		ep.ShowHash, ep.Filename, ep.SourceURL, ep.SizeBytes,
		nullableTime(ep.PublishedAt), timestamp(ep.FetchedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert episode: %w", err)
	}
	return nil
}

// ListEpisodes returns a show's cached episodes, newest publish date
// first with undated episodes last.
func (s *Store) ListEpisodes(ctx context.Context, hash string) ([]Episode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT show_hash, filename, source_url, size_bytes, published_at, fetched_at
         FROM episodes WHERE show_hash = ?
         ORDER BY published_at IS NULL, published_at DESC, fetched_at DESC`, hash)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var episodes []Episode
	for rows.Next() {
		var (
			ep          Episode
			publishedAt sql.NullString
			fetchedAt   string
		)
		if err := rows.Scan(&ep.ShowHash, &ep.Filename, &ep.SourceURL, &ep.SizeBytes, &publishedAt, &fetchedAt); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		if ep.PublishedAt, err = parseNullableTime(publishedAt); err != nil {
			return nil, fmt.Errorf("episode %s published_at: %w", ep.Filename, err)
		}
		if ep.FetchedAt, err = parseTime(fetchedAt); err != nil {
			return nil, fmt.Errorf("episode %s fetched_at: %w", ep.Filename, err)
		}
		episodes = append(episodes, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate episodes: %w", err)
	}
	return episodes, nil
}

// DeleteEpisode removes a cached episode row. Deleting a missing row is
// not an error.
func (s *Store) DeleteEpisode(ctx context.Context, hash, filename string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM episodes WHERE show_hash = ? AND filename = ?", hash, filename); err != nil {
		return fmt.Errorf("delete episode: %w", err)
	}
	return nil
}

// DeleteShow removes a show and, via the foreign key, its episodes.
func (s *Store) DeleteShow(ctx context.Context, hash string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM shows WHERE hash = ?", hash); err != nil {
		return fmt.Errorf("delete show: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShow(row rowScanner) (*Show, error) {
	var (
		show          Show
		lastRefreshed sql.NullString
		lastError     sql.NullString
		createdAt     string
		updatedAt     string
	)
	err := row.Scan(&show.Hash, &show.Name, &show.Title, &lastRefreshed, &lastError, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if show.LastRefreshedAt, err = parseNullableTime(lastRefreshed); err != nil {
		return nil, fmt.Errorf("last_refreshed_at: %w", err)
	}
	show.LastError = lastError.String
	if show.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	if show.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("updated_at: %w", err)
	}
	return &show, nil
}

func requireRow(res sql.Result, hash string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("show %s: %w", hash, ErrNotFound)
	}
	return nil
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timestamp(*t)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}

func parseNullableTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid {
		return nil, nil
	}
	parsed, err := parseTime(value.String)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
