package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

const testHash = "a3f1c2d4e5b6978812345678deadbeef"

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenIsIdempotent(t *testing.T) {
	root := t.TempDir()
	first, err := Open(root)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := first.UpsertShow(context.Background(), testHash, "dispatch"); err != nil {
		t.Fatalf("UpsertShow() error = %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	second, err := Open(root)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer func() { _ = second.Close() }()

	show, err := second.GetShow(context.Background(), testHash)
	if err != nil {
		t.Fatalf("GetShow() after reopen error = %v", err)
	}
	if show.Name != "dispatch" {
		t.Errorf("Name = %q, want %q", show.Name, "dispatch")
	}
}

func TestShowLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.GetShow(ctx, testHash); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetShow() on empty store error = %v, want ErrNotFound", err)
	}

	if err := s.UpsertShow(ctx, testHash, "dispatch"); err != nil {
		t.Fatalf("UpsertShow() error = %v", err)
	}
	// Upserting again with a new name updates in place.
	if err := s.UpsertShow(ctx, testHash, "nightly-dispatch"); err != nil {
		t.Fatalf("UpsertShow() second call error = %v", err)
	}

	refreshedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := s.RecordRefresh(ctx, testHash, "Nightly Dispatch", refreshedAt); err != nil {
		t.Fatalf("RecordRefresh() error = %v", err)
	}

	show, err := s.GetShow(ctx, testHash)
	if err != nil {
		t.Fatalf("GetShow() error = %v", err)
	}
	if show.Name != "nightly-dispatch" || show.Title != "Nightly Dispatch" {
		t.Errorf("show = %q/%q", show.Name, show.Title)
	}
	if show.LastRefreshedAt == nil || !show.LastRefreshedAt.Equal(refreshedAt) {
		t.Errorf("LastRefreshedAt = %v, want %v", show.LastRefreshedAt, refreshedAt)
	}
	if show.LastError != "" {
		t.Errorf("LastError = %q, want empty", show.LastError)
	}

	if err := s.RecordFailure(ctx, testHash, "link down"); err != nil {
		t.Fatalf("RecordFailure() error = %v", err)
	}
	show, err = s.GetShow(ctx, testHash)
	if err != nil {
		t.Fatalf("GetShow() error = %v", err)
	}
	if show.LastError != "link down" {
		t.Errorf("LastError = %q, want %q", show.LastError, "link down")
	}
	// A failure does not clear the last successful refresh time.
	if show.LastRefreshedAt == nil || !show.LastRefreshedAt.Equal(refreshedAt) {
		t.Errorf("LastRefreshedAt after failure = %v, want %v", show.LastRefreshedAt, refreshedAt)
	}

	// A later successful refresh clears the error.
	if err := s.RecordRefresh(ctx, testHash, "Nightly Dispatch", refreshedAt.Add(time.Hour)); err != nil {
		t.Fatalf("RecordRefresh() error = %v", err)
	}
	if show, err = s.GetShow(ctx, testHash); err != nil {
		t.Fatalf("GetShow() error = %v", err)
	}
	if show.LastError != "" {
		t.Errorf("LastError after refresh = %q, want empty", show.LastError)
	}
}

func TestRecordRefreshUnknownShow(t *testing.T) {
	s := openTestStore(t)
	err := s.RecordRefresh(context.Background(), testHash, "t", time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("RecordRefresh() error = %v, want ErrNotFound", err)
	}
	if err := s.RecordFailure(context.Background(), testHash, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("RecordFailure() error = %v, want ErrNotFound", err)
	}
}

func TestEpisodeLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertShow(ctx, testHash, "dispatch"); err != nil {
		t.Fatalf("UpsertShow() error = %v", err)
	}

	date := func(day int) *time.Time {
		d := time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC)
		return &d
	}
	fetched := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for _, ep := range []Episode{
		{ShowHash: testHash, Filename: "old.mp3", SourceURL: "nomadcast://" + testHash + "/old.mp3", SizeBytes: 10, PublishedAt: date(1), FetchedAt: fetched},
		{ShowHash: testHash, Filename: "new.mp3", SourceURL: "nomadcast://" + testHash + "/new.mp3", SizeBytes: 20, PublishedAt: date(9), FetchedAt: fetched},
		{ShowHash: testHash, Filename: "undated.mp3", SourceURL: "nomadcast://" + testHash + "/undated.mp3", SizeBytes: 30, FetchedAt: fetched},
	} {
		if err := s.UpsertEpisode(ctx, ep); err != nil {
			t.Fatalf("UpsertEpisode(%s) error = %v", ep.Filename, err)
		}
	}

	episodes, err := s.ListEpisodes(ctx, testHash)
	if err != nil {
		t.Fatalf("ListEpisodes() error = %v", err)
	}
	if len(episodes) != 3 {
		t.Fatalf("len = %d, want 3", len(episodes))
	}
	order := []string{"new.mp3", "old.mp3", "undated.mp3"}
	for i, want := range order {
		if episodes[i].Filename != want {
			t.Errorf("episodes[%d] = %q, want %q", i, episodes[i].Filename, want)
		}
	}
	if episodes[0].SizeBytes != 20 {
		t.Errorf("SizeBytes = %d, want 20", episodes[0].SizeBytes)
	}

	if err := s.DeleteEpisode(ctx, testHash, "old.mp3"); err != nil {
		t.Fatalf("DeleteEpisode() error = %v", err)
	}
	// Deleting a missing episode is fine.
	if err := s.DeleteEpisode(ctx, testHash, "old.mp3"); err != nil {
		t.Fatalf("DeleteEpisode() repeat error = %v", err)
	}
	if episodes, err = s.ListEpisodes(ctx, testHash); err != nil || len(episodes) != 2 {
		t.Fatalf("ListEpisodes() after delete = %d eps, err %v", len(episodes), err)
	}
}

func TestDeleteShowCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertShow(ctx, testHash, "dispatch"); err != nil {
		t.Fatalf("UpsertShow() error = %v", err)
	}
	ep := Episode{ShowHash: testHash, Filename: "one.mp3", SourceURL: "nomadcast://" + testHash + "/one.mp3", FetchedAt: time.Now()}
	if err := s.UpsertEpisode(ctx, ep); err != nil {
		t.Fatalf("UpsertEpisode() error = %v", err)
	}

	if err := s.DeleteShow(ctx, testHash); err != nil {
		t.Fatalf("DeleteShow() error = %v", err)
	}
	episodes, err := s.ListEpisodes(ctx, testHash)
	if err != nil {
		t.Fatalf("ListEpisodes() error = %v", err)
	}
	if len(episodes) != 0 {
		t.Errorf("episodes survived the show delete: %v", episodes)
	}
	shows, err := s.ListShows(ctx)
	if err != nil {
		t.Fatalf("ListShows() error = %v", err)
	}
	if len(shows) != 0 {
		t.Errorf("len(shows) = %d, want 0", len(shows))
	}
}
