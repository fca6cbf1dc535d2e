package feed

import (
	"errors"
	"testing"
	"time"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Nightly Dispatch</title>
    <item>
      <title>Episode Three</title>
      <pubDate>Wed, 03 Jan 2024 08:00:00 +0000</pubDate>
      <enclosure url="nomadcast://a3f1c2d4e5b6978812345678deadbeef/ep3.mp3" length="100" type="audio/mpeg"/>
    </item>
    <item>
      <title>Episode Two</title>
      <pubDate>Tue, 02 Jan 2024 08:00:00 +0000</pubDate>
      <enclosure url="nomadcast://a3f1c2d4e5b6978812345678deadbeef/ep2.mp3" length="100" type="audio/mpeg"/>
    </item>
    <item>
      <title>Episode One</title>
      <pubDate>Mon, 01 Jan 2024 08:00:00 +0000</pubDate>
      <enclosure url="nomadcast://a3f1c2d4e5b6978812345678deadbeef/ep1.mp3" length="100" type="audio/mpeg"/>
    </item>
  </channel>
</rss>`

func TestParse(t *testing.T) {
	feed, err := Parse([]byte(sampleRSS))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if feed.Title != "Nightly Dispatch" {
		t.Errorf("Title = %q, want %q", feed.Title, "Nightly Dispatch")
	}
	if len(feed.Items) != 3 {
		t.Fatalf("len(Items) = %d, want 3", len(feed.Items))
	}
	first := feed.Items[0]
	if first.Title != "Episode Three" {
		t.Errorf("Items[0].Title = %q, want %q", first.Title, "Episode Three")
	}
	if len(first.EnclosureURLs) != 1 || first.EnclosureURLs[0] != "nomadcast://a3f1c2d4e5b6978812345678deadbeef/ep3.mp3" {
		t.Errorf("Items[0].EnclosureURLs = %v", first.EnclosureURLs)
	}
	if first.PublishedAt == nil {
		t.Fatal("Items[0].PublishedAt = nil")
	}
	want := time.Date(2024, 1, 3, 8, 0, 0, 0, time.UTC)
	if !first.PublishedAt.Equal(want) {
		t.Errorf("Items[0].PublishedAt = %v, want %v", first.PublishedAt, want)
	}
}

func TestParseMalformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"truncated", sampleRSS[:200]},
		{"not xml", "404 page not found"},
		{"empty", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.raw))
			if err == nil {
				t.Fatal("Parse() error = nil, want *ParseError")
			}
			if !IsParseError(err) {
				t.Errorf("IsParseError(%v) = false", err)
			}
		})
	}
}

func TestSelectNewest(t *testing.T) {
	date := func(day int) *time.Time {
		d := time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)
		return &d
	}
	items := []Item{
		{Title: "undated", Order: 0},
		{Title: "old", PublishedAt: date(1), Order: 1},
		{Title: "new", PublishedAt: date(9), Order: 2},
		{Title: "mid", PublishedAt: date(5), Order: 3},
	}

	got := SelectNewest(items, 2)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Title != "new" || got[1].Title != "mid" {
		t.Errorf("selected %q, %q; want new, mid", got[0].Title, got[1].Title)
	}

	// Undated items rank below any dated item.
	got = SelectNewest(items, 4)
	if got[3].Title != "undated" {
		t.Errorf("last = %q, want undated", got[3].Title)
	}

	// Asking for more than exists returns everything.
	if got = SelectNewest(items, 10); len(got) != 4 {
		t.Errorf("len = %d, want 4", len(got))
	}
	if got = SelectNewest(nil, 3); len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestSelectNewestTiebreak(t *testing.T) {
	when := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	items := []Item{
		{Title: "first", PublishedAt: &when, Order: 0},
		{Title: "second", PublishedAt: &when, Order: 1},
	}
	got := SelectNewest(items, 1)
	if got[0].Title != "first" {
		t.Errorf("tied dates should keep document order, got %q", got[0].Title)
	}
}

func TestParseErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &ParseError{Err: inner}
	if !errors.Is(err, inner) {
		t.Error("errors.Is should reach the wrapped error")
	}
}
