package feed

import (
	"bytes"
	"errors"
	"sort"
	"time"

	"github.com/mmcdole/gofeed"
)

// ParseError reports a malformed feed document. It is never retried by
// callers; the upstream bytes are wrong, not the transport.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "parse feed: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsParseError reports whether err is (or wraps) a feed ParseError.
func IsParseError(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}

// Item is the per-episode metadata extracted from the publisher feed.
type Item struct {
	Title         string
	EnclosureURLs []string
	// PublishedAt is nil when the item carries no parseable pubDate.
	PublishedAt *time.Time
	// Order is the item's position in the publisher document.
	Order int
}

// Feed holds the parsed channel metadata and its items in document order.
type Feed struct {
	Title string
	Items []Item
}

// Parse extracts channel and item metadata from raw RSS bytes.
func Parse(raw []byte) (*Feed, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	feed := &Feed{Title: parsed.Title}
	for i, item := range parsed.Items {
		entry := Item{
			Title:       item.Title,
			PublishedAt: item.PublishedParsed,
			Order:       i,
		}
		for _, enclosure := range item.Enclosures {
			if enclosure != nil && enclosure.URL != "" {
				entry.EnclosureURLs = append(entry.EnclosureURLs, enclosure.URL)
			}
		}
		feed.Items = append(feed.Items, entry)
	}
	return feed, nil
}

// SelectNewest returns the n most recent items, ordered newest first.
// Items are compared by PublishedAt; items without a date sort oldest,
// and document order breaks ties, so feeds that omit pubDate entirely
// keep their publisher ordering.
func SelectNewest(items []Item, n int) []Item {
	ordered := make([]Item, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		left, right := ordered[i], ordered[j]
		switch {
		case left.PublishedAt != nil && right.PublishedAt != nil:
			if !left.PublishedAt.Equal(*right.PublishedAt) {
				return left.PublishedAt.After(*right.PublishedAt)
			}
			return left.Order < right.Order
		case left.PublishedAt != nil:
			return true
		case right.PublishedAt != nil:
			return false
		default:
			return left.Order < right.Order
		}
	})
	if n >= 0 && len(ordered) > n {
		ordered = ordered[:n]
	}
	return ordered
}
