package fetcher

import (
	"net/url"

	"nomadcastd/internal/locator"
)

// FeedRef names a show's publisher RSS on the transport.
func FeedRef(loc locator.Locator) Ref {
	return Ref{DestHash: loc.Hash, Path: "file/" + loc.Name + "/feed.rss"}
}

// MediaRef names one episode file on the transport. Filenames are
// escaped the same way the publisher escapes them in its announcements.
func MediaRef(loc locator.Locator, filename string) Ref {
	return Ref{DestHash: loc.Hash, Path: "file/" + loc.Name + "/media/" + url.PathEscape(filename)}
}
