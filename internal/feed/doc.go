// Package feed parses publisher RSS and rewrites enclosure URLs.
//
// Parsing goes through gofeed and yields the item metadata the cache
// needs for retention decisions (enclosure URLs, publish dates, document
// order). Rewriting is a separate, byte-oriented pass: it locates the
// url attributes of enclosure and media:content elements with an
// encoding/xml token walk over the raw bytes and splices replacements
// in place, so every untouched byte of the publisher document survives
// verbatim. Podcast clients get the publisher's feed, not a re-serialized
// approximation of it.
//
// Both passes fail with *ParseError on malformed XML; callers fall back
// to the last known-good rewritten feed instead of serving a broken one.
package feed
