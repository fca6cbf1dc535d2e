// Package storage owns the on-disk cache layout and the atomic write
// primitive every blob lands through.
//
// The layout is derived deterministically from a show's destination
// hash, so independent processes agree on paths without coordination:
//
//	<root>/shows/<hash>/
//	    publisher_rss.xml   raw upstream feed bytes
//	    client_rss.xml      rewritten feed (regenerable, not authoritative)
//	    episodes/<file>     cached media blobs
//	    tmp/                staging area for atomic writes
//
// Writes go through a temp file in the same directory followed by a
// rename, so a reader never observes a truncated file and a crash
// leaves the previous contents (or nothing) behind.
package storage
