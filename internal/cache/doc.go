// Package cache owns the on-disk podcast cache and the bookkeeping
// around it.
//
// The Manager is the only writer of a show's directory. Each show has
// its own lock, so a slow commit for one show never blocks reads or
// commits for another, and HTTP reads never wait on the transport.
// Committing a publisher feed parses it, decides which episodes stay in
// retention, rewrites enclosure URLs to point at this daemon, evicts
// what fell out of the window, and reports which episodes still need
// fetching. Committing an episode lands the bytes atomically and
// enforces the per-show byte budget.
package cache
