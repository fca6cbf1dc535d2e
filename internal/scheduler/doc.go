// Package scheduler drives all transport traffic.
//
// Nothing else in the daemon touches the fetcher. HTTP handlers and the
// subscription watcher only enqueue work here; duplicate requests for
// the same feed or episode collapse into one task, at most one task per
// show is in flight at a time, and failed transfers retry with capped
// exponential backoff. Feeds also refresh on a jittered interval so a
// fleet of caches does not poll a publisher in lockstep.
package scheduler
