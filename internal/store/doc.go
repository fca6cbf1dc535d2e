// Package store persists show and episode metadata in SQLite.
//
// The feed and media bytes themselves live on disk under the storage
// root; the store only records what is cached, when it was refreshed,
// and the mapping from episode filenames back to their publisher
// enclosure URLs. That is enough to rebuild the cache manager's state
// after a restart without re-parsing every cached feed.
package store
