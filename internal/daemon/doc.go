// Package daemon wires the cache, scheduler, transport, and HTTP
// surface into one long-running process.
//
// The daemon enforces single-instance execution with a lock file,
// applies the subscription list (and re-applies it on file changes or
// POST /reload), and serves podcast clients. Request handling never
// waits on the mesh: anything missing from the cache answers
// immediately and queues transport work for the scheduler.
package daemon
