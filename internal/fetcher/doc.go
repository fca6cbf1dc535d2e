// Package fetcher retrieves files from the mesh transport.
//
// The daemon never speaks the transport protocol itself; it shells out
// to a configured fetch command (or, for development, reads from a
// local directory) and classifies failures into a small taxonomy the
// scheduler can act on: timeouts and link failures are retried with
// backoff, missing files and corrupt transfers are not.
package fetcher
