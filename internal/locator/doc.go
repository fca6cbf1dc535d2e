// Package locator parses and normalizes NomadCast show locators.
//
// A locator pairs a 32-character hex destination hash with a show name.
// The hash is the authoritative identity; the name is cosmetic but part
// of routing and upstream paths. The canonical "hash:name" form is the
// unique key used for cache directories, database rows, and URL path
// segments, so every caller must go through this package rather than
// splitting strings ad hoc.
//
// All functions are pure; validation failures return ErrInvalidLocator
// wrapped with detail.
package locator
