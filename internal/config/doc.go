// Package config loads and validates the daemon's TOML configuration.
//
// Load resolves the config path (explicit flag, then
// ~/.config/nomadcast/config.toml, then ./nomadcast.toml), merges the
// file over repository defaults, expands home-relative paths, and
// validates the result. A missing file is not an error; defaults apply.
//
// Keep derived or runtime state out of here: this package only knows
// about values a user can write in the file.
package config
