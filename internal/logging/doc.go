// Package logging constructs the daemon's slog loggers.
//
// Two output formats are supported: a compact console format for
// interactive use and JSON for log shipping. Subsystems attach a
// component attribute via NewComponentLogger so console lines read as
// "TIME LEVEL component: message key=value". Helpers mirror the slog
// attr constructors so call sites never import log/slog directly for
// attributes.
package logging
