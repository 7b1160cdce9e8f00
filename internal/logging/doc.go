// Package logging builds the slog loggers nudge writes through.
//
// New and NewWithWriter pick the console or JSON handler from config. The
// attr helpers and Field constants keep key names uniform, and the context
// helpers carry user and request tags from the router into every line a
// handler logs. Host owns the daemon's log file so it can be flushed,
// reopened and closed; Watchdog checks that lines still reach it.
package logging
