// Package router consumes flag-file requests from the base directory and
// dispatches them to the communication and scheduler managers.
//
// Each request file is processed at most once: it is deleted after dispatch
// whatever the outcome, including when the dispatch target fails or panics.
// Reschedule requests stamped before the daemon's startup time are discarded
// as stale.
package router
