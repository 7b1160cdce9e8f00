// Package config reads config.toml over built-in defaults.
//
// Paths are expanded ("~" and relative forms become absolute), channel and
// schedule values are normalised, and Validate rejects anything the daemon
// could not run with. NUDGE_NTFY_TOPIC_PREFIX supplies the ntfy topic prefix
// when the file leaves it empty.
package config
