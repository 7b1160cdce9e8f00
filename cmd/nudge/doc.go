// Package main hosts the nudge CLI entrypoint and command graph.
//
// The Cobra command tree runs the daemon in the foreground, drops request and
// shutdown flag files into the configured base directory, inspects pending
// flags, manages users and their categories and tasks, and scaffolds
// configuration. Commands never talk to the daemon directly; the flag
// directory is the only channel between them.
package main
