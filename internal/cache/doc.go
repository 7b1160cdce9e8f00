// Package cache prunes scratch files nudge and its producers leave behind.
//
// Two locations are swept:
//   - The flag directory, for "*.tmp" files left by producers interrupted
//     between writing a request and renaming it into place.
//   - The cache directory, for files older than cache_max_age_days.
//
// Cleanup is idempotent and best-effort. The daemon runs it once at boot and
// ignores failures; `nudge status` surfaces Stats.
package cache
