package logging

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionTarget names a directory, a glob for the files in it that may be
// pruned and paths that must survive regardless of age.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// CleanupOldLogs prunes files older than retentionDays and returns how many
// were removed. retentionDays <= 0 disables pruning.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	return PruneOlderThan(logger, time.Now().AddDate(0, 0, -retentionDays), targets...)
}

// PruneOlderThan removes matching files last modified before cutoff.
// Exclusions apply across all targets. Files that disappear during the scan
// are ignored.
func PruneOlderThan(logger *slog.Logger, cutoff time.Time, targets ...RetentionTarget) int {
	keep := map[string]bool{}
	for _, target := range targets {
		for _, path := range target.Exclude {
			if path = strings.TrimSpace(path); path != "" {
				keep[absPath(path)] = true
			}
		}
	}

	removed := 0
	for _, target := range targets {
		for _, path := range pruneCandidates(target, cutoff) {
			if keep[path] {
				continue
			}
			err := os.Remove(path)
			switch {
			case err == nil:
				removed++
				if logger != nil {
					logger.Debug("file pruned",
						String(FieldEventType, "file_pruned"),
						String("path", path),
					)
				}
			case errors.Is(err, fs.ErrNotExist):
			default:
				WarnWithContext(logger, "prune remove failed; file remains", "prune_failed",
					String("path", path),
					Error(err),
					String(FieldErrorHint, "check file permissions and directory ownership"),
					String(FieldImpact, "old file remains on disk"),
				)
			}
		}
	}
	return removed
}

// pruneCandidates lists absolute paths of regular files in target.Dir that
// match target.Pattern and are older than cutoff.
func pruneCandidates(target RetentionTarget, cutoff time.Time) []string {
	dir := strings.TrimSpace(target.Dir)
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	pattern := strings.TrimSpace(target.Pattern)

	var out []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if pattern != "" {
			if ok, err := filepath.Match(pattern, entry.Name()); err != nil || !ok {
				continue
			}
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		out = append(out, absPath(filepath.Join(dir, entry.Name())))
	}
	return out
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
