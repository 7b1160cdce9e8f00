package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"nudge/internal/config"
	"nudge/internal/flagfile"
	"nudge/internal/logging"
)

// TempGrace is how old a flag temp file must be before it is treated as
// abandoned. Younger files may still belong to an in-flight write.
const TempGrace = time.Minute

// Manager prunes temp leftovers and aged cache entries.
type Manager struct {
	baseDir  string
	cacheDir string
	maxAge   time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// Report summarizes a cleanup pass.
type Report struct {
	TempFiles    int
	CacheEntries int
}

// Stats describes current cache usage.
type Stats struct {
	Entries    int
	TotalBytes int64
	Oldest     time.Time
}

// NewManager builds a cache manager from configuration. A zero
// cache_max_age_days keeps cache entries indefinitely.
func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	m := &Manager{now: time.Now}
	if cfg != nil {
		m.baseDir = strings.TrimSpace(cfg.Paths.BaseDir)
		m.cacheDir = strings.TrimSpace(cfg.Paths.CacheDir)
		if cfg.Service.CacheMaxAgeDays > 0 {
			m.maxAge = time.Duration(cfg.Service.CacheMaxAgeDays) * 24 * time.Hour
		}
	}
	m.SetLogger(logger)
	return m
}

// SetLogger refreshes the manager's logging destination.
func (m *Manager) SetLogger(logger *slog.Logger) {
	if m == nil {
		return
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	m.logger = logging.NewComponentLogger(logger, "cache")
}

// Cleanup removes abandoned flag temp files and expired cache entries.
// Missing directories are not an error.
func (m *Manager) Cleanup() (Report, error) {
	var report Report
	if m == nil {
		return report, nil
	}
	now := m.now()

	if m.baseDir != "" {
		report.TempFiles = logging.PruneOlderThan(m.logger, now.Add(-TempGrace), logging.RetentionTarget{
			Dir:     m.baseDir,
			Pattern: "*" + flagfile.TempSuffix,
		})
	}

	var errs []error
	if m.cacheDir != "" && m.maxAge > 0 {
		removed, err := m.pruneCache(now.Add(-m.maxAge))
		report.CacheEntries = removed
		if err != nil {
			errs = append(errs, err)
		}
	}

	if report.TempFiles > 0 || report.CacheEntries > 0 {
		m.logger.Info("cache cleanup complete",
			logging.String(logging.FieldEventType, "cache_cleanup"),
			logging.Int("temp_files", report.TempFiles),
			logging.Int("cache_entries", report.CacheEntries),
		)
	}
	return report, errors.Join(errs...)
}

// pruneCache walks the cache directory removing files modified before cutoff,
// then drops directories left empty.
func (m *Manager) pruneCache(cutoff time.Time) (int, error) {
	removed := 0
	var dirs []string
	err := filepath.WalkDir(m.cacheDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if entry.IsDir() {
			if path != m.cacheDir {
				dirs = append(dirs, path)
			}
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			logging.WarnWithContext(m.logger, "failed to remove cache entry", "cache_prune_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check cache directory permissions"),
			)
			return nil
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("walk cache dir: %w", err)
	}
	for i := len(dirs) - 1; i >= 0; i-- {
		// Remove only succeeds on empty directories.
		_ = os.Remove(dirs[i])
	}
	return removed, nil
}

// Stats reports the number and total size of files in the cache directory.
func (m *Manager) Stats() (Stats, error) {
	var stats Stats
	if m == nil || m.cacheDir == "" {
		return stats, nil
	}
	err := filepath.WalkDir(m.cacheDir, func(_ string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if entry.IsDir() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		stats.Entries++
		stats.TotalBytes += info.Size()
		if stats.Oldest.IsZero() || info.ModTime().Before(stats.Oldest) {
			stats.Oldest = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("walk cache dir: %w", err)
	}
	return stats, nil
}
