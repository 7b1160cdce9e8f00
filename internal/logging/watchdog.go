package logging

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	defaultWatchdogWait   = 100 * time.Millisecond
	defaultTailBytes      = 1000
	defaultRecentActivity = 5 * time.Minute
)

var logTimestampPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2})`)

// WatchdogOptions tunes the logging self-check.
type WatchdogOptions struct {
	// Wait is the pause between flushing and reading the file back.
	Wait time.Duration
	// TailBytes is how much of the file end is inspected.
	TailBytes int64
	// RecentWindow is how old a timestamp in the tail may be and still count
	// as live log activity.
	RecentWindow time.Duration
	Now          func() time.Time
}

// CheckResult reports what a self-check observed and did.
type CheckResult struct {
	Healthy          bool
	NonceFound       bool
	RecentActivity   bool
	FileRecreated    bool
	RestartAttempted bool
	RestartErr       error
}

// Watchdog verifies that the Host's logger actually lands on disk.
type Watchdog struct {
	host *Host
	opts WatchdogOptions
}

// NewWatchdog builds a watchdog for host.
func NewWatchdog(host *Host, opts WatchdogOptions) *Watchdog {
	if opts.Wait <= 0 {
		opts.Wait = defaultWatchdogWait
	}
	if opts.TailBytes <= 0 {
		opts.TailBytes = defaultTailBytes
	}
	if opts.RecentWindow <= 0 {
		opts.RecentWindow = defaultRecentActivity
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Watchdog{host: host, opts: opts}
}

// Check writes a nonce line, flushes, and reads the file tail back. When
// neither the nonce nor any recent timestamp is visible the log file is
// recreated if missing and the host is restarted exactly once.
func (w *Watchdog) Check() CheckResult {
	var result CheckResult
	if w == nil || w.host == nil {
		return result
	}
	logger := NewComponentLogger(w.host.Logger(), "logging")
	now := w.opts.Now()
	nonce := strconv.FormatInt(now.Unix(), 10)

	logger.Info("logging self-check",
		String(FieldEventType, "logging_self_check"),
		String("nonce", nonce),
	)
	if err := w.host.Flush(); err != nil {
		logger.Debug("log flush failed during self-check", Error(err))
	}
	time.Sleep(w.opts.Wait)

	tail, err := readTail(w.host.Path(), w.opts.TailBytes)
	missing := errors.Is(err, fs.ErrNotExist)
	if err != nil && !missing {
		logger.Debug("read log tail failed", Error(err))
	}

	result.NonceFound = strings.Contains(tail, nonce)
	result.RecentActivity = hasRecentTimestamp(tail, w.opts.Now(), w.opts.RecentWindow)
	if result.NonceFound || result.RecentActivity {
		result.Healthy = true
		return result
	}

	if missing {
		if err := os.WriteFile(w.host.Path(), nil, 0o664); err != nil {
			logger.Debug("recreate log file failed", Error(err))
		} else {
			result.FileRecreated = true
		}
	}

	result.RestartAttempted = true
	restarted, err := w.host.Restart()
	if err != nil {
		result.RestartErr = err
		ErrorWithContext(NewComponentLogger(restarted, "logging"), "logging restart failed", "logging_restart_failed",
			Error(err),
			String(FieldErrorHint, "check log_dir permissions and free disk space"),
		)
		return result
	}
	WarnWithContext(NewComponentLogger(restarted, "logging"), "logging restarted after failed self-check", "logging_restarted",
		Bool("file_recreated", result.FileRecreated),
		String(FieldErrorHint, "log file was missing or not being written"),
		String(FieldImpact, "log lines written before the restart may be lost"),
	)
	return result
}

// Logger returns the host's current logger.
func (w *Watchdog) Logger() *slog.Logger {
	if w == nil || w.host == nil {
		return NewNop()
	}
	return w.host.Logger()
}

func readTail(path string, size int64) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", err
	}
	offset := info.Size() - size
	if offset < 0 {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return "", err
	}
	data, err := io.ReadAll(io.LimitReader(file, size))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func hasRecentTimestamp(tail string, now time.Time, window time.Duration) bool {
	for _, match := range logTimestampPattern.FindAllString(tail, -1) {
		ts, err := time.Parse(time.RFC3339Nano, match)
		if err != nil {
			continue
		}
		if age := now.Sub(ts); age >= -window && age <= window {
			return true
		}
	}
	return false
}
