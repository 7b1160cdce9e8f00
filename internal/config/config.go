package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	BaseDir     string `toml:"base_dir"`
	DataDir     string `toml:"data_dir"`
	LogDir      string `toml:"log_dir"`
	CacheDir    string `toml:"cache_dir"`
	ContentFile string `toml:"content_file"`
}

// Ntfy contains configuration for the ntfy push channel.
type Ntfy struct {
	Server         string `toml:"server"`
	TopicPrefix    string `toml:"topic_prefix"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Webhook contains configuration for the generic JSON webhook channel.
type Webhook struct {
	URL            string `toml:"url"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Channels lists the enabled delivery channels and their settings.
type Channels struct {
	Enabled []string `toml:"enabled"`
	Ntfy    Ntfy     `toml:"ntfy"`
	Webhook Webhook  `toml:"webhook"`
}

// Schedule contains the daily send times. Times use 24h "HH:MM" format in the
// configured timezone.
type Schedule struct {
	Timezone         string            `toml:"timezone"`
	DefaultTime      string            `toml:"default_time"`
	CategoryTimes    map[string]string `toml:"category_times"`
	CheckinTime      string            `toml:"checkin_time"`
	TaskReminderTime string            `toml:"task_reminder_time"`
}

// Service contains poll loop cadence and boot policy.
type Service struct {
	PollInterval    int  `toml:"poll_interval"`
	InnerIterations int  `toml:"inner_iterations"`
	HeartbeatEvery  int  `toml:"heartbeat_every"`
	ManagerRetries  int  `toml:"manager_retries"`
	RetryBackoff    int  `toml:"retry_backoff"`
	DispatchTimeout int  `toml:"dispatch_timeout"`
	WatchFlags      bool `toml:"watch_flags"`
	CacheMaxAgeDays int  `toml:"cache_max_age_days"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for nudge.
//
// Configuration sections by subsystem:
//   - Paths: flag directory, data, logs, cache, content library
//   - Channels: enabled delivery channels plus ntfy/webhook settings
//   - Schedule: daily message, check-in, and task reminder times
//   - Service: poll loop cadence, retry policy, dispatch bound
//   - Logging: log format, level, and retention
type Config struct {
	Paths    Paths    `toml:"paths"`
	Channels Channels `toml:"channels"`
	Schedule Schedule `toml:"schedule"`
	Service  Service  `toml:"service"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath is ~/.config/nudge/config.toml, expanded.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/nudge/config.toml")
}

// Load reads the config at path, or the first existing default location when
// path is empty, over the built-in defaults. It reports the path it settled on
// and whether that file existed. A missing file is not an error.
func Load(path string) (*Config, string, bool, error) {
	resolved, exists, err := locateConfig(path)
	if err != nil {
		return nil, "", false, err
	}

	cfg := Default()
	if exists {
		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

// locateConfig resolves an explicit path as given. Without one it tries the
// user config location, then ./nudge.toml, and reports the user location as
// missing when neither exists.
func locateConfig(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		switch _, err := os.Stat(expanded); {
		case err == nil:
			return expanded, true, nil
		case errors.Is(err, fs.ErrNotExist):
			return expanded, false, nil
		default:
			return "", false, fmt.Errorf("stat config: %w", err)
		}
	}

	userPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	localPath, err := filepath.Abs("nudge.toml")
	if err != nil {
		return "", false, err
	}
	for _, candidate := range []string{userPath, localPath} {
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, true, nil
		}
	}
	return userPath, false, nil
}

// EnsureDirectories creates the directories the daemon and CLI write into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.BaseDir, c.Paths.DataDir, c.Paths.LogDir, c.Paths.CacheDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LogPath returns the main daemon log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "nudge.log")
}

// LockPath returns the single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "nudged.lock")
}

// DatabasePath returns the SQLite user store location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "nudge.db")
}

// Location resolves the schedule timezone, falling back to local time.
func (c *Config) Location() *time.Location {
	name := strings.TrimSpace(c.Schedule.Timezone)
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}

// CategoryTime returns the configured send time for a category, or the default.
func (c *Config) CategoryTime(category string) string {
	if value, ok := c.Schedule.CategoryTimes[strings.ToLower(strings.TrimSpace(category))]; ok && value != "" {
		return value
	}
	return c.Schedule.DefaultTime
}

// PollInterval returns the inner poll loop sleep.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Service.PollInterval) * time.Second
}

// RetryBackoff returns the delay between manager construction attempts.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Service.RetryBackoff) * time.Second
}

// DispatchTimeout returns the per-request dispatch bound. Zero disables it.
func (c *Config) DispatchTimeout() time.Duration {
	return time.Duration(c.Service.DispatchTimeout) * time.Second
}

// expandPath resolves a leading "~" or "~/" against the home directory and
// returns a clean absolute path. Empty input stays empty.
func expandPath(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if value == "~" || strings.HasPrefix(value, "~/") || strings.HasPrefix(value, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		value = filepath.Join(home, value[1:])
	}
	abs, err := filepath.Abs(value)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", value, err)
	}
	return abs, nil
}

// ExpandPath applies the same "~" and absolute-path rules used for config
// paths.
func ExpandPath(value string) (string, error) {
	return expandPath(value)
}

// CreateSample writes the commented sample config to path, creating its
// directory.
func CreateSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
