package testsupport

import (
	"path/filepath"
	"testing"

	"nudge/internal/config"
)

// ConfigOption adjusts the config NewConfig builds before its directories
// are created.
type ConfigOption func(*config.Config)

// NewConfig returns a config rooted in a fresh temp dir with flags/, data/,
// logs/ and cache/ created. Only the console channel is enabled, the
// timezone is UTC and the service loop runs one inner iteration per second
// without the fsnotify wake-up.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.BaseDir = filepath.Join(root, "flags")
	cfg.Paths.DataDir = filepath.Join(root, "data")
	cfg.Paths.LogDir = filepath.Join(root, "logs")
	cfg.Paths.CacheDir = filepath.Join(root, "cache")
	cfg.Channels.Enabled = []string{config.ChannelConsole}
	cfg.Schedule.Timezone = "UTC"
	cfg.Service.PollInterval = 1
	cfg.Service.InnerIterations = 1
	cfg.Service.HeartbeatEvery = 1
	cfg.Service.RetryBackoff = 0
	cfg.Service.WatchFlags = false

	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithChannels replaces the enabled channel list.
func WithChannels(channels ...string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Channels.Enabled = append([]string(nil), channels...)
	}
}

// WithWebhookURL points the webhook channel at url, usually an httptest
// server.
func WithWebhookURL(url string) ConfigOption {
	return func(cfg *config.Config) { cfg.Channels.Webhook.URL = url }
}

// WithWatchFlags toggles the fsnotify wake-up.
func WithWatchFlags(enabled bool) ConfigOption {
	return func(cfg *config.Config) { cfg.Service.WatchFlags = enabled }
}

// BaseDir returns the temp root that holds the config's directories.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.BaseDir)
}
