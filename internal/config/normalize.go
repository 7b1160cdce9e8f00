package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeChannels()
	c.normalizeSchedule()
	c.normalizeService()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.BaseDir) == "" {
		c.Paths.BaseDir = defaultBaseDir
	}
	if c.Paths.BaseDir, err = expandPath(c.Paths.BaseDir); err != nil {
		return fmt.Errorf("paths.base_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if c.Paths.ContentFile, err = expandPath(strings.TrimSpace(c.Paths.ContentFile)); err != nil {
		return fmt.Errorf("paths.content_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeChannels() {
	seen := make(map[string]struct{}, len(c.Channels.Enabled))
	enabled := make([]string, 0, len(c.Channels.Enabled))
	for _, name := range c.Channels.Enabled {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		enabled = append(enabled, name)
	}
	c.Channels.Enabled = enabled

	c.Channels.Ntfy.Server = strings.TrimRight(strings.TrimSpace(c.Channels.Ntfy.Server), "/")
	if c.Channels.Ntfy.Server == "" {
		c.Channels.Ntfy.Server = defaultNtfyServer
	}
	c.Channels.Ntfy.TopicPrefix = strings.TrimSpace(c.Channels.Ntfy.TopicPrefix)
	if c.Channels.Ntfy.TopicPrefix == "" {
		if value, ok := os.LookupEnv("NUDGE_NTFY_TOPIC_PREFIX"); ok {
			c.Channels.Ntfy.TopicPrefix = strings.TrimSpace(value)
		}
	}
	if c.Channels.Ntfy.RequestTimeout <= 0 {
		c.Channels.Ntfy.RequestTimeout = defaultRequestTimeout
	}

	c.Channels.Webhook.URL = strings.TrimSpace(c.Channels.Webhook.URL)
	if c.Channels.Webhook.URL == "" {
		if value, ok := os.LookupEnv("NUDGE_WEBHOOK_URL"); ok {
			c.Channels.Webhook.URL = strings.TrimSpace(value)
		}
	}
	if c.Channels.Webhook.RequestTimeout <= 0 {
		c.Channels.Webhook.RequestTimeout = defaultRequestTimeout
	}
}

func (c *Config) normalizeSchedule() {
	c.Schedule.Timezone = strings.TrimSpace(c.Schedule.Timezone)
	c.Schedule.DefaultTime = strings.TrimSpace(c.Schedule.DefaultTime)
	if c.Schedule.DefaultTime == "" {
		c.Schedule.DefaultTime = defaultScheduleTime
	}
	c.Schedule.CheckinTime = strings.TrimSpace(c.Schedule.CheckinTime)
	if c.Schedule.CheckinTime == "" {
		c.Schedule.CheckinTime = defaultCheckinTime
	}
	c.Schedule.TaskReminderTime = strings.TrimSpace(c.Schedule.TaskReminderTime)
	if c.Schedule.TaskReminderTime == "" {
		c.Schedule.TaskReminderTime = defaultTaskReminderTime
	}
	normalized := make(map[string]string, len(c.Schedule.CategoryTimes))
	for category, value := range c.Schedule.CategoryTimes {
		normalized[strings.ToLower(strings.TrimSpace(category))] = strings.TrimSpace(value)
	}
	c.Schedule.CategoryTimes = normalized
}

func (c *Config) normalizeService() {
	if c.Service.PollInterval <= 0 {
		c.Service.PollInterval = defaultPollInterval
	}
	if c.Service.InnerIterations <= 0 {
		c.Service.InnerIterations = defaultInnerIterations
	}
	if c.Service.HeartbeatEvery <= 0 {
		c.Service.HeartbeatEvery = defaultHeartbeatEvery
	}
	if c.Service.ManagerRetries <= 0 {
		c.Service.ManagerRetries = defaultManagerRetries
	}
	if c.Service.RetryBackoff < 0 {
		c.Service.RetryBackoff = defaultRetryBackoff
	}
	if c.Service.DispatchTimeout < 0 {
		c.Service.DispatchTimeout = 0
	}
	if c.Service.CacheMaxAgeDays < 0 {
		c.Service.CacheMaxAgeDays = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
