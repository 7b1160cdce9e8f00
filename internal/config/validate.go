package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateChannels(); err != nil {
		return err
	}
	if err := c.validateSchedule(); err != nil {
		return err
	}
	if err := c.validateService(); err != nil {
		return err
	}
	return nil
}

// EnabledChannels validates the configuration and returns the channels the
// communication manager should initialize.
func (c *Config) EnabledChannels() ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	out := make([]string, len(c.Channels.Enabled))
	copy(out, c.Channels.Enabled)
	return out, nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.BaseDir) == "" {
		return errors.New("paths.base_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	return nil
}

func (c *Config) validateChannels() error {
	if len(c.Channels.Enabled) == 0 {
		return errors.New("channels.enabled must list at least one channel")
	}
	for _, name := range c.Channels.Enabled {
		switch name {
		case ChannelConsole:
		case ChannelNtfy:
			if c.Channels.Ntfy.TopicPrefix == "" {
				return errors.New("channels.ntfy.topic_prefix must be set when ntfy is enabled (or set NUDGE_NTFY_TOPIC_PREFIX)")
			}
			if _, err := url.ParseRequestURI(c.Channels.Ntfy.Server); err != nil {
				return fmt.Errorf("channels.ntfy.server: %w", err)
			}
		case ChannelWebhook:
			if c.Channels.Webhook.URL == "" {
				return errors.New("channels.webhook.url must be set when webhook is enabled (or set NUDGE_WEBHOOK_URL)")
			}
			if _, err := url.ParseRequestURI(c.Channels.Webhook.URL); err != nil {
				return fmt.Errorf("channels.webhook.url: %w", err)
			}
		default:
			return fmt.Errorf("channels.enabled: unknown channel %q", name)
		}
	}
	return nil
}

func (c *Config) validateSchedule() error {
	if c.Schedule.Timezone != "" {
		if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
			return fmt.Errorf("schedule.timezone: %w", err)
		}
	}
	clocks := map[string]string{
		"schedule.default_time":       c.Schedule.DefaultTime,
		"schedule.checkin_time":       c.Schedule.CheckinTime,
		"schedule.task_reminder_time": c.Schedule.TaskReminderTime,
	}
	for category, value := range c.Schedule.CategoryTimes {
		clocks["schedule.category_times."+category] = value
	}
	for key, value := range clocks {
		if _, _, err := ParseClock(value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func (c *Config) validateService() error {
	if err := ensurePositiveMap(map[string]int{
		"service.poll_interval":    c.Service.PollInterval,
		"service.inner_iterations": c.Service.InnerIterations,
		"service.heartbeat_every":  c.Service.HeartbeatEvery,
		"service.manager_retries":  c.Service.ManagerRetries,
	}); err != nil {
		return err
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

// ParseClock parses a 24h "HH:MM" value.
func ParseClock(value string) (int, int, error) {
	hourText, minuteText, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid time %q (want HH:MM)", value)
	}
	hour, err := strconv.Atoi(hourText)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", value)
	}
	minute, err := strconv.Atoi(minuteText)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", value)
	}
	return hour, minute, nil
}
