package config

const (
	defaultBaseDir          = "~/.local/share/nudge"
	defaultDataDir          = "~/.local/share/nudge/data"
	defaultLogDir           = "~/.local/share/nudge/logs"
	defaultCacheDir         = "~/.cache/nudge"
	defaultLogRetentionDays = 30
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultNtfyServer       = "https://ntfy.sh"
	defaultRequestTimeout   = 10
	defaultScheduleTime     = "09:00"
	defaultCheckinTime      = "18:00"
	defaultTaskReminderTime = "12:00"
	defaultPollInterval     = 2
	defaultInnerIterations  = 30
	defaultHeartbeatEvery   = 60
	defaultManagerRetries   = 3
	defaultRetryBackoff     = 1
	defaultDispatchTimeout  = 30
	defaultCacheMaxAgeDays  = 7
	defaultChannel          = ChannelConsole
)

// Channel names recognised in channels.enabled.
const (
	ChannelConsole = "console"
	ChannelNtfy    = "ntfy"
	ChannelWebhook = "webhook"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			BaseDir:  defaultBaseDir,
			DataDir:  defaultDataDir,
			LogDir:   defaultLogDir,
			CacheDir: defaultCacheDir,
		},
		Channels: Channels{
			Enabled: []string{defaultChannel},
			Ntfy: Ntfy{
				Server:         defaultNtfyServer,
				RequestTimeout: defaultRequestTimeout,
			},
			Webhook: Webhook{
				RequestTimeout: defaultRequestTimeout,
			},
		},
		Schedule: Schedule{
			DefaultTime:      defaultScheduleTime,
			CategoryTimes:    map[string]string{},
			CheckinTime:      defaultCheckinTime,
			TaskReminderTime: defaultTaskReminderTime,
		},
		Service: Service{
			PollInterval:    defaultPollInterval,
			InnerIterations: defaultInnerIterations,
			HeartbeatEvery:  defaultHeartbeatEvery,
			ManagerRetries:  defaultManagerRetries,
			RetryBackoff:    defaultRetryBackoff,
			DispatchTimeout: defaultDispatchTimeout,
			WatchFlags:      true,
			CacheMaxAgeDays: defaultCacheMaxAgeDays,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
