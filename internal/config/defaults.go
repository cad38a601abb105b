package config

const (
	defaultDataDir             = "~/.local/share/gister"
	defaultLogDir              = "~/.local/share/gister/logs"
	defaultAPIBind             = "127.0.0.1:7332"
	defaultMaxAttempts         = 3
	defaultRetryBaseSeconds    = 60
	defaultPollIntervalSeconds = 5
	defaultBatchSize           = 6
	defaultConcurrency         = 3
	defaultMinDurationSeconds  = 120
	defaultMaxDurationSeconds  = 4 * 60 * 60
	defaultTimezone            = "UTC"
	defaultWarnFraction        = 0.8
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultNotifyTimeout       = 10
	defaultServiceTimeout      = 600
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Pipeline: Pipeline{
			MaxAttempts:         defaultMaxAttempts,
			RetryBaseSeconds:    defaultRetryBaseSeconds,
			PollIntervalSeconds: defaultPollIntervalSeconds,
			BatchSize:           defaultBatchSize,
			Concurrency:         defaultConcurrency,
			MinDurationSeconds:  defaultMinDurationSeconds,
			MaxDurationSeconds:  defaultMaxDurationSeconds,
			Timezone:            defaultTimezone,
		},
		Budget: Budget{
			Transcription: Dimension{
				DailyLimit:    5.0,
				Unit:          "USD",
				EstimatedCost: 0.25,
				WarnFraction:  defaultWarnFraction,
			},
			Discovery: Dimension{
				DailyLimit:    10000,
				Unit:          "units",
				EstimatedCost: 100,
				WarnFraction:  defaultWarnFraction,
			},
		},
		Services: Services{
			RequestTimeoutSeconds: defaultServiceTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Budget:         true,
			DeadLetter:     true,
			Queue:          true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
