package config

const (
	defaultConfigPath              = "~/.config/memalerts/config.toml"
	defaultDataDir                 = "~/.local/share/memalerts"
	defaultLogDir                  = "~/.local/share/memalerts/logs"
	defaultUploadsDir              = "~/.local/share/memalerts/uploads"
	defaultVocabularyPath          = "~/.config/memalerts/tags.yaml"
	defaultAPIBind                 = "127.0.0.1:7588"
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultLogRetentionDays        = 30
	defaultMaxAttempts             = 5
	defaultLeaseSeconds            = 600
	defaultBackoffBaseSeconds      = 30
	defaultBackoffMaxSeconds       = 1800
	defaultWatchdogIntervalSeconds = 60
	defaultWatchdogBatch           = 50
	defaultStaleSeconds            = 1800
	defaultQuarantineDays          = 30
	defaultPipelineTimeoutSeconds  = 300
	defaultFetchTimeoutSeconds     = 60
	defaultMaxFetchMB              = 512
	defaultApprovalMaxRiskScore    = 0.2
	defaultApprovalPriceCoins      = 100
	defaultMaxTags                 = 12
	defaultSpamWindowHours         = 24
	defaultSpamFlagThreshold       = 3
	defaultWorkers                 = 2
	defaultPollInterval            = 5
	defaultErrorRetryInterval      = 10
	defaultNotifyRequestTimeout    = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			UploadsDir: defaultUploadsDir,
			APIBind:    defaultAPIBind,
		},
		Moderation: Moderation{
			MaxAttempts:             defaultMaxAttempts,
			LeaseSeconds:            defaultLeaseSeconds,
			BackoffBaseSeconds:      defaultBackoffBaseSeconds,
			BackoffMaxSeconds:       defaultBackoffMaxSeconds,
			WatchdogIntervalSeconds: defaultWatchdogIntervalSeconds,
			WatchdogBatch:           defaultWatchdogBatch,
			StaleSeconds:            defaultStaleSeconds,
			QuarantineDays:          defaultQuarantineDays,
		},
		Pipeline: Pipeline{
			TimeoutSeconds:      defaultPipelineTimeoutSeconds,
			FetchTimeoutSeconds: defaultFetchTimeoutSeconds,
			MaxFetchMB:          defaultMaxFetchMB,
		},
		Approval: Approval{
			Enabled:           true,
			MaxRiskScore:      defaultApprovalMaxRiskScore,
			DefaultPriceCoins: defaultApprovalPriceCoins,
		},
		Tags: Tags{
			VocabularyPath: defaultVocabularyPath,
			Watch:          true,
			MaxTags:        defaultMaxTags,
		},
		Spam: Spam{
			Enabled:       true,
			WindowHours:   defaultSpamWindowHours,
			FlagThreshold: defaultSpamFlagThreshold,
		},
		Workflow: Workflow{
			Workers:            defaultWorkers,
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Notifications: Notifications{
			RequestTimeout:   defaultNotifyRequestTimeout,
			Quarantine:       true,
			RetriesExhausted: true,
			Spam:             true,
			Watchdog:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
