package config

const (
	defaultStateDir            = "~/.local/share/flambient"
	defaultLogDir              = "~/.local/share/flambient/logs"
	defaultStrategy            = "flash"
	defaultLevelLow            = 25.0
	defaultLevelHigh           = 75.0
	defaultGamma               = 1.0
	defaultOutputPrefix        = "blend"
	defaultQuality             = 95
	defaultExifTool            = "exiftool"
	defaultMagick              = "magick"
	defaultRemoteBaseURL       = "https://api.autoenhance.ai"
	defaultRemoteTimeout       = 120
	defaultRetryMaxAttempts    = 5
	defaultRetryBackoffSeconds = 1
	defaultPollIntervalSeconds = 30
	defaultPollMaxAttempts     = 240
	defaultTransferWorkers     = 4
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"

	// APIKeyEnv names the environment variable holding the remote API key.
	APIKeyEnv = "FLAMBIENT_API_KEY"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Exposure: Exposure{
			Strategy: defaultStrategy,
		},
		Blend: Blend{
			LevelLow:     defaultLevelLow,
			LevelHigh:    defaultLevelHigh,
			Gamma:        defaultGamma,
			OutputPrefix: defaultOutputPrefix,
			Quality:      defaultQuality,
		},
		Tools: Tools{
			ExifTool: defaultExifTool,
			Magick:   defaultMagick,
		},
		Remote: Remote{
			BaseURL:             defaultRemoteBaseURL,
			TimeoutSeconds:      defaultRemoteTimeout,
			RetryMaxAttempts:    defaultRetryMaxAttempts,
			RetryBackoffSeconds: defaultRetryBackoffSeconds,
		},
		Workflow: Workflow{
			PollIntervalSeconds: defaultPollIntervalSeconds,
			PollMaxAttempts:     defaultPollMaxAttempts,
			TransferWorkers:     defaultTransferWorkers,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
