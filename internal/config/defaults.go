package config

const (
	defaultDataDir           = "~/.local/share/ferry/data"
	defaultLogDir            = "~/.local/share/ferry/logs"
	defaultAPIBind           = "127.0.0.1:7519"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultMaxConcurrency    = 3
	defaultStageTimeout      = 60
	defaultWatchdogInterval  = 2
	defaultMaxPendingBatches = 64
	defaultMaxPayloadBytes   = 512 << 20
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Uploader: Uploader{
			MaxConcurrency:      defaultMaxConcurrency,
			StageTimeoutSeconds: defaultStageTimeout,
			WatchdogSeconds:     defaultWatchdogInterval,
			MaxPendingBatches:   defaultMaxPendingBatches,
			MaxPayloadBytes:     defaultMaxPayloadBytes,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
