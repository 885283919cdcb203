package config

// Default values for configuration options. These represent the "layer 0"
// of the four-layer override chain.
const (
	defaultRequestDelay   = "500ms"
	defaultWatchDebounce  = "2s"
	defaultMaxRetries     = 3
	defaultBaseBackoff    = "2s"
	defaultMaxBackoff     = "60s"
	defaultConnectTimeout = "10s"
	defaultDataTimeout    = "60s"
	defaultGraphBaseURL   = "https://graph.microsoft.com/v1.0"
	defaultLogLevel       = "info"
	defaultLogFormat      = "auto"
	defaultTenant         = "common"
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Sync:    defaultSyncConfig(),
		Retry:   defaultRetryConfig(),
		Network: defaultNetworkConfig(),
		Auth:    AuthConfig{Tenant: defaultTenant},
		Logging: defaultLoggingConfig(),
	}
}

func defaultSyncConfig() SyncConfig {
	return SyncConfig{
		RequestDelay:  defaultRequestDelay,
		VerifyUploads: true,
		WatchDebounce: defaultWatchDebounce,
	}
}

func defaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  defaultMaxRetries,
		BaseBackoff: defaultBaseBackoff,
		MaxBackoff:  defaultMaxBackoff,
	}
}

func defaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		ConnectTimeout: defaultConnectTimeout,
		DataTimeout:    defaultDataTimeout,
		GraphBaseURL:   defaultGraphBaseURL,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}
