package config

// Default values for configuration options. These represent the "layer 0"
// of the four-layer override chain.
const (
	defaultSkillType      = "custom"
	defaultStoreBackend   = BackendSQLite
	defaultRedisAddr      = "localhost:6379"
	defaultRedisKeyPrefix = "velux:"
	defaultLogLevel       = "info"
	defaultLogFormat      = "auto"
	defaultRequestTimeout = "30s"
	defaultSQLiteFileName = "velux.db"
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
// An empty sqlite_path resolves to the data directory at Resolve time.
func DefaultConfig() *Config {
	return &Config{
		SkillType:     defaultSkillType,
		StoreConfig:   defaultStoreConfig(),
		LoggingConfig: defaultLoggingConfig(),
		NetworkConfig: defaultNetworkConfig(),
	}
}

func defaultStoreConfig() StoreConfig {
	return StoreConfig{
		StoreBackend:   defaultStoreBackend,
		RedisAddr:      defaultRedisAddr,
		RedisKeyPrefix: defaultRedisKeyPrefix,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}

func defaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		RequestTimeout: defaultRequestTimeout,
	}
}
