// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for velux-go. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
// All keys are flat and top level; the sub-structs below only group them.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	SkillType string `toml:"skill_type"`
	UserID    string `toml:"user_id"`

	StoreConfig
	LoggingConfig
	NetworkConfig
	MetricsConfig
}

// StoreConfig selects and configures the persistent store that holds
// settings, credentials and tokens.
type StoreConfig struct {
	StoreBackend   string `toml:"store_backend"`
	SQLitePath     string `toml:"sqlite_path"`
	RedisAddr      string `toml:"redis_addr"`
	RedisPassword  string `toml:"redis_password"`
	RedisDB        int    `toml:"redis_db"`
	RedisKeyPrefix string `toml:"redis_key_prefix"`
}

// LoggingConfig controls log output behavior: level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls HTTP client behavior. request_timeout bounds each
// single request; there is no retry below the token recovery layer.
type NetworkConfig struct {
	RequestTimeout string `toml:"request_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// MetricsConfig controls where counters are exported after each command.
// An empty metrics_textfile disables the export.
type MetricsConfig struct {
	MetricsTextfile string `toml:"metrics_textfile"`
}

// Store backend names.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Empty strings mean "not specified".
type CLIOverrides struct {
	ConfigPath string // --config flag (empty = use default)
	SkillType  string // --skill flag
	UserID     string // --user flag
}
