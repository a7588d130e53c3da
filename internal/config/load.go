package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tonimelisma/velux-go/internal/session"
)

// Resolved is the fully merged configuration for one invocation.
type Resolved struct {
	ConfigPath      string
	Skill           session.SkillType
	UserID          string
	Store           StoreConfig
	Logging         LoggingConfig
	RequestTimeout  time.Duration
	UserAgent       string
	MetricsTextfile string
}

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions.
func Load(path string, logger *slog.Logger) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md, "config", knownGlobalKeysList); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if logger != nil {
		logger.Debug("loaded config file", slog.String("path", path))
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if logger != nil {
			logger.Debug("no config file, using defaults", slog.String("path", path))
		}

		return DefaultConfig(), nil
	}

	return Load(path, logger)
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*Resolved, error) {
	// 1. Resolve config path: CLI > env > default
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	// 2. Load config file (returns defaults if no file exists)
	cfg, err := LoadOrDefault(cfgPath, logger)
	if err != nil {
		return nil, err
	}

	// 3. Apply env overrides
	if env.SkillType != "" {
		cfg.SkillType = env.SkillType
	}

	if env.UserID != "" {
		cfg.UserID = env.UserID
	}

	if env.RedisPassword != "" {
		cfg.RedisPassword = env.RedisPassword
	}

	// 4. Apply CLI overrides
	if cli.SkillType != "" {
		cfg.SkillType = cli.SkillType
	}

	if cli.UserID != "" {
		cfg.UserID = cli.UserID
	}

	// Overrides bypassed file validation; check the merged values again.
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	resolved, err := resolve(cfgPath, cfg)
	if err != nil {
		return nil, err
	}

	// 5. Validate the final resolved config
	if err := ValidateResolved(resolved); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return resolved, nil
}

// resolve converts a validated Config into its typed form.
func resolve(cfgPath string, cfg *Config) (*Resolved, error) {
	skill, err := session.ParseSkillType(cfg.SkillType)
	if err != nil {
		return nil, fmt.Errorf("skill_type: %w", err)
	}

	timeout, err := time.ParseDuration(cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("request_timeout: %w", err)
	}

	st := cfg.StoreConfig
	if st.SQLitePath == "" {
		st.SQLitePath = DefaultSQLitePath()
	}

	st.SQLitePath = expandTilde(st.SQLitePath)

	return &Resolved{
		ConfigPath:      cfgPath,
		Skill:           skill,
		UserID:          cfg.UserID,
		Store:           st,
		Logging:         cfg.LoggingConfig,
		RequestTimeout:  timeout,
		UserAgent:       cfg.UserAgent,
		MetricsTextfile: expandTilde(cfg.MetricsTextfile),
	}, nil
}

// LoadSettingsFile reads a backend settings file for import into the store.
// Unknown keys are fatal, and the result must pass Settings.Validate.
func LoadSettingsFile(path string) (session.Settings, error) {
	var st session.Settings

	md, err := toml.DecodeFile(path, &st)
	if err != nil {
		return session.Settings{}, fmt.Errorf("parsing settings file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md, "settings", knownSettingsKeysList); err != nil {
		return session.Settings{}, err
	}

	if err := st.Validate(); err != nil {
		return session.Settings{}, fmt.Errorf("settings file %s: %w", path, err)
	}

	return st, nil
}
