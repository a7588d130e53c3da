package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/tonimelisma/velux-go/internal/session"
)

// Validation range constants.
const (
	minRequestTimeout = 1 * time.Second
	maxRequestTimeout = 5 * time.Minute
	maxRedisDB        = 15
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateSkillType(cfg.SkillType)...)
	errs = append(errs, validateStore(&cfg.StoreConfig)...)
	errs = append(errs, validateLogging(&cfg.LoggingConfig)...)
	errs = append(errs, validateNetwork(&cfg.NetworkConfig)...)

	return errors.Join(errs...)
}

// ValidateResolved checks constraints on the final merged result of the
// four-layer override chain.
func ValidateResolved(r *Resolved) error {
	var errs []error

	if r.Store.StoreBackend == BackendSQLite && !filepath.IsAbs(r.Store.SQLitePath) {
		errs = append(errs, fmt.Errorf("sqlite_path: must be absolute after expansion, got %q", r.Store.SQLitePath))
	}

	if r.MetricsTextfile != "" && !filepath.IsAbs(r.MetricsTextfile) {
		errs = append(errs, fmt.Errorf("metrics_textfile: must be absolute after expansion, got %q", r.MetricsTextfile))
	}

	return errors.Join(errs...)
}

func validateSkillType(s string) []error {
	if _, err := session.ParseSkillType(s); err != nil {
		return []error{fmt.Errorf("skill_type: %w", err)}
	}

	return nil
}

var validStoreBackends = map[string]bool{
	BackendSQLite: true,
	BackendRedis:  true,
	BackendMemory: true,
}

func validateStore(s *StoreConfig) []error {
	var errs []error

	if !validStoreBackends[s.StoreBackend] {
		errs = append(errs, fmt.Errorf("store_backend: must be one of sqlite, redis, memory; got %q", s.StoreBackend))
	}

	if s.StoreBackend == BackendRedis && s.RedisAddr == "" {
		errs = append(errs, errors.New("redis_addr: required when store_backend is redis"))
	}

	if s.RedisDB < 0 || s.RedisDB > maxRedisDB {
		errs = append(errs, fmt.Errorf("redis_db: must be between 0 and %d, got %d", maxRedisDB, s.RedisDB))
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	d, err := time.ParseDuration(n.RequestTimeout)
	if err != nil {
		return []error{fmt.Errorf("request_timeout: invalid duration %q: %w", n.RequestTimeout, err)}
	}

	if d < minRequestTimeout || d > maxRequestTimeout {
		return []error{fmt.Errorf("request_timeout: must be between %s and %s, got %s",
			minRequestTimeout, maxRequestTimeout, n.RequestTimeout)}
	}

	return nil
}
