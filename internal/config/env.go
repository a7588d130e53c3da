package config

import (
	"log/slog"
	"os"
)

// Environment variable names for overrides.
const (
	EnvConfig        = "VELUX_GO_CONFIG"
	EnvSkillType     = "VELUX_GO_SKILL_TYPE"
	EnvUserID        = "VELUX_GO_USER_ID"
	EnvRedisPassword = "VELUX_GO_REDIS_PASSWORD" //nolint:gosec // variable name, not a secret

	// EnvPassword supplies the account password to "credentials set". It is
	// not part of the override chain.
	EnvPassword = "VELUX_GO_PASSWORD" //nolint:gosec // variable name, not a secret
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath    string // VELUX_GO_CONFIG: override config file path
	SkillType     string // VELUX_GO_SKILL_TYPE: custom or smarthome
	UserID        string // VELUX_GO_USER_ID: session user id
	RedisPassword string // VELUX_GO_REDIS_PASSWORD: keeps the secret out of the file
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides(logger *slog.Logger) EnvOverrides {
	o := EnvOverrides{
		ConfigPath:    os.Getenv(EnvConfig),
		SkillType:     os.Getenv(EnvSkillType),
		UserID:        os.Getenv(EnvUserID),
		RedisPassword: os.Getenv(EnvRedisPassword),
	}

	if logger != nil {
		logger.Debug("read environment overrides",
			slog.Bool("config", o.ConfigPath != ""),
			slog.Bool("skill_type", o.SkillType != ""),
			slog.Bool("user_id", o.UserID != ""),
			slog.Bool("redis_password", o.RedisPassword != ""),
		)
	}

	return o
}
