package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_AllFieldsPopulated(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "custom", cfg.SkillType)
	assert.Empty(t, cfg.UserID)

	// Store defaults (using promoted field access)
	assert.Equal(t, "sqlite", cfg.StoreBackend)
	assert.Empty(t, cfg.SQLitePath)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Empty(t, cfg.RedisPassword)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, "velux:", cfg.RedisKeyPrefix)

	// Logging defaults
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "auto", cfg.LogFormat)

	// Network defaults
	assert.Equal(t, "30s", cfg.RequestTimeout)
	assert.Empty(t, cfg.UserAgent)

	assert.Empty(t, cfg.MetricsTextfile)
}

func TestDefaultConfig_PassesValidation(t *testing.T) {
	assert.NoError(t, Validate(DefaultConfig()))
}
