package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/velux-go/internal/session"
)

// testLogger returns a debug-level logger so config debug output appears in
// test output for CI visibility.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)

	return path
}

func TestLoad_ValidFullConfig(t *testing.T) {
	tomlContent := `
skill_type = "smarthome"
user_id = "amzn1.account.ABC"

store_backend = "redis"
sqlite_path = "/var/lib/velux/velux.db"
redis_addr = "redis.internal:6380"
redis_password = "pw"
redis_db = 3
redis_key_prefix = "skill:"

log_level = "debug"
log_format = "json"

request_timeout = "10s"
user_agent = "velux-go/test"

metrics_textfile = "/var/lib/node_exporter/velux.prom"
`

	path := writeTestConfig(t, tomlContent)
	cfg, err := Load(path, testLogger(t))
	require.NoError(t, err)

	assert.Equal(t, "smarthome", cfg.SkillType)
	assert.Equal(t, "amzn1.account.ABC", cfg.UserID)

	assert.Equal(t, "redis", cfg.StoreBackend)
	assert.Equal(t, "/var/lib/velux/velux.db", cfg.SQLitePath)
	assert.Equal(t, "redis.internal:6380", cfg.RedisAddr)
	assert.Equal(t, "pw", cfg.RedisPassword)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, "skill:", cfg.RedisKeyPrefix)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)

	assert.Equal(t, "10s", cfg.RequestTimeout)
	assert.Equal(t, "velux-go/test", cfg.UserAgent)

	assert.Equal(t, "/var/lib/node_exporter/velux.prom", cfg.MetricsTextfile)
}

func TestLoad_MinimalConfig_UsesDefaults(t *testing.T) {
	path := writeTestConfig(t, "")
	cfg, err := Load(path, testLogger(t))
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_PartialConfig_UsesDefaults(t *testing.T) {
	path := writeTestConfig(t, `log_level = "warn"`)
	cfg, err := Load(path, testLogger(t))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "auto", cfg.LogFormat)
	assert.Equal(t, "sqlite", cfg.StoreBackend)
}

func TestLoad_MalformedTOML(t *testing.T) {
	path := writeTestConfig(t, `[invalid toml`)
	_, err := Load(path, testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.toml", testLogger(t))
	require.Error(t, err)
}

func TestLoad_ValidationError(t *testing.T) {
	path := writeTestConfig(t, `store_backend = "dynamodb"`)
	_, err := Load(path, testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store_backend")
}

func TestLoadOrDefault_FileExists(t *testing.T) {
	path := writeTestConfig(t, `log_level = "debug"`)
	cfg, err := LoadOrDefault(path, testLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadOrDefault_FileNotFound(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"), testLogger(t))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolve_NoConfigFile(t *testing.T) {
	resolved, err := Resolve(
		EnvOverrides{ConfigPath: filepath.Join(t.TempDir(), "missing.toml")},
		CLIOverrides{},
		testLogger(t),
	)
	require.NoError(t, err)

	assert.Equal(t, session.SkillCustom, resolved.Skill)
	assert.Equal(t, 30*time.Second, resolved.RequestTimeout)
	assert.Equal(t, BackendSQLite, resolved.Store.StoreBackend)
	assert.Equal(t, DefaultSQLitePath(), resolved.Store.SQLitePath)
}

func TestResolve_EnvOverridesFile(t *testing.T) {
	path := writeTestConfig(t, `
skill_type = "custom"
user_id = "from-file"
redis_password = "file-pw"
`)
	resolved, err := Resolve(
		EnvOverrides{ConfigPath: path, SkillType: "smarthome", UserID: "from-env", RedisPassword: "env-pw"},
		CLIOverrides{},
		testLogger(t),
	)
	require.NoError(t, err)

	assert.Equal(t, session.SkillSmartHome, resolved.Skill)
	assert.Equal(t, "from-env", resolved.UserID)
	assert.Equal(t, "env-pw", resolved.Store.RedisPassword)
}

func TestResolve_CLIOverridesEnv(t *testing.T) {
	path := writeTestConfig(t, `user_id = "from-file"`)
	resolved, err := Resolve(
		EnvOverrides{ConfigPath: path, SkillType: "smarthome", UserID: "from-env"},
		CLIOverrides{SkillType: "custom", UserID: "from-cli"},
		testLogger(t),
	)
	require.NoError(t, err)

	assert.Equal(t, session.SkillCustom, resolved.Skill)
	assert.Equal(t, "from-cli", resolved.UserID)
}

func TestResolve_CLIConfigPathOverridesEnv(t *testing.T) {
	path := writeTestConfig(t, `user_id = "right"`)
	resolved, err := Resolve(
		EnvOverrides{ConfigPath: "/wrong/path"},
		CLIOverrides{ConfigPath: path},
		testLogger(t),
	)
	require.NoError(t, err)
	assert.Equal(t, "right", resolved.UserID)
	assert.Equal(t, path, resolved.ConfigPath)
}

func TestResolve_InvalidOverride(t *testing.T) {
	_, err := Resolve(
		EnvOverrides{ConfigPath: filepath.Join(t.TempDir(), "missing.toml")},
		CLIOverrides{SkillType: "flash-briefing"},
		testLogger(t),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "skill_type")
}

func TestResolve_InvalidConfigFile(t *testing.T) {
	path := writeTestConfig(t, `[invalid toml`)
	_, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{}, testLogger(t))
	require.Error(t, err)
}

func TestResolve_ExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	path := writeTestConfig(t, `
sqlite_path = "~/velux/velux.db"
metrics_textfile = "~/metrics/velux.prom"
`)
	resolved, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{}, testLogger(t))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "velux", "velux.db"), resolved.Store.SQLitePath)
	assert.Equal(t, filepath.Join(home, "metrics", "velux.prom"), resolved.MetricsTextfile)
}

func TestResolve_RelativeSQLitePath(t *testing.T) {
	path := writeTestConfig(t, `sqlite_path = "velux.db"`)
	_, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{}, testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite_path")
}

const validSettingsFile = `
base_url = "https://app.velux-active.com"
token_url = "/oauth2/token"
authorization = "Basic c2VjcmV0"
app_identifier = "com.velux.active"
device_model = "Pixel"
device_name = "velux-go"
scope = "all_scopes"
user_prefix = "velux"
sync_url = "/api/setstate"
app_version = "1.6.0"
app_type = "app_velux"
homesdata_url = "/api/homesdata"
homestatus_url = "/syncapi/v1/homestatus"
`

func TestLoadSettingsFile_Valid(t *testing.T) {
	path := writeTestConfig(t, validSettingsFile)

	st, err := LoadSettingsFile(path)
	require.NoError(t, err)

	assert.Equal(t, session.Settings{
		BaseURL:       "https://app.velux-active.com",
		TokenURL:      "/oauth2/token",
		Authorization: "Basic c2VjcmV0",
		AppIdentifier: "com.velux.active",
		DeviceModel:   "Pixel",
		DeviceName:    "velux-go",
		Scope:         "all_scopes",
		UserPrefix:    "velux",
		SyncURL:       "/api/setstate",
		AppVersion:    "1.6.0",
		AppType:       "app_velux",
		HomesDataURL:  "/api/homesdata",
		HomeStatusURL: "/syncapi/v1/homestatus",
	}, st)
}

func TestLoadSettingsFile_UnknownKey(t *testing.T) {
	path := writeTestConfig(t, validSettingsFile+`homedata_url = "/x"`+"\n")

	_, err := LoadSettingsFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown settings key")
	assert.Contains(t, err.Error(), "homesdata_url")
}

func TestLoadSettingsFile_Invalid(t *testing.T) {
	path := writeTestConfig(t, `base_url = "not a url"`)

	_, err := LoadSettingsFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
	assert.Contains(t, err.Error(), "token_url")
}
