package main

import (
	"github.com/spf13/cobra"

	"github.com/tonimelisma/velux-go/internal/config"
)

// effectiveConfig is the printable form of config.Resolved.
type effectiveConfig struct {
	ConfigPath      string `json:"config_path"`
	SkillType       string `json:"skill_type"`
	UserID          string `json:"user_id"`
	StoreBackend    string `json:"store_backend"`
	SQLitePath      string `json:"sqlite_path,omitempty"`
	RedisAddr       string `json:"redis_addr,omitempty"`
	RedisPassword   string `json:"redis_password,omitempty"`
	RedisDB         int    `json:"redis_db"`
	RedisKeyPrefix  string `json:"redis_key_prefix,omitempty"`
	LogLevel        string `json:"log_level"`
	LogFormat       string `json:"log_format"`
	RequestTimeout  string `json:"request_timeout"`
	UserAgent       string `json:"user_agent"`
	MetricsTextfile string `json:"metrics_textfile,omitempty"`
}

func newEffectiveConfig(r *config.Resolved) effectiveConfig {
	ec := effectiveConfig{
		ConfigPath:      r.ConfigPath,
		SkillType:       r.Skill.String(),
		UserID:          r.UserID,
		StoreBackend:    r.Store.StoreBackend,
		LogLevel:        r.Logging.LogLevel,
		LogFormat:       r.Logging.LogFormat,
		RequestTimeout:  r.RequestTimeout.String(),
		UserAgent:       r.UserAgent,
		MetricsTextfile: r.MetricsTextfile,
	}

	switch r.Store.StoreBackend {
	case config.BackendSQLite:
		ec.SQLitePath = r.Store.SQLitePath
	case config.BackendRedis:
		ec.RedisAddr = r.Store.RedisAddr
		ec.RedisDB = r.Store.RedisDB
		ec.RedisKeyPrefix = r.Store.RedisKeyPrefix

		if r.Store.RedisPassword != "" {
			ec.RedisPassword = "[redacted]"
		}
	}

	return ec
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc, err := cliContextFrom(cmd.Context())
	if err != nil {
		return err
	}

	ec := newEffectiveConfig(cc.Cfg)

	if cc.Flags.JSON {
		return printJSON(cmd.OutOrStdout(), ec)
	}

	rows := [][]string{
		{"config_path", ec.ConfigPath},
		{"skill_type", ec.SkillType},
		{"user_id", orDash(ec.UserID)},
		{"store_backend", ec.StoreBackend},
	}

	switch ec.StoreBackend {
	case config.BackendSQLite:
		rows = append(rows, []string{"sqlite_path", ec.SQLitePath})
	case config.BackendRedis:
		rows = append(rows,
			[]string{"redis_addr", ec.RedisAddr},
			[]string{"redis_password", orDash(ec.RedisPassword)},
			[]string{"redis_key_prefix", ec.RedisKeyPrefix},
		)
	}

	rows = append(rows,
		[]string{"log_level", ec.LogLevel},
		[]string{"log_format", ec.LogFormat},
		[]string{"request_timeout", ec.RequestTimeout},
		[]string{"user_agent", ec.UserAgent},
		[]string{"metrics_textfile", orDash(ec.MetricsTextfile)},
	)

	printTable(cmd.OutOrStdout(), []string{"KEY", "VALUE"}, rows)

	return nil
}
