package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/velux-go/internal/config"
	"github.com/tonimelisma/velux-go/internal/credstore"
	"github.com/tonimelisma/velux-go/internal/metrics"
	"github.com/tonimelisma/velux-go/internal/session"
	"github.com/tonimelisma/velux-go/internal/store"
	"github.com/tonimelisma/velux-go/internal/store/redisstore"
	"github.com/tonimelisma/velux-go/internal/store/sqlitestore"
	"github.com/tonimelisma/velux-go/internal/velux"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagSkill      string
	flagUser       string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// CLIFlags is the parsed form of the persistent flags.
type CLIFlags struct {
	ConfigPath string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext carries everything a subcommand needs for one invocation. It
// is built in PersistentPreRunE and stored on the command context.
type CLIContext struct {
	Flags        CLIFlags
	Cfg          *config.Resolved
	Logger       *slog.Logger
	InvocationID string
	Metrics      *metrics.Recorder
	HTTPClient   *http.Client
}

type cliContextKey struct{}

// cliContextFrom returns the CLIContext stored by PersistentPreRunE.
func cliContextFrom(ctx context.Context) (*CLIContext, error) {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cc == nil {
		return nil, errors.New("no configuration loaded")
	}

	return cc, nil
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "velux-go",
		Short:   "Velux ACTIVE backend client",
		Long:    "Obtains and refreshes tokens for the Velux ACTIVE backend and sends home requests on behalf of a user.",
		Version: version,
		// Silence Cobra's default error/usage printing; main reports errors.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := loadCLIContext()
			if err != nil {
				return err
			}

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagSkill, "skill", "", "skill type (custom or smarthome)")
	cmd.PersistentFlags().StringVar(&flagUser, "user", "", "session user id")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newWarmupCmd())
	cmd.AddCommand(newScenarioCmd())
	cmd.AddCommand(newHomeCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newSettingsCmd())
	cmd.AddCommand(newCredentialsCmd())
	cmd.AddCommand(newLinkCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadCLIContext resolves the effective configuration from the four-layer
// override chain and builds the per-invocation logger, HTTP client and
// metrics recorder.
func loadCLIContext() (*CLIContext, error) {
	flags := CLIFlags{
		ConfigPath: flagConfigPath,
		JSON:       flagJSON,
		Verbose:    flagVerbose,
		Quiet:      flagQuiet,
	}

	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
		SkillType:  flagSkill,
		UserID:     flagUser,
	}

	// Config loading logs before the configured logger exists.
	bootstrap := buildLogger(nil, flags, os.Stderr)

	resolved, err := config.Resolve(config.ReadEnvOverrides(bootstrap), cli, bootstrap)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	id := uuid.NewString()
	logger := buildLogger(resolved, flags, os.Stderr).With(slog.String("invocation_id", id))

	logger.Debug("configuration resolved",
		slog.String("config_path", resolved.ConfigPath),
		slog.String("skill", resolved.Skill.String()),
		slog.String("store_backend", resolved.Store.StoreBackend),
	)

	return &CLIContext{
		Flags:        flags,
		Cfg:          resolved,
		Logger:       logger,
		InvocationID: id,
		Metrics:      metrics.New(),
		HTTPClient:   &http.Client{Timeout: resolved.RequestTimeout},
	}, nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger(cfg *config.Resolved, flags CLIFlags, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	format := "auto"

	// Config-based log level (lower priority than CLI flags).
	if cfg != nil {
		switch cfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}

		format = cfg.Logging.LogFormat
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if useJSONLogs(format, w) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// useJSONLogs reports whether logs go out as JSON. "auto" picks text for a
// terminal and JSON for everything else.
func useJSONLogs(format string, w io.Writer) bool {
	switch format {
	case "json":
		return true
	case "text":
		return false
	}

	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return true
	}

	return !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
}

// openStore opens the configured backend.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		s, err := sqlitestore.Open(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}

		return s, nil
	case config.BackendRedis:
		s, err := redisstore.Open(ctx, redisstore.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisKeyPrefix,
		}, logger)
		if err != nil {
			return nil, err
		}

		return s, nil
	case config.BackendMemory:
		logger.Warn("memory store does not persist between invocations")

		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// newSession creates an empty session for the configured user.
func (cc *CLIContext) newSession() *session.Session {
	return session.New(cc.Cfg.Skill, cc.Cfg.UserID)
}

// withStore opens the configured backend, runs fn against a credential
// store over it, and closes the backend. Metrics are flushed whether or not
// fn succeeds.
func (cc *CLIContext) withStore(ctx context.Context, fn func(backend store.Store) error) error {
	backend, err := openStore(ctx, cc.Cfg.Store, cc.Logger)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := backend.Close(); closeErr != nil {
			cc.Logger.Warn("closing store", slog.String("error", closeErr.Error()))
		}
	}()

	runErr := fn(backend)
	cc.flushMetrics()

	return runErr
}

// withCredStore is withStore for commands that only manage records.
func (cc *CLIContext) withCredStore(ctx context.Context, fn func(cs *credstore.Store) error) error {
	return cc.withStore(ctx, func(backend store.Store) error {
		return fn(credstore.New(backend, cc.Logger))
	})
}

// withClient is withStore for commands that talk to the backend.
func (cc *CLIContext) withClient(ctx context.Context, fn func(client *velux.Client) error) error {
	return cc.withStore(ctx, func(backend store.Store) error {
		return fn(velux.NewClient(velux.Options{
			Backend:    backend,
			HTTPClient: cc.HTTPClient,
			UserAgent:  cc.Cfg.UserAgent,
			Metrics:    cc.Metrics,
			Logger:     cc.Logger,
		}))
	})
}

// flushMetrics writes the counters to the configured textfile. A failed
// write is logged and never fails the command.
func (cc *CLIContext) flushMetrics() {
	if cc.Cfg.MetricsTextfile == "" {
		return
	}

	if err := cc.Metrics.WriteTextfile(cc.Cfg.MetricsTextfile); err != nil {
		cc.Logger.Warn("writing metrics textfile", slog.String("error", err.Error()))
	}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
