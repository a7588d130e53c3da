package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/velux-go/internal/config"
	"github.com/tonimelisma/velux-go/internal/credstore"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage the shared backend settings",
	}

	cmd.AddCommand(newSettingsImportCmd())
	cmd.AddCommand(newSettingsShowCmd())
	cmd.AddCommand(newSettingsReloadCmd())

	return cmd
}

func newSettingsImportCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load a TOML settings file into the store",
		Long: `Validates a TOML settings file and writes it as the shared settings record.
With --watch the file is re-imported every time it changes until the process
receives SIGINT or SIGTERM. A change that fails validation is logged and the
previous record is kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettingsImport(cmd, args[0], watch)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "re-import on change until interrupted")

	return cmd
}

func runSettingsImport(cmd *cobra.Command, path string, watch bool) error {
	ctx := cmd.Context()

	cc, err := cliContextFrom(ctx)
	if err != nil {
		return err
	}

	return cc.withCredStore(ctx, func(cs *credstore.Store) error {
		importOnce := func() error {
			return importSettings(ctx, cs, path)
		}

		if err := importOnce(); err != nil {
			return err
		}

		cc.Statusf("Imported settings from %s\n", path)

		if !watch {
			return nil
		}

		release, err := acquirePIDFile(config.DefaultWatchPIDPath())
		if err != nil {
			return err
		}
		defer release()

		watchCtx := shutdownContext(ctx, cc.Logger)
		cc.Logger.Info("watching settings file", slog.String("path", path))

		return watchSettingsFile(watchCtx, path, cc.Logger, func() error {
			if err := importOnce(); err != nil {
				return err
			}

			cc.Statusf("Re-imported settings from %s\n", path)

			return nil
		})
	})
}

func importSettings(ctx context.Context, cs *credstore.Store, path string) error {
	st, err := config.LoadSettingsFile(path)
	if err != nil {
		return err
	}

	if err := cs.SaveSettings(ctx, st); err != nil {
		return fmt.Errorf("importing %s: %w", path, err)
	}

	return nil
}

func newSettingsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the stored settings with secrets redacted",
		Args:  cobra.NoArgs,
		RunE:  runSettingsShow,
	}
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cc, err := cliContextFrom(ctx)
	if err != nil {
		return err
	}

	return cc.withCredStore(ctx, func(cs *credstore.Store) error {
		st, err := cs.LoadSettings(ctx, cc.newSession())
		if err != nil {
			return err
		}

		return printSettings(cmd.OutOrStdout(), st.Redacted(), cc.Flags.JSON)
	})
}

func newSettingsReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Make a running settings watcher re-import its file now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := cliContextFrom(cmd.Context())
			if err != nil {
				return err
			}

			pid, err := signalWatcher(config.DefaultWatchPIDPath())
			if err != nil {
				return err
			}

			cc.Statusf("Sent reload signal to settings watcher (PID %d)\n", pid)

			return nil
		},
	}
}
