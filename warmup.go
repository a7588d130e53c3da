package main

import (
	"github.com/spf13/cobra"

	"github.com/tonimelisma/velux-go/internal/velux"
)

func newWarmupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "warmup",
		Short: "Load settings, credentials and a token for the configured user",
		Long: `Runs the warm-up sequence for the configured user and prints the resulting
session. Missing settings are an error. Missing credentials are not: the
session is printed without them and later requests will fail. When no token
is stored a password grant is issued and its result persisted.`,
		Args: cobra.NoArgs,
		RunE: runWarmup,
	}
}

func runWarmup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cc, err := cliContextFrom(ctx)
	if err != nil {
		return err
	}

	return cc.withClient(ctx, func(client *velux.Client) error {
		sess := cc.newSession()
		if err := client.WarmUp(ctx, sess); err != nil {
			return err
		}

		return printSnapshot(cmd.OutOrStdout(), sess.Snapshot(), cc.Flags.JSON)
	})
}
