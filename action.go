package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/velux-go/internal/velux"
)

func newScenarioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenario <name>",
		Short: "Run a scenario (for example wake_up or bedtime) on the configured home",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, velux.RunScenario{}.Name(), args)
		},
	}
}

func newHomeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "home",
		Short: "Query homes",
	}

	cmd.AddCommand(newHomeInfoCmd())
	cmd.AddCommand(newHomeStatusCmd())

	return cmd
}

func newHomeInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the homes data of the configured user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAction(cmd, velux.HomeInfo{}.Name(), nil)
		},
	}
}

func newHomeStatusCmd() *cobra.Command {
	var homeID string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the status of a home",
		Long:  "Print the status of a home. Without --home-id the home of the stored credentials is used.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var args []string
			if homeID != "" {
				args = []string{homeID}
			}

			return runAction(cmd, velux.HomeStatus{}.Name(), args)
		},
	}

	cmd.Flags().StringVar(&homeID, "home-id", "", "home to query instead of the stored one")

	return cmd
}

// runAction warms the session up and sends one action with token recovery.
// The raw response body goes to stdout.
func runAction(cmd *cobra.Command, name string, args []string) error {
	ctx := cmd.Context()

	cc, err := cliContextFrom(ctx)
	if err != nil {
		return err
	}

	action, err := velux.ParseAction(name, args)
	if err != nil {
		return err
	}

	return cc.withClient(ctx, func(client *velux.Client) error {
		sess := cc.newSession()
		if err := client.WarmUp(ctx, sess); err != nil {
			return fmt.Errorf("warm-up: %w", err)
		}

		resp, err := client.Do(ctx, sess, action)
		if err != nil {
			return err
		}

		return printBody(cmd.OutOrStdout(), resp.Body, cc.Flags.JSON)
	})
}
