package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/velux-go/internal/velux"
)

// tokenInfo is the printable part of a token. Token values are secrets and
// never printed.
type tokenInfo struct {
	Grant      string    `json:"grant"`
	TokenType  string    `json:"token_type"`
	Expiry     time.Time `json:"expiry,omitzero"`
	HasRefresh bool      `json:"has_refresh_token"`
}

func newTokenCmd() *cobra.Command {
	var grant string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Force a token grant for the configured user",
		Long: `Warms the session up, then issues the requested grant regardless of
whether the stored token still works. The new token is persisted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runToken(cmd, grant)
		},
	}

	cmd.Flags().StringVar(&grant, "grant", string(velux.GrantRefreshToken), "grant type: password or refresh_token")

	return cmd
}

func runToken(cmd *cobra.Command, grantName string) error {
	ctx := cmd.Context()

	cc, err := cliContextFrom(ctx)
	if err != nil {
		return err
	}

	grant, err := velux.ParseGrantType(grantName)
	if err != nil {
		return err
	}

	return cc.withClient(ctx, func(client *velux.Client) error {
		sess := cc.newSession()
		if err := client.WarmUp(ctx, sess); err != nil {
			return fmt.Errorf("warm-up: %w", err)
		}

		tok, err := client.RequestToken(ctx, sess, grant)
		if err != nil {
			return err
		}

		info := tokenInfo{
			Grant:      string(grant),
			TokenType:  tok.Type(),
			Expiry:     tok.Expiry,
			HasRefresh: tok.RefreshToken != "",
		}

		if cc.Flags.JSON {
			return printJSON(cmd.OutOrStdout(), info)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s grant succeeded: %s token, expires %s\n",
			info.Grant, info.TokenType, formatTime(info.Expiry))

		return nil
	})
}
