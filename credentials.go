package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/velux-go/internal/config"
	"github.com/tonimelisma/velux-go/internal/credstore"
	"github.com/tonimelisma/velux-go/internal/session"
)

func newCredentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage user credentials",
	}

	cmd.AddCommand(newCredentialsSetCmd())

	return cmd
}

func newCredentialsSetCmd() *cobra.Command {
	var (
		creds         session.Credentials
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Write credentials for the configured user",
		Long: `Writes a credentials record. Custom skill records are keyed by the
configured user id. SmartHome records are keyed by username and carry the
configured user id, if any. A token stored on an existing record is dropped.

The password is taken from --password-stdin, then --password, then the
VELUX_GO_PASSWORD environment variable. --password is visible in shell
history and the process list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := resolvePassword(cmd.InOrStdin(), passwordStdin, creds.Password)
			if err != nil {
				return err
			}

			creds.Password = password

			return runCredentialsSet(cmd, creds)
		},
	}

	cmd.Flags().StringVar(&creds.Username, "username", "", "Velux account username")
	cmd.Flags().StringVar(&creds.Password, "password", "", "Velux account password (visible in shell history)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from the first line of stdin")
	cmd.Flags().StringVar(&creds.HomeID, "home-id", "", "home addressed by scenarios")
	cmd.Flags().StringVar(&creds.Bridge, "bridge", "", "bridge module id of the home")

	_ = cmd.MarkFlagRequired("username")
	cmd.MarkFlagsMutuallyExclusive("password", "password-stdin")

	return cmd
}

// resolvePassword picks the password from stdin, the flag value or the
// environment. An empty result is an error.
func resolvePassword(stdin io.Reader, fromStdin bool, flagValue string) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("reading password from stdin: %w", err)
		}

		password := strings.TrimRight(line, "\r\n")
		if password == "" {
			return "", errors.New("credentials set: empty password on stdin")
		}

		return password, nil
	}

	if flagValue != "" {
		return flagValue, nil
	}

	if password := os.Getenv(config.EnvPassword); password != "" {
		return password, nil
	}

	return "", fmt.Errorf("credentials set: no password given (use --password-stdin, --password or %s)", config.EnvPassword)
}

func runCredentialsSet(cmd *cobra.Command, creds session.Credentials) error {
	ctx := cmd.Context()

	cc, err := cliContextFrom(ctx)
	if err != nil {
		return err
	}

	return cc.withCredStore(ctx, func(cs *credstore.Store) error {
		key, err := cs.SaveCredentials(ctx, cc.Cfg.Skill, cc.Cfg.UserID, creds)
		if err != nil {
			return err
		}

		cc.Statusf("Saved credentials as %s\n", key)

		return nil
	})
}

func newLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link <username>",
		Short: "Attach the configured user id to a SmartHome credentials record",
		Args:  cobra.ExactArgs(1),
		RunE:  runLink,
	}
}

func runLink(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cc, err := cliContextFrom(ctx)
	if err != nil {
		return err
	}

	if cc.Cfg.Skill != session.SkillSmartHome {
		return errors.New("link: only SmartHome credentials are linked to a user id; use --skill smarthome")
	}

	return cc.withCredStore(ctx, func(cs *credstore.Store) error {
		if err := cs.LinkUser(ctx, args[0], cc.Cfg.UserID); err != nil {
			return err
		}

		cc.Statusf("Linked %s to %s\n", args[0], cc.Cfg.UserID)

		return nil
	})
}
