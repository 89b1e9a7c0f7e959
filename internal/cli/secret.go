package cli

import (
	"errors"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func (a *app) secretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage database secrets stored in the OS keychain",
	}
	cmd.AddCommand(a.secretSetCmd(), a.secretClearCmd())
	return cmd
}

// targetURL is the database a secret command applies to.
func (a *app) targetURL() (string, error) {
	u := strings.TrimSpace(a.url)
	if u == "" {
		u = a.cfg.Database.URL
	}
	if u == "" {
		return "", errors.New("database URL required (--url, config or RTDB_URL)")
	}
	return u, nil
}

func (a *app) secretSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <secret>",
		Short: "Store the secret for the database URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.targetURL()
			if err != nil {
				return err
			}
			kc, err := a.openKeychain()
			if err != nil {
				return err
			}
			if err := kc.SaveSecret(u, args[0]); err != nil {
				return err
			}
			pterm.Success.WithWriter(cmd.OutOrStdout()).Printfln("secret stored for %s", u)
			return nil
		},
	}
}

func (a *app) secretClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored secret for the database URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.targetURL()
			if err != nil {
				return err
			}
			kc, err := a.openKeychain()
			if err != nil {
				return err
			}
			if err := kc.DeleteSecret(u); err != nil {
				return err
			}
			pterm.Success.WithWriter(cmd.OutOrStdout()).Printfln("secret removed for %s", u)
			return nil
		},
	}
}
