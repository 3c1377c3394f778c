package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scriptdesk/internal/config"
	"scriptdesk/internal/settings"
)

func newAPIKeyCmd(load func() (config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage the stored upstream API key",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <key>",
			Short: "Validate and store the API key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := load()
				if err != nil {
					return err
				}
				d, err := openDeps(cmd.Context(), cfg, zap.NewNop())
				if err != nil {
					return err
				}
				defer func() { _ = d.Close() }()

				if err := settings.SaveAPIKey(cmd.Context(), d.settings, args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "api key saved")
				return nil
			},
		},
		&cobra.Command{
			Use:   "check",
			Short: "Report whether an API key is stored",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := load()
				if err != nil {
					return err
				}
				d, err := openDeps(cmd.Context(), cfg, zap.NewNop())
				if err != nil {
					return err
				}
				defer func() { _ = d.Close() }()

				st, err := settings.CheckAPIKey(cmd.Context(), d.settings)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exists=%t configured=%t length=%d\n", st.Exists, st.Configured, st.Length)
				return nil
			},
		},
	)
	return cmd
}
