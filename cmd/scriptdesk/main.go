package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"scriptdesk/internal/config"
	"scriptdesk/internal/version"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "scriptdesk",
		Short:         "Local backend for the script and novel writing desk",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("SCRIPTDESK_CONFIG"),
		"path to a YAML config file (env SCRIPTDESK_CONFIG)")

	load := func() (config.Config, error) {
		return config.Load(configPath)
	}

	root.AddCommand(
		newServeCmd(load),
		newAPIKeyCmd(load),
		&cobra.Command{
			Use:   "version",
			Short: "Print version info",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), "scriptdesk "+version.String())
			},
		},
	)
	return root
}
