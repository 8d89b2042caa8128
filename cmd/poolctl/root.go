package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	serverURL string
	outputFmt string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "poolctl",
		Short: "CLI for the cookiepool admin API",
		Long: `poolctl manages the credential pool of a running cookiepool server.

Upload exported cookie files, inspect their health, trigger probes and
toggle the browser session fallback.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.outputFmt {
			case "table", "json", "yaml":
				return nil
			}
			return fmt.Errorf("unsupported output format %q (use table, json or yaml)", opts.outputFmt)
		},
	}

	root.PersistentFlags().StringVar(&opts.serverURL, "server", "http://127.0.0.1:8080", "cookiepool server URL")
	root.PersistentFlags().StringVarP(&opts.outputFmt, "output", "o", "table", "Output format: table, json, yaml")

	root.AddCommand(
		newListCmd(opts),
		newAddCmd(opts),
		newDeleteCmd(opts),
		newProbeCmd(opts),
		newResetCmd(opts),
		newCheckCmd(opts),
		newStatsCmd(opts),
		newFallbackCmd(opts),
		newResolveCmd(opts),
	)

	return root
}
