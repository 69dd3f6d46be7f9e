// Package cmd implements the listsyncd command line.
package cmd

import "github.com/spf13/cobra"

// Version is set at build time with -ldflags.
var Version = "dev"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "listsyncd",
		Short:         "Real-time list event sync server",
		Long:          "listsyncd accepts authenticated WebSocket connections and relays list, item and comment events between every server process sharing a broker.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(),
	)
	return rootCmd
}
