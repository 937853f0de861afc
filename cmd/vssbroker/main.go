package main

import (
	"os"

	"github.com/spf13/cobra"

	"vssbroker/internal/interfaces/cli/serve"
	"vssbroker/internal/shared/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "vssbroker",
		Short:   "vssbroker - a Vehicle Signal Specification broker",
		Long:    `vssbroker serves a VSS signal tree over WebSocket and HTTP, with JWT-scoped read/write access and change subscriptions.`,
		Version: version.Current,
	}

	rootCmd.Flags().BoolP("version", "v", false, "version for vssbroker")

	rootCmd.AddCommand(serve.NewCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
