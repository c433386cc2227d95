// Package main implements the tickit-sync server and its admin commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "tickit-sync",
		Short:        "Self-hosted sync server for Tickit task manager",
		Version:      version,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(),
		newTokenCmd(),
		newInitCmd(),
		newBackupCmd(),
		newRestoreCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tickit-sync %s\n", version)
		},
	}
}
