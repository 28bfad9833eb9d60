package main

import "github.com/spf13/cobra"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "navtree",
		Short:        "Menu tree service and maintenance tools",
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newTreeCmd(),
		newReindexCmd(),
		newSnapshotCmd(),
		newWatchCmd(),
	)
	return cmd
}
