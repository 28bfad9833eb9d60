package main

import "github.com/spf13/cobra"

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer rt.close()
			rt.log.Info("migrations applied")
			return nil
		},
	}
}
