package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"navtree/api/internal/app"
	"navtree/api/internal/tree"
)

func newTreeCmd() *cobra.Command {
	var (
		tenantID string
		location string
		active   bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print a tenant's menu tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := bootstrap(ctx, false)
			if err != nil {
				return err
			}
			defer rt.close()

			service := app.New(rt.menus, app.Options{Logger: rt.log})
			var forest []tree.Node
			if active || location != "" {
				forest, err = service.GetNested(ctx, tenantID, location)
			} else {
				forest, err = service.GetTree(ctx, tenantID)
			}
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), forest)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), tree.Render(forest))
			return err
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant key (empty for the default tenant)")
	cmd.Flags().StringVar(&location, "location", "", "Only the children of the active root with this route name")
	cmd.Flags().BoolVar(&active, "active", false, "Only active items")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of an indented outline")
	return cmd
}
