package main

import (
	"errors"

	"github.com/spf13/cobra"

	"navtree/api/internal/snapshot"
)

func newSnapshotCmd() *cobra.Command {
	var (
		tenantID string
		all      bool
	)

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Export menu trees to object storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := bootstrap(ctx, false)
			if err != nil {
				return err
			}
			defer rt.close()

			if !rt.cfg.SnapshotsEnabled() {
				return errors.New("S3_ENDPOINT is not set")
			}
			service, err := rt.service(ctx, "")
			if err != nil {
				return err
			}

			tenants := []string{tenantID}
			if all {
				if tenants, err = rt.menus.Tenants(ctx); err != nil {
					return err
				}
			}

			results := make([]snapshot.Result, 0, len(tenants))
			for _, tenant := range tenants {
				result, err := service.ExportSnapshot(ctx, tenant)
				if err != nil {
					return err
				}
				results = append(results, result)
			}
			return writeJSON(cmd.OutOrStdout(), results)
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant key (empty for the default tenant)")
	cmd.Flags().BoolVar(&all, "all", false, "Export every tenant that has menu items")
	return cmd
}
