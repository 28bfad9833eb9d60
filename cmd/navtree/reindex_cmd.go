package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"navtree/api/internal/search"
)

type reindexOutput struct {
	Command    string `json:"command"`
	DurationMS int64  `json:"duration_ms"`
	Indexed    int    `json:"indexed"`
}

func newReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Push every menu item of every tenant into Meilisearch",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := bootstrap(ctx, false)
			if err != nil {
				return err
			}
			defer rt.close()

			index := rt.searchIndex()
			if index == nil || !index.Healthy() {
				return errors.New("meilisearch is not configured or not reachable")
			}

			start := time.Now()
			items, err := rt.menus.ListAll(ctx)
			if err != nil {
				return err
			}
			indexed, err := search.NewService(index, rt.menus, rt.log).Reindex(items)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), reindexOutput{
				Command:    "reindex",
				DurationMS: time.Since(start).Milliseconds(),
				Indexed:    indexed,
			})
		},
	}
}
