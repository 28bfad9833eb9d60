package main

import (
	"errors"

	"github.com/spf13/cobra"

	"navtree/api/internal/notify"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print menu refresh events as they are published",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := bootstrap(ctx, false)
			if err != nil {
				return err
			}
			defer rt.close()

			if rt.redis == nil {
				return errors.New("REDIS_URL is not set")
			}
			events, err := notify.NewRedisPublisher(rt.redis, rt.cfg.NotifyChannel).Subscribe(ctx)
			if err != nil {
				return err
			}
			for event := range events {
				if err := writeJSON(cmd.OutOrStdout(), event); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
