package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"navtree/api/internal/app"
	"navtree/api/internal/notify"
)

func newServeCmd() *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the menu HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := bootstrap(ctx, !skipMigrations)
			if err != nil {
				return err
			}
			defer rt.close()

			source := uuid.NewString()
			service, err := rt.service(ctx, source)
			if err != nil {
				return err
			}

			// A process-local cache needs remote evictions from the other instances.
			if rt.redis != nil && rt.cfg.CacheBackend() == "memory" {
				subscriber := notify.NewRedisPublisher(rt.redis, rt.cfg.NotifyChannel)
				events, err := subscriber.Subscribe(ctx)
				if err != nil {
					return err
				}
				go func() {
					for event := range events {
						service.HandleRefresh(ctx, event)
					}
				}()
			}

			httpServer := app.NewHTTPServer(service, rt.cfg.CORSOrigin, rt.log)
			server := &http.Server{
				Addr:              rt.cfg.Addr,
				Handler:           httpServer.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       15 * time.Second,
				WriteTimeout:      30 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				rt.log.WithFields(logrus.Fields{
					"addr":   rt.cfg.Addr,
					"cache":  rt.cfg.CacheBackend(),
					"source": source,
				}).Info("navtree API listening")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				rt.log.WithError(err).Warn("shutdown error")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "Do not apply schema migrations on start")
	return cmd
}
