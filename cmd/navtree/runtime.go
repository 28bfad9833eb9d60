package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"navtree/api/internal/app"
	"navtree/api/internal/cache"
	"navtree/api/internal/config"
	"navtree/api/internal/logging"
	"navtree/api/internal/notify"
	"navtree/api/internal/search"
	"navtree/api/internal/snapshot"
	"navtree/api/internal/store"
)

// runtime holds the connections shared by every command.
type runtime struct {
	cfg     config.Config
	log     *logrus.Logger
	db      *sqlx.DB
	menus   *store.MenuStore
	redis   *redis.Client
	closers []func()
}

// bootstrap loads configuration, opens the database and, when configured,
// Redis. Schema migrations run first when migrate is set.
func bootstrap(ctx context.Context, migrate bool) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	rt := &runtime{cfg: cfg, log: log}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	rt.db = db
	rt.closers = append(rt.closers, func() { _ = db.Close() })

	if migrate {
		if err := store.ApplyMigrations(ctx, db, log); err != nil {
			rt.close()
			return nil, err
		}
	}
	rt.menus = store.NewMenuStore(db)

	if cfg.RedisURL != "" {
		client, err := cache.NewRedisClient(cfg.RedisURL)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		rt.redis = client
		rt.closers = append(rt.closers, func() { _ = client.Close() })
	}
	return rt, nil
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// searchIndex returns the Meilisearch index, or nil when it is not configured.
func (rt *runtime) searchIndex() search.Index {
	if !rt.cfg.SearchEnabled() {
		return nil
	}
	meili := search.NewMeili(rt.cfg.MeiliURL, rt.cfg.MeiliMasterKey, rt.log)
	rt.closers = append(rt.closers, meili.Close)
	return meili
}

// exporter returns a snapshot exporter, or nil when S3 is not configured.
func (rt *runtime) exporter(ctx context.Context) (*snapshot.Exporter, error) {
	if !rt.cfg.SnapshotsEnabled() {
		return nil, nil
	}
	uploader, err := snapshot.NewMinioUploader(ctx, snapshot.Config{
		Endpoint:  rt.cfg.S3.Endpoint,
		AccessKey: rt.cfg.S3.AccessKey,
		SecretKey: rt.cfg.S3.SecretKey,
		Bucket:    rt.cfg.S3.Bucket,
		UseSSL:    rt.cfg.S3.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot storage: %w", err)
	}
	return snapshot.NewExporter(uploader), nil
}

func (rt *runtime) cacheBackend() cache.Cache {
	if rt.cfg.CacheBackend() == "redis" && rt.redis != nil {
		return cache.NewRedisCache(rt.redis, "")
	}
	return cache.NewMemoryCache()
}

// service builds the menu service with every configured collaborator.
func (rt *runtime) service(ctx context.Context, source string) (*app.Service, error) {
	opts := app.Options{
		Cache:        rt.cacheBackend(),
		CacheEnabled: rt.cfg.Cache.Enabled,
		CacheTTL:     rt.cfg.Cache.TTL,
		CacheKey:     rt.cfg.Cache.Key,
		Logger:       rt.log,
		Source:       source,
	}
	if rt.redis != nil {
		opts.Publisher = notify.NewRedisPublisher(rt.redis, rt.cfg.NotifyChannel)
	}
	if index := rt.searchIndex(); index != nil {
		opts.Search = search.NewService(index, rt.menus, rt.log)
	}
	exporter, err := rt.exporter(ctx)
	if err != nil {
		return nil, err
	}
	if exporter != nil {
		opts.Snapshots = exporter
	}
	return app.New(rt.menus, opts), nil
}
