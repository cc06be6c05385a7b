// Package app wires the shared runtime of the API, the ETL CLI and the
// worker: storage backend, state files, report cache and metrics.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/farxc/orcamento-analytics/internal/cache"
	"github.com/farxc/orcamento-analytics/internal/config"
	"github.com/farxc/orcamento-analytics/internal/db"
	"github.com/farxc/orcamento-analytics/internal/etl/load"
	"github.com/farxc/orcamento-analytics/internal/logger"
	"github.com/farxc/orcamento-analytics/internal/metrics"
	"github.com/farxc/orcamento-analytics/internal/reports"
	"github.com/farxc/orcamento-analytics/internal/state"
	"github.com/farxc/orcamento-analytics/internal/store"
)

type Deps struct {
	Config  *config.Config
	Logger  *logger.Logger
	Storage *store.Storage
	State   *state.Store
	Redis   *redis.Client
	Cache   *cache.Cache
	Metrics *metrics.Metrics
}

// Open connects the configured backend and state directory. Redis is
// optional: when REDIS_ADDR is empty or unreachable reports are built on
// every request.
func Open(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) (*Deps, error) {
	const component = "App"
	conn, dialect, err := db.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}
	backend := store.NewBackend(conn, dialect, appLogger)
	appLogger.Info(component, "Storage backend ready: backend=%s", dialect)

	st, err := state.Open(cfg.StateDir)
	if err != nil {
		backend.Close()
		return nil, err
	}

	d := &Deps{
		Config:  cfg,
		Logger:  appLogger,
		Storage: store.NewStorage(backend),
		State:   st,
		Metrics: metrics.New(),
	}
	if cfg.RedisAddr != "" {
		client, err := cache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			appLogger.Warn(component, "Report cache disabled: addr=%s error=%v", cfg.RedisAddr, err)
		} else {
			d.Redis = client
			d.Cache = cache.New(client, cfg.CacheTTL)
			appLogger.Info(component, "Report cache ready: addr=%s ttl=%s", cfg.RedisAddr, cfg.CacheTTL)
		}
	}
	return d, nil
}

// LoadOptions are the loader options every entry point shares: history,
// cache invalidation and load metrics.
func (d *Deps) LoadOptions() []load.Option {
	opts := []load.Option{load.WithHistory(d.State), load.WithRecorder(d.Metrics)}
	if d.Cache != nil {
		opts = append(opts, load.WithInvalidator(d.Cache))
	}
	return opts
}

// Reports builds the report service over the shared dependencies.
func (d *Deps) Reports() *reports.Service {
	opts := []reports.Option{reports.WithObserver(d.Metrics), reports.WithLocation(d.Config.Location())}
	if d.Cache != nil {
		opts = append(opts, reports.WithCache(d.Cache))
	}
	return reports.NewService(d.Storage, d.Logger, opts...)
}

func (d *Deps) Close() error {
	var errs []error
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	errs = append(errs, d.Storage.Backend.Close())
	return errors.Join(errs...)
}
