package app

import (
	"context"
	"fmt"
	"time"

	"github.com/abhisek/nextlesson/internal/config"
	"github.com/abhisek/nextlesson/internal/curriculum"
	"github.com/abhisek/nextlesson/internal/logger"
	"github.com/abhisek/nextlesson/internal/service"
	"github.com/abhisek/nextlesson/internal/store"
	"github.com/abhisek/nextlesson/internal/store/pgstore"
	"github.com/abhisek/nextlesson/internal/store/redisstore"
)

// App wires configuration, storage, catalog and service together.
type App struct {
	Config  *config.Config
	Log     *logger.Logger
	Catalog *curriculum.FileCatalog
	Backend store.Backend
	Service *service.Service
}

// New opens the configured backend and builds the service.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	backend, err := OpenBackend(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	log.Info("store opened", "driver", cfg.Store.Driver)

	catalog := curriculum.NewFileCatalog(cfg.Catalog.Dir)
	svc := service.New(service.Deps{
		Catalog:   catalog,
		Mastery:   backend.MasteryRepo(),
		History:   backend.HistoryRepo(),
		Log:       log,
		Clock:     time.Now,
		Config:    cfg.Service,
		Update:    cfg.Mastery,
		Due:       cfg.Due,
		Recommend: cfg.Recommend,
	})

	return &App{
		Config:  cfg,
		Log:     log,
		Catalog: catalog,
		Backend: backend,
		Service: svc,
	}, nil
}

// Close releases the backend.
func (a *App) Close() error {
	return a.Backend.Close()
}

// OpenBackend returns the Backend named by cfg.Driver.
func OpenBackend(ctx context.Context, cfg config.Store) (store.Backend, error) {
	switch cfg.Driver {
	case store.DriverMemory:
		return store.NewMemory(), nil

	case store.DriverSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			p, err := store.DefaultDBPath()
			if err != nil {
				return nil, fmt.Errorf("resolve db path: %w", err)
			}
			dsn = p
		}
		s, err := store.Open(dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil

	case store.DriverPostgres:
		pool := pgstore.DefaultPoolConfig()
		if cfg.MaxConnections > 0 {
			pool.MaxConns = cfg.MaxConnections
		}
		if cfg.MaxConnLifetime > 0 {
			pool.MaxConnLifetime = cfg.MaxConnLifetime
		}
		s, err := pgstore.Open(ctx, cfg.DSN, pool)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil

	case store.DriverRedis:
		s, err := redisstore.Open(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
