// File: cmd/provider.go
package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/auditdb/api/schemas"
	"github.com/xkilldash9x/auditdb/internal/config"
	"github.com/xkilldash9x/auditdb/internal/observability"
	"github.com/xkilldash9x/auditdb/internal/store"
)

// storeProvider defines an interface for components that can open the audit
// store. Tests inject an in-memory fake instead of a live database.
type storeProvider interface {
	// Create returns the query surface and a cleanup function that releases
	// the underlying pool.
	Create(ctx context.Context, cfg config.Interface) (schemas.Store, func(), error)
	// CreateLoader returns the write surface and its cleanup function.
	CreateLoader(ctx context.Context, cfg config.Interface) (schemas.Loader, func(), error)
}

// defaultStoreProvider is the concrete implementation of storeProvider used in
// production. It establishes a real connection to the PostgreSQL database.
type defaultStoreProvider struct{}

// NewStoreProvider is a factory function that creates a new defaultStoreProvider.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

// Create connects to PostgreSQL and wraps the pool in a store.Store.
func (p *defaultStoreProvider) Create(ctx context.Context, cfg config.Interface) (schemas.Store, func(), error) {
	logger := observability.GetLogger()
	pool, err := newPool(ctx, cfg.Database(), logger)
	if err != nil {
		return nil, nil, err
	}

	storeService, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize store service: %w", err)
	}
	return storeService, closer(pool, logger), nil
}

// CreateLoader connects to PostgreSQL and wraps the pool in a store.Loader.
func (p *defaultStoreProvider) CreateLoader(ctx context.Context, cfg config.Interface) (schemas.Loader, func(), error) {
	logger := observability.GetLogger()
	pool, err := newPool(ctx, cfg.Database(), logger)
	if err != nil {
		return nil, nil, err
	}
	return store.NewLoader(pool, logger), closer(pool, logger), nil
}

// newPool builds a tuned pgx pool for the configured store location and
// verifies it with a ping.
func newPool(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is not configured (AUDITDB_DATABASE_URL or --db)")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
	}
	applyPoolSettings(poolConfig, cfg)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create PGX connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	logger.Debug("Connected to PostgreSQL",
		zap.String("host", poolConfig.ConnConfig.Host),
		zap.String("database", poolConfig.ConnConfig.Database),
		zap.Int32("max_conns", poolConfig.MaxConns),
	)
	return pool, nil
}

// applyPoolSettings copies the non-zero pool settings onto poolConfig.
func applyPoolSettings(poolConfig *pgxpool.Config, cfg config.DatabaseConfig) {
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
}

func closer(pool *pgxpool.Pool, logger *zap.Logger) func() {
	return func() {
		pool.Close()
		logger.Debug("Database connection pool closed.")
	}
}
