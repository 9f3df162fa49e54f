// Package bootstrap wires configuration into the catalog store and the
// import service. Both the HTTP server and the CLI start through it.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/foodops/internal/catalog"
	"github.com/JonMunkholm/foodops/internal/catalog/pgstore"
	"github.com/JonMunkholm/foodops/internal/config"
	"github.com/JonMunkholm/foodops/internal/core"
)

// OpenCatalog returns the configured catalog backend and a func that
// releases it.
func OpenCatalog(ctx context.Context, cfg config.DatabaseConfig) (catalog.Catalog, func(), error) {
	switch strings.ToLower(cfg.Backend) {
	case config.BackendMemory:
		slog.Warn("using in-memory catalog; data is lost on exit")
		return catalog.NewMemory(), func() {}, nil
	case config.BackendPostgres:
		return openPostgres(ctx, cfg)
	}
	return nil, nil, fmt.Errorf("unknown catalog backend %q", cfg.Backend)
}

func openPostgres(ctx context.Context, cfg config.DatabaseConfig) (catalog.Catalog, func(), error) {
	poolConfig, err := poolConfig(cfg)
	if err != nil {
		return nil, nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	store := pgstore.New(pool)
	if cfg.Migrate {
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		slog.Debug("catalog schema applied")
	}
	return store, pool.Close, nil
}

// poolConfig parses the connection string and applies pool limits.
func poolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	return pc, nil
}

// NewService builds the import service from cfg.
func NewService(c catalog.Catalog, cfg *config.Config) (*core.Service, error) {
	mode, err := core.ParseDuplicateMode(cfg.Import.DuplicateMode)
	if err != nil {
		return nil, err
	}
	return core.NewService(c, core.Options{
		DuplicateMode:        mode,
		FuzzyDistance:        cfg.Import.FuzzyDistance,
		MaxFileSize:          cfg.Upload.MaxFileSize,
		MaxConcurrentUploads: cfg.Upload.MaxConcurrent,
		MaxUploadWait:        cfg.Upload.MaxWaitTime,
		SessionTTL:           cfg.Upload.SessionTTL,
	}), nil
}
