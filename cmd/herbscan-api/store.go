package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/herbscan-api/internal/config"
	"github.com/jmylchreest/herbscan-api/internal/database"
	"github.com/jmylchreest/herbscan-api/internal/repository"
	"github.com/jmylchreest/herbscan-api/internal/repository/postgres"
)

// store is the opened persistence backend selected by DATABASE_DRIVER.
type store struct {
	driver  string
	repos   *repository.Repositories
	migrate func(ctx context.Context) error
	close   func()
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		pool, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return &store{
			driver: cfg.DatabaseDriver,
			repos:  postgres.NewRepositories(pool),
			migrate: func(ctx context.Context) error {
				return postgres.Migrate(ctx, pool)
			},
			close: pool.Close,
		}, nil

	default:
		db, err := database.New(cfg.DatabaseURL, database.Options{
			TursoURL:       cfg.TursoURL,
			TursoAuthToken: cfg.TursoAuthToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return &store{
			driver: cfg.DatabaseDriver,
			repos:  repository.NewRepositories(db),
			migrate: func(ctx context.Context) error {
				if err := database.Migrate(ctx, db, logger); err != nil {
					return err
				}
				if v, err := database.GetLatestSchemaVersion(ctx, db); err == nil && v != "" {
					logger.Info("database schema ready", "schema_version", v)
				}
				return nil
			},
			close: func() { _ = db.Close() },
		}, nil
	}
}

// openMigratedStore loads config, opens the store and applies migrations.
func openMigratedStore(ctx context.Context, logger *slog.Logger) (*config.Config, *store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := st.migrate(ctx); err != nil {
		st.close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return cfg, st, nil
}
