// Package database handles database connections and migrations.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tursodatabase/go-libsql"

	"github.com/jmylchreest/herbscan-api/internal/database/migrations"
)

// Options configures the libsql connection.
type Options struct {
	// TursoURL and TursoAuthToken enable embedded replica mode when both are set.
	TursoURL       string
	TursoAuthToken string
}

// New creates a new database connection using libsql.
// Supports:
//   - Local files: DATABASE_URL="file:path/to/db.sqlite" (no Turso config needed)
//   - Embedded replica: set TURSO_URL + TURSO_AUTH_TOKEN for sync with Turso cloud
//   - Local libsql server: run `turso dev` and use DATABASE_URL="http://127.0.0.1:8080"
func New(dsn string, opts Options) (*sql.DB, error) {
	var db *sql.DB

	if opts.TursoURL != "" && opts.TursoAuthToken != "" {
		// Embedded replica mode: local file synced with remote Turso
		dbPath := strings.TrimPrefix(dsn, "file:")
		dbPath = strings.Split(dbPath, "?")[0]

		connector, err := libsql.NewEmbeddedReplicaConnector(dbPath, opts.TursoURL,
			libsql.WithAuthToken(opts.TursoAuthToken),
			libsql.WithReadYourWrites(true),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Turso connector: %w", err)
		}
		db = sql.OpenDB(connector)
	} else {
		var err error
		db, err = sql.Open("libsql", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Migrate runs pending schema migrations.
func Migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	return migrations.Run(ctx, db, logger)
}

// GetAppliedMigrations returns information about applied migrations.
func GetAppliedMigrations(ctx context.Context, db *sql.DB) ([]migrations.AppliedMigration, error) {
	return migrations.GetAppliedMigrations(ctx, db)
}

// GetPendingMigrations returns migrations that haven't been applied yet.
func GetPendingMigrations(ctx context.Context, db *sql.DB) ([]migrations.Migration, error) {
	return migrations.GetPendingMigrations(ctx, db)
}

// GetLatestSchemaVersion returns the most recent applied migration version.
func GetLatestSchemaVersion(ctx context.Context, db *sql.DB) (string, error) {
	return migrations.GetLatestVersion(ctx, db)
}
