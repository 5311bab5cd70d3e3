package repository

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/jmylchreest/herbscan-api/internal/database/migrations"
)

// setupTestDB creates an in-memory SQLite database for testing.
// It runs migrations and returns a database connection that will be cleaned up
// when the test completes.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	// :memory: is per-connection; pin the pool to one so every query sees the schema.
	db.SetMaxOpenConns(1)

	if err := migrations.Run(context.Background(), db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// setupTestRepos creates all repositories using a test database.
func setupTestRepos(t *testing.T) *Repositories {
	t.Helper()
	db := setupTestDB(t)
	return NewRepositories(db)
}

// InsertTestScan is a helper to insert a scan row directly.
func InsertTestScan(t *testing.T, db *sql.DB, id, userID, createdAt string) {
	t.Helper()
	query := `
		INSERT INTO scans (id, user_id, top_species, top_common_name, confidence, created_at)
		VALUES (?, ?, 'Mentha × piperita', 'Peppermint', 0.85, ?)
	`
	if _, err := db.Exec(query, id, userID, createdAt); err != nil {
		t.Fatalf("failed to insert test scan: %v", err)
	}
}
