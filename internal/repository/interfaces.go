// Package repository defines repository interfaces for data access.
// Note: Users are owned by the hosted auth provider; user_id columns hold its opaque IDs.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmylchreest/herbscan-api/internal/models"
)

// EntitlementRepository defines methods for entitlement data access.
// There is deliberately no Delete: entitlement rows are never hard-deleted.
type EntitlementRepository interface {
	// Get returns the entitlement for a user, or nil if none exists.
	Get(ctx context.Context, userID string) (*models.Entitlement, error)
	// UpsertByUser inserts or fully replaces the row keyed by e.UserID.
	UpsertByUser(ctx context.Context, e *models.Entitlement) error
	// FindByBillingCustomer returns the entitlement correlated with a billing customer, or nil.
	FindByBillingCustomer(ctx context.Context, customerID string) (*models.Entitlement, error)
	// UpdateByUser overwrites an existing row. Returns false if no row matched.
	UpdateByUser(ctx context.Context, e *models.Entitlement) (bool, error)
}

// ProfileRepository defines methods for profile data access.
type ProfileRepository interface {
	Get(ctx context.Context, id string) (*models.Profile, error)
	// Ensure creates a free profile if none exists and returns the stored profile.
	Ensure(ctx context.Context, id string) (*models.Profile, error)
	// SetPlan writes the mirrored plan, creating the profile if needed.
	SetPlan(ctx context.Context, id string, plan models.Plan) error
	// ListPlanMismatches returns profiles whose plan disagrees with their entitlement at now.
	ListPlanMismatches(ctx context.Context, now time.Time, limit int) ([]*models.PlanMismatch, error)
}

// ScanRepository defines methods for scan history data access.
type ScanRepository interface {
	Create(ctx context.Context, scan *models.Scan) error
	// CountSince counts a user's scans created at or after since.
	CountSince(ctx context.Context, userID string, since time.Time) (int, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Scan, error)
}

// Repositories holds all repository instances.
type Repositories struct {
	Entitlement EntitlementRepository
	Profile     ProfileRepository
	Scan        ScanRepository

	// Ping checks store connectivity for readiness probes.
	Ping func(ctx context.Context) error
}

// NewRepositories creates all repository instances backed by libsql/SQLite.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Entitlement: NewSQLiteEntitlementRepository(db),
		Profile:     NewSQLiteProfileRepository(db),
		Scan:        NewSQLiteScanRepository(db),
		Ping:        db.PingContext,
	}
}

// formatTime renders timestamps in the fixed-width UTC form stored in TEXT columns,
// so lexical comparison in SQL matches chronological order.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t.UTC()
}

func nullTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
