package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmylchreest/herbscan-api/internal/models"
)

// ========================================
// Entitlement Repository
// ========================================

// SQLiteEntitlementRepository implements EntitlementRepository for SQLite.
type SQLiteEntitlementRepository struct {
	db *sql.DB
}

// NewSQLiteEntitlementRepository creates a new SQLite entitlement repository.
func NewSQLiteEntitlementRepository(db *sql.DB) *SQLiteEntitlementRepository {
	return &SQLiteEntitlementRepository{db: db}
}

const entitlementColumns = `user_id, is_pro, period_end, stripe_customer_id, stripe_subscription_id, updated_at`

func (r *SQLiteEntitlementRepository) Get(ctx context.Context, userID string) (*models.Entitlement, error) {
	query := `SELECT ` + entitlementColumns + ` FROM entitlements WHERE user_id = ?`
	return scanEntitlement(r.db.QueryRowContext(ctx, query, userID))
}

// FindByBillingCustomer returns the most recently updated row for the customer. A customer
// should map to one user; ordering keeps the result stable if that is ever violated.
func (r *SQLiteEntitlementRepository) FindByBillingCustomer(ctx context.Context, customerID string) (*models.Entitlement, error) {
	query := `SELECT ` + entitlementColumns + ` FROM entitlements
		WHERE stripe_customer_id = ? ORDER BY updated_at DESC LIMIT 1`
	return scanEntitlement(r.db.QueryRowContext(ctx, query, customerID))
}

func (r *SQLiteEntitlementRepository) UpsertByUser(ctx context.Context, e *models.Entitlement) error {
	query := `INSERT INTO entitlements (` + entitlementColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			is_pro = excluded.is_pro,
			period_end = excluded.period_end,
			stripe_customer_id = excluded.stripe_customer_id,
			stripe_subscription_id = excluded.stripe_subscription_id,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		e.UserID, e.IsPro, nullTime(e.PeriodEnd), e.BillingCustomerID, e.BillingSubscriptionID, formatTime(e.UpdatedAt))
	return err
}

func (r *SQLiteEntitlementRepository) UpdateByUser(ctx context.Context, e *models.Entitlement) (bool, error) {
	query := `UPDATE entitlements SET
			is_pro = ?, period_end = ?, stripe_customer_id = ?, stripe_subscription_id = ?, updated_at = ?
		WHERE user_id = ?`

	result, err := r.db.ExecContext(ctx, query,
		e.IsPro, nullTime(e.PeriodEnd), e.BillingCustomerID, e.BillingSubscriptionID, formatTime(e.UpdatedAt), e.UserID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntitlement(row rowScanner) (*models.Entitlement, error) {
	var e models.Entitlement
	var periodEnd, customerID, subscriptionID sql.NullString
	var updatedAt string

	err := row.Scan(&e.UserID, &e.IsPro, &periodEnd, &customerID, &subscriptionID, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if periodEnd.Valid {
		t := parseTime(periodEnd.String)
		e.PeriodEnd = &t
	}
	if customerID.Valid {
		e.BillingCustomerID = &customerID.String
	}
	if subscriptionID.Valid {
		e.BillingSubscriptionID = &subscriptionID.String
	}
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}
