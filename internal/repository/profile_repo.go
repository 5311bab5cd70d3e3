package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmylchreest/herbscan-api/internal/models"
)

// ========================================
// Profile Repository
// ========================================

// SQLiteProfileRepository implements ProfileRepository for SQLite.
type SQLiteProfileRepository struct {
	db *sql.DB
}

// NewSQLiteProfileRepository creates a new SQLite profile repository.
func NewSQLiteProfileRepository(db *sql.DB) *SQLiteProfileRepository {
	return &SQLiteProfileRepository{db: db}
}

func (r *SQLiteProfileRepository) Get(ctx context.Context, id string) (*models.Profile, error) {
	query := `SELECT id, plan, created_at, updated_at FROM profiles WHERE id = ?`

	var p models.Profile
	var plan, createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &plan, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Plan = models.Plan(plan)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func (r *SQLiteProfileRepository) Ensure(ctx context.Context, id string) (*models.Profile, error) {
	now := formatTime(time.Now())
	query := `INSERT INTO profiles (id, plan, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, id, string(models.PlanFree), now, now); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *SQLiteProfileRepository) SetPlan(ctx context.Context, id string, plan models.Plan) error {
	now := formatTime(time.Now())
	query := `INSERT INTO profiles (id, plan, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			plan = excluded.plan,
			updated_at = excluded.updated_at`
	_, err := r.db.ExecContext(ctx, query, id, string(plan), now, now)
	return err
}

// ListPlanMismatches applies the read-time entitlement check in SQL and returns profiles
// whose stored plan differs from it. Profiles without an entitlement row are expected free.
func (r *SQLiteProfileRepository) ListPlanMismatches(ctx context.Context, now time.Time, limit int) ([]*models.PlanMismatch, error) {
	query := `SELECT p.id, p.plan,
			e.user_id, e.is_pro, e.period_end, e.stripe_customer_id, e.stripe_subscription_id, e.updated_at
		FROM profiles p
		LEFT JOIN entitlements e ON e.user_id = p.id
		WHERE p.plan <> CASE
			WHEN e.is_pro = 1 AND (e.period_end IS NULL OR e.period_end > ?) THEN 'pro'
			ELSE 'free'
		END
		ORDER BY p.id
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, formatTime(now), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*models.PlanMismatch
	for rows.Next() {
		var m models.PlanMismatch
		var plan string
		var userID, periodEnd, customerID, subscriptionID, updatedAt sql.NullString
		var isPro sql.NullBool

		if err := rows.Scan(&m.ProfileID, &plan, &userID, &isPro, &periodEnd, &customerID, &subscriptionID, &updatedAt); err != nil {
			return nil, err
		}
		m.CurrentPlan = models.Plan(plan)

		if userID.Valid {
			e := &models.Entitlement{
				UserID:    userID.String,
				IsPro:     isPro.Bool,
				UpdatedAt: parseTime(updatedAt.String),
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
			m.Entitlement = e
		}
		out = append(out, &m)
	}

	return out, rows.Err()
}
