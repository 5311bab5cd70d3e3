// Package postgres implements the repository interfaces on PostgreSQL via pgx.
// Selected with DATABASE_DRIVER=postgres; libsql remains the default store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmylchreest/herbscan-api/internal/models"
	"github.com/jmylchreest/herbscan-api/internal/repository"
)

// Open creates a connection pool and verifies connectivity.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}

// schema is applied idempotently on startup. Postgres deployments are expected to be
// managed alongside the hosted auth provider's own schema, so this stays additive.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		plan TEXT NOT NULL DEFAULT 'free' CHECK (plan IN ('free', 'pro')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS entitlements (
		user_id TEXT PRIMARY KEY,
		is_pro BOOLEAN NOT NULL DEFAULT false,
		period_end TIMESTAMPTZ,
		stripe_customer_id TEXT,
		stripe_subscription_id TEXT,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entitlements_stripe_customer_id ON entitlements(stripe_customer_id)`,
	`CREATE TABLE IF NOT EXISTS scans (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		top_species TEXT,
		top_common_name TEXT,
		confidence DOUBLE PRECISION,
		thumbnail_url TEXT,
		image_key TEXT,
		raw_json JSONB,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scans_user_created ON scans(user_id, created_at)`,
}

// Migrate applies the schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w\n%s", err, strings.TrimSpace(stmt))
		}
	}
	return nil
}

// NewRepositories creates all repository instances backed by pool.
func NewRepositories(pool *pgxpool.Pool) *repository.Repositories {
	return &repository.Repositories{
		Entitlement: &EntitlementRepository{pg: pool},
		Profile:     &ProfileRepository{pg: pool},
		Scan:        &ScanRepository{pg: pool},
		Ping:        pool.Ping,
	}
}

// ========================================
// Entitlement Repository
// ========================================

// EntitlementRepository implements repository.EntitlementRepository.
type EntitlementRepository struct {
	pg *pgxpool.Pool
}

const entitlementColumns = `user_id, is_pro, period_end, stripe_customer_id, stripe_subscription_id, updated_at`

func (r *EntitlementRepository) Get(ctx context.Context, userID string) (*models.Entitlement, error) {
	row := r.pg.QueryRow(ctx, `SELECT `+entitlementColumns+` FROM entitlements WHERE user_id = $1`, userID)
	return scanEntitlement(row)
}

func (r *EntitlementRepository) FindByBillingCustomer(ctx context.Context, customerID string) (*models.Entitlement, error) {
	row := r.pg.QueryRow(ctx, `SELECT `+entitlementColumns+` FROM entitlements
		WHERE stripe_customer_id = $1 ORDER BY updated_at DESC LIMIT 1`, customerID)
	return scanEntitlement(row)
}

func (r *EntitlementRepository) UpsertByUser(ctx context.Context, e *models.Entitlement) error {
	_, err := r.pg.Exec(ctx, `INSERT INTO entitlements (`+entitlementColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			is_pro = EXCLUDED.is_pro,
			period_end = EXCLUDED.period_end,
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			updated_at = EXCLUDED.updated_at`,
		e.UserID, e.IsPro, e.PeriodEnd, e.BillingCustomerID, e.BillingSubscriptionID, e.UpdatedAt)
	return err
}

func (r *EntitlementRepository) UpdateByUser(ctx context.Context, e *models.Entitlement) (bool, error) {
	tag, err := r.pg.Exec(ctx, `UPDATE entitlements SET
			is_pro = $2, period_end = $3, stripe_customer_id = $4, stripe_subscription_id = $5, updated_at = $6
		WHERE user_id = $1`,
		e.UserID, e.IsPro, e.PeriodEnd, e.BillingCustomerID, e.BillingSubscriptionID, e.UpdatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanEntitlement(row pgx.Row) (*models.Entitlement, error) {
	var e models.Entitlement
	err := row.Scan(&e.UserID, &e.IsPro, &e.PeriodEnd, &e.BillingCustomerID, &e.BillingSubscriptionID, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ========================================
// Profile Repository
// ========================================

// ProfileRepository implements repository.ProfileRepository.
type ProfileRepository struct {
	pg *pgxpool.Pool
}

func (r *ProfileRepository) Get(ctx context.Context, id string) (*models.Profile, error) {
	var p models.Profile
	var plan string
	err := r.pg.QueryRow(ctx, `SELECT id, plan, created_at, updated_at FROM profiles WHERE id = $1`, id).
		Scan(&p.ID, &plan, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Plan = models.Plan(plan)
	return &p, nil
}

func (r *ProfileRepository) Ensure(ctx context.Context, id string) (*models.Profile, error) {
	if _, err := r.pg.Exec(ctx, `INSERT INTO profiles (id, plan) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`, id, string(models.PlanFree)); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *ProfileRepository) SetPlan(ctx context.Context, id string, plan models.Plan) error {
	_, err := r.pg.Exec(ctx, `INSERT INTO profiles (id, plan) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET plan = EXCLUDED.plan, updated_at = now()`, id, string(plan))
	return err
}

func (r *ProfileRepository) ListPlanMismatches(ctx context.Context, now time.Time, limit int) ([]*models.PlanMismatch, error) {
	rows, err := r.pg.Query(ctx, `SELECT p.id, p.plan,
			e.user_id, e.is_pro, e.period_end, e.stripe_customer_id, e.stripe_subscription_id, e.updated_at
		FROM profiles p
		LEFT JOIN entitlements e ON e.user_id = p.id
		WHERE p.plan <> CASE
			WHEN e.is_pro AND (e.period_end IS NULL OR e.period_end > $1) THEN 'pro'
			ELSE 'free'
		END
		ORDER BY p.id
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.PlanMismatch
	for rows.Next() {
		var m models.PlanMismatch
		var plan string
		var userID, customerID, subscriptionID *string
		var isPro *bool
		var periodEnd, updatedAt *time.Time

		if err := rows.Scan(&m.ProfileID, &plan, &userID, &isPro, &periodEnd, &customerID, &subscriptionID, &updatedAt); err != nil {
			return nil, err
		}
		m.CurrentPlan = models.Plan(plan)
		if userID != nil {
			e := &models.Entitlement{
				UserID:                *userID,
				IsPro:                 isPro != nil && *isPro,
				PeriodEnd:             periodEnd,
				BillingCustomerID:     customerID,
				BillingSubscriptionID: subscriptionID,
			}
			if updatedAt != nil {
				e.UpdatedAt = *updatedAt
			}
			m.Entitlement = e
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// ========================================
// Scan Repository
// ========================================

// ScanRepository implements repository.ScanRepository.
type ScanRepository struct {
	pg *pgxpool.Pool
}

func (r *ScanRepository) Create(ctx context.Context, scan *models.Scan) error {
	var rawJSON []byte
	if len(scan.RawJSON) > 0 {
		rawJSON = scan.RawJSON
	}
	_, err := r.pg.Exec(ctx, `INSERT INTO scans
		(id, user_id, top_species, top_common_name, confidence, thumbnail_url, image_key, raw_json, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9)`,
		scan.ID, scan.UserID, scan.TopSpecies, scan.TopCommonName, scan.Confidence,
		scan.ThumbnailURL, scan.ImageKey, rawJSON, scan.CreatedAt)
	return err
}

func (r *ScanRepository) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := r.pg.QueryRow(ctx, `SELECT COUNT(*) FROM scans WHERE user_id = $1 AND created_at >= $2`, userID, since).Scan(&count)
	return count, err
}

func (r *ScanRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Scan, error) {
	rows, err := r.pg.Query(ctx, `SELECT id, user_id, COALESCE(top_species, ''), COALESCE(top_common_name, ''),
			COALESCE(confidence, 0), COALESCE(thumbnail_url, ''), COALESCE(image_key, ''), raw_json, created_at
		FROM scans WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scans []*models.Scan
	for rows.Next() {
		var s models.Scan
		var rawJSON []byte
		if err := rows.Scan(&s.ID, &s.UserID, &s.TopSpecies, &s.TopCommonName, &s.Confidence,
			&s.ThumbnailURL, &s.ImageKey, &rawJSON, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.RawJSON = rawJSON
		scans = append(scans, &s)
	}
	return scans, rows.Err()
}

var (
	_ repository.EntitlementRepository = (*EntitlementRepository)(nil)
	_ repository.ProfileRepository     = (*ProfileRepository)(nil)
	_ repository.ScanRepository        = (*ScanRepository)(nil)
)
