package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/herbscan-api/internal/models"
	"github.com/jmylchreest/herbscan-api/internal/repository"
)

// setupRepos connects to a live database, only when TEST_POSTGRES_DSN is set.
func setupRepos(t *testing.T) *repository.Repositories {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	pool, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	_, err = pool.Exec(ctx, "TRUNCATE scans, entitlements, profiles")
	require.NoError(t, err)

	return NewRepositories(pool)
}

func TestPostgres_EntitlementRoundTrip(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	cus := "cus_pg"

	require.NoError(t, repos.Entitlement.UpsertByUser(ctx, &models.Entitlement{
		UserID: "pg-user", IsPro: true, BillingCustomerID: &cus, UpdatedAt: now,
	}))

	got, err := repos.Entitlement.FindByBillingCustomer(ctx, cus)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "pg-user", got.UserID)
	assert.True(t, got.IsPro)
	assert.Nil(t, got.PeriodEnd)

	end := now.Add(-time.Hour)
	got.PeriodEnd = &end
	ok, err := repos.Entitlement.UpdateByUser(ctx, got)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repos.Profile.SetPlan(ctx, "pg-user", models.PlanPro))
	mismatches, err := repos.Profile.ListPlanMismatches(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, "pg-user", mismatches[0].ProfileID)

	missing, err := repos.Entitlement.Get(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPostgres_ScanCount(t *testing.T) {
	repos := setupRepos(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, age := range []time.Duration{25 * time.Hour, 2 * time.Hour, time.Minute} {
		require.NoError(t, repos.Scan.Create(ctx, &models.Scan{
			ID:        string(rune('a' + i)),
			UserID:    "pg-user",
			CreatedAt: now.Add(-age),
		}))
	}

	count, err := repos.Scan.CountSince(ctx, "pg-user", now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
