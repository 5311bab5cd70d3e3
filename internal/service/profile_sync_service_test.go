package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/herbscan-api/internal/models"
)

func TestProfileSync_CorrectsMismatches(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	lapsed := now.Add(-time.Hour)

	store := newTestStore()
	store.entitlements.rows["active"] = proEntitlement("active", &future)
	store.entitlements.rows["lapsed"] = proEntitlement("lapsed", &lapsed)
	store.profiles.plans["active"] = models.PlanFree // mirror write failed
	store.profiles.plans["lapsed"] = models.PlanPro  // period ran out
	store.profiles.plans["free"] = models.PlanFree   // already correct

	svc := NewProfileSyncService(store.profiles, 10, discardLogger())
	svc.now = fixedClock(now)

	result, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Checked)
	assert.Equal(t, 2, result.Corrected)
	assert.Empty(t, result.Errors)

	plan, _ := store.profiles.plan("active")
	assert.Equal(t, models.PlanPro, plan)
	plan, _ = store.profiles.plan("lapsed")
	assert.Equal(t, models.PlanFree, plan)

	// Entitlement rows are only read.
	e, _ := store.entitlements.row("lapsed")
	assert.True(t, e.IsPro)
	assert.Zero(t, store.entitlements.writes)
}

func TestProfileSync_Batches(t *testing.T) {
	now := time.Now().UTC()
	future := now.Add(time.Hour)
	store := newTestStore()
	for i := 0; i < 7; i++ {
		id := fmt.Sprintf("U%d", i)
		store.entitlements.rows[id] = proEntitlement(id, &future)
		store.profiles.plans[id] = models.PlanFree
	}

	svc := NewProfileSyncService(store.profiles, 3, discardLogger())
	svc.now = fixedClock(now)

	result, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, result.Corrected)
}

func TestProfileSync_StopsWhenNoProgress(t *testing.T) {
	now := time.Now().UTC()
	future := now.Add(time.Hour)
	store := newTestStore()
	store.entitlements.rows["U1"] = proEntitlement("U1", &future)
	store.profiles.plans["U1"] = models.PlanFree
	store.profiles.setErr = errors.New("db down")

	svc := NewProfileSyncService(store.profiles, 1, discardLogger())
	svc.now = fixedClock(now)

	result, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Corrected)
	assert.Len(t, result.Errors, 1)
	assert.Equal(t, 1, store.profiles.setCalls)
}

func TestProfileSync_StartSchedule(t *testing.T) {
	store := newTestStore()
	svc := NewProfileSyncService(store.profiles, 10, discardLogger())

	require.NoError(t, svc.Start(context.Background(), ""))
	assert.Nil(t, svc.cron)

	assert.Error(t, svc.Start(context.Background(), "not a schedule"))

	require.NoError(t, svc.Start(context.Background(), "@every 1h"))
	require.NotNil(t, svc.cron)
	svc.Stop()
}

func TestProfileService_HandleUserCreated(t *testing.T) {
	store := newTestStore()
	svc := NewProfileService(store.profiles, discardLogger())

	p, err := svc.HandleUserCreated(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanFree, p.Plan)

	// A replay after a pro mirror leaves the plan alone.
	store.profiles.plans["U1"] = models.PlanPro
	p, err = svc.HandleUserCreated(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanPro, p.Plan)

	_, err = svc.HandleUserCreated(context.Background(), "")
	assert.Error(t, err)
}
