package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jmylchreest/herbscan-api/internal/models"
)

// ========================================
// Profile Repository Tests
// ========================================

func TestProfileRepository_Ensure(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	p, err := repos.Profile.Ensure(ctx, "user-1")
	if err != nil {
		t.Fatalf("failed to ensure profile: %v", err)
	}
	if p == nil || p.Plan != models.PlanFree {
		t.Fatalf("got %+v, want free profile", p)
	}

	// Ensure never downgrades an existing plan.
	if err := repos.Profile.SetPlan(ctx, "user-1", models.PlanPro); err != nil {
		t.Fatalf("failed to set plan: %v", err)
	}
	p, err = repos.Profile.Ensure(ctx, "user-1")
	if err != nil {
		t.Fatalf("failed to ensure profile: %v", err)
	}
	if p.Plan != models.PlanPro {
		t.Errorf("plan = %s, want pro", p.Plan)
	}
}

func TestProfileRepository_SetPlanCreatesProfile(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	if err := repos.Profile.SetPlan(ctx, "user-2", models.PlanPro); err != nil {
		t.Fatalf("failed to set plan: %v", err)
	}

	p, err := repos.Profile.Get(ctx, "user-2")
	if err != nil {
		t.Fatalf("failed to get profile: %v", err)
	}
	if p == nil || p.Plan != models.PlanPro {
		t.Fatalf("got %+v, want pro profile", p)
	}
}

func TestProfileRepository_GetNonExistent(t *testing.T) {
	repos := setupTestRepos(t)

	p, err := repos.Profile.Get(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Error("expected nil profile")
	}
}

func TestProfileRepository_ListPlanMismatches(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	setPlan := func(id string, plan models.Plan) {
		t.Helper()
		if err := repos.Profile.SetPlan(ctx, id, plan); err != nil {
			t.Fatalf("failed to set plan: %v", err)
		}
	}
	upsert := func(e *models.Entitlement) {
		t.Helper()
		e.UpdatedAt = now
		if err := repos.Entitlement.UpsertByUser(ctx, e); err != nil {
			t.Fatalf("failed to upsert entitlement: %v", err)
		}
	}

	// In sync: pro with future period, free without entitlement.
	setPlan("a-synced-pro", models.PlanPro)
	upsert(&models.Entitlement{UserID: "a-synced-pro", IsPro: true, PeriodEnd: timePtr(now.Add(time.Hour))})
	setPlan("b-synced-free", models.PlanFree)

	// Lapsed: still marked pro but the period ended.
	setPlan("c-lapsed", models.PlanPro)
	upsert(&models.Entitlement{UserID: "c-lapsed", IsPro: true, PeriodEnd: timePtr(now.Add(-time.Hour))})

	// Missed mirror write: entitled but still free.
	setPlan("d-missed", models.PlanFree)
	upsert(&models.Entitlement{UserID: "d-missed", IsPro: true})

	// Pro plan with no entitlement at all.
	setPlan("e-orphan", models.PlanPro)

	got, err := repos.Profile.ListPlanMismatches(ctx, now, 100)
	if err != nil {
		t.Fatalf("failed to list mismatches: %v", err)
	}

	want := []string{"c-lapsed", "d-missed", "e-orphan"}
	if len(got) != len(want) {
		t.Fatalf("got %d mismatches, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ProfileID != id {
			t.Errorf("mismatch[%d] = %s, want %s", i, got[i].ProfileID, id)
		}
	}
	if got[2].Entitlement != nil {
		t.Error("expected nil entitlement for orphan profile")
	}
	if got[1].Entitlement == nil || !got[1].Entitlement.IsPro {
		t.Error("expected joined entitlement for d-missed")
	}

	limited, err := repos.Profile.ListPlanMismatches(ctx, now, 1)
	if err != nil {
		t.Fatalf("failed to list mismatches: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("got %d mismatches with limit 1", len(limited))
	}
}
