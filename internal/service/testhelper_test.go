package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/jmylchreest/herbscan-api/internal/entitlement"
	"github.com/jmylchreest/herbscan-api/internal/models"
	"github.com/jmylchreest/herbscan-api/internal/repository"
)

const testWebhookSecret = "whsec_test_secret"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ========================================
// In-memory repositories
// ========================================

type memEntitlementRepo struct {
	mu       sync.Mutex
	rows     map[string]models.Entitlement
	writes   int
	readErr  error
	writeErr error
}

func (r *memEntitlementRepo) Get(_ context.Context, userID string) (*models.Entitlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.readErr != nil {
		return nil, r.readErr
	}
	e, ok := r.rows[userID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r *memEntitlementRepo) UpsertByUser(_ context.Context, e *models.Entitlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return r.writeErr
	}
	r.writes++
	r.rows[e.UserID] = *e
	return nil
}

func (r *memEntitlementRepo) FindByBillingCustomer(_ context.Context, customerID string) (*models.Entitlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.readErr != nil {
		return nil, r.readErr
	}
	for _, e := range r.rows {
		if e.CustomerID() == customerID {
			return &e, nil
		}
	}
	return nil, nil
}

func (r *memEntitlementRepo) UpdateByUser(_ context.Context, e *models.Entitlement) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return false, r.writeErr
	}
	if _, ok := r.rows[e.UserID]; !ok {
		return false, nil
	}
	r.writes++
	r.rows[e.UserID] = *e
	return true, nil
}

func (r *memEntitlementRepo) row(userID string) (models.Entitlement, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[userID]
	return e, ok
}

type memProfileRepo struct {
	mu       sync.Mutex
	plans    map[string]models.Plan
	setErr   error
	ents     *memEntitlementRepo // joined by ListPlanMismatches
	setCalls int
}

func (r *memProfileRepo) Get(_ context.Context, id string) (*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	plan, ok := r.plans[id]
	if !ok {
		return nil, nil
	}
	return &models.Profile{ID: id, Plan: plan}, nil
}

func (r *memProfileRepo) Ensure(_ context.Context, id string) (*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plans[id]; !ok {
		r.plans[id] = models.PlanFree
	}
	return &models.Profile{ID: id, Plan: r.plans[id]}, nil
}

func (r *memProfileRepo) SetPlan(_ context.Context, id string, plan models.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setCalls++
	if r.setErr != nil {
		return r.setErr
	}
	r.plans[id] = plan
	return nil
}

func (r *memProfileRepo) ListPlanMismatches(ctx context.Context, now time.Time, limit int) ([]*models.PlanMismatch, error) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.plans))
	for id := range r.plans {
		ids = append(ids, id)
	}
	plans := make(map[string]models.Plan, len(r.plans))
	for k, v := range r.plans {
		plans[k] = v
	}
	r.mu.Unlock()
	sort.Strings(ids)

	var out []*models.PlanMismatch
	for _, id := range ids {
		e, _ := r.ents.Get(ctx, id)
		if entitlement.PlanFor(e, now) == plans[id] {
			continue
		}
		out = append(out, &models.PlanMismatch{ProfileID: id, CurrentPlan: plans[id], Entitlement: e})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memProfileRepo) plan(id string) (models.Plan, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[id]
	return p, ok
}

type memScanRepo struct {
	mu    sync.Mutex
	scans []*models.Scan
	err   error
}

func (r *memScanRepo) Create(_ context.Context, scan *models.Scan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	s := *scan
	r.scans = append(r.scans, &s)
	return nil
}

func (r *memScanRepo) CountSince(_ context.Context, userID string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	n := 0
	for _, s := range r.scans {
		if s.UserID == userID && !s.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *memScanRepo) ListByUser(_ context.Context, userID string, limit, offset int) ([]*models.Scan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Scan
	for i := len(r.scans) - 1; i >= 0; i-- {
		if r.scans[i].UserID == userID {
			out = append(out, r.scans[i])
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type testStore struct {
	repos        *repository.Repositories
	entitlements *memEntitlementRepo
	profiles     *memProfileRepo
	scans        *memScanRepo
}

func newTestStore() *testStore {
	ents := &memEntitlementRepo{rows: make(map[string]models.Entitlement)}
	profiles := &memProfileRepo{plans: make(map[string]models.Plan), ents: ents}
	scans := &memScanRepo{}
	return &testStore{
		repos: &repository.Repositories{
			Entitlement: ents,
			Profile:     profiles,
			Scan:        scans,
			Ping:        func(context.Context) error { return nil },
		},
		entitlements: ents,
		profiles:     profiles,
		scans:        scans,
	}
}

// ========================================
// Stripe event fixtures
// ========================================

// stripeEvent builds an event envelope around a data object.
func stripeEvent(t *testing.T, id, eventType string, object map[string]any) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"api_version": "2024-04-10",
		"created":     time.Now().Unix(),
		"data":        map[string]any{"object": object},
	})
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}
	return payload
}

// sign returns the Stripe-Signature header for payload.
func sign(t *testing.T, payload []byte, secret string) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Header
}

func checkoutSession(userID, customerID string) map[string]any {
	session := map[string]any{
		"id":           "cs_test_1",
		"object":       "checkout.session",
		"customer":     customerID,
		"subscription": "sub_1",
		"metadata":     map[string]any{},
	}
	if userID != "" {
		session["metadata"] = map[string]any{"user_id": userID}
	}
	return session
}

func subscriptionObject(customerID, status string, periodEnd time.Time) map[string]any {
	return map[string]any{
		"id":                 "sub_1",
		"object":             "subscription",
		"customer":           customerID,
		"status":             status,
		"current_period_end": periodEnd.Unix(),
	}
}
