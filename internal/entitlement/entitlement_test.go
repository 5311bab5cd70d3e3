package entitlement

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/herbscan-api/internal/models"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ptrTime(t time.Time) *time.Time { return &t }

func ptrString(s string) *string { return &s }

func checkout(userID, customerID string) Transition {
	return Transition{
		Kind:           KindCheckoutCompleted,
		UserID:         userID,
		CustomerID:     customerID,
		SubscriptionID: "sub_1",
	}
}

func subscriptionUpdate(customerID, status string, periodEnd time.Time) Transition {
	return Transition{
		Kind:           KindSubscriptionUpdated,
		CustomerID:     customerID,
		SubscriptionID: "sub_1",
		Status:         status,
		PeriodEnd:      &periodEnd,
	}
}

// ========================================
// Apply: checkout_completed
// ========================================

func TestApply_CheckoutCreatesProEntitlement(t *testing.T) {
	got, err := Apply(nil, checkout("U1", "cus_1"), now)
	require.NoError(t, err)

	assert.Equal(t, "U1", got.UserID)
	assert.True(t, got.IsPro)
	assert.Equal(t, "cus_1", got.CustomerID())
	assert.Equal(t, "sub_1", got.SubscriptionID())
	assert.Nil(t, got.PeriodEnd)
	assert.True(t, got.UpdatedAt.Equal(now))
}

func TestApply_CheckoutIsIdempotent(t *testing.T) {
	once, err := Apply(nil, checkout("U1", "cus_1"), now)
	require.NoError(t, err)

	twice, err := Apply(&once, checkout("U1", "cus_1"), now)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestApply_CheckoutRequiresUser(t *testing.T) {
	_, err := Apply(nil, checkout("", "cus_1"), now)
	assert.ErrorIs(t, err, ErrMissingUser)
}

func TestApply_CheckoutRejectsForeignRow(t *testing.T) {
	current := &models.Entitlement{UserID: "U2"}
	_, err := Apply(current, checkout("U1", "cus_1"), now)
	assert.Error(t, err)
}

func TestApply_CheckoutClearsLapsedPeriod(t *testing.T) {
	current := &models.Entitlement{
		UserID:    "U1",
		IsPro:     false,
		PeriodEnd: ptrTime(now.Add(-time.Hour)),
	}

	got, err := Apply(current, checkout("U1", "cus_1"), now)
	require.NoError(t, err)

	assert.True(t, got.IsPro)
	assert.Nil(t, got.PeriodEnd, "lapsed period must not survive a re-grant")
	assert.True(t, IsEntitled(&got, now))
}

func TestApply_CheckoutKeepsFuturePeriod(t *testing.T) {
	end := now.Add(30 * 24 * time.Hour)
	current := &models.Entitlement{UserID: "U1", PeriodEnd: ptrTime(end)}

	got, err := Apply(current, checkout("U1", "cus_1"), now)
	require.NoError(t, err)

	require.NotNil(t, got.PeriodEnd)
	assert.True(t, got.PeriodEnd.Equal(end))
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	current := &models.Entitlement{
		UserID:            "U1",
		IsPro:             true,
		BillingCustomerID: ptrString("cus_1"),
		PeriodEnd:         ptrTime(now.Add(time.Hour)),
		UpdatedAt:         now.Add(-time.Hour),
	}
	before := *current
	beforeEnd := *current.PeriodEnd

	_, err := Apply(current, Transition{Kind: KindSubscriptionDeleted, CustomerID: "cus_1"}, now)
	require.NoError(t, err)

	assert.Equal(t, before.IsPro, current.IsPro)
	assert.True(t, current.PeriodEnd.Equal(beforeEnd))
	assert.True(t, current.UpdatedAt.Equal(before.UpdatedAt))
}

// ========================================
// Apply: subscription_updated
// ========================================

func TestApply_SubscriptionUpdatedStatuses(t *testing.T) {
	periodEnd := now.Add(30 * 24 * time.Hour)
	tests := []struct {
		status string
		want   bool
	}{
		{"active", true},
		{"trialing", true},
		{"past_due", false},
		{"canceled", false},
		{"unpaid", false},
		{"incomplete", false},
		{"incomplete_expired", false},
		{"paused", false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			current := &models.Entitlement{UserID: "U1", IsPro: true, BillingCustomerID: ptrString("cus_1")}

			got, err := Apply(current, subscriptionUpdate("cus_1", tt.status, periodEnd), now)
			require.NoError(t, err)

			assert.Equal(t, tt.want, got.IsPro)
			require.NotNil(t, got.PeriodEnd)
			assert.True(t, got.PeriodEnd.Equal(periodEnd))
		})
	}
}

func TestApply_SubscriptionUpdatedWithLapsedPeriodIsNotPro(t *testing.T) {
	current := &models.Entitlement{UserID: "U1", BillingCustomerID: ptrString("cus_1")}

	got, err := Apply(current, subscriptionUpdate("cus_1", "active", now.Add(-time.Minute)), now)
	require.NoError(t, err)

	assert.False(t, got.IsPro)
}

func TestApply_SubscriptionUpdatedRequiresRow(t *testing.T) {
	_, err := Apply(nil, subscriptionUpdate("cus_1", "active", now.Add(time.Hour)), now)
	assert.True(t, errors.Is(err, ErrNoEntitlement))
}

func TestApply_LastSubscriptionUpdateWins(t *testing.T) {
	periodEnd := now.Add(30 * 24 * time.Hour)
	current := &models.Entitlement{UserID: "U1", BillingCustomerID: ptrString("cus_1")}

	first := subscriptionUpdate("cus_1", "active", periodEnd)
	second := subscriptionUpdate("cus_1", "past_due", periodEnd)
	final := subscriptionUpdate("cus_1", "active", periodEnd.Add(24*time.Hour))

	// Earlier events redelivered any number of times, final event last.
	sequence := []Transition{first, second, first, second, second, first, final}

	state := *current
	for i, tr := range sequence {
		next, err := Apply(&state, tr, now.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		state = next
	}

	assert.Equal(t, IsActiveStatus(final.Status), state.IsPro)
	assert.True(t, state.PeriodEnd.Equal(*final.PeriodEnd))
}

// ========================================
// Apply: subscription_deleted
// ========================================

func TestApply_SubscriptionDeletedAlwaysRevokes(t *testing.T) {
	priors := []*models.Entitlement{
		{UserID: "U1", IsPro: true, PeriodEnd: ptrTime(now.Add(90 * 24 * time.Hour))},
		{UserID: "U1", IsPro: true},
		{UserID: "U1", IsPro: false, PeriodEnd: ptrTime(now.Add(-time.Hour))},
	}

	for _, prior := range priors {
		got, err := Apply(prior, Transition{Kind: KindSubscriptionDeleted, CustomerID: "cus_1"}, now)
		require.NoError(t, err)

		assert.False(t, got.IsPro)
		require.NotNil(t, got.PeriodEnd)
		assert.False(t, got.PeriodEnd.After(now))
		assert.False(t, IsEntitled(&got, now))
	}
}

func TestApply_UpdatedAtNeverDecreases(t *testing.T) {
	later := now.Add(time.Hour)
	current := &models.Entitlement{UserID: "U1", IsPro: true, UpdatedAt: later}

	got, err := Apply(current, checkout("U1", "cus_1"), now)
	require.NoError(t, err)

	assert.True(t, got.UpdatedAt.Equal(later))
}

func TestApply_UnknownKind(t *testing.T) {
	_, err := Apply(&models.Entitlement{UserID: "U1"}, Transition{Kind: "refund"}, now)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

// ========================================
// Read-time helpers
// ========================================

func TestIsEntitled(t *testing.T) {
	tests := []struct {
		name string
		e    *models.Entitlement
		want bool
	}{
		{"nil row", nil, false},
		{"not pro", &models.Entitlement{IsPro: false}, false},
		{"pro without period", &models.Entitlement{IsPro: true}, true},
		{"pro with future period", &models.Entitlement{IsPro: true, PeriodEnd: ptrTime(now.Add(time.Hour))}, true},
		{"pro with lapsed period", &models.Entitlement{IsPro: true, PeriodEnd: ptrTime(now.Add(-time.Second))}, false},
		{"pro with period ending now", &models.Entitlement{IsPro: true, PeriodEnd: ptrTime(now)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsEntitled(tt.e, now))
		})
	}
}

func TestPlanFor(t *testing.T) {
	assert.Equal(t, models.PlanPro, PlanFor(&models.Entitlement{IsPro: true}, now))
	assert.Equal(t, models.PlanFree, PlanFor(&models.Entitlement{IsPro: true, PeriodEnd: ptrTime(now.Add(-time.Hour))}, now))
	assert.Equal(t, models.PlanFree, PlanFor(nil, now))
}

func TestDaysRemaining(t *testing.T) {
	e := &models.Entitlement{IsPro: true, PeriodEnd: ptrTime(now.Add(36 * time.Hour))}
	days := DaysRemaining(e, now)
	require.NotNil(t, days)
	assert.Equal(t, 2, *days)

	assert.Nil(t, DaysRemaining(&models.Entitlement{IsPro: true}, now))
	assert.Nil(t, DaysRemaining(&models.Entitlement{IsPro: false, PeriodEnd: ptrTime(now.Add(time.Hour))}, now))
}
