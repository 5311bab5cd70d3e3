// Package entitlement holds the pure state function for subscription entitlements.
//
// Every inbound billing event is reduced to a Transition, and Apply computes the next
// Entitlement snapshot from the current one. Apply writes absolute values derived only
// from the transition and the clock, so applying the same transition twice yields the
// same snapshot as applying it once. Storage is not involved here.
package entitlement

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jmylchreest/herbscan-api/internal/models"
)

// Kind identifies the entitlement-relevant meaning of a billing event.
type Kind string

const (
	KindCheckoutCompleted   Kind = "checkout_completed"
	KindSubscriptionUpdated Kind = "subscription_updated" // also covers subscription created
	KindSubscriptionDeleted Kind = "subscription_deleted"
)

var (
	// ErrNoEntitlement is returned when a subscription transition has no row to apply to.
	ErrNoEntitlement = errors.New("no entitlement to apply transition to")
	// ErrMissingUser is returned when a checkout transition carries no user ID.
	ErrMissingUser = errors.New("transition missing user id")
	// ErrUnknownKind is returned for transitions Apply does not understand.
	ErrUnknownKind = errors.New("unknown transition kind")
)

// Transition is the subset of a billing event that drives entitlement state.
type Transition struct {
	Kind           Kind
	UserID         string     // required for checkout_completed
	CustomerID     string     // billing customer, empty if the event carried none
	SubscriptionID string     // billing subscription, empty if the event carried none
	Status         string     // subscription status (subscription_updated only)
	PeriodEnd      *time.Time // current period end (subscription_updated only)
}

// IsActiveStatus reports whether a subscription status grants paid access.
func IsActiveStatus(status string) bool {
	return status == "active" || status == "trialing"
}

// Apply returns the snapshot that results from applying t to current at time now.
// current may be nil for checkout_completed (first grant). Apply never mutates current.
func Apply(current *models.Entitlement, t Transition, now time.Time) (models.Entitlement, error) {
	var next models.Entitlement
	if current != nil {
		next = clone(current)
	}

	switch t.Kind {
	case KindCheckoutCompleted:
		if t.UserID == "" {
			return models.Entitlement{}, ErrMissingUser
		}
		if current != nil && current.UserID != t.UserID {
			return models.Entitlement{}, fmt.Errorf("checkout for user %s applied to entitlement of %s", t.UserID, current.UserID)
		}
		next.UserID = t.UserID
		next.IsPro = true
		setIDs(&next, t)
		// A lapsed period would contradict is_pro; the next subscription event sets the real one.
		if next.PeriodEnd != nil && !next.PeriodEnd.After(now) {
			next.PeriodEnd = nil
		}

	case KindSubscriptionUpdated:
		if current == nil {
			return models.Entitlement{}, ErrNoEntitlement
		}
		next.PeriodEnd = copyTime(t.PeriodEnd)
		next.IsPro = IsActiveStatus(t.Status) && (next.PeriodEnd == nil || next.PeriodEnd.After(now))
		setIDs(&next, t)

	case KindSubscriptionDeleted:
		if current == nil {
			return models.Entitlement{}, ErrNoEntitlement
		}
		end := now
		next.IsPro = false
		next.PeriodEnd = &end

	default:
		return models.Entitlement{}, fmt.Errorf("%w: %q", ErrUnknownKind, t.Kind)
	}

	if now.After(next.UpdatedAt) {
		next.UpdatedAt = now
	}
	return next, nil
}

// IsEntitled is the read-time authorization check. is_pro alone can be stale between
// webhook deliveries, so a known period end must also still be in the future.
func IsEntitled(e *models.Entitlement, now time.Time) bool {
	if e == nil || !e.IsPro {
		return false
	}
	return e.PeriodEnd == nil || e.PeriodEnd.After(now)
}

// PlanFor returns the profile plan that mirrors e at time now.
func PlanFor(e *models.Entitlement, now time.Time) models.Plan {
	if IsEntitled(e, now) {
		return models.PlanPro
	}
	return models.PlanFree
}

// DaysRemaining returns whole days (rounded up) left in the paid period, or nil when the
// user is not entitled or the period has no known end.
func DaysRemaining(e *models.Entitlement, now time.Time) *int {
	if !IsEntitled(e, now) || e.PeriodEnd == nil {
		return nil
	}
	days := int(math.Ceil(e.PeriodEnd.Sub(now).Hours() / 24))
	return &days
}

func setIDs(e *models.Entitlement, t Transition) {
	if t.CustomerID != "" {
		id := t.CustomerID
		e.BillingCustomerID = &id
	}
	if t.SubscriptionID != "" {
		id := t.SubscriptionID
		e.BillingSubscriptionID = &id
	}
}

func clone(e *models.Entitlement) models.Entitlement {
	out := *e
	out.PeriodEnd = copyTime(e.PeriodEnd)
	if e.BillingCustomerID != nil {
		id := *e.BillingCustomerID
		out.BillingCustomerID = &id
	}
	if e.BillingSubscriptionID != nil {
		id := *e.BillingSubscriptionID
		out.BillingSubscriptionID = &id
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
