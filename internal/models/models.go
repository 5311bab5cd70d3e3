// Package models defines the domain models for the application.
// Note: Authentication is handled by the hosted auth provider.
// The UserID fields reference auth provider user IDs (UUIDs issued at signup).
package models

import (
	"encoding/json"
	"time"
)

// ========================================
// Entitlements
// ========================================

// Entitlement is the durable record of a user's paid-access rights.
// One row per user. Rows are never hard-deleted.
type Entitlement struct {
	UserID                string     `json:"user_id"`
	IsPro                 bool       `json:"is_pro"`
	PeriodEnd             *time.Time `json:"period_end,omitempty"`              // nil = no active paid period known
	BillingCustomerID     *string    `json:"billing_customer_id,omitempty"`     // Stripe cus_...
	BillingSubscriptionID *string    `json:"billing_subscription_id,omitempty"` // Stripe sub_...
	UpdatedAt             time.Time  `json:"updated_at"`
}

// CustomerID returns the billing customer ID or empty string.
func (e *Entitlement) CustomerID() string {
	if e == nil || e.BillingCustomerID == nil {
		return ""
	}
	return *e.BillingCustomerID
}

// SubscriptionID returns the billing subscription ID or empty string.
func (e *Entitlement) SubscriptionID() string {
	if e == nil || e.BillingSubscriptionID == nil {
		return ""
	}
	return *e.BillingSubscriptionID
}

// ========================================
// Profiles
// ========================================

// Plan is the denormalized plan flag mirrored onto a profile.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	return p == PlanFree || p == PlanPro
}

// Profile is the user's app profile. Plan mirrors the entitlement for cheap reads
// and may briefly disagree with it while a reconciliation is in flight.
type Profile struct {
	ID        string    `json:"id"`
	Plan      Plan      `json:"plan"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PlanMismatch pairs a profile with the plan its entitlement says it should have.
type PlanMismatch struct {
	ProfileID   string
	CurrentPlan Plan
	Entitlement *Entitlement // nil when the user has no entitlement row
}

// ========================================
// Scans
// ========================================

// IdentificationCandidate is a single species match returned by an identification provider.
type IdentificationCandidate struct {
	Species      string  `json:"species"`
	CommonName   string  `json:"commonName"`
	Confidence   float64 `json:"confidence"`
	ThumbnailURL string  `json:"thumbnailUrl,omitempty"`
}

// Scan records one identification request. The daily free quota counts these rows.
type Scan struct {
	ID            string          `json:"id"` // ULID
	UserID        string          `json:"user_id"`
	TopSpecies    string          `json:"top_species,omitempty"`
	TopCommonName string          `json:"top_common_name,omitempty"`
	Confidence    float64         `json:"confidence"`
	ThumbnailURL  string          `json:"thumbnail_url,omitempty"`
	ImageKey      string          `json:"image_key,omitempty"` // Object storage key, empty if storage disabled
	RawJSON       json.RawMessage `json:"raw_json,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
