package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/herbscan-api/internal/models"
	"github.com/jmylchreest/herbscan-api/internal/service"
)

// EntitlementReader returns a user's entitlement status.
type EntitlementReader interface {
	Status(ctx context.Context, userID string) (*service.EntitlementStatus, error)
}

// LimitsReader returns a user's scan allowance.
type LimitsReader interface {
	Limits(ctx context.Context, userID string) (*service.Limits, error)
}

// ScanHistoryReader returns a user's recent scans.
type ScanHistoryReader interface {
	History(ctx context.Context, userID string, limit, offset int) ([]*models.Scan, error)
}

// AccountHandlers serves the caller's entitlement, limits and scan history.
type AccountHandlers struct {
	entitlements EntitlementReader
	limits       LimitsReader
	scans        ScanHistoryReader
}

// NewAccountHandlers creates account handlers.
func NewAccountHandlers(entitlements EntitlementReader, limits LimitsReader, scans ScanHistoryReader) *AccountHandlers {
	return &AccountHandlers{
		entitlements: entitlements,
		limits:       limits,
		scans:        scans,
	}
}

// GetEntitlementOutput is the response for GET /api/v1/entitlement.
type GetEntitlementOutput struct {
	Body struct {
		IsPro         bool        `json:"is_pro" doc:"Stored pro flag"`
		Entitled      bool        `json:"entitled" doc:"Pro with an unexpired period"`
		PeriodEnd     *time.Time  `json:"period_end" doc:"End of the current paid period, null when unknown"`
		DaysRemaining *int        `json:"days_remaining" doc:"Whole days left in the period, null when unknown"`
		Plan          models.Plan `json:"plan" enum:"free,pro"`
	}
}

// GetEntitlement returns the caller's entitlement.
func (h *AccountHandlers) GetEntitlement(ctx context.Context, input *struct{}) (*GetEntitlementOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	status, err := h.entitlements.Status(ctx, userID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load entitlement")
	}

	out := &GetEntitlementOutput{}
	out.Body.IsPro = status.IsPro
	out.Body.Entitled = status.Entitled
	out.Body.PeriodEnd = status.PeriodEnd
	out.Body.DaysRemaining = status.DaysRemaining
	out.Body.Plan = status.Plan
	return out, nil
}

// GetLimitsOutput is the response for GET /api/v1/limits.
type GetLimitsOutput struct {
	Body struct {
		ScansUsedToday int  `json:"scans_used_today"`
		ScansRemaining *int `json:"scans_remaining" doc:"Null for entitled users"`
		DailyLimit     *int `json:"daily_limit" doc:"Null for entitled users"`
		CanScan        bool `json:"can_scan"`
	}
}

// GetLimits returns the caller's scan allowance.
func (h *AccountHandlers) GetLimits(ctx context.Context, input *struct{}) (*GetLimitsOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	limits, err := h.limits.Limits(ctx, userID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load limits")
	}

	out := &GetLimitsOutput{}
	out.Body.ScansUsedToday = limits.ScansUsedToday
	out.Body.ScansRemaining = limits.ScansRemaining
	out.Body.DailyLimit = limits.DailyLimit
	out.Body.CanScan = limits.CanScan
	return out, nil
}

// ListScansInput is the query for GET /api/v1/scans.
type ListScansInput struct {
	Limit  int `query:"limit" default:"20" minimum:"1" maximum:"100"`
	Offset int `query:"offset" default:"0" minimum:"0"`
}

// ScanSummary is one entry of the scan history.
type ScanSummary struct {
	ID            string    `json:"id"`
	TopSpecies    string    `json:"top_species,omitempty"`
	TopCommonName string    `json:"top_common_name,omitempty"`
	Confidence    float64   `json:"confidence"`
	ThumbnailURL  string    `json:"thumbnail_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ListScansOutput is the response for GET /api/v1/scans.
type ListScansOutput struct {
	Body struct {
		Scans []ScanSummary `json:"scans"`
	}
}

// ListScans returns the caller's recent scans, newest first.
func (h *AccountHandlers) ListScans(ctx context.Context, input *ListScansInput) (*ListScansOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	scans, err := h.scans.History(ctx, userID, input.Limit, input.Offset)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list scans")
	}

	out := &ListScansOutput{}
	out.Body.Scans = make([]ScanSummary, 0, len(scans))
	for _, s := range scans {
		out.Body.Scans = append(out.Body.Scans, ScanSummary{
			ID:            s.ID,
			TopSpecies:    s.TopSpecies,
			TopCommonName: s.TopCommonName,
			Confidence:    s.Confidence,
			ThumbnailURL:  s.ThumbnailURL,
			CreatedAt:     s.CreatedAt,
		})
	}
	return out, nil
}
