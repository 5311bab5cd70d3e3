package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/herbscan-api/internal/entitlement"
	"github.com/jmylchreest/herbscan-api/internal/models"
	"github.com/jmylchreest/herbscan-api/internal/repository"
)

// EntitlementStatus is the read-time view of a user's paid access.
type EntitlementStatus struct {
	UserID        string
	IsPro         bool // stored flag, may be stale until the next billing event
	Entitled      bool // IsPro with an unexpired period
	PeriodEnd     *time.Time
	DaysRemaining *int
	Plan          models.Plan // what the profile mirror should say
	CustomerID    string
}

// EntitlementService answers "is this user pro right now".
type EntitlementService struct {
	repo   repository.EntitlementRepository
	now    func() time.Time
	logger *slog.Logger
}

// NewEntitlementService creates a new entitlement service.
func NewEntitlementService(repo repository.EntitlementRepository, logger *slog.Logger) *EntitlementService {
	return &EntitlementService{
		repo:   repo,
		now:    time.Now,
		logger: logger.With("component", "entitlement"),
	}
}

// Status returns the user's entitlement status. Users with no row are free.
func (s *EntitlementService) Status(ctx context.Context, userID string) (*EntitlementStatus, error) {
	e, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get entitlement: %w", err)
	}

	now := s.now()
	status := &EntitlementStatus{
		UserID:        userID,
		Entitled:      entitlement.IsEntitled(e, now),
		DaysRemaining: entitlement.DaysRemaining(e, now),
		Plan:          entitlement.PlanFor(e, now),
	}
	if e != nil {
		status.IsPro = e.IsPro
		status.PeriodEnd = e.PeriodEnd
		status.CustomerID = e.CustomerID()
	}
	return status, nil
}

// IsEntitled reports whether the user currently has paid access.
func (s *EntitlementService) IsEntitled(ctx context.Context, userID string) (bool, error) {
	status, err := s.Status(ctx, userID)
	if err != nil {
		return false, err
	}
	return status.Entitled, nil
}
