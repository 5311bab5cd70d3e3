package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/herbscan-api/internal/repository"
)

// QuotaWindow is the rolling window free scans are counted over.
const QuotaWindow = 24 * time.Hour

// LimitSource provides the current free daily scan limit.
type LimitSource interface {
	FreeScansPerDay() int
	MaybeRefresh(ctx context.Context)
}

// StaticLimit is a LimitSource with a fixed value.
type StaticLimit int

func (l StaticLimit) FreeScansPerDay() int          { return int(l) }
func (l StaticLimit) MaybeRefresh(_ context.Context) {}

// Limits describes a user's scan allowance. For entitled users DailyLimit and
// ScansRemaining are nil (unlimited).
type Limits struct {
	Entitled       bool
	ScansUsedToday int
	DailyLimit     *int
	ScansRemaining *int
	CanScan        bool
}

// QuotaService enforces the free-tier daily scan limit.
type QuotaService struct {
	entitlements *EntitlementService
	scans        repository.ScanRepository
	limits       LimitSource
	now          func() time.Time
	logger       *slog.Logger
}

// NewQuotaService creates a new quota service.
func NewQuotaService(entitlements *EntitlementService, scans repository.ScanRepository, limits LimitSource, logger *slog.Logger) *QuotaService {
	return &QuotaService{
		entitlements: entitlements,
		scans:        scans,
		limits:       limits,
		now:          time.Now,
		logger:       logger.With("component", "quota"),
	}
}

// Limits computes the user's allowance. Scans are counted for everyone so the
// numbers stay meaningful after a downgrade.
func (s *QuotaService) Limits(ctx context.Context, userID string) (*Limits, error) {
	s.limits.MaybeRefresh(ctx)

	entitled, err := s.entitlements.IsEntitled(ctx, userID)
	if err != nil {
		return nil, err
	}

	used, err := s.scans.CountSince(ctx, userID, s.now().Add(-QuotaWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to count scans: %w", err)
	}

	out := &Limits{Entitled: entitled, ScansUsedToday: used, CanScan: true}
	if entitled {
		return out, nil
	}

	limit := s.limits.FreeScansPerDay()
	remaining := max(limit-used, 0)
	out.DailyLimit = &limit
	out.ScansRemaining = &remaining
	out.CanScan = remaining > 0
	return out, nil
}
