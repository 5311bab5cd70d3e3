package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/herbscan-api/internal/entitlement"
	"github.com/jmylchreest/herbscan-api/internal/metrics"
	"github.com/jmylchreest/herbscan-api/internal/repository"
)

// ProfileSyncResult contains the results of one sweep.
type ProfileSyncResult struct {
	Checked   int
	Corrected int
	Errors    []error
}

// ProfileSyncService converges profiles.plan onto the entitlement store. It catches
// mirror writes that failed after a reconciliation and pro periods that lapsed without
// a subscription event. Entitlement rows are only read.
type ProfileSyncService struct {
	profiles  repository.ProfileRepository
	batchSize int
	now       func() time.Time
	logger    *slog.Logger
	cron      *cron.Cron
	running   atomic.Bool
}

// NewProfileSyncService creates a new profile sync service.
func NewProfileSyncService(profiles repository.ProfileRepository, batchSize int, logger *slog.Logger) *ProfileSyncService {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &ProfileSyncService{
		profiles:  profiles,
		batchSize: batchSize,
		now:       time.Now,
		logger:    logger.With("component", "profile_sync"),
	}
}

// Sync rewrites every mismatched plan it finds, one batch at a time, until a batch comes
// back short or no correction makes progress.
func (s *ProfileSyncService) Sync(ctx context.Context) (*ProfileSyncResult, error) {
	s.running.Store(true)
	defer s.running.Store(false)

	result := &ProfileSyncResult{}
	now := s.now().UTC()

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		batch, err := s.profiles.ListPlanMismatches(ctx, now, s.batchSize)
		if err != nil {
			return result, fmt.Errorf("failed to list plan mismatches: %w", err)
		}
		result.Checked += len(batch)

		corrected := 0
		for _, m := range batch {
			plan := entitlement.PlanFor(m.Entitlement, now)
			if err := s.profiles.SetPlan(ctx, m.ProfileID, plan); err != nil {
				s.logger.Error("failed to correct profile plan",
					"user_id", m.ProfileID,
					"plan", plan,
					"error", err,
				)
				result.Errors = append(result.Errors, err)
				continue
			}
			corrected++
			metrics.ProfileSyncCorrectionsTotal.WithLabelValues(string(plan)).Inc()
			s.logger.Info("profile plan corrected",
				"user_id", m.ProfileID,
				"from", m.CurrentPlan,
				"to", plan,
			)
		}
		result.Corrected += corrected

		if len(batch) < s.batchSize || corrected == 0 {
			break
		}
	}

	if result.Checked > 0 {
		s.logger.Info("profile sync completed",
			"checked", result.Checked,
			"corrected", result.Corrected,
			"errors", len(result.Errors),
		)
	}
	return result, nil
}

// Start schedules Sync on a cron schedule such as "@every 1h". An empty schedule disables the sweep.
func (s *ProfileSyncService) Start(ctx context.Context, schedule string) error {
	if schedule == "" {
		s.logger.Info("profile sync disabled")
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if _, err := s.Sync(ctx); err != nil {
			s.logger.Error("profile sync failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid profile sync schedule %q: %w", schedule, err)
	}

	s.cron = c
	c.Start()
	s.logger.Info("profile sync scheduled", "schedule", schedule)
	return nil
}

// Running reports whether a sweep is in progress.
func (s *ProfileSyncService) Running() bool {
	return s.running.Load()
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *ProfileSyncService) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
