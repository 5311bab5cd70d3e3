package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/herbscan-api/internal/models"
	"github.com/jmylchreest/herbscan-api/internal/repository"
)

// ProfileService handles profile lifecycle events from the auth provider.
type ProfileService struct {
	profiles repository.ProfileRepository
	logger   *slog.Logger
}

// NewProfileService creates a new profile service.
func NewProfileService(profiles repository.ProfileRepository, logger *slog.Logger) *ProfileService {
	return &ProfileService{
		profiles: profiles,
		logger:   logger.With("component", "profile"),
	}
}

// HandleUserCreated ensures a free profile exists. Replays are harmless because an
// existing profile, including one already mirrored to pro, is left alone.
func (s *ProfileService) HandleUserCreated(ctx context.Context, userID string) (*models.Profile, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	p, err := s.profiles.Ensure(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure profile: %w", err)
	}
	s.logger.Info("profile ensured", "user_id", userID, "plan", p.Plan)
	return p, nil
}

// HandleUserDeleted records the deletion. Entitlement rows are kept for billing history.
func (s *ProfileService) HandleUserDeleted(_ context.Context, userID string) {
	s.logger.Info("auth user deleted, entitlement retained", "user_id", userID)
}
