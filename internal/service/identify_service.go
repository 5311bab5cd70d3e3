package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/herbscan-api/internal/identify"
	"github.com/jmylchreest/herbscan-api/internal/metrics"
	"github.com/jmylchreest/herbscan-api/internal/models"
	"github.com/jmylchreest/herbscan-api/internal/repository"
)

// ErrImageTooLarge is returned when a decoded image exceeds the configured limit.
var ErrImageTooLarge = errors.New("image size exceeds limit")

// IdentifyResult is returned to the client.
type IdentifyResult struct {
	RequestID  string                           `json:"requestId"`
	Candidates []models.IdentificationCandidate `json:"candidates"`
	ScanID     string                           `json:"-"`
}

// scanRecord is the raw_json stored with each scan.
type scanRecord struct {
	RequestID  string                           `json:"requestId"`
	Candidates []models.IdentificationCandidate `json:"candidates"`
	Provider   string                           `json:"provider"`
}

// IdentifyServiceConfig configures an IdentifyService.
type IdentifyServiceConfig struct {
	MaxImageBytes int64
	StoreImages   bool
}

// IdentifyService runs identification and records scan history.
type IdentifyService struct {
	provider identify.Provider
	scans    repository.ScanRepository
	storage  *StorageService
	cfg      IdentifyServiceConfig
	now      func() time.Time
	logger   *slog.Logger
}

// NewIdentifyService creates a new identify service. storage may be nil.
func NewIdentifyService(provider identify.Provider, scans repository.ScanRepository, storage *StorageService, cfg IdentifyServiceConfig, logger *slog.Logger) *IdentifyService {
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = 5 * 1024 * 1024
	}
	return &IdentifyService{
		provider: provider,
		scans:    scans,
		storage:  storage,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With("component", "identify", "provider", provider.Name()),
	}
}

// MaxImageBytes returns the largest accepted decoded image.
func (s *IdentifyService) MaxImageBytes() int64 {
	return s.cfg.MaxImageBytes
}

// Identify identifies the plant in image for userID. A scan is recorded only when the
// provider returned at least one candidate.
func (s *IdentifyService) Identify(ctx context.Context, userID string, image []byte, contentType string) (*IdentifyResult, error) {
	if int64(len(image)) > s.cfg.MaxImageBytes {
		return nil, ErrImageTooLarge
	}

	provider := s.provider.Name()
	candidates, err := s.provider.Identify(ctx, image)
	if err != nil {
		metrics.IdentifyRequestsTotal.WithLabelValues(provider, "error").Inc()
		return nil, fmt.Errorf("identification failed: %w", err)
	}
	if candidates == nil {
		candidates = []models.IdentificationCandidate{}
	}

	result := &IdentifyResult{
		RequestID:  uuid.NewString(),
		Candidates: candidates,
	}
	log := s.logger.With("user_id", userID, "request_id", result.RequestID)

	if len(candidates) == 0 {
		metrics.IdentifyRequestsTotal.WithLabelValues(provider, "no_match").Inc()
		log.Info("no candidates returned")
		return result, nil
	}

	scanID, err := s.recordScan(ctx, userID, image, contentType, result)
	if err != nil {
		metrics.IdentifyRequestsTotal.WithLabelValues(provider, "error").Inc()
		return nil, err
	}
	result.ScanID = scanID

	metrics.IdentifyRequestsTotal.WithLabelValues(provider, "identified").Inc()
	log.Info("plant identified",
		"scan_id", scanID,
		"top_species", candidates[0].Species,
		"confidence", candidates[0].Confidence,
		"candidates", len(candidates),
	)
	return result, nil
}

// recordScan stores the image (when enabled) and inserts the scan row. The row is what
// the daily quota counts, so a failed insert fails the request.
func (s *IdentifyService) recordScan(ctx context.Context, userID string, image []byte, contentType string, result *IdentifyResult) (string, error) {
	top := result.Candidates[0]
	raw, err := json.Marshal(scanRecord{
		RequestID:  result.RequestID,
		Candidates: result.Candidates,
		Provider:   s.provider.Name(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal scan record: %w", err)
	}

	scan := &models.Scan{
		ID:            ulid.Make().String(),
		UserID:        userID,
		TopSpecies:    top.Species,
		TopCommonName: top.CommonName,
		Confidence:    top.Confidence,
		ThumbnailURL:  top.ThumbnailURL,
		RawJSON:       raw,
		CreatedAt:     s.now().UTC(),
	}

	if s.cfg.StoreImages && s.storage != nil && s.storage.IsEnabled() {
		key, err := s.storage.StoreScanImage(ctx, userID, scan.ID, image, contentType)
		if err != nil {
			// History still works without the image.
			s.logger.Warn("failed to store scan image", "scan_id", scan.ID, "error", err)
		}
		scan.ImageKey = key
	}

	if err := s.scans.Create(ctx, scan); err != nil {
		if scan.ImageKey != "" {
			if derr := s.storage.DeleteScanImage(ctx, scan.ImageKey); derr != nil {
				s.logger.Warn("failed to remove orphaned scan image", "key", scan.ImageKey, "error", derr)
			}
		}
		return "", fmt.Errorf("failed to record scan: %w", err)
	}
	return scan.ID, nil
}

// History returns the user's most recent scans.
func (s *IdentifyService) History(ctx context.Context, userID string, limit, offset int) ([]*models.Scan, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	scans, err := s.scans.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	return scans, nil
}
