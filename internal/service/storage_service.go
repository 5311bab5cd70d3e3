// Package service contains the business logic layer.
package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/jmylchreest/herbscan-api/internal/config"
)

// ObjectStore is the subset of the S3 client the storage service uses.
type ObjectStore interface {
	appconfig.ObjectGetter
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// StorageService handles object storage operations (Tigris/S3-compatible).
type StorageService struct {
	client  ObjectStore
	bucket  string
	enabled bool
	logger  *slog.Logger
}

// NewStorageService creates a new storage service.
func NewStorageService(cfg *appconfig.Config, logger *slog.Logger) (*StorageService, error) {
	if !cfg.StorageEnabled {
		logger.Info("storage service disabled - no bucket configured")
		return &StorageService{
			enabled: false,
			logger:  logger,
		}, nil
	}

	// Load AWS config with static credentials
	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(cfg.StorageRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.StorageAccessKey,
			cfg.StorageSecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Create S3 client with custom endpoint for S3-compatible storage (Tigris, MinIO, etc.)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.StorageEndpoint)
		o.UsePathStyle = true
	})

	logger.Info("storage service initialized",
		"bucket", cfg.StorageBucket,
		"endpoint", cfg.StorageEndpoint,
	)

	return NewStorageServiceWithClient(client, cfg.StorageBucket, logger), nil
}

// NewStorageServiceWithClient wraps an existing client. A nil client disables storage.
func NewStorageServiceWithClient(client ObjectStore, bucket string, logger *slog.Logger) *StorageService {
	return &StorageService{
		client:  client,
		bucket:  bucket,
		enabled: client != nil,
		logger:  logger,
	}
}

// IsEnabled returns whether storage is configured and available.
func (s *StorageService) IsEnabled() bool {
	return s.enabled
}

// Getter returns the client for S3-backed settings loaders, or nil when storage is
// disabled. The nil is untyped so loaders see a nil interface.
func (s *StorageService) Getter() appconfig.ObjectGetter {
	if !s.enabled {
		return nil
	}
	return s.client
}

// Bucket returns the configured bucket name.
func (s *StorageService) Bucket() string {
	return s.bucket
}

// ScanImageKey returns the object key for a scan's uploaded image.
func ScanImageKey(userID, scanID string) string {
	return fmt.Sprintf("scans/%s/%s.jpg", userID, scanID)
}

// StoreScanImage uploads the image for a scan and returns its key. Returns "" without
// error when storage is disabled.
func (s *StorageService) StoreScanImage(ctx context.Context, userID, scanID string, image []byte, contentType string) (string, error) {
	if !s.enabled {
		return "", nil
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}

	key := ScanImageKey(userID, scanID)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(image),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload scan image: %w", err)
	}

	s.logger.Debug("stored scan image",
		"user_id", userID,
		"scan_id", scanID,
		"key", key,
		"size", len(image),
	)
	return key, nil
}

// DeleteScanImage removes a stored scan image. Missing objects are not an error.
func (s *StorageService) DeleteScanImage(ctx context.Context, key string) error {
	if !s.enabled || key == "" {
		return nil
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete scan image: %w", err)
	}
	return nil
}
