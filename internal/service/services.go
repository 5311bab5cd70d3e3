// Package service contains the business logic layer.
// Note: Users are owned by the hosted auth provider. The UserID in services references
// its opaque user IDs.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/herbscan-api/internal/config"
	"github.com/jmylchreest/herbscan-api/internal/identify"
	"github.com/jmylchreest/herbscan-api/internal/ledger"
	"github.com/jmylchreest/herbscan-api/internal/repository"
)

// Services holds all service instances.
type Services struct {
	Reconciler    *Reconciler
	Entitlement   *EntitlementService
	Quota         *QuotaService
	Identify      *IdentifyService
	Profile       *ProfileService
	ProfileSync   *ProfileSyncService
	Storage       *StorageService
	QuotaSettings *config.QuotaSettingsLoader
	Ledger        ledger.Ledger
}

// NewServices creates all service instances.
func NewServices(ctx context.Context, cfg *config.Config, repos *repository.Repositories, logger *slog.Logger) (*Services, error) {
	storageSvc, err := NewStorageService(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}

	// Runtime override of the free scan limit, read from the same bucket
	quotaSettings := config.NewQuotaSettingsLoader(config.S3LoaderConfig{
		S3Client: storageSvc.Getter(),
		Bucket:   storageSvc.Bucket(),
		CacheTTL: cfg.QuotaSettingsTTL,
		Logger:   logger,
	}, cfg.FreeScansPerDay)
	quotaSettings.Load(ctx)

	var led ledger.Ledger
	if cfg.LedgerShared() {
		led, err = ledger.OpenRedis(ctx, cfg.RedisURL, cfg.EventLedgerTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to open event ledger: %w", err)
		}
		logger.Info("event ledger using redis", "ttl", cfg.EventLedgerTTL)
	} else {
		led = ledger.NewMemory(cfg.EventLedgerTTL)
		logger.Info("event ledger using memory", "ttl", cfg.EventLedgerTTL)
	}

	var fetcher SubscriptionFetcher
	if cfg.StripeSecretKey != "" {
		fetcher = NewStripeSubscriptionFetcher(cfg.StripeSecretKey)
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set - invoice renewals cannot be reconciled")
	}
	if !cfg.StripeConfigured() {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set - all Stripe webhooks will be rejected")
	}

	reconciler := NewReconciler(repos, ReconcilerConfig{
		WebhookSecret: cfg.StripeWebhookSecret,
		FetchTimeout:  cfg.StripeFetchTimeout,
		Fetcher:       fetcher,
		Ledger:        led,
	}, logger)

	provider, err := identify.New(identify.Config{
		Provider: cfg.PlantProvider,
		APIKey:   plantAPIKey(cfg),
		Timeout:  cfg.IdentifyTimeout,
	})
	if err != nil {
		_ = led.Close()
		return nil, fmt.Errorf("failed to create identification provider: %w", err)
	}
	logger.Info("identification provider configured", "provider", provider.Name())

	entitlementSvc := NewEntitlementService(repos.Entitlement, logger)

	return &Services{
		Reconciler:  reconciler,
		Entitlement: entitlementSvc,
		Quota:       NewQuotaService(entitlementSvc, repos.Scan, quotaSettings, logger),
		Identify: NewIdentifyService(provider, repos.Scan, storageSvc, IdentifyServiceConfig{
			MaxImageBytes: cfg.MaxImageBytes,
			StoreImages:   cfg.StoreScanImages,
		}, logger),
		Profile:       NewProfileService(repos.Profile, logger),
		ProfileSync:   NewProfileSyncService(repos.Profile, cfg.ProfileSyncBatchSize, logger),
		Storage:       storageSvc,
		QuotaSettings: quotaSettings,
		Ledger:        led,
	}, nil
}

// Close releases resources held by services.
func (s *Services) Close() error {
	s.ProfileSync.Stop()
	return s.Ledger.Close()
}

func plantAPIKey(cfg *config.Config) string {
	switch cfg.PlantProvider {
	case config.ProviderPlantID:
		return cfg.PlantIDAPIKey
	case config.ProviderPlantNet:
		return cfg.PlantNetAPIKey
	default:
		return ""
	}
}
