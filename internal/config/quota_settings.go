package config

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// QuotaSettingsKey is the object key of the runtime quota override.
const QuotaSettingsKey = "config/quota_settings.json"

// QuotaSettings is the JSON document stored at QuotaSettingsKey.
//
//	{"free_scans_per_day": 10}
type QuotaSettings struct {
	FreeScansPerDay *int `json:"free_scans_per_day,omitempty"`
}

// QuotaSettingsLoader serves the free daily scan limit, preferring an S3 override over
// the environment default. Safe for concurrent use.
type QuotaSettingsLoader struct {
	loader *S3Loader

	mu           sync.RWMutex
	defaultLimit int
	override     *int
	logger       *slog.Logger
}

// NewQuotaSettingsLoader creates a loader. With a nil S3 client it always returns defaultLimit.
func NewQuotaSettingsLoader(cfg S3LoaderConfig, defaultLimit int) *QuotaSettingsLoader {
	if cfg.Key == "" {
		cfg.Key = QuotaSettingsKey
	}
	l := &QuotaSettingsLoader{
		loader:       NewS3Loader(cfg),
		defaultLimit: defaultLimit,
		logger:       cfg.Logger,
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// Load performs an initial blocking fetch. Call at startup.
func (l *QuotaSettingsLoader) Load(ctx context.Context) {
	if !l.loader.IsEnabled() {
		return
	}
	l.refresh(ctx)
}

// MaybeRefresh triggers a background refresh once the cache TTL has passed.
func (l *QuotaSettingsLoader) MaybeRefresh(ctx context.Context) {
	if !l.loader.IsEnabled() || !l.loader.NeedsRefresh() {
		return
	}
	go l.refresh(context.WithoutCancel(ctx))
}

// FreeScansPerDay returns the effective free daily scan limit.
func (l *QuotaSettingsLoader) FreeScansPerDay() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.override != nil {
		return *l.override
	}
	return l.defaultLimit
}

func (l *QuotaSettingsLoader) refresh(ctx context.Context) {
	result, err := l.loader.Fetch(ctx)
	if err != nil || result == nil || result.NotChanged {
		return
	}

	var settings QuotaSettings
	if err := json.Unmarshal(result.Data, &settings); err != nil {
		l.logger.Error("failed to parse quota settings", "error", err)
		return
	}
	if settings.FreeScansPerDay != nil && *settings.FreeScansPerDay < 0 {
		l.logger.Warn("ignoring negative free_scans_per_day", "value", *settings.FreeScansPerDay)
		settings.FreeScansPerDay = nil
	}

	l.mu.Lock()
	l.override = settings.FreeScansPerDay
	l.mu.Unlock()

	l.logger.Info("quota settings loaded",
		"etag", result.Etag,
		"free_scans_per_day", l.FreeScansPerDay(),
	)
}
