package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ObjectGetter is the subset of the S3 client the loader uses.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3LoaderConfig configures an S3-backed settings object.
type S3LoaderConfig struct {
	S3Client     ObjectGetter // nil disables the loader
	Bucket       string
	Key          string
	CacheTTL     time.Duration // default 5m
	ErrorBackoff time.Duration // default 1m
	Logger       *slog.Logger
}

// S3LoadResult is one successful poll.
type S3LoadResult struct {
	Data       []byte
	Etag       string
	FetchTime  time.Time
	NotChanged bool // the object still matches the last ETag
}

// S3Loader polls a single JSON object with ETag-conditional GETs. Settings loaders
// wrap it and decode the returned bytes.
type S3Loader struct {
	cfg S3LoaderConfig
	now func() time.Time

	mu        sync.Mutex
	etag      string
	checkedAt time.Time
	failedAt  time.Time
	checked   bool
	inFlight  bool
}

// NewS3Loader creates a loader, filling in default intervals.
func NewS3Loader(cfg S3LoaderConfig) *S3Loader {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &S3Loader{cfg: cfg, now: time.Now}
}

// IsEnabled reports whether an S3 client was configured.
func (l *S3Loader) IsEnabled() bool {
	return l.cfg.S3Client != nil
}

// NeedsRefresh reports whether a poll is due and not blocked by backoff or another poll.
func (l *S3Loader) NeedsRefresh() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dueLocked()
}

func (l *S3Loader) dueLocked() bool {
	now := l.now()
	if l.inFlight {
		return false
	}
	if !l.failedAt.IsZero() && now.Sub(l.failedAt) < l.cfg.ErrorBackoff {
		return false
	}
	return !l.checked || now.Sub(l.checkedAt) >= l.cfg.CacheTTL
}

// Fetch polls the object. It returns (nil, nil) when disabled, not yet due, or the
// object does not exist, and a NotChanged result when the ETag still matches.
func (l *S3Loader) Fetch(ctx context.Context) (*S3LoadResult, error) {
	if !l.IsEnabled() {
		return nil, nil
	}

	l.mu.Lock()
	if !l.dueLocked() {
		l.mu.Unlock()
		return nil, nil
	}
	l.inFlight = true
	etag := l.etag
	l.mu.Unlock()

	result, err := l.get(ctx, etag)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.inFlight = false
	l.checked = true
	l.checkedAt = l.now()
	switch {
	case err != nil:
		l.failedAt = l.checkedAt
		l.cfg.Logger.Error("failed to fetch S3 settings",
			"bucket", l.cfg.Bucket,
			"key", l.cfg.Key,
			"error", err,
			"retry_after", l.cfg.ErrorBackoff,
		)
		return nil, err
	case result == nil:
		// Missing objects poll at the backoff rate, not the cache rate.
		l.failedAt = l.checkedAt
	default:
		l.failedAt = time.Time{}
		if !result.NotChanged {
			l.etag = result.Etag
		}
	}
	return result, nil
}

func (l *S3Loader) get(ctx context.Context, etag string) (*S3LoadResult, error) {
	input := &s3.GetObjectInput{Bucket: &l.cfg.Bucket, Key: &l.cfg.Key}
	if etag != "" {
		quoted := `"` + etag + `"`
		input.IfNoneMatch = &quoted
	}

	resp, err := l.cfg.S3Client.GetObject(ctx, input)
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			l.cfg.Logger.Debug("S3 settings object not found, using defaults", "key", l.cfg.Key)
			return nil, nil
		}
		var coded interface{ ErrorCode() string }
		if errors.As(err, &coded) && coded.ErrorCode() == "NotModified" {
			return &S3LoadResult{Etag: etag, NotChanged: true}, nil
		}
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid JSON in s3://%s/%s: %w", l.cfg.Bucket, l.cfg.Key, err)
	}

	result := &S3LoadResult{Data: raw, FetchTime: l.now()}
	if resp.ETag != nil {
		result.Etag = strings.Trim(*resp.ETag, `"`)
	}
	l.cfg.Logger.Debug("S3 settings fetched", "key", l.cfg.Key, "etag", result.Etag, "size", len(raw))
	return result, nil
}
