package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Ledger shared across replicas. Keys expire with the configured TTL.
type Redis struct {
	rdb   *redis.Client
	keyNS string
	ttl   time.Duration
}

// NewRedis creates a Redis-backed ledger.
func NewRedis(rdb *redis.Client, keyPrefix string, ttl time.Duration) *Redis {
	if keyPrefix == "" {
		keyPrefix = "herbscan:stripe:event:"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{rdb: rdb, keyNS: keyPrefix, ttl: ttl}
}

// OpenRedis parses a redis:// URL and verifies connectivity.
func OpenRedis(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedis(rdb, "", ttl), nil
}

func (r *Redis) key(eventID string) string { return r.keyNS + eventID }

func (r *Redis) Seen(ctx context.Context, eventID string) (bool, error) {
	err := r.rdb.Get(ctx, r.key(eventID)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Record uses SET NX so the first recorded type and expiry are kept.
func (r *Redis) Record(ctx context.Context, eventID, eventType string) error {
	return r.rdb.SetNX(ctx, r.key(eventID), eventType, r.ttl).Err()
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
