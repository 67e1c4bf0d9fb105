package external

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/curriculum-catalog-server/internal/domain"
)

// PayloadCache keeps the last good raw catalog payload in Redis so a fresh
// process can serve a catalog while the upstream source is unavailable.
type PayloadCache struct {
	redis      *redis.Client
	key        string
	sourceURL  string
	defaultTTL time.Duration
}

// CachedPayload is the envelope stored in Redis
type CachedPayload struct {
	Data      json.RawMessage `json:"data"`
	SourceURL string          `json:"source_url"`
	CachedAt  time.Time       `json:"cached_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// NewPayloadCache connects to Redis and returns a cache for one source URL
func NewPayloadCache(config domain.CacheConfig, sourceURL string) (*PayloadCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewPayloadCacheWithClient(client, sourceURL, config.DefaultTTL), nil
}

// NewPayloadCacheWithClient wraps an existing Redis client
func NewPayloadCacheWithClient(client *redis.Client, sourceURL string, ttl time.Duration) *PayloadCache {
	if ttl == 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &PayloadCache{
		redis:      client,
		key:        payloadKey(sourceURL),
		sourceURL:  sourceURL,
		defaultTTL: ttl,
	}
}

// GetPayload returns the cached payload and when it was stored. A miss,
// an expired entry or a corrupted entry all report ok == false.
func (c *PayloadCache) GetPayload(ctx context.Context) ([]byte, time.Time, bool, error) {
	val, err := c.redis.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("failed to get cached catalog payload: %w", err)
	}

	var cached CachedPayload
	if err := json.Unmarshal(val, &cached); err != nil {
		c.redis.Del(ctx, c.key)
		return nil, time.Time{}, false, nil
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, c.key)
		return nil, time.Time{}, false, nil
	}

	return cached.Data, cached.CachedAt, true, nil
}

// SetPayload stores a raw payload. The payload must be valid JSON.
func (c *PayloadCache) SetPayload(ctx context.Context, payload []byte) error {
	if !json.Valid(payload) {
		return fmt.Errorf("refusing to cache invalid JSON payload")
	}

	now := time.Now()
	cached := CachedPayload{
		Data:      json.RawMessage(payload),
		SourceURL: c.sourceURL,
		CachedAt:  now,
		ExpiresAt: now.Add(c.defaultTTL),
	}

	jsonData, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal catalog payload: %w", err)
	}

	return c.redis.Set(ctx, c.key, jsonData, c.defaultTTL).Err()
}

// Invalidate removes the cached payload
func (c *PayloadCache) Invalidate(ctx context.Context) error {
	return c.redis.Del(ctx, c.key).Err()
}

// Ping checks if Redis connection is alive
func (c *PayloadCache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *PayloadCache) Close() error {
	return c.redis.Close()
}

// payloadKey derives a stable key from the source URL
func payloadKey(sourceURL string) string {
	hash := sha256.Sum256([]byte(sourceURL))
	return fmt.Sprintf("curriculum:catalog:%x", hash[:8])
}
