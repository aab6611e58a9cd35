package opportunity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

// Cache stores identification results per subject.
type Cache interface {
	// Get returns ok=false on a miss.
	Get(ctx context.Context, subjectID string) (IdentifyResult, bool, error)
	Set(ctx context.Context, subjectID string, result IdentifyResult, ttl time.Duration) error
	Invalidate(ctx context.Context, subjectID string) error
}

func cacheKey(subjectID string) string {
	return fmt.Sprintf("opportunities:subject:%s", subjectID)
}

// RedisCache stores results as JSON strings.
type RedisCache struct {
	redis *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	if client == nil {
		panic("opportunity: redis client cannot be nil")
	}
	return &RedisCache{redis: client}
}

func (c *RedisCache) Get(ctx context.Context, subjectID string) (IdentifyResult, bool, error) {
	ctx, span := tracer.Start(ctx, "opportunity.cache_get")
	defer span.End()
	span.SetAttributes(attribute.String("woundcare.subject_id", subjectID))

	data, err := c.redis.Get(ctx, cacheKey(subjectID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return IdentifyResult{}, false, nil
		}
		span.RecordError(err)
		return IdentifyResult{}, false, fmt.Errorf("opportunity: cache get: %w", err)
	}
	var result IdentifyResult
	if err := json.Unmarshal(data, &result); err != nil {
		span.RecordError(err)
		return IdentifyResult{}, false, fmt.Errorf("opportunity: cache decode: %w", err)
	}
	return result, true, nil
}

func (c *RedisCache) Set(ctx context.Context, subjectID string, result IdentifyResult, ttl time.Duration) error {
	ctx, span := tracer.Start(ctx, "opportunity.cache_set")
	defer span.End()
	span.SetAttributes(attribute.String("woundcare.subject_id", subjectID))

	data, err := json.Marshal(result)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("opportunity: cache encode: %w", err)
	}
	if err := c.redis.Set(ctx, cacheKey(subjectID), data, ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("opportunity: cache set: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, subjectID string) error {
	if err := c.redis.Del(ctx, cacheKey(subjectID)).Err(); err != nil {
		return fmt.Errorf("opportunity: cache invalidate: %w", err)
	}
	return nil
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryCache is an in-process TTL cache. Entries are stored encoded so
// callers never share slices with the cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

// WithClock replaces the time source.
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	if now != nil {
		c.now = now
	}
	return c
}

func (c *MemoryCache) Get(_ context.Context, subjectID string) (IdentifyResult, bool, error) {
	c.mu.Lock()
	entry, ok := c.entries[subjectID]
	if ok && !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		delete(c.entries, subjectID)
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return IdentifyResult{}, false, nil
	}
	var result IdentifyResult
	if err := json.Unmarshal(entry.data, &result); err != nil {
		return IdentifyResult{}, false, fmt.Errorf("opportunity: cache decode: %w", err)
	}
	return result, true, nil
}

func (c *MemoryCache) Set(_ context.Context, subjectID string, result IdentifyResult, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("opportunity: cache encode: %w", err)
	}
	entry := memoryEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[subjectID] = entry
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, subjectID string) error {
	c.mu.Lock()
	delete(c.entries, subjectID)
	c.mu.Unlock()
	return nil
}
