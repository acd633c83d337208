package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StaleGrace is how long an expired entry with validators is kept in Redis so
// it can still be revalidated with a conditional request.
const StaleGrace = 10 * time.Minute

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// hit states for CacheHits
const (
	hitFresh = "fresh"
	hitStale = "stale"
)

// Manager stores page responses in Redis.
type Manager struct {
	redis *redis.Client
}

// NewManager creates a cache manager. The redis client is required.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{redis: redisClient}
}

// Get returns the entry for key.
//
// A fresh entry is served as is. An expired entry is still returned while it
// carries an ETag or Last-Modified value so the caller can revalidate it;
// anything else that is expired or absent yields ErrCacheMiss.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	entry, err := m.load(ctx, key.String())
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			CacheMisses.Inc()
		}
		return nil, err
	}

	switch {
	case !entry.IsExpired():
		CacheHits.WithLabelValues(hitFresh).Inc()
		return entry, nil
	case ShouldMakeConditionalRequest(entry):
		CacheHits.WithLabelValues(hitStale).Inc()
		return entry, nil
	}

	_ = m.Delete(ctx, key)
	CacheMisses.Inc()
	return nil, ErrCacheMiss
}

// Set stores entry for key. Entries that are already expired are not stored.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return errors.New("cache entry cannot be nil")
	}

	ttl := storeTTL(entry)
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := m.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheEntryBytes.Observe(float64(len(data)))
	return nil
}

// Delete removes a cache entry.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// UpdateTTL moves the expiry of a stored entry, typically after a 304. It does
// not count as a cache lookup.
func (m *Manager) UpdateTTL(ctx context.Context, key CacheKey, newExpires time.Time) error {
	entry, err := m.load(ctx, key.String())
	if err != nil {
		return err
	}

	entry.Expires = newExpires
	return m.Set(ctx, key, entry)
}

func (m *Manager) load(ctx context.Context, key string) (*CacheEntry, error) {
	data, err := m.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	entry := new(CacheEntry)
	if err := json.Unmarshal(data, entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return entry, nil
}

// storeTTL keeps an entry until it expires, plus StaleGrace when it can be
// revalidated.
func storeTTL(entry *CacheEntry) time.Duration {
	ttl := entry.TTL()
	if ttl > 0 && ShouldMakeConditionalRequest(entry) {
		ttl += StaleGrace
	}
	return ttl
}
