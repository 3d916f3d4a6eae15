package territory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when no snapshot is cached.
var ErrCacheMiss = errors.New("snapshot cache miss")

// DefaultCacheKey is the Redis key holding the encoded snapshot.
const DefaultCacheKey = "turf:territories:snapshot"

// DefaultCacheTTL bounds how long a cached snapshot is served.
const DefaultCacheTTL = 2 * time.Minute

// EncodeSnapshot encodes s as CBOR.
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	data, err := cbor.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot decodes a snapshot produced by EncodeSnapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var raw Snapshot
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return NewSnapshot(raw.Territories, raw.FetchedAt), nil
}

// RedisSnapshotCache stores the territory snapshot in Redis so many engine
// processes can share one database read.
type RedisSnapshotCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisSnapshotCache creates a cache. Empty key and zero ttl fall back to the defaults.
func NewRedisSnapshotCache(client *redis.Client, key string, ttl time.Duration) *RedisSnapshotCache {
	if key == "" {
		key = DefaultCacheKey
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisSnapshotCache{client: client, key: key, ttl: ttl}
}

// Get returns the cached snapshot or ErrCacheMiss.
func (c *RedisSnapshotCache) Get(ctx context.Context) (*Snapshot, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot cache: %w", err)
	}
	return DecodeSnapshot(data)
}

// Put stores s with the cache TTL.
func (c *RedisSnapshotCache) Put(ctx context.Context, s *Snapshot) error {
	data, err := EncodeSnapshot(s)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write snapshot cache: %w", err)
	}
	return nil
}

// Invalidate removes the cached snapshot.
func (c *RedisSnapshotCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("failed to invalidate snapshot cache: %w", err)
	}
	return nil
}

// SnapshotCache is the subset of RedisSnapshotCache used by CacheThroughSource.
type SnapshotCache interface {
	Get(ctx context.Context) (*Snapshot, error)
	Put(ctx context.Context, s *Snapshot) error
}

// CacheThroughSource serves active territories from a cache, falling back
// to an origin source on a miss and repopulating the cache.
type CacheThroughSource struct {
	cache   SnapshotCache
	origin  Source
	metrics *Metrics
	now     func() time.Time
}

// NewCacheThroughSource creates a cache-through source. metrics may be nil.
func NewCacheThroughSource(cache SnapshotCache, origin Source, metrics *Metrics) *CacheThroughSource {
	return &CacheThroughSource{
		cache:   cache,
		origin:  origin,
		metrics: metrics,
		now:     time.Now,
	}
}

// ListActive returns the cached territories, or loads them from the origin.
// A failing cache read is treated as a miss.
func (s *CacheThroughSource) ListActive(ctx context.Context) ([]*Territory, error) {
	cached, err := s.cache.Get(ctx)
	if err == nil {
		s.observeCache(true)
		return cached.Territories, nil
	}
	s.observeCache(false)

	list, err := s.origin.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	// Best effort; the origin result is still valid if the write fails.
	_ = s.cache.Put(ctx, NewSnapshot(list, s.now()))
	return list, nil
}

func (s *CacheThroughSource) observeCache(hit bool) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.IncCacheHits()
	} else {
		s.metrics.IncCacheMisses()
	}
}
