package datasource

import (
	"alsolved/internal/logger"
	"alsolved/internal/metrics"
	"alsolved/internal/models"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// DefaultStaleFor is how long a snapshot may be served after its source
// starts failing.
const DefaultStaleFor = 24 * time.Hour

// CacheStats reports cache behaviour.
type CacheStats struct {
	Hits      int       `json:"hits"`
	Misses    int       `json:"misses"`
	StaleHits int       `json:"stale_hits"`
	Records   int       `json:"records"`
	LoadedAt  time.Time `json:"loaded_at"`
}

// Cache keeps the whole document in memory for TTL. Concurrent misses share
// one fetch. The snapshot is only ever replaced wholesale.
type Cache struct {
	src Source
	ttl time.Duration
	now func() time.Time

	// StaleFor bounds the stale fallback; 0 reports every source failure.
	StaleFor time.Duration

	group singleflight.Group

	mu       sync.RWMutex
	records  []models.GrantRecord
	loadedAt time.Time
	valid    bool
	stats    CacheStats
}

// NewCache wraps src. A ttl <= 0 refetches on every call.
func NewCache(src Source, ttl time.Duration) *Cache {
	return &Cache{src: src, ttl: ttl, now: time.Now, StaleFor: DefaultStaleFor}
}

func (c *Cache) Fetch(ctx context.Context) ([]models.GrantRecord, error) {
	if recs, ok := c.fresh(true); ok {
		return recs, nil
	}

	v, err, _ := c.group.Do("document", func() (interface{}, error) {
		// a flight that finished just before this one may have refilled it
		if recs, ok := c.fresh(false); ok {
			return recs, nil
		}
		return c.load(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.GrantRecord), nil
}

func (c *Cache) fresh(count bool) ([]models.GrantRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ok := c.valid && c.now().Sub(c.loadedAt) < c.ttl
	if count {
		if ok {
			c.stats.Hits++
		} else {
			c.stats.Misses++
		}
	}
	return c.records, ok
}

func (c *Cache) load(ctx context.Context) ([]models.GrantRecord, error) {
	recs, err := c.src.Fetch(ctx)
	if err != nil {
		metrics.SourceFetchErrors.WithLabelValues(kind(c.src)).Inc()

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.records != nil && c.now().Sub(c.loadedAt) < c.StaleFor {
			c.stats.StaleHits++
			logger.Warn("datasource: serving stale document", map[string]interface{}{
				"error": err.Error(), "age": c.now().Sub(c.loadedAt).Round(time.Second).String(),
			})
			return c.records, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.records = recs
	c.loadedAt = c.now()
	c.valid = true
	c.stats.Records = len(recs)
	c.stats.LoadedAt = c.loadedAt
	c.mu.Unlock()

	metrics.SourceRecords.Set(float64(len(recs)))
	logger.Debug("datasource: document loaded", map[string]interface{}{"records": len(recs)})
	return recs, nil
}

// Invalidate forces the next Fetch to reload the document. The previous
// snapshot stays available as a stale fallback.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
	if rc, ok := c.src.(*RedisCache); ok {
		rc.Invalidate(context.Background())
	}
}

// Stats returns a copy of the counters.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// RedisCache shares the encoded document between instances. Any Redis
// failure falls through to Next.
type RedisCache struct {
	Client *redis.Client
	Key    string
	TTL    time.Duration
	Next   Source
}

func (r *RedisCache) Fetch(ctx context.Context) ([]models.GrantRecord, error) {
	b, err := r.Client.Get(ctx, r.Key).Bytes()
	switch {
	case err == nil:
		recs, derr := Decode(bytes.NewReader(b))
		if derr == nil {
			return recs, nil
		}
		logger.Warn("datasource: bad document in redis", map[string]interface{}{"key": r.Key, "error": derr.Error()})
	case !errors.Is(err, redis.Nil):
		logger.Warn("datasource: redis get failed", map[string]interface{}{"key": r.Key, "error": err.Error()})
	}

	recs, err := r.Next.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	enc, err := json.Marshal(recs)
	if err != nil {
		logger.Warn("datasource: document not cached in redis", map[string]interface{}{"key": r.Key, "error": err.Error()})
		return recs, nil
	}
	if err := r.Client.Set(ctx, r.Key, enc, r.TTL).Err(); err != nil {
		logger.Warn("datasource: redis set failed", map[string]interface{}{"key": r.Key, "error": err.Error()})
	}
	return recs, nil
}

// Invalidate removes the shared copy.
func (r *RedisCache) Invalidate(ctx context.Context) {
	if err := r.Client.Del(ctx, r.Key).Err(); err != nil {
		logger.Warn("datasource: redis del failed", map[string]interface{}{"key": r.Key, "error": err.Error()})
	}
}
