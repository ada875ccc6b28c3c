// Package summary implements the tiered cache for generated patient
// summaries: an in-memory LRU for hot patients, an optional Redis tier
// shared across instances, and a durable database row that survives
// restarts. Concurrent misses for the same patient collapse into a
// single generation.
package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/patient-insight-server/internal/domain"
)

// DurableStore is the persistence tier behind the cache. The repository
// layer provides the production implementation backed by the
// patient_summary table.
type DurableStore interface {
	Get(ctx context.Context, patientID int64) (string, time.Time, error)
	Upsert(ctx context.Context, patientID int64, text string) error
	Delete(ctx context.Context, patientID int64) error
}

// cachedSummary is the envelope stored in the memory and Redis tiers.
type cachedSummary struct {
	Text      string    `json:"text"`
	CachedAt  time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Cache implements domain.SummaryCache over the three tiers.
type Cache struct {
	memory  *lru.Cache[int64, cachedSummary]
	redis   *redis.Client
	durable DurableStore
	ttl     time.Duration
	flight  singleflight.Group
	logger  *logrus.Logger
}

// NewCache creates the tiered summary cache. The Redis tier is attached
// only when enabled in config; the durable store may be nil for
// deployments without a database-backed summary table.
func NewCache(config *domain.CacheConfig, durable DurableStore, logger *logrus.Logger) (*Cache, error) {
	memory, err := lru.New[int64, cachedSummary](config.SummarySize)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	cache := &Cache{
		memory:  memory,
		durable: durable,
		ttl:     config.SummaryTTL,
		logger:  logger,
	}

	if config.RedisEnabled {
		opts, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		opts.PoolSize = config.PoolSize

		client := redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}

		cache.redis = client
		logger.WithField("pool_size", opts.PoolSize).Info("Summary cache Redis tier enabled")
	}

	return cache, nil
}

// GetOrGenerate returns the cached summary for a patient, or runs
// generate and caches the result. The hit flag is true only when the
// text came from a cache tier without invoking generate.
//
// Generation detaches from the caller's cancellation: if the caller
// times out mid-flight, it gets the context error while the flight runs
// to completion and populates the tiers for the next request. Failed
// generations are never cached.
func (c *Cache) GetOrGenerate(ctx context.Context, patientID int64, generate func(context.Context) (string, error)) (string, bool, error) {
	if text, ok := c.getFromMemory(patientID); ok {
		c.logger.WithFields(logrus.Fields{
			"patient_id": patientID,
			"cache_tier": "memory",
		}).Debug("Summary cache hit")
		return text, true, nil
	}

	if text, ok := c.getFromRedis(ctx, patientID); ok {
		c.logger.WithFields(logrus.Fields{
			"patient_id": patientID,
			"cache_tier": "redis",
		}).Debug("Summary cache hit")
		c.setInMemory(patientID, text)
		return text, true, nil
	}

	if text, ok := c.getFromDurable(ctx, patientID); ok {
		c.logger.WithFields(logrus.Fields{
			"patient_id": patientID,
			"cache_tier": "durable",
		}).Debug("Summary cache hit")
		c.setInMemory(patientID, text)
		c.setInRedis(ctx, patientID, text)
		return text, true, nil
	}

	key := strconv.FormatInt(patientID, 10)
	ch := c.flight.DoChan(key, func() (interface{}, error) {
		// The flight outlives any single caller, so it runs on a
		// context stripped of the caller's cancellation. The engine
		// client's own timeout still bounds the call.
		genCtx := context.WithoutCancel(ctx)

		text, err := generate(genCtx)
		if err != nil {
			return nil, err
		}

		c.setInMemory(patientID, text)
		c.setInRedis(genCtx, patientID, text)
		c.setInDurable(genCtx, patientID, text)
		return text, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", false, res.Err
		}
		return res.Val.(string), false, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

// Invalidate drops a patient's summary from every tier. Cache tiers are
// best effort; only a durable delete failure is returned.
func (c *Cache) Invalidate(ctx context.Context, patientID int64) error {
	c.memory.Remove(patientID)

	if c.redis != nil {
		if err := c.redis.Del(ctx, redisKey(patientID)).Err(); err != nil {
			c.logger.WithFields(logrus.Fields{
				"patient_id": patientID,
				"error":      err,
			}).Warn("Failed to invalidate Redis summary")
		}
	}

	if c.durable != nil {
		if err := c.durable.Delete(ctx, patientID); err != nil {
			return fmt.Errorf("invalidating summary for patient %d: %w", patientID, err)
		}
	}

	return nil
}

// Health pings the Redis tier when one is attached. The memory tier
// cannot fail, so deployments without Redis always report healthy.
func (c *Cache) Health(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	if err := c.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("summary cache redis ping: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (c *Cache) Close() error {
	if c.redis != nil {
		return c.redis.Close()
	}
	return nil
}

func (c *Cache) getFromMemory(patientID int64) (string, bool) {
	cached, ok := c.memory.Get(patientID)
	if !ok {
		return "", false
	}
	if time.Now().After(cached.ExpiresAt) {
		c.memory.Remove(patientID)
		return "", false
	}
	return cached.Text, true
}

func (c *Cache) setInMemory(patientID int64, text string) {
	c.memory.Add(patientID, cachedSummary{
		Text:      text,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(c.ttl),
	})
}

func (c *Cache) getFromRedis(ctx context.Context, patientID int64) (string, bool) {
	if c.redis == nil {
		return "", false
	}

	val, err := c.redis.Get(ctx, redisKey(patientID)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"patient_id": patientID,
			"error":      err,
		}).Warn("Redis summary lookup failed, falling through")
		return "", false
	}

	var cached cachedSummary
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, redisKey(patientID))
		return "", false
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, redisKey(patientID))
		return "", false
	}

	return cached.Text, true
}

func (c *Cache) setInRedis(ctx context.Context, patientID int64, text string) {
	if c.redis == nil {
		return
	}

	cached := cachedSummary{
		Text:      text,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(c.ttl),
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return
	}

	if err := c.redis.Set(ctx, redisKey(patientID), data, c.ttl).Err(); err != nil {
		c.logger.WithFields(logrus.Fields{
			"patient_id": patientID,
			"error":      err,
		}).Warn("Failed to write summary to Redis")
	}
}

func (c *Cache) getFromDurable(ctx context.Context, patientID int64) (string, bool) {
	if c.durable == nil {
		return "", false
	}

	text, updated, err := c.durable.Get(ctx, patientID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			c.logger.WithFields(logrus.Fields{
				"patient_id": patientID,
				"error":      err,
			}).Warn("Durable summary lookup failed, falling through")
		}
		return "", false
	}

	if time.Since(updated) > c.ttl {
		return "", false
	}

	return text, true
}

func (c *Cache) setInDurable(ctx context.Context, patientID int64, text string) {
	if c.durable == nil {
		return
	}
	if err := c.durable.Upsert(ctx, patientID, text); err != nil {
		c.logger.WithFields(logrus.Fields{
			"patient_id": patientID,
			"error":      err,
		}).Warn("Failed to persist summary")
	}
}

func redisKey(patientID int64) string {
	return "summary:patient:" + strconv.FormatInt(patientID, 10)
}
