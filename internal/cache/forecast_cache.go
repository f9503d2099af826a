package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-quant/internal/models"
)

const forecastPrefix = "quant:latest:"

// ForecastCacheEntry wraps a published forecast with cache metadata.
type ForecastCacheEntry struct {
	Result    *models.ForecastResult `json:"result"`
	CachedAt  time.Time              `json:"cached_at"`
	ExpiresAt time.Time              `json:"expires_at"`
}

// ForecastCacheStats tracks cache performance metrics
type ForecastCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
}

// HitRate returns hits as a percentage of lookups.
func (s ForecastCacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// ForecastCacheStatus is the cache section of the health report.
type ForecastCacheStatus struct {
	ForecastCacheStats
	HitRate float64 `json:"hit_rate"`
}

// ForecastCache keeps the latest forecast per target in Redis.
type ForecastCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger logrus.FieldLogger

	mu    sync.RWMutex
	stats ForecastCacheStats
}

// NewForecastCache creates a Redis-backed forecast cache.
func NewForecastCache(redisClient *redis.Client, ttl time.Duration, logger logrus.FieldLogger) *ForecastCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ForecastCache{
		redis:  redisClient,
		ttl:    ttl,
		logger: logger.WithField("component", "forecast_cache"),
	}
}

func key(target string) string { return forecastPrefix + target }

// Get returns the latest forecast for target. Redis errors and undecodable
// entries count as misses.
func (c *ForecastCache) Get(ctx context.Context, target string) (*models.ForecastResult, bool) {
	data, err := c.redis.Get(ctx, key(target)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.record(func(s *ForecastCacheStats) { s.Misses++ })
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).WithField("target", target).Warn("Redis error reading forecast")
		c.record(func(s *ForecastCacheStats) { s.Misses++ })
		return nil, false
	}

	var entry ForecastCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Result == nil {
		c.logger.WithField("target", target).Warn("Discarding undecodable forecast cache entry")
		c.record(func(s *ForecastCacheStats) { s.Misses++ })
		return nil, false
	}

	c.record(func(s *ForecastCacheStats) { s.Hits++ })
	return entry.Result, true
}

// Set stores result as the latest forecast for target.
func (c *ForecastCache) Set(ctx context.Context, target string, result *models.ForecastResult) error {
	now := time.Now()
	entry := ForecastCacheEntry{
		Result:    result,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode forecast for %s: %w", target, err)
	}
	if err := c.redis.Set(ctx, key(target), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache forecast for %s: %w", target, err)
	}

	c.record(func(s *ForecastCacheStats) { s.Sets++ })
	c.logger.WithFields(logrus.Fields{"target": target, "ttl": c.ttl.String()}).Debug("Cached forecast")
	return nil
}

// Stats returns a snapshot of the cache counters.
func (c *ForecastCache) Stats() ForecastCacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Status returns the counters with the derived hit rate.
func (c *ForecastCache) Status() ForecastCacheStatus {
	stats := c.Stats()
	return ForecastCacheStatus{ForecastCacheStats: stats, HitRate: stats.HitRate()}
}

func (c *ForecastCache) record(update func(*ForecastCacheStats)) {
	c.mu.Lock()
	update(&c.stats)
	c.mu.Unlock()
}
