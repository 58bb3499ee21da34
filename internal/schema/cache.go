package schema

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"lead-engine/internal/common/logger"
	"lead-engine/internal/common/metrics"
)

// CachedRegistry wraps a Registry with a Redis-backed cache. Entries are
// keyed by resolved branch id only, so two branches can never share a key.
// All registry writes must go through Invalidate.
type CachedRegistry struct {
	inner  Registry
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedRegistry(inner Registry, client *redis.Client, ttl time.Duration, log logger.Logger) *CachedRegistry {
	return &CachedRegistry{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "mapping-cache"}),
	}
}

func branchKey(id string) string   { return "lead-engine:branch:" + id }
func mappingsKey(id string) string { return "lead-engine:mappings:" + id }

func (c *CachedRegistry) GetBranch(ctx context.Context, branchID string) (*Branch, error) {
	// The identifier may be an id or a machine name; cache only under the
	// canonical id to keep one branch under one key.
	if raw, err := c.client.Get(ctx, branchKey(branchID)).Result(); err == nil {
		var b Branch
		if err := json.Unmarshal([]byte(raw), &b); err == nil {
			metrics.MappingCacheHits.WithLabelValues("hit").Inc()
			return &b, nil
		}
	}
	metrics.MappingCacheHits.WithLabelValues("miss").Inc()

	b, err := c.inner.GetBranch(ctx, branchID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, branchKey(b.ID), b)
	if b.MachineName != b.ID {
		c.store(ctx, branchKey(b.MachineName), b)
	}
	return b, nil
}

func (c *CachedRegistry) GetMappings(ctx context.Context, branchID string) ([]FieldMapping, error) {
	b, err := c.GetBranch(ctx, branchID)
	if err != nil {
		return nil, err
	}

	if raw, err := c.client.Get(ctx, mappingsKey(b.ID)).Result(); err == nil {
		var mappings []FieldMapping
		if err := json.Unmarshal([]byte(raw), &mappings); err == nil {
			metrics.MappingCacheHits.WithLabelValues("hit").Inc()
			return mappings, nil
		}
	}
	metrics.MappingCacheHits.WithLabelValues("miss").Inc()

	mappings, err := c.inner.GetMappings(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, mappingsKey(b.ID), mappings)
	return mappings, nil
}

// Invalidate drops the cached branch and mapping entries for a branch. It
// must be called after every registry write.
func (c *CachedRegistry) Invalidate(ctx context.Context, branchID string) {
	keys := []string{branchKey(branchID), mappingsKey(branchID)}
	if b, err := c.inner.GetBranch(ctx, branchID); err == nil {
		keys = append(keys, branchKey(b.ID), branchKey(b.MachineName), mappingsKey(b.ID))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("cache invalidation failed", map[string]interface{}{
			"branchId": branchID,
			"error":    err.Error(),
		})
	}
}

func (c *CachedRegistry) store(ctx context.Context, key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}
