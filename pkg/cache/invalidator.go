// Package cache exposes the dashboard cache invalidation collaborator. The
// read path owns the TTL; the sync path only ever deletes.
package cache

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/aster/pkg/metrics"
	"github.com/Ramsey-B/aster/pkg/redis"
)

// OverviewKey returns the cache key for a tenant's dashboard overview.
func OverviewKey(tenantID uuid.UUID) string {
	return fmt.Sprintf("dashboard:overview:%s", tenantID)
}

// Invalidator drops precomputed dashboard entries after a sync.
type Invalidator interface {
	Invalidate(ctx context.Context, tenantID uuid.UUID) error
}

// RedisInvalidator deletes overview keys from Redis.
type RedisInvalidator struct {
	client *redis.Client
	logger ectologger.Logger
}

// NewRedisInvalidator creates a new RedisInvalidator
func NewRedisInvalidator(client *redis.Client, logger ectologger.Logger) *RedisInvalidator {
	return &RedisInvalidator{
		client: client,
		logger: logger,
	}
}

// Invalidate removes the tenant's overview entry. A stale entry is a
// freshness problem, not a data-integrity one, so callers treat failures as
// log-and-continue.
func (i *RedisInvalidator) Invalidate(ctx context.Context, tenantID uuid.UUID) error {
	key := OverviewKey(tenantID)
	if err := i.client.Del(ctx, key); err != nil {
		metrics.RecordCacheInvalidation("error")
		i.logger.WithContext(ctx).WithError(err).Warnf("Failed to invalidate cache key %s", key)
		return err
	}

	metrics.RecordCacheInvalidation("success")
	i.logger.WithContext(ctx).Debugf("Invalidated cache key %s", key)
	return nil
}
