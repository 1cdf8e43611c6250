package usecase

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	"github.com/fekuna/omnipos-stock-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/cache"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/metrics"
)

const listKeyPattern = "inventory:list:*"

func productCacheKey(productID string) string {
	return "inventory:product:" + productID
}

func listCacheKey(filters *dto.InventoryFilters) (string, error) {
	data, err := json.Marshal(filters)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("inventory:list:%x", md5.Sum(data)), nil
}

// inventoryCache wraps the advisory cache. Every failure is logged and
// reported as a miss.
type inventoryCache struct {
	cache   inventory.Cache
	metrics *metrics.Metrics
	logger  logger.ZapLogger
}

func (c *inventoryCache) get(ctx context.Context, scope, key string, dst interface{}) bool {
	if c.cache == nil || key == "" {
		return false
	}

	val, err := c.cache.Get(ctx, key)
	switch {
	case errors.Is(err, cache.ErrMiss):
		c.metrics.CacheLookups.WithLabelValues(scope, "miss").Inc()
		return false
	case err != nil:
		c.metrics.CacheLookups.WithLabelValues(scope, "error").Inc()
		c.logger.Warn("cache read failed, falling back to store", zap.String("key", key), zap.Error(err))
		return false
	}

	if err := json.Unmarshal(val, dst); err != nil {
		c.metrics.CacheLookups.WithLabelValues(scope, "error").Inc()
		c.logger.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		return false
	}
	c.metrics.CacheLookups.WithLabelValues(scope, "hit").Inc()
	return true
}

func (c *inventoryCache) set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if c.cache == nil || key == "" {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("failed to encode cache entry", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.cache.Set(ctx, key, data, ttl); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// invalidate drops the per-product entries of productIDs and every list page.
func (c *inventoryCache) invalidate(ctx context.Context, productIDs ...string) {
	if c.cache == nil {
		return
	}

	keys := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		keys = append(keys, productCacheKey(id))
	}
	if err := c.cache.Delete(ctx, keys...); err != nil {
		c.logger.Warn("failed to invalidate product cache", zap.Strings("keys", keys), zap.Error(err))
	}
	if err := c.cache.DeletePattern(ctx, listKeyPattern); err != nil {
		c.logger.Warn("failed to invalidate list cache", zap.Error(err))
	}
}
