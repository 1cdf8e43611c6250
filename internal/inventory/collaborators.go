package inventory

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/model"
)

// Cache is advisory. Implementations return cache.ErrMiss for absent keys;
// callers treat every other error as an outage and fall back to the store.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePattern(ctx context.Context, pattern string) error
}

// AlertSink receives stock alerts. Delivery is best effort.
type AlertSink interface {
	Publish(ctx context.Context, alert *model.StockAlert) error
}
