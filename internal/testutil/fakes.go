package testutil

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/cache"
)

// MemoryCache is an in-process inventory.Cache. Setting Err makes every call fail.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string][]byte
	Err   error

	Gets    int
	Deletes []string
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string][]byte)}
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Gets++
	if c.Err != nil {
		return nil, c.Err
	}
	v, ok := c.items[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return v, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.items[key] = value
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Deletes = append(c.Deletes, keys...)
	if c.Err != nil {
		return c.Err
	}
	for _, k := range keys {
		delete(c.items, k)
	}
	return nil
}

func (c *MemoryCache) DeletePattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Deletes = append(c.Deletes, pattern)
	if c.Err != nil {
		return c.Err
	}
	for k := range c.items {
		if ok, _ := path.Match(pattern, k); ok {
			delete(c.items, k)
		}
	}
	return nil
}

// Has reports whether key is currently cached.
func (c *MemoryCache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

// RecordingSink collects published alerts. Setting Err makes Publish fail
// after recording.
type RecordingSink struct {
	mu     sync.Mutex
	alerts []model.StockAlert
	Err    error
}

func (s *RecordingSink) Publish(ctx context.Context, alert *model.StockAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, *alert)
	return s.Err
}

func (s *RecordingSink) Alerts() []model.StockAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.StockAlert, len(s.alerts))
	copy(out, s.alerts)
	return out
}
