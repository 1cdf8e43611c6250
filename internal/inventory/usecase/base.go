package usecase

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/metrics"
)

// base carries the collaborators every inventory use case shares.
type base struct {
	repo    inventory.Repository
	cache   *inventoryCache
	alerts  *alertNotifier
	metrics *metrics.Metrics
	logger  logger.ZapLogger
	opts    Options
}

func newBase(repo inventory.Repository, c inventory.Cache, sink inventory.AlertSink, m *metrics.Metrics, log logger.ZapLogger, opts Options) base {
	opts = opts.withDefaults()
	if m == nil {
		m = metrics.NewNop()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return base{
		repo:    repo,
		cache:   &inventoryCache{cache: c, metrics: m, logger: log},
		alerts:  &alertNotifier{sink: sink, metrics: m, logger: log, timeout: opts.AlertTimeout, now: opts.Now},
		metrics: m,
		logger:  log,
		opts:    opts,
	}
}

func (b *base) now() time.Time {
	return b.opts.Now()
}

// mustGetInventory loads the record for productID or fails with NotFound.
func (b *base) mustGetInventory(ctx context.Context, productID string) (*model.Inventory, error) {
	inv, err := b.repo.GetByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, apperror.NotFound("inventory", productID)
	}
	return inv, nil
}

func (b *base) retry(ctx context.Context, op string, fn func() error) error {
	return retryConflicts(ctx, b.opts, op, b.metrics, b.logger, fn)
}
