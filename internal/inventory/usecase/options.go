package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/metrics"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/resilience"
)

const (
	defaultReservationTTL = 15 * time.Minute
	defaultPageSize       = 20
	maxPageSize           = 100
	defaultSweepBatch     = 100
)

// Options tune the use cases. Zero values fall back to defaults.
type Options struct {
	ReservationTTL     time.Duration
	MaxConflictRetries int
	RetryDelay         time.Duration
	ProductCacheTTL    time.Duration
	ListCacheTTL       time.Duration
	AlertTimeout       time.Duration
	Now                func() time.Time
}

func (o Options) withDefaults() Options {
	if o.ReservationTTL <= 0 {
		o.ReservationTTL = defaultReservationTTL
	}
	if o.MaxConflictRetries < 0 {
		o.MaxConflictRetries = 0
	} else if o.MaxConflictRetries == 0 {
		o.MaxConflictRetries = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 10 * time.Millisecond
	}
	if o.ProductCacheTTL <= 0 {
		o.ProductCacheTTL = time.Minute
	}
	if o.ListCacheTTL <= 0 {
		o.ListCacheTTL = 30 * time.Second
	}
	if o.AlertTimeout <= 0 {
		o.AlertTimeout = 5 * time.Second
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// retryConflicts reruns fn while it loses optimistic races. Every other error
// ends the loop at once.
func retryConflicts(ctx context.Context, opts Options, op string, m *metrics.Metrics, log logger.ZapLogger, fn func() error) error {
	cfg := resilience.RetryConfig{
		MaxRetries:   opts.MaxConflictRetries,
		InitialDelay: opts.RetryDelay,
		MaxDelay:     20 * opts.RetryDelay,
		Retryable: func(err error) bool {
			return errors.Is(err, apperror.ErrConcurrencyConflict)
		},
		OnRetry: func(err error, wait time.Duration) {
			m.ConflictRetries.WithLabelValues(op).Inc()
			log.Debug("retrying after write conflict",
				zap.String("operation", op),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		},
	}
	return resilience.Retry(ctx, cfg, fn)
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}
