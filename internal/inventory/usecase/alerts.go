package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/metrics"
)

// alertNotifier hands stock alerts to the sink without blocking the caller.
type alertNotifier struct {
	sink    inventory.AlertSink
	metrics *metrics.Metrics
	logger  logger.ZapLogger
	timeout time.Duration
	now     func() time.Time
}

func (n *alertNotifier) build(inv *model.Inventory, level model.StockStatus) *model.StockAlert {
	return &model.StockAlert{
		ID:                uuid.New().String(),
		Level:             level,
		ProductID:         inv.ProductID,
		AvailableQuantity: inv.AvailableQuantity(),
		Threshold:         inv.LowStockThreshold,
		OccurredAt:        n.now(),
	}
}

// onChange fires an alert when the product's status got worse between the
// two snapshots.
func (n *alertNotifier) onChange(ctx context.Context, before, after *model.Inventory) {
	level, crossed := model.DownwardCrossing(before, after)
	if !crossed {
		return
	}
	n.dispatch(ctx, n.build(after, level))
}

func (n *alertNotifier) dispatch(ctx context.Context, alert *model.StockAlert) {
	if n.sink == nil {
		return
	}

	// the request context may end before delivery does
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, n.timeout)
		defer cancel()

		level := string(alert.Level)
		if err := n.sink.Publish(ctx, alert); err != nil {
			n.metrics.AlertsPublished.WithLabelValues(level, "failed").Inc()
			n.logger.Error("failed to publish stock alert",
				zap.String("product_id", alert.ProductID),
				zap.String("level", level),
				zap.Error(err),
			)
			return
		}
		n.metrics.AlertsPublished.WithLabelValues(level, "published").Inc()
		n.logger.Info("stock alert published",
			zap.String("product_id", alert.ProductID),
			zap.String("level", level),
			zap.Int("available", alert.AvailableQuantity),
		)
	}()
}
