package listener

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	"github.com/fekuna/omnipos-stock-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/broker"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
)

const (
	EventOrderConfirmed = "OrderConfirmed"
	EventOrderCancelled = "OrderCancelled"
	EventCartCleared    = "CartCleared"
	EventCartAbandoned  = "CartAbandoned"
	EventProductCreated = "ProductCreated"
	EventProductUpdated = "ProductUpdated"
)

type InventoryListener struct {
	consumer     broker.MessageReader
	ledger       inventory.Ledger
	reservations inventory.ReservationManager
	stock        inventory.UseCase
	logger       logger.ZapLogger
	retryDelay   time.Duration
}

func NewInventoryListener(consumer broker.MessageReader, ledger inventory.Ledger, reservations inventory.ReservationManager, stock inventory.UseCase, logger logger.ZapLogger) *InventoryListener {
	return &InventoryListener{
		consumer:     consumer,
		ledger:       ledger,
		reservations: reservations,
		stock:        stock,
		logger:       logger,
		retryDelay:   time.Second,
	}
}

func (l *InventoryListener) Start(ctx context.Context) {
	l.logger.Info("Starting Inventory Kafka Listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping Inventory Kafka Listener")
			return
		default:
			msg, err := l.consumer.ReadMessage(ctx)
			if err != nil {
				// Don't log context canceled error as error
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("Failed to read kafka message", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(l.retryDelay):
				}
				continue
			}
			l.processMessage(ctx, msg.Value)
		}
	}
}

type Event struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

type OrderPayload struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

type CartPayload struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type ProductPayload struct {
	ID                string `json:"id"`
	InitialQuantity   int    `json:"initial_quantity"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	TrackQuantity     *bool  `json:"track_quantity"`
	UserID            string `json:"user_id"`
}

// ProductUpdatePayload carries settings changes and, for stock takes, the
// counted on-hand quantity. Absent fields are left untouched.
type ProductUpdatePayload struct {
	ID                string `json:"id"`
	LowStockThreshold *int   `json:"low_stock_threshold"`
	TrackQuantity     *bool  `json:"track_quantity"`
	CountedQuantity   *int   `json:"counted_quantity"`
	Reason            string `json:"reason"`
	UserID            string `json:"user_id"`
}

func (l *InventoryListener) processMessage(ctx context.Context, value []byte) {
	var event Event
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Error("Failed to unmarshal event", zap.Error(err))
		return
	}

	log := l.logger.With(zap.String("event_id", event.EventID), zap.String("event_type", event.EventType))

	var err error
	switch event.EventType {
	case EventOrderConfirmed:
		err = l.onOrderConfirmed(ctx, log, event.Payload)
	case EventOrderCancelled:
		err = l.onOrderCancelled(ctx, log, event.Payload)
	case EventCartCleared, EventCartAbandoned:
		err = l.onCartClosed(ctx, log, event.EventType, event.Payload)
	case EventProductCreated:
		err = l.onProductCreated(ctx, log, event.Payload)
	case EventProductUpdated:
		err = l.onProductUpdated(ctx, log, event.Payload)
	default:
		return
	}
	if err != nil {
		log.Error("Failed to handle event", zap.Error(err))
	}
}

func (l *InventoryListener) onOrderConfirmed(ctx context.Context, log logger.ZapLogger, raw json.RawMessage) error {
	var p OrderPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	log.Info("Converting order reservations to sale", zap.String("order_id", p.ID))

	movements, err := l.reservations.ConvertReservationToSale(ctx, p.ID, p.UserID)
	if err != nil {
		return err
	}
	log.Info("Order stock deducted", zap.String("order_id", p.ID), zap.Int("movements", len(movements)))
	return nil
}

func (l *InventoryListener) onOrderCancelled(ctx context.Context, log logger.ZapLogger, raw json.RawMessage) error {
	var p OrderPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	reason := p.Reason
	if reason == "" {
		reason = "order cancelled"
	}

	n, err := l.reservations.ReleaseAllReservations(ctx, p.ID, "", reason)
	if err != nil {
		return err
	}
	log.Info("Order reservations released", zap.String("order_id", p.ID), zap.Int("count", n))
	return nil
}

func (l *InventoryListener) onCartClosed(ctx context.Context, log logger.ZapLogger, eventType string, raw json.RawMessage) error {
	var p CartPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	reason := p.Reason
	if reason == "" {
		reason = "cart cleared"
		if eventType == EventCartAbandoned {
			reason = "cart abandoned"
		}
	}

	n, err := l.reservations.ReleaseAllReservations(ctx, "", p.ID, reason)
	if err != nil {
		return err
	}
	log.Info("Cart reservations released", zap.String("cart_id", p.ID), zap.Int("count", n))
	return nil
}

func (l *InventoryListener) onProductCreated(ctx context.Context, log logger.ZapLogger, raw json.RawMessage) error {
	var p ProductPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}

	inv, err := l.ledger.InitializeInventory(ctx, &dto.InitializeInventoryInput{
		ProductID:         p.ID,
		InitialQuantity:   p.InitialQuantity,
		LowStockThreshold: p.LowStockThreshold,
		TrackQuantity:     p.TrackQuantity,
		UserID:            p.UserID,
	})
	if err != nil {
		return err
	}
	log.Info("Inventory created for product", zap.String("product_id", inv.ProductID))
	return nil
}

func (l *InventoryListener) onProductUpdated(ctx context.Context, log logger.ZapLogger, raw json.RawMessage) error {
	var p ProductUpdatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}

	res, err := l.stock.UpdateInventory(ctx, &dto.UpdateInventoryInput{
		ProductID:         p.ID,
		Quantity:          p.CountedQuantity,
		LowStockThreshold: p.LowStockThreshold,
		TrackQuantity:     p.TrackQuantity,
		Reason:            p.Reason,
		UserID:            p.UserID,
	})
	if err != nil {
		return err
	}
	log.Info("Inventory updated for product",
		zap.String("product_id", p.ID),
		zap.Int("on_hand", res.Inventory.QuantityOnHand),
	)
	return nil
}
