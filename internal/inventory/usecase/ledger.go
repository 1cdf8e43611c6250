package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/auth"
	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	"github.com/fekuna/omnipos-stock-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/metrics"
)

type ledgerUseCase struct {
	base
}

func NewLedgerUseCase(repo inventory.Repository, c inventory.Cache, sink inventory.AlertSink, m *metrics.Metrics, log logger.ZapLogger, opts Options) inventory.Ledger {
	return &ledgerUseCase{base: newBase(repo, c, sink, m, log, opts)}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (uc *ledgerUseCase) RecordMovement(ctx context.Context, input *dto.RecordMovementInput) (*model.Movement, error) {
	if input.ProductID == "" {
		return nil, apperror.Validation("product id is required")
	}
	if input.AdjustTo != nil && *input.AdjustTo < 0 {
		return nil, apperror.Validation("adjustment target must not be negative")
	}
	if input.AdjustTo == nil && input.Type.IsReservationBookkeeping() {
		return nil, apperror.Validation("reservation movements are recorded by the reservation manager").
			WithDetail("type", string(input.Type))
	}
	if input.UnitCost != nil && input.UnitCost.IsNegative() {
		return nil, apperror.Validation("unit cost must not be negative")
	}

	actor := auth.ResolveActor(ctx, input.UserID)

	var (
		movement *model.Movement
		before   model.Inventory
		after    model.Inventory
	)
	err := uc.retry(ctx, "record_movement", func() error {
		inv, err := uc.mustGetInventory(ctx, input.ProductID)
		if err != nil {
			return err
		}

		movementType, quantity := input.Type, input.Quantity
		if input.AdjustTo != nil {
			if *input.AdjustTo == inv.QuantityOnHand {
				movement = nil
				return nil
			}
			movementType, quantity = model.AdjustmentToward(inv.QuantityOnHand, *input.AdjustTo), *input.AdjustTo
		}

		next, delta, err := model.PlanMovement(inv, movementType, quantity)
		if err != nil {
			return err
		}

		m := &model.Movement{
			ID:               uuid.New().String(),
			InventoryID:      inv.ID,
			ProductID:        inv.ProductID,
			Type:             movementType,
			QuantityDelta:    delta,
			PreviousQuantity: inv.QuantityOnHand,
			NewQuantity:      next,
			ReferenceType:    optionalString(input.ReferenceType),
			ReferenceID:      optionalString(input.ReferenceID),
			Reason:           input.Reason,
			Notes:            input.Notes,
			CreatedBy:        actor,
			BatchID:          optionalString(input.BatchID),
			CreatedAt:        uc.now(),
		}
		if input.UnitCost != nil {
			m.UnitCost = decimal.NewNullDecimal(*input.UnitCost)
			m.TotalCost = decimal.NewNullDecimal(input.UnitCost.Mul(decimal.NewFromInt(int64(delta))))
		}

		if err := uc.repo.ApplyMovement(ctx, m); err != nil {
			return err
		}

		before, after = *inv, *inv
		after.QuantityOnHand = next
		movement = m
		return nil
	})
	if err != nil {
		uc.logger.Info("movement rejected",
			zap.String("product_id", input.ProductID),
			zap.String("type", string(input.Type)),
			zap.Int("quantity", input.Quantity),
			zap.Error(err),
		)
		return nil, err
	}
	if movement == nil {
		return nil, nil
	}

	uc.metrics.MovementsRecorded.WithLabelValues(string(movement.Type)).Inc()
	uc.cache.invalidate(ctx, movement.ProductID)
	uc.alerts.onChange(ctx, &before, &after)

	uc.logger.Debug("movement recorded",
		zap.String("product_id", movement.ProductID),
		zap.String("type", string(movement.Type)),
		zap.Int("previous", movement.PreviousQuantity),
		zap.Int("new", movement.NewQuantity),
	)
	return movement, nil
}

func (uc *ledgerUseCase) InitializeInventory(ctx context.Context, input *dto.InitializeInventoryInput) (*model.Inventory, error) {
	if input.ProductID == "" {
		return nil, apperror.Validation("product id is required")
	}
	if input.InitialQuantity < 0 {
		return nil, apperror.Validation("initial quantity must not be negative")
	}
	if input.LowStockThreshold < 0 {
		return nil, apperror.Validation("low stock threshold must not be negative")
	}

	existing, err := uc.repo.GetByProduct(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperror.Validation("inventory already initialized").WithDetail("product_id", input.ProductID)
	}

	now := uc.now()
	track := true
	if input.TrackQuantity != nil {
		track = *input.TrackQuantity
	}

	inv := &model.Inventory{
		ID:                uuid.New().String(),
		ProductID:         input.ProductID,
		QuantityOnHand:    input.InitialQuantity,
		LowStockThreshold: input.LowStockThreshold,
		TrackQuantity:     track,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if input.UnitCost != nil {
		inv.LastCost = decimal.NewNullDecimal(*input.UnitCost)
	}

	var movement *model.Movement
	if input.InitialQuantity > 0 {
		inv.LastRestockedAt = &now
		movement = &model.Movement{
			ID:               uuid.New().String(),
			InventoryID:      inv.ID,
			ProductID:        inv.ProductID,
			Type:             model.MovementInitialStock,
			QuantityDelta:    input.InitialQuantity,
			PreviousQuantity: 0,
			NewQuantity:      input.InitialQuantity,
			UnitCost:         inv.LastCost,
			Reason:           "initial stock",
			CreatedBy:        auth.ResolveActor(ctx, input.UserID),
			CreatedAt:        now,
		}
		if input.UnitCost != nil {
			movement.TotalCost = decimal.NewNullDecimal(input.UnitCost.Mul(decimal.NewFromInt(int64(input.InitialQuantity))))
		}
	}

	if err := uc.repo.CreateWithMovement(ctx, inv, movement); err != nil {
		return nil, err
	}

	if movement != nil {
		uc.metrics.MovementsRecorded.WithLabelValues(string(movement.Type)).Inc()
	}
	uc.cache.invalidate(ctx, inv.ProductID)

	uc.logger.Info("inventory initialized",
		zap.String("product_id", inv.ProductID),
		zap.Int("quantity", inv.QuantityOnHand),
		zap.Bool("track_quantity", inv.TrackQuantity),
	)
	return inv, nil
}

func (uc *ledgerUseCase) ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.Movement, int, error) {
	f := *filters
	f.Page, f.PageSize = normalizePage(f.Page, f.PageSize)
	if f.MovementType != "" && !f.MovementType.IsValid() {
		return nil, 0, apperror.Validation("unknown movement type").WithDetail("type", string(f.MovementType))
	}
	return uc.repo.ListMovements(ctx, &f)
}
