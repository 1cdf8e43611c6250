package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	"github.com/fekuna/omnipos-stock-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/metrics"
)

type inventoryUseCase struct {
	base
	ledger inventory.Ledger
}

func NewInventoryUseCase(repo inventory.Repository, ledger inventory.Ledger, c inventory.Cache, sink inventory.AlertSink, m *metrics.Metrics, log logger.ZapLogger, opts Options) inventory.UseCase {
	return &inventoryUseCase{
		base:   newBase(repo, c, sink, m, log, opts),
		ledger: ledger,
	}
}

func (uc *inventoryUseCase) GetProductInventory(ctx context.Context, productID string) (*dto.ProductInventory, error) {
	key := productCacheKey(productID)

	var cached dto.ProductInventory
	if uc.cache.get(ctx, "product", key, &cached) {
		// holds expire without a write, so the cached set can go stale
		cached.ActiveReservations = activeAt(cached.ActiveReservations, uc.now())
		return &cached, nil
	}

	inv, err := uc.mustGetInventory(ctx, productID)
	if err != nil {
		return nil, err
	}

	holds, err := uc.repo.ListReservations(ctx, &dto.ReservationFilters{
		ProductID:  productID,
		ActiveOnly: true,
		Now:        uc.now(),
	})
	if err != nil {
		return nil, err
	}

	out := &dto.ProductInventory{
		InventoryView:      dto.NewInventoryView(*inv),
		ActiveReservations: holds,
	}
	uc.cache.set(ctx, key, out, uc.opts.ProductCacheTTL)
	return out, nil
}

func activeAt(holds []model.Reservation, now time.Time) []model.Reservation {
	out := make([]model.Reservation, 0, len(holds))
	for _, h := range holds {
		if h.IsActiveAt(now) {
			out = append(out, h)
		}
	}
	return out
}

func (uc *inventoryUseCase) GetInventoryList(ctx context.Context, filters *dto.InventoryFilters) (*dto.InventoryList, error) {
	f := *filters
	f.Page, f.PageSize = normalizePage(f.Page, f.PageSize)

	key, err := listCacheKey(&f)
	if err != nil {
		uc.logger.Warn("failed to build list cache key", zap.Error(err))
	}

	var cached dto.InventoryList
	if uc.cache.get(ctx, "list", key, &cached) {
		return &cached, nil
	}

	items, total, err := uc.repo.FindAll(ctx, &f)
	if err != nil {
		return nil, err
	}
	summary, err := uc.repo.Summarize(ctx, &f)
	if err != nil {
		return nil, err
	}

	out := &dto.InventoryList{
		Items:    make([]dto.InventoryView, 0, len(items)),
		Total:    total,
		Page:     f.Page,
		PageSize: f.PageSize,
		Summary:  *summary,
	}
	for _, inv := range items {
		out.Items = append(out.Items, dto.NewInventoryView(inv))
	}

	uc.cache.set(ctx, key, out, uc.opts.ListCacheTTL)
	return out, nil
}

func (uc *inventoryUseCase) UpdateInventory(ctx context.Context, input *dto.UpdateInventoryInput) (*dto.UpdateResult, error) {
	if input.ProductID == "" {
		return nil, apperror.Validation("product id is required")
	}
	if input.Quantity != nil && *input.Quantity < 0 {
		return nil, apperror.Validation("quantity must not be negative")
	}
	if input.LowStockThreshold != nil && *input.LowStockThreshold < 0 {
		return nil, apperror.Validation("low stock threshold must not be negative")
	}

	if _, err := uc.mustGetInventory(ctx, input.ProductID); err != nil {
		return nil, err
	}

	result := &dto.UpdateResult{ProductID: input.ProductID}

	if input.Quantity != nil {
		reason := input.Reason
		if reason == "" {
			reason = "inventory adjustment"
		}

		movement, err := uc.ledger.RecordMovement(ctx, &dto.RecordMovementInput{
			ProductID:     input.ProductID,
			AdjustTo:      input.Quantity,
			UnitCost:      input.UnitCost,
			ReferenceType: "manual",
			Reason:        reason,
			Notes:         input.Notes,
			UserID:        input.UserID,
		})
		if err != nil {
			return nil, err
		}
		result.Movement = movement
	}

	if input.LowStockThreshold != nil || input.TrackQuantity != nil {
		before, err := uc.mustGetInventory(ctx, input.ProductID)
		if err != nil {
			return nil, err
		}
		if err := uc.repo.UpdateSettings(ctx, input.ProductID, input.LowStockThreshold, input.TrackQuantity, uc.now()); err != nil {
			return nil, err
		}
		uc.cache.invalidate(ctx, input.ProductID)

		after, err := uc.mustGetInventory(ctx, input.ProductID)
		if err != nil {
			return nil, err
		}
		uc.alerts.onChange(ctx, before, after)
	}

	current, err := uc.mustGetInventory(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	view := dto.NewInventoryView(*current)
	result.Inventory = &view

	uc.logger.Info("inventory updated",
		zap.String("product_id", input.ProductID),
		zap.Int("quantity_on_hand", current.QuantityOnHand),
		zap.String("status", string(view.Status)),
	)
	return result, nil
}

func (uc *inventoryUseCase) BulkUpdateInventory(ctx context.Context, inputs []dto.UpdateInventoryInput) (*dto.BulkUpdateResult, error) {
	out := &dto.BulkUpdateResult{Results: make([]dto.UpdateResult, 0, len(inputs))}

	for i := range inputs {
		result, err := uc.UpdateInventory(ctx, &inputs[i])
		if err != nil {
			appErr, ok := apperror.As(err)
			if !ok {
				appErr = apperror.Internal("inventory update failed", err)
			}
			out.Results = append(out.Results, dto.UpdateResult{ProductID: inputs[i].ProductID, Error: appErr})
			out.FailureCount++
			continue
		}
		out.Results = append(out.Results, *result)
		out.SuccessCount++
	}
	return out, nil
}

// CheckLowStockAlert emits an alert for the product's current status. It
// returns nil when the product is in stock.
func (uc *inventoryUseCase) CheckLowStockAlert(ctx context.Context, productID string) (*model.StockAlert, error) {
	inv, err := uc.mustGetInventory(ctx, productID)
	if err != nil {
		return nil, err
	}

	status := inv.Status()
	if status == model.StockStatusInStock {
		return nil, nil
	}

	alert := uc.alerts.build(inv, status)
	uc.alerts.dispatch(ctx, alert)
	return alert, nil
}
