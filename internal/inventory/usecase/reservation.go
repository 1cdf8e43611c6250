package usecase

import (
	"context"
	"errors"
	"time"

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

const (
	releaseReasonManual   = "manual release"
	releaseReasonExpired  = "expired"
	releaseReasonRollback = "bulk reservation rolled back"
	convertReason         = "reservation converted to sale"
)

type reservationUseCase struct {
	base
}

func NewReservationUseCase(repo inventory.Repository, c inventory.Cache, sink inventory.AlertSink, m *metrics.Metrics, log logger.ZapLogger, opts Options) inventory.ReservationManager {
	return &reservationUseCase{base: newBase(repo, c, sink, m, log, opts)}
}

// declines are reported in the result; anything else is a failure of the call.
func isDecline(err error) bool {
	return errors.Is(err, apperror.ErrInsufficientStock) ||
		errors.Is(err, apperror.ErrNotFound) ||
		errors.Is(err, apperror.ErrValidation)
}

func (uc *reservationUseCase) decline(ctx context.Context, input *dto.ReserveStockInput, err error) (*dto.ReservationResult, error) {
	if !isDecline(err) {
		uc.metrics.ReservationOutcomes.WithLabelValues(apperror.CodeOf(err)).Inc()
		return nil, err
	}

	appErr, _ := apperror.As(err)
	result := &dto.ReservationResult{
		ProductID:         input.ProductID,
		RequestedQuantity: input.Quantity,
		Error:             appErr,
	}
	if inv, lookupErr := uc.repo.GetByProduct(ctx, input.ProductID); lookupErr == nil && inv != nil {
		result.AvailableQuantity = inv.AvailableQuantity()
	}

	uc.metrics.ReservationOutcomes.WithLabelValues(appErr.Code).Inc()
	uc.logger.Info("reservation declined",
		zap.String("product_id", input.ProductID),
		zap.Int("requested", input.Quantity),
		zap.Int("available", result.AvailableQuantity),
		zap.String("code", appErr.Code),
	)
	return result, nil
}

func (uc *reservationUseCase) ReserveStock(ctx context.Context, input *dto.ReserveStockInput) (*dto.ReservationResult, error) {
	if input.ProductID == "" {
		return uc.decline(ctx, input, apperror.Validation("product id is required"))
	}
	if input.Quantity <= 0 {
		return uc.decline(ctx, input, apperror.Validation("quantity must be positive"))
	}

	inv, err := uc.mustGetInventory(ctx, input.ProductID)
	if err != nil {
		return uc.decline(ctx, input, err)
	}

	if !inv.TrackQuantity {
		uc.metrics.ReservationOutcomes.WithLabelValues("untracked").Inc()
		return &dto.ReservationResult{
			Success:           true,
			ProductID:         input.ProductID,
			RequestedQuantity: input.Quantity,
			AvailableQuantity: inv.AvailableQuantity(),
			Untracked:         true,
		}, nil
	}

	ttl := uc.opts.ReservationTTL
	if input.TTLMinutes > 0 {
		ttl = time.Duration(input.TTLMinutes) * time.Minute
	}

	var res *model.Reservation
	reclaimed := false
	for {
		err = uc.retry(ctx, "reserve_stock", func() error {
			now := uc.now()
			res = &model.Reservation{
				ID:          uuid.New().String(),
				InventoryID: inv.ID,
				ProductID:   inv.ProductID,
				OrderID:     optionalString(input.OrderID),
				CartID:      optionalString(input.CartID),
				Quantity:    input.Quantity,
				Reason:      input.Reason,
				Status:      model.ReservationActive,
				ExpiresAt:   now.Add(ttl),
				CreatedAt:   now,
			}
			return uc.repo.CreateReservation(ctx, res)
		})
		if err == nil {
			break
		}
		// expired holds still count against available until claimed, so
		// reclaim them once before turning the caller away
		if errors.Is(err, apperror.ErrInsufficientStock) && !reclaimed {
			reclaimed = true
			if n, reclaimErr := uc.reclaimExpired(ctx, input.ProductID); reclaimErr == nil && n > 0 {
				continue
			}
		}
		return uc.decline(ctx, input, err)
	}

	after, err := uc.mustGetInventory(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	before := *after
	before.QuantityReserved -= res.Quantity

	uc.metrics.ReservationOutcomes.WithLabelValues("reserved").Inc()
	uc.cache.invalidate(ctx, input.ProductID)
	uc.alerts.onChange(ctx, &before, after)

	return &dto.ReservationResult{
		Success:           true,
		ProductID:         input.ProductID,
		RequestedQuantity: input.Quantity,
		AvailableQuantity: after.AvailableQuantity(),
		Reservation:       res,
	}, nil
}

// reclaimExpired releases the expired holds of one product.
func (uc *reservationUseCase) reclaimExpired(ctx context.Context, productID string) (int, error) {
	now := uc.now()
	holds, err := uc.repo.FindExpiredReservations(ctx, productID, now, defaultSweepBatch)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, h := range holds {
		ok, err := uc.release(ctx, h.ID, model.ReservationReleased, releaseReasonExpired, &now)
		if err != nil {
			return released, err
		}
		if ok {
			released++
			uc.metrics.ReservationsClosed.WithLabelValues("expired").Inc()
		}
	}
	return released, nil
}

func (uc *reservationUseCase) release(ctx context.Context, id string, status model.ReservationStatus, reason string, onlyExpiredAt *time.Time) (bool, error) {
	var released bool
	err := uc.retry(ctx, "release_reservation", func() error {
		var err error
		released, err = uc.repo.ReleaseReservation(ctx, &inventory.ReleaseRequest{
			ReservationID: id,
			Status:        status,
			Reason:        reason,
			ReleasedAt:    uc.now(),
			OnlyExpiredAt: onlyExpiredAt,
		})
		return err
	})
	return released, err
}

func (uc *reservationUseCase) BulkReserveStock(ctx context.Context, input *dto.BulkReserveInput) (*dto.BulkReservationResult, error) {
	out := &dto.BulkReservationResult{Results: make([]dto.ReservationResult, 0, len(input.Items))}

	failedAt := -1
	for i := range input.Items {
		item := input.Items[i]
		result, err := uc.ReserveStock(ctx, &item)
		if err != nil {
			appErr, ok := apperror.As(err)
			if !ok {
				appErr = apperror.Internal("reservation failed", err)
			}
			result = &dto.ReservationResult{ProductID: item.ProductID, RequestedQuantity: item.Quantity, Error: appErr}
		}
		out.Results = append(out.Results, *result)

		if !result.Success && input.Mode == dto.BulkAllOrNothing {
			failedAt = i
			break
		}
	}

	if failedAt >= 0 {
		uc.rollback(ctx, out, input.Items[failedAt+1:])
	}

	for _, r := range out.Results {
		if r.Success {
			out.SuccessCount++
		} else {
			out.FailureCount++
		}
	}
	return out, nil
}

// rollback releases the holds an all-or-nothing call already placed and marks
// every item, including the ones never attempted, as failed.
func (uc *reservationUseCase) rollback(ctx context.Context, out *dto.BulkReservationResult, skipped []dto.ReserveStockInput) {
	out.RolledBack = true
	for i := range out.Results {
		r := &out.Results[i]
		if !r.Success {
			continue
		}
		if r.Reservation != nil {
			if _, err := uc.release(ctx, r.Reservation.ID, model.ReservationReleased, releaseReasonRollback, nil); err != nil {
				uc.logger.Error("failed to roll back bulk reservation",
					zap.String("reservation_id", r.Reservation.ID),
					zap.Error(err),
				)
			} else {
				uc.metrics.ReservationsClosed.WithLabelValues("rolled_back").Inc()
			}
			uc.cache.invalidate(ctx, r.ProductID)
		}
		r.Success = false
		r.Reservation = nil
		r.Error = apperror.InvalidState("rolled back because another item could not be reserved")
	}

	for _, item := range skipped {
		out.Results = append(out.Results, dto.ReservationResult{
			ProductID:         item.ProductID,
			RequestedQuantity: item.Quantity,
			Error:             apperror.InvalidState("not attempted because another item could not be reserved"),
		})
	}
}

func (uc *reservationUseCase) ReleaseReservation(ctx context.Context, id, reason string) (*model.Reservation, error) {
	res, err := uc.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.IsReleased {
		return res, nil
	}
	if reason == "" {
		reason = releaseReasonManual
	}

	released, err := uc.release(ctx, id, model.ReservationReleased, reason, nil)
	if err != nil {
		return nil, err
	}
	if released {
		uc.metrics.ReservationsClosed.WithLabelValues("released").Inc()
		uc.cache.invalidate(ctx, res.ProductID)
		uc.logger.Info("reservation released",
			zap.String("reservation_id", id),
			zap.String("product_id", res.ProductID),
			zap.Int("quantity", res.Quantity),
		)
	}
	return uc.GetReservation(ctx, id)
}

func (uc *reservationUseCase) ReleaseAllReservations(ctx context.Context, orderID, cartID, reason string) (int, error) {
	if orderID == "" && cartID == "" {
		return 0, apperror.Validation("order id or cart id is required")
	}
	if reason == "" {
		reason = releaseReasonManual
	}

	holds, err := uc.repo.ListReservations(ctx, &dto.ReservationFilters{OrderID: orderID, CartID: cartID})
	if err != nil {
		return 0, err
	}

	count := 0
	touched := []string{}
	for _, h := range holds {
		if h.Status != model.ReservationActive {
			continue
		}
		released, err := uc.release(ctx, h.ID, model.ReservationReleased, reason, nil)
		if err != nil {
			return count, err
		}
		if released {
			count++
			touched = append(touched, h.ProductID)
			uc.metrics.ReservationsClosed.WithLabelValues("released").Inc()
		}
	}

	if count > 0 {
		uc.cache.invalidate(ctx, touched...)
		uc.logger.Info("reservations released",
			zap.String("order_id", orderID),
			zap.String("cart_id", cartID),
			zap.Int("count", count),
		)
	}
	return count, nil
}

func (uc *reservationUseCase) ExtendReservation(ctx context.Context, id string, additionalMinutes int) (*model.Reservation, error) {
	if additionalMinutes <= 0 {
		return nil, apperror.Validation("additional minutes must be positive")
	}

	err := uc.retry(ctx, "extend_reservation", func() error {
		res, err := uc.repo.GetReservation(ctx, id)
		if err != nil {
			return err
		}
		if res == nil {
			return apperror.NotFound("reservation", id)
		}

		now := uc.now()
		if !res.IsActiveAt(now) {
			return apperror.InvalidState("only active reservations can be extended").
				WithDetail("status", string(res.StateAt(now)))
		}

		newExpiry := res.ExpiresAt.Add(time.Duration(additionalMinutes) * time.Minute)
		return uc.repo.ExtendReservation(ctx, id, res.ExpiresAt, newExpiry, now)
	})
	if err != nil {
		return nil, err
	}
	return uc.GetReservation(ctx, id)
}

func (uc *reservationUseCase) ConvertReservationToSale(ctx context.Context, orderID, userID string) ([]model.Movement, error) {
	if orderID == "" {
		return nil, apperror.Validation("order id is required")
	}
	actor := auth.ResolveActor(ctx, userID)

	var (
		movements []model.Movement
		snapshots map[string][2]model.Inventory
	)
	err := uc.retry(ctx, "convert_reservation", func() error {
		now := uc.now()
		holds, err := uc.repo.ListReservations(ctx, &dto.ReservationFilters{OrderID: orderID, ActiveOnly: true, Now: now})
		if err != nil {
			return err
		}
		if len(holds) == 0 {
			return apperror.NotFound("active reservation for order", orderID)
		}

		productIDs := make([]string, 0, len(holds))
		seen := map[string]bool{}
		for _, h := range holds {
			if !seen[h.ProductID] {
				seen[h.ProductID] = true
				productIDs = append(productIDs, h.ProductID)
			}
		}
		records, err := uc.repo.BatchGetByProducts(ctx, productIDs)
		if err != nil {
			return err
		}
		current := make(map[string]model.Inventory, len(records))
		for _, r := range records {
			current[r.ProductID] = r
		}

		snapshots = make(map[string][2]model.Inventory, len(records))
		conversions := make([]inventory.Conversion, 0, len(holds))
		movements = make([]model.Movement, 0, len(holds))
		for _, h := range holds {
			inv, ok := current[h.ProductID]
			if !ok {
				return apperror.Internal("reservation references missing inventory", nil).WithDetail("product_id", h.ProductID)
			}
			if _, ok := snapshots[h.ProductID]; !ok {
				snapshots[h.ProductID] = [2]model.Inventory{inv, inv}
			}

			m := model.Movement{
				ID:               uuid.New().String(),
				InventoryID:      inv.ID,
				ProductID:        inv.ProductID,
				Type:             model.MovementSale,
				QuantityDelta:    h.Quantity,
				PreviousQuantity: inv.QuantityOnHand,
				NewQuantity:      inv.QuantityOnHand - h.Quantity,
				UnitCost:         inv.LastCost,
				ReferenceType:    optionalString("order"),
				ReferenceID:      optionalString(orderID),
				Reason:           convertReason,
				CreatedBy:        actor,
				CreatedAt:        now,
			}
			if inv.LastCost.Valid {
				m.TotalCost = decimal.NewNullDecimal(inv.LastCost.Decimal.Mul(decimal.NewFromInt(int64(h.Quantity))))
			}

			inv.QuantityOnHand -= h.Quantity
			inv.QuantityReserved -= h.Quantity
			current[h.ProductID] = inv
			snap := snapshots[h.ProductID]
			snap[1] = inv
			snapshots[h.ProductID] = snap

			movements = append(movements, m)
			conversions = append(conversions, inventory.Conversion{Reservation: h, Movement: &movements[len(movements)-1]})
		}

		return uc.repo.ConvertReservations(ctx, conversions, now)
	})
	if err != nil {
		uc.logger.Warn("reservation conversion failed", zap.String("order_id", orderID), zap.Error(err))
		return nil, err
	}

	touched := make([]string, 0, len(snapshots))
	for productID, snap := range snapshots {
		touched = append(touched, productID)
		before, after := snap[0], snap[1]
		uc.alerts.onChange(ctx, &before, &after)
	}
	for _, m := range movements {
		uc.metrics.MovementsRecorded.WithLabelValues(string(m.Type)).Inc()
		uc.metrics.ReservationsClosed.WithLabelValues("converted").Inc()
	}
	uc.cache.invalidate(ctx, touched...)

	uc.logger.Info("reservations converted to sale",
		zap.String("order_id", orderID),
		zap.Int("movements", len(movements)),
	)
	return movements, nil
}

func (uc *reservationUseCase) CleanupExpiredReservations(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = defaultSweepBatch
	}

	now := uc.now()
	expired, err := uc.repo.FindExpiredReservations(ctx, "", now, batchSize)
	if err != nil {
		return 0, err
	}

	released := 0
	touched := []string{}
	for _, h := range expired {
		ok, err := uc.release(ctx, h.ID, model.ReservationReleased, releaseReasonExpired, &now)
		if err != nil {
			uc.logger.Error("failed to release expired reservation",
				zap.String("reservation_id", h.ID),
				zap.Error(err),
			)
			continue
		}
		if ok {
			released++
			touched = append(touched, h.ProductID)
			uc.metrics.ReservationsClosed.WithLabelValues("expired").Inc()
		}
	}

	if released > 0 {
		uc.cache.invalidate(ctx, touched...)
	}
	return released, nil
}

func (uc *reservationUseCase) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	res, err := uc.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, apperror.NotFound("reservation", id)
	}
	res.Status = res.StateAt(uc.now())
	return res, nil
}

func (uc *reservationUseCase) ListReservations(ctx context.Context, filters *dto.ReservationFilters) ([]model.Reservation, error) {
	f := *filters
	now := uc.now()
	if f.ActiveOnly {
		f.Now = now
	}

	items, err := uc.repo.ListReservations(ctx, &f)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Status = items[i].StateAt(now)
	}
	return items, nil
}
