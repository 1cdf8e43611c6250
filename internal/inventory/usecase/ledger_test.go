package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/auth"
	"github.com/fekuna/omnipos-stock-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/testutil"
)

func TestRecordMovement_Restock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.initialize(t, "P", 5, 2)
	h.clock.Advance(time.Minute)

	cost := decimal.RequireFromString("2.50")
	m, err := h.ledger.RecordMovement(ctx, &dto.RecordMovementInput{
		ProductID:     "P",
		Type:          model.MovementRestock,
		Quantity:      20,
		UnitCost:      &cost,
		ReferenceType: "purchase_order",
		ReferenceID:   "PO-7",
		Reason:        "weekly delivery",
		UserID:        "clerk-1",
	})
	require.NoError(t, err)

	assert.Equal(t, 5, m.PreviousQuantity)
	assert.Equal(t, 25, m.NewQuantity)
	assert.Equal(t, 20, m.QuantityDelta)
	assert.Equal(t, "clerk-1", m.CreatedBy)
	assert.True(t, m.TotalCost.Decimal.Equal(decimal.NewFromInt(50)))

	inv := h.load(t, "P")
	assert.Equal(t, 25, inv.QuantityOnHand)
	assert.True(t, inv.LastCost.Decimal.Equal(cost))
	require.NotNil(t, inv.LastRestockedAt)

	movements, total, err := h.ledger.ListMovements(ctx, &dto.MovementFilters{ProductID: "P"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, model.MovementRestock, movements[0].Type, "newest first")
	h.requireBalanced(t, "P")
}

func TestRecordMovement_OutboundCannotTouchReservedStock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.initialize(t, "P", 10, 0)
	require.True(t, h.reserve(t, "P", 8, "", "CART-1").Success)

	_, err := h.ledger.RecordMovement(ctx, &dto.RecordMovementInput{ProductID: "P", Type: model.MovementSale, Quantity: 3})
	require.ErrorIs(t, err, apperror.ErrInsufficientStock)

	_, err = h.ledger.RecordMovement(ctx, &dto.RecordMovementInput{ProductID: "P", Type: model.MovementAdjustmentOut, Quantity: 7})
	require.ErrorIs(t, err, apperror.ErrInsufficientStock)

	m, err := h.ledger.RecordMovement(ctx, &dto.RecordMovementInput{ProductID: "P", Type: model.MovementDamage, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, 8, m.NewQuantity)

	inv := h.load(t, "P")
	assert.Equal(t, 8, inv.QuantityOnHand)
	assert.Equal(t, 0, inv.AvailableQuantity())
	h.requireBalanced(t, "P")
}

func TestRecordMovement_AdjustmentUsesTarget(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.initialize(t, "P", 10, 0)

	m, err := h.ledger.RecordMovement(ctx, &dto.RecordMovementInput{ProductID: "P", Type: model.MovementAdjustmentIn, Quantity: 14})
	require.NoError(t, err)
	assert.Equal(t, 4, m.QuantityDelta)

	_, err = h.ledger.RecordMovement(ctx, &dto.RecordMovementInput{ProductID: "P", Type: model.MovementAdjustmentIn, Quantity: 14})
	assert.ErrorIs(t, err, apperror.ErrValidation, "a zero delta adjustment is rejected")

	m, err = h.ledger.RecordMovement(ctx, &dto.RecordMovementInput{ProductID: "P", Type: model.MovementAdjustmentOut, Quantity: 0})
	require.NoError(t, err)
	assert.Equal(t, 14, m.QuantityDelta)
	h.requireBalanced(t, "P")
}

func TestRecordMovement_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.initialize(t, "P", 10, 0)

	_, err := h.ledger.RecordMovement(ctx, &dto.RecordMovementInput{ProductID: "ghost", Type: model.MovementRestock, Quantity: 1})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = h.ledger.RecordMovement(ctx, &dto.RecordMovementInput{ProductID: "P", Type: model.MovementReserve, Quantity: 1})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = h.ledger.RecordMovement(ctx, &dto.RecordMovementInput{ProductID: "P", Type: model.MovementRestock, Quantity: 0})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	negative := decimal.NewFromInt(-1)
	_, err = h.ledger.RecordMovement(ctx, &dto.RecordMovementInput{ProductID: "P", Type: model.MovementRestock, Quantity: 1, UnitCost: &negative})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, _, err = h.ledger.ListMovements(ctx, &dto.MovementFilters{MovementType: "GIFT"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestRecordMovement_ActorFromContext(t *testing.T) {
	h := newHarness(t)
	h.initialize(t, "P", 1, 0)

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-user-id", "u-42"))
	m, err := h.ledger.RecordMovement(ctx, &dto.RecordMovementInput{ProductID: "P", Type: model.MovementReturn, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, "u-42", m.CreatedBy)

	m, err = h.ledger.RecordMovement(context.Background(), &dto.RecordMovementInput{ProductID: "P", Type: model.MovementReturn, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, auth.SystemActor, m.CreatedBy)
}

func TestRecordMovement_InvalidatesCacheAndAlertsOnCrossing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.initialize(t, "P", 10, 5)

	_, err := h.inventory.GetProductInventory(ctx, "P")
	require.NoError(t, err)
	require.True(t, h.cache.Has("inventory:product:P"))

	_, err = h.ledger.RecordMovement(ctx, &dto.RecordMovementInput{ProductID: "P", Type: model.MovementDamage, Quantity: 6})
	require.NoError(t, err)
	assert.False(t, h.cache.Has("inventory:product:P"))

	assert.Eventually(t, func() bool { return len(h.sink.Alerts()) == 1 }, time.Second, 5*time.Millisecond)
	alert := h.sink.Alerts()[0]
	assert.Equal(t, model.StockStatusLowStock, alert.Level)
	assert.Equal(t, 4, alert.AvailableQuantity)
	assert.Equal(t, "P", alert.ProductID)

	// still low, no new crossing
	_, err = h.ledger.RecordMovement(ctx, &dto.RecordMovementInput{ProductID: "P", Type: model.MovementDamage, Quantity: 1})
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, h.sink.Alerts(), 1)
}

func TestInitializeInventory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cost := decimal.NewFromInt(4)
	inv, err := h.ledger.InitializeInventory(ctx, &dto.InitializeInventoryInput{
		ProductID: "P", InitialQuantity: 12, LowStockThreshold: 3, UnitCost: &cost,
	})
	require.NoError(t, err)
	assert.True(t, inv.TrackQuantity)

	movements, _, err := h.ledger.ListMovements(ctx, &dto.MovementFilters{ProductID: "P"})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, model.MovementInitialStock, movements[0].Type)
	assert.True(t, movements[0].TotalCost.Decimal.Equal(decimal.NewFromInt(48)))

	_, err = h.ledger.InitializeInventory(ctx, &dto.InitializeInventoryInput{ProductID: "P"})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	empty, err := h.ledger.InitializeInventory(ctx, &dto.InitializeInventoryInput{
		ProductID: "SERVICE", TrackQuantity: testutil.BoolPtr(false),
	})
	require.NoError(t, err)
	assert.False(t, empty.TrackQuantity)

	_, total, err := h.ledger.ListMovements(ctx, &dto.MovementFilters{ProductID: "SERVICE"})
	require.NoError(t, err)
	assert.Zero(t, total, "zero initial stock writes no movement")

	_, err = h.ledger.InitializeInventory(ctx, &dto.InitializeInventoryInput{ProductID: "NEG", InitialQuantity: -1})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestListMovements_Filters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.initialize(t, "P", 10, 0)
	h.initialize(t, "Q", 4, 0)

	for _, in := range []dto.RecordMovementInput{
		{ProductID: "P", Type: model.MovementSale, Quantity: 2, ReferenceType: "order", ReferenceID: "ORD-1"},
		{ProductID: "P", Type: model.MovementRestock, Quantity: 6, BatchID: "B-1"},
		{ProductID: "P", Type: model.MovementDamage, Quantity: 1},
	} {
		in := in
		h.clock.Advance(time.Minute)
		_, err := h.ledger.RecordMovement(ctx, &in)
		require.NoError(t, err)
	}

	all, total, err := h.ledger.ListMovements(ctx, &dto.MovementFilters{ProductID: "P", PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, all, 2)
	assert.Equal(t, model.MovementDamage, all[0].Type)

	byRef, _, err := h.ledger.ListMovements(ctx, &dto.MovementFilters{ReferenceType: "order", ReferenceID: "ORD-1"})
	require.NoError(t, err)
	require.Len(t, byRef, 1)
	assert.Equal(t, model.MovementSale, byRef[0].Type)

	byBatch, _, err := h.ledger.ListMovements(ctx, &dto.MovementFilters{BatchID: "B-1"})
	require.NoError(t, err)
	require.Len(t, byBatch, 1)
	assert.Equal(t, 14, byBatch[0].NewQuantity)

	_, _, err = h.ledger.ListMovements(ctx, &dto.MovementFilters{MovementType: "TELEPORT"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}
