package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
)

func TestClassifyStock(t *testing.T) {
	cases := []struct {
		name      string
		available int
		threshold int
		tracked   bool
		want      StockStatus
	}{
		{"empty", 0, 5, true, StockStatusOutOfStock},
		{"at threshold", 5, 5, true, StockStatusLowStock},
		{"one left", 1, 5, true, StockStatusLowStock},
		{"above threshold", 6, 5, true, StockStatusInStock},
		{"zero threshold", 1, 0, true, StockStatusInStock},
		{"untracked", 0, 5, false, StockStatusInStock},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyStock(tc.available, tc.threshold, tc.tracked))
		})
	}
}

func TestPlanMovement_InboundAndOutbound(t *testing.T) {
	inv := &Inventory{ProductID: "P-1", QuantityOnHand: 5, QuantityReserved: 2}

	next, delta, err := PlanMovement(inv, MovementRestock, 20)
	require.NoError(t, err)
	assert.Equal(t, 25, next)
	assert.Equal(t, 20, delta)

	next, delta, err = PlanMovement(inv, MovementDamage, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, next)
	assert.Equal(t, 3, delta)
}

func TestPlanMovement_OutboundBelowReservedIsRejected(t *testing.T) {
	inv := &Inventory{ProductID: "P-1", QuantityOnHand: 5, QuantityReserved: 2}

	_, _, err := PlanMovement(inv, MovementSale, 4)
	require.ErrorIs(t, err, apperror.ErrInsufficientStock)

	appErr, _ := apperror.As(err)
	assert.Equal(t, "3", appErr.Details["available"])
}

func TestPlanMovement_Adjustments(t *testing.T) {
	inv := &Inventory{ProductID: "P-1", QuantityOnHand: 10, QuantityReserved: 4}

	next, delta, err := PlanMovement(inv, MovementAdjustmentOut, 6)
	require.NoError(t, err)
	assert.Equal(t, 6, next)
	assert.Equal(t, 4, delta)

	next, delta, err = PlanMovement(inv, MovementAdjustmentIn, 12)
	require.NoError(t, err)
	assert.Equal(t, 12, next)
	assert.Equal(t, 2, delta)

	_, _, err = PlanMovement(inv, MovementAdjustmentIn, 8)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, _, err = PlanMovement(inv, MovementAdjustmentOut, 10)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, _, err = PlanMovement(inv, MovementAdjustmentOut, 3)
	assert.ErrorIs(t, err, apperror.ErrInsufficientStock)
}

func TestAdjustmentToward(t *testing.T) {
	assert.Equal(t, MovementAdjustmentOut, AdjustmentToward(10, 4))
	assert.Equal(t, MovementAdjustmentIn, AdjustmentToward(10, 14))
}

func TestPlanMovement_Validation(t *testing.T) {
	inv := &Inventory{ProductID: "P-1", QuantityOnHand: 10}

	_, _, err := PlanMovement(inv, MovementType("GIFT"), 1)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, _, err = PlanMovement(inv, MovementRestock, 0)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, _, err = PlanMovement(inv, MovementAdjustmentIn, -1)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestMovement_IsConsistent(t *testing.T) {
	assert.True(t, (&Movement{Type: MovementRestock, QuantityDelta: 20, PreviousQuantity: 5, NewQuantity: 25}).IsConsistent())
	assert.True(t, (&Movement{Type: MovementSale, QuantityDelta: 4, PreviousQuantity: 10, NewQuantity: 6}).IsConsistent())
	assert.False(t, (&Movement{Type: MovementSale, QuantityDelta: 4, PreviousQuantity: 2, NewQuantity: 0}).IsConsistent())
	assert.False(t, (&Movement{Type: MovementRestock, QuantityDelta: 0, PreviousQuantity: 2, NewQuantity: 2}).IsConsistent())
}

func TestMovementType_Classification(t *testing.T) {
	assert.Equal(t, Inbound, MovementReturn.Direction())
	assert.Equal(t, Outbound, MovementTheft.Direction())
	assert.True(t, MovementAdjustmentOut.IsAdjustment())
	assert.False(t, MovementSale.IsAdjustment())
	assert.True(t, MovementReserve.IsReservationBookkeeping())
	assert.False(t, MovementType("").IsValid())
}

func TestReservation_StateAt(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	r := &Reservation{Status: ReservationActive, ExpiresAt: now.Add(time.Minute)}

	assert.True(t, r.IsActiveAt(now))
	assert.Equal(t, ReservationExpired, r.StateAt(now.Add(2*time.Minute)))

	r.Status = ReservationConverted
	assert.Equal(t, ReservationConverted, r.StateAt(now.Add(2*time.Minute)))
	assert.False(t, r.IsActiveAt(now))
}

func TestInventory_Available(t *testing.T) {
	inv := &Inventory{QuantityOnHand: 10, QuantityReserved: 6, LowStockThreshold: 5, TrackQuantity: true}
	assert.Equal(t, 4, inv.AvailableQuantity())
	assert.Equal(t, StockStatusLowStock, inv.Status())
}

func TestDownwardCrossing(t *testing.T) {
	before := &Inventory{QuantityOnHand: 10, LowStockThreshold: 3, TrackQuantity: true}

	after := *before
	after.QuantityReserved = 8
	level, ok := DownwardCrossing(before, &after)
	assert.True(t, ok)
	assert.Equal(t, StockStatusLowStock, level)

	after.QuantityReserved = 10
	level, ok = DownwardCrossing(before, &after)
	assert.True(t, ok)
	assert.Equal(t, StockStatusOutOfStock, level)

	low := after
	low.QuantityReserved = 9
	_, ok = DownwardCrossing(&after, &low)
	assert.False(t, ok, "recovering stock is not an alert")

	_, ok = DownwardCrossing(nil, &after)
	assert.False(t, ok)
}
