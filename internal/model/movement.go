package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
)

type MovementType string

const (
	MovementInitialStock   MovementType = "INITIAL_STOCK"
	MovementRestock        MovementType = "RESTOCK"
	MovementPurchase       MovementType = "PURCHASE"
	MovementReturn         MovementType = "RETURN"
	MovementTransferIn     MovementType = "TRANSFER_IN"
	MovementAdjustmentIn   MovementType = "ADJUSTMENT_IN"
	MovementReleaseReserve MovementType = "RELEASE_RESERVE"

	MovementSale          MovementType = "SALE"
	MovementTransferOut   MovementType = "TRANSFER_OUT"
	MovementDamage        MovementType = "DAMAGE"
	MovementTheft         MovementType = "THEFT"
	MovementExpired       MovementType = "EXPIRED"
	MovementAdjustmentOut MovementType = "ADJUSTMENT_OUT"
	MovementReserve       MovementType = "RESERVE"
)

// Direction is +1 for movements that add stock and -1 for those that remove it.
type Direction int

const (
	Inbound  Direction = 1
	Outbound Direction = -1
)

var movementDirections = map[MovementType]Direction{
	MovementInitialStock:   Inbound,
	MovementRestock:        Inbound,
	MovementPurchase:       Inbound,
	MovementReturn:         Inbound,
	MovementTransferIn:     Inbound,
	MovementAdjustmentIn:   Inbound,
	MovementReleaseReserve: Inbound,
	MovementSale:           Outbound,
	MovementTransferOut:    Outbound,
	MovementDamage:         Outbound,
	MovementTheft:          Outbound,
	MovementExpired:        Outbound,
	MovementAdjustmentOut:  Outbound,
	MovementReserve:        Outbound,
}

func (t MovementType) IsValid() bool {
	_, ok := movementDirections[t]
	return ok
}

func (t MovementType) Direction() Direction {
	return movementDirections[t]
}

// IsAdjustment reports whether the quantity of a movement of this type is an
// absolute target rather than a delta.
func (t MovementType) IsAdjustment() bool {
	return t == MovementAdjustmentIn || t == MovementAdjustmentOut
}

// IsReservationBookkeeping reports whether the type only describes holds.
// Holds never change on-hand quantity, so the ledger refuses these.
func (t MovementType) IsReservationBookkeeping() bool {
	return t == MovementReserve || t == MovementReleaseReserve
}

// IsReplenishment reports whether the movement brings in purchased stock and
// so refreshes the record's last cost and restock time.
func (t MovementType) IsReplenishment() bool {
	return t == MovementInitialStock || t == MovementRestock || t == MovementPurchase
}

type Movement struct {
	ID               string              `db:"id" json:"id"`
	InventoryID      string              `db:"inventory_id" json:"inventory_id"`
	ProductID        string              `db:"product_id" json:"product_id"`
	Type             MovementType        `db:"movement_type" json:"type"`
	QuantityDelta    int                 `db:"quantity_delta" json:"quantity_delta"`
	PreviousQuantity int                 `db:"previous_quantity" json:"previous_quantity"`
	NewQuantity      int                 `db:"new_quantity" json:"new_quantity"`
	UnitCost         decimal.NullDecimal `db:"unit_cost" json:"unit_cost"`
	TotalCost        decimal.NullDecimal `db:"total_cost" json:"total_cost"`
	ReferenceType    *string             `db:"reference_type" json:"reference_type,omitempty"`
	ReferenceID      *string             `db:"reference_id" json:"reference_id,omitempty"`
	Reason           string              `db:"reason" json:"reason"`
	Notes            string              `db:"notes" json:"notes"`
	CreatedBy        string              `db:"created_by" json:"created_by"`
	BatchID          *string             `db:"batch_id" json:"batch_id,omitempty"`
	CreatedAt        time.Time           `db:"created_at" json:"created_at"`
}

// IsConsistent checks newQuantity = previousQuantity ± quantityDelta.
func (m *Movement) IsConsistent() bool {
	if m.QuantityDelta <= 0 {
		return false
	}
	return m.NewQuantity == m.PreviousQuantity+int(m.Type.Direction())*m.QuantityDelta
}

// AdjustmentToward is the adjustment type that moves onHand to target.
func AdjustmentToward(onHand, target int) MovementType {
	if target < onHand {
		return MovementAdjustmentOut
	}
	return MovementAdjustmentIn
}

// PlanMovement computes the balance change of a movement against inv. For
// adjustments quantity is the target on-hand value. Outbound results may never
// fall below what is reserved.
func PlanMovement(inv *Inventory, t MovementType, quantity int) (next, delta int, err error) {
	onHand, reserved := inv.QuantityOnHand, inv.QuantityReserved

	if !t.IsValid() {
		return 0, 0, apperror.Validation("unknown movement type").WithDetail("type", string(t))
	}

	if t.IsAdjustment() {
		if quantity < 0 {
			return 0, 0, apperror.Validation("adjustment target must not be negative")
		}
		next = quantity
		delta = next - onHand
		if t.Direction() == Outbound {
			delta = -delta
		}
		if delta <= 0 {
			return 0, 0, apperror.Validation("adjustment target does not match movement direction").
				WithDetail("type", string(t))
		}
	} else {
		if quantity <= 0 {
			return 0, 0, apperror.Validation("quantity must be positive")
		}
		delta = quantity
		next = onHand + int(t.Direction())*delta
	}

	if t.Direction() == Outbound && next < reserved {
		return 0, 0, apperror.InsufficientStock(inv.ProductID, delta, onHand-reserved)
	}
	return next, delta, nil
}
