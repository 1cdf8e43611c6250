package dto

import (
	"github.com/shopspring/decimal"

	"github.com/fekuna/omnipos-stock-service/internal/model"
)

type RecordMovementInput struct {
	ProductID string
	Type      model.MovementType
	// Quantity is a delta, except for adjustment types where it is the target on-hand value.
	Quantity int
	// AdjustTo sets on-hand to an absolute value. Type and Quantity are ignored
	// and the adjustment direction follows the balance at write time.
	AdjustTo      *int
	UnitCost      *decimal.Decimal
	ReferenceType string // 'order', 'purchase_order', 'manual'
	ReferenceID   string
	Reason        string
	Notes         string
	BatchID       string
	UserID        string
}

type InitializeInventoryInput struct {
	ProductID         string
	InitialQuantity   int
	LowStockThreshold int
	TrackQuantity     *bool
	UnitCost          *decimal.Decimal
	UserID            string
}

type ReserveStockInput struct {
	ProductID  string
	Quantity   int
	Reason     string
	OrderID    string
	CartID     string
	TTLMinutes int
}

type BulkReserveMode int

const (
	// BulkAllOrNothing releases every hold made by the call if any item fails.
	BulkAllOrNothing BulkReserveMode = iota
	BulkPartial
)

type BulkReserveInput struct {
	Items []ReserveStockInput
	Mode  BulkReserveMode
}

type UpdateInventoryInput struct {
	ProductID string
	// Quantity is the desired on-hand value; nil leaves stock untouched.
	Quantity          *int
	LowStockThreshold *int
	TrackQuantity     *bool
	UnitCost          *decimal.Decimal
	Reason            string
	Notes             string
	UserID            string
}
