package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/model"
)

type InventoryFilters struct {
	ProductIDs  []string          `json:"product_ids,omitempty"`
	Status      model.StockStatus `json:"status,omitempty"`
	TrackedOnly bool              `json:"tracked_only,omitempty"`
	Page        int               `json:"page"`
	PageSize    int               `json:"page_size"`
}

type MovementFilters struct {
	ProductID     string
	MovementType  model.MovementType
	ReferenceType string
	ReferenceID   string
	BatchID       string
	StartDate     *time.Time
	EndDate       *time.Time
	Page          int
	PageSize      int
}

type ReservationFilters struct {
	ProductID string
	OrderID   string
	CartID    string
	// ActiveOnly keeps status=ACTIVE holds that have not expired at Now.
	ActiveOnly bool
	Now        time.Time
}

type InventoryView struct {
	model.Inventory
	AvailableQuantity int               `json:"available_quantity"`
	Status            model.StockStatus `json:"status"`
}

func NewInventoryView(inv model.Inventory) InventoryView {
	return InventoryView{
		Inventory:         inv,
		AvailableQuantity: inv.AvailableQuantity(),
		Status:            inv.Status(),
	}
}

type ProductInventory struct {
	InventoryView
	ActiveReservations []model.Reservation `json:"active_reservations"`
}

type InventorySummary struct {
	TotalItems      int             `db:"total_items" json:"total_items"`
	TotalValue      decimal.Decimal `db:"total_value" json:"total_value"`
	LowStockCount   int             `db:"low_stock_count" json:"low_stock_count"`
	OutOfStockCount int             `db:"out_of_stock_count" json:"out_of_stock_count"`
}

type InventoryList struct {
	Items    []InventoryView  `json:"items"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Summary  InventorySummary `json:"summary"`
}

// ReservationResult is returned for every reservation attempt. A declined
// attempt has Success=false and carries the error and the quantity that was
// available at the time of the check.
type ReservationResult struct {
	Success           bool
	ProductID         string
	RequestedQuantity int
	AvailableQuantity int
	Reservation       *model.Reservation
	// Untracked is set when the product does not track quantity and no hold was placed.
	Untracked bool
	Error     *apperror.AppError
}

type BulkReservationResult struct {
	Results      []ReservationResult
	SuccessCount int
	FailureCount int
	// RolledBack is set when an all-or-nothing call released its earlier holds.
	RolledBack bool
}

type UpdateResult struct {
	ProductID string
	Inventory *InventoryView
	Movement  *model.Movement
	Error     *apperror.AppError
}

type BulkUpdateResult struct {
	Results      []UpdateResult
	SuccessCount int
	FailureCount int
}
