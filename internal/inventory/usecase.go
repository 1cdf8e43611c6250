package inventory

import (
	"context"

	"github.com/fekuna/omnipos-stock-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
)

// Ledger is the only writer of on-hand quantity.
type Ledger interface {
	// RecordMovement returns a nil movement when an AdjustTo target already
	// equals on-hand.
	RecordMovement(ctx context.Context, input *dto.RecordMovementInput) (*model.Movement, error)
	InitializeInventory(ctx context.Context, input *dto.InitializeInventoryInput) (*model.Inventory, error)
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.Movement, int, error)
}

// ReservationManager places, releases and converts holds against available stock.
type ReservationManager interface {
	ReserveStock(ctx context.Context, input *dto.ReserveStockInput) (*dto.ReservationResult, error)
	BulkReserveStock(ctx context.Context, input *dto.BulkReserveInput) (*dto.BulkReservationResult, error)
	ReleaseReservation(ctx context.Context, id, reason string) (*model.Reservation, error)
	ReleaseAllReservations(ctx context.Context, orderID, cartID, reason string) (int, error)
	ExtendReservation(ctx context.Context, id string, additionalMinutes int) (*model.Reservation, error)
	ConvertReservationToSale(ctx context.Context, orderID, userID string) ([]model.Movement, error)
	CleanupExpiredReservations(ctx context.Context, batchSize int) (int, error)
	GetReservation(ctx context.Context, id string) (*model.Reservation, error)
	ListReservations(ctx context.Context, filters *dto.ReservationFilters) ([]model.Reservation, error)
}

// UseCase is the read and administrative surface.
type UseCase interface {
	GetProductInventory(ctx context.Context, productID string) (*dto.ProductInventory, error)
	GetInventoryList(ctx context.Context, filters *dto.InventoryFilters) (*dto.InventoryList, error)
	UpdateInventory(ctx context.Context, input *dto.UpdateInventoryInput) (*dto.UpdateResult, error)
	BulkUpdateInventory(ctx context.Context, inputs []dto.UpdateInventoryInput) (*dto.BulkUpdateResult, error)
	CheckLowStockAlert(ctx context.Context, productID string) (*model.StockAlert, error)
}
