package inventory

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
)

// Repository is the transactional store. Every mutating method is atomic on its
// own; optimistic guards that lose a race return apperror.ErrConcurrencyConflict.
type Repository interface {
	// Inventory records
	GetByProduct(ctx context.Context, productID string) (*model.Inventory, error)
	BatchGetByProducts(ctx context.Context, productIDs []string) ([]model.Inventory, error)
	FindAll(ctx context.Context, filters *dto.InventoryFilters) ([]model.Inventory, int, error)
	Summarize(ctx context.Context, filters *dto.InventoryFilters) (*dto.InventorySummary, error)
	CreateWithMovement(ctx context.Context, inv *model.Inventory, movement *model.Movement) error
	UpdateSettings(ctx context.Context, productID string, lowStockThreshold *int, trackQuantity *bool, updatedAt time.Time) error

	// Ledger
	ApplyMovement(ctx context.Context, movement *model.Movement) error
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.Movement, int, error)

	// Reservations
	CreateReservation(ctx context.Context, reservation *model.Reservation) error
	GetReservation(ctx context.Context, id string) (*model.Reservation, error)
	ListReservations(ctx context.Context, filters *dto.ReservationFilters) ([]model.Reservation, error)
	ReleaseReservation(ctx context.Context, release *ReleaseRequest) (bool, error)
	ExtendReservation(ctx context.Context, id string, currentExpiry, newExpiry, now time.Time) error
	ConvertReservations(ctx context.Context, conversions []Conversion, soldAt time.Time) error
	// FindExpiredReservations returns active holds that expired before now,
	// oldest first. An empty productID searches every product.
	FindExpiredReservations(ctx context.Context, productID string, now time.Time, limit int) ([]model.Reservation, error)
}

// ReleaseRequest claims one active hold. With OnlyExpiredAt set the claim
// only succeeds if the hold expired before that instant.
type ReleaseRequest struct {
	ReservationID string
	Status        model.ReservationStatus
	Reason        string
	ReleasedAt    time.Time
	OnlyExpiredAt *time.Time
}

// Conversion turns one hold into a sale movement.
type Conversion struct {
	Reservation model.Reservation
	Movement    *model.Movement
}
