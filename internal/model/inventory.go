package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type StockStatus string

const (
	StockStatusInStock    StockStatus = "IN_STOCK"
	StockStatusLowStock   StockStatus = "LOW_STOCK"
	StockStatusOutOfStock StockStatus = "OUT_OF_STOCK"
)

type Inventory struct {
	ID                string              `db:"id" json:"id"`
	ProductID         string              `db:"product_id" json:"product_id"`
	QuantityOnHand    int                 `db:"quantity_on_hand" json:"quantity_on_hand"`
	QuantityReserved  int                 `db:"quantity_reserved" json:"quantity_reserved"`
	LowStockThreshold int                 `db:"low_stock_threshold" json:"low_stock_threshold"`
	TrackQuantity     bool                `db:"track_quantity" json:"track_quantity"`
	LastCost          decimal.NullDecimal `db:"last_cost" json:"last_cost"`
	LastRestockedAt   *time.Time          `db:"last_restocked_at" json:"last_restocked_at,omitempty"`
	LastSoldAt        *time.Time          `db:"last_sold_at" json:"last_sold_at,omitempty"`
	CreatedAt         time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time           `db:"updated_at" json:"updated_at"`
}

// AvailableQuantity is what can be sold or reserved right now.
func (i *Inventory) AvailableQuantity() int {
	return i.QuantityOnHand - i.QuantityReserved
}

func (i *Inventory) Status() StockStatus {
	return ClassifyStock(i.AvailableQuantity(), i.LowStockThreshold, i.TrackQuantity)
}

// ClassifyStock maps an available quantity onto a status. Products that do not
// track quantity are always in stock.
func ClassifyStock(available, threshold int, tracked bool) StockStatus {
	switch {
	case !tracked:
		return StockStatusInStock
	case available <= 0:
		return StockStatusOutOfStock
	case available <= threshold:
		return StockStatusLowStock
	default:
		return StockStatusInStock
	}
}
