package model

import "time"

type StockAlert struct {
	ID                string      `json:"alert_id"`
	Level             StockStatus `json:"level"`
	ProductID         string      `json:"product_id"`
	AvailableQuantity int         `json:"available_quantity"`
	Threshold         int         `json:"threshold"`
	OccurredAt        time.Time   `json:"occurred_at"`
}

func severity(s StockStatus) int {
	switch s {
	case StockStatusOutOfStock:
		return 2
	case StockStatusLowStock:
		return 1
	default:
		return 0
	}
}

// DownwardCrossing returns the new status when after is strictly worse than
// before, e.g. IN_STOCK to LOW_STOCK or LOW_STOCK to OUT_OF_STOCK.
func DownwardCrossing(before, after *Inventory) (StockStatus, bool) {
	if before == nil || after == nil {
		return "", false
	}
	from, to := before.Status(), after.Status()
	if severity(to) > severity(from) {
		return to, true
	}
	return "", false
}
