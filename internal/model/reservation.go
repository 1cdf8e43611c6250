package model

import "time"

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationReleased  ReservationStatus = "RELEASED"
	ReservationConverted ReservationStatus = "CONVERTED"
	// ReservationExpired is never stored; it is how an active hold past its
	// expiry reads until a release or the sweeper claims it.
	ReservationExpired ReservationStatus = "EXPIRED"
)

type Reservation struct {
	ID            string            `db:"id" json:"id"`
	InventoryID   string            `db:"inventory_id" json:"inventory_id"`
	ProductID     string            `db:"product_id" json:"product_id"`
	OrderID       *string           `db:"order_id" json:"order_id,omitempty"`
	CartID        *string           `db:"cart_id" json:"cart_id,omitempty"`
	Quantity      int               `db:"quantity" json:"quantity"`
	Reason        string            `db:"reason" json:"reason"`
	Status        ReservationStatus `db:"status" json:"status"`
	ExpiresAt     time.Time         `db:"expires_at" json:"expires_at"`
	IsReleased    bool              `db:"is_released" json:"is_released"`
	ReleaseReason *string           `db:"release_reason" json:"release_reason,omitempty"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
	ReleasedAt    *time.Time        `db:"released_at" json:"released_at,omitempty"`
}

// StateAt is the status as seen at now.
func (r *Reservation) StateAt(now time.Time) ReservationStatus {
	if r.Status == ReservationActive && now.After(r.ExpiresAt) {
		return ReservationExpired
	}
	return r.Status
}

// IsActiveAt reports whether the hold is neither closed nor past its expiry.
func (r *Reservation) IsActiveAt(now time.Time) bool {
	return r.StateAt(now) == ReservationActive
}
