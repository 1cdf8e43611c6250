package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// The DDL sticks to types and syntax shared by PostgreSQL and SQLite so the
// same statements back production and the in-memory test store.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS inventory (
		id                  TEXT PRIMARY KEY,
		product_id          TEXT NOT NULL UNIQUE,
		quantity_on_hand    INTEGER NOT NULL DEFAULT 0 CHECK (quantity_on_hand >= 0),
		quantity_reserved   INTEGER NOT NULL DEFAULT 0 CHECK (quantity_reserved >= 0),
		low_stock_threshold INTEGER NOT NULL DEFAULT 0,
		track_quantity      BOOLEAN NOT NULL DEFAULT TRUE,
		last_cost           NUMERIC(14,4),
		last_restocked_at   TIMESTAMP,
		last_sold_at        TIMESTAMP,
		created_at          TIMESTAMP NOT NULL,
		updated_at          TIMESTAMP NOT NULL,
		CHECK (quantity_reserved <= quantity_on_hand)
	)`,
	`CREATE TABLE IF NOT EXISTS stock_movements (
		id                TEXT PRIMARY KEY,
		inventory_id      TEXT NOT NULL REFERENCES inventory (id),
		product_id        TEXT NOT NULL,
		movement_type     TEXT NOT NULL,
		quantity_delta    INTEGER NOT NULL CHECK (quantity_delta > 0),
		previous_quantity INTEGER NOT NULL,
		new_quantity      INTEGER NOT NULL,
		unit_cost         NUMERIC(14,4),
		total_cost        NUMERIC(14,4),
		reference_type    TEXT,
		reference_id      TEXT,
		reason            TEXT NOT NULL DEFAULT '',
		notes             TEXT NOT NULL DEFAULT '',
		created_by        TEXT NOT NULL DEFAULT '',
		batch_id          TEXT,
		created_at        TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_movements_product ON stock_movements (product_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_movements_reference ON stock_movements (reference_type, reference_id)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_movements_batch ON stock_movements (batch_id)`,
	`CREATE TABLE IF NOT EXISTS stock_reservations (
		id             TEXT PRIMARY KEY,
		inventory_id   TEXT NOT NULL REFERENCES inventory (id),
		product_id     TEXT NOT NULL,
		order_id       TEXT,
		cart_id        TEXT,
		quantity       INTEGER NOT NULL CHECK (quantity > 0),
		reason         TEXT NOT NULL DEFAULT '',
		status         TEXT NOT NULL,
		expires_at     TIMESTAMP NOT NULL,
		is_released    BOOLEAN NOT NULL DEFAULT FALSE,
		release_reason TEXT,
		created_at     TIMESTAMP NOT NULL,
		released_at    TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_reservations_expiry ON stock_reservations (status, expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_reservations_product ON stock_reservations (product_id, status, expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_reservations_order ON stock_reservations (order_id)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_reservations_cart ON stock_reservations (cart_id)`,
}

// Migrate creates the inventory tables if they do not exist.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate inventory schema: %w", err)
		}
	}
	return nil
}
