package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	"github.com/fekuna/omnipos-stock-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
)

const (
	inventoryColumns = `id, product_id, quantity_on_hand, quantity_reserved, low_stock_threshold,
		track_quantity, last_cost, last_restocked_at, last_sold_at, created_at, updated_at`
	movementColumns = `id, inventory_id, product_id, movement_type, quantity_delta, previous_quantity,
		new_quantity, unit_cost, total_cost, reference_type, reference_id, reason, notes, created_by,
		batch_id, created_at`
	reservationColumns = `id, inventory_id, product_id, order_id, cart_id, quantity, reason, status,
		expires_at, is_released, release_reason, created_at, released_at`

	insertInventoryQuery = `
        INSERT INTO inventory (` + inventoryColumns + `)
        VALUES (
            :id, :product_id, :quantity_on_hand, :quantity_reserved, :low_stock_threshold,
            :track_quantity, :last_cost, :last_restocked_at, :last_sold_at, :created_at, :updated_at
        )`
	insertMovementQuery = `
        INSERT INTO stock_movements (` + movementColumns + `)
        VALUES (
            :id, :inventory_id, :product_id, :movement_type, :quantity_delta, :previous_quantity,
            :new_quantity, :unit_cost, :total_cost, :reference_type, :reference_id, :reason, :notes,
            :created_by, :batch_id, :created_at
        )`
	insertReservationQuery = `
        INSERT INTO stock_reservations (` + reservationColumns + `)
        VALUES (
            :id, :inventory_id, :product_id, :order_id, :cart_id, :quantity, :reason, :status,
            :expires_at, :is_released, :release_reason, :created_at, :released_at
        )`
)

// PGRepository is written against PostgreSQL. Queries avoid dialect-specific
// syntax and are rebound per driver, which also lets it run on SQLite.
type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

var _ inventory.Repository = (*PGRepository)(nil)

func (r *PGRepository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return mapError("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapError("commit transaction", err)
	}
	return nil
}

// mapError translates driver failures into the error taxonomy. Serialization
// failures and deadlocks are conflicts the callers may retry.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperror.As(err); ok {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return apperror.ConcurrencyConflict("inventory").Wrap(err)
		case "23505":
			return apperror.Validation("record already exists").Wrap(err)
		}
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return apperror.Validation("record already exists").Wrap(err)
	}
	return apperror.Internal(fmt.Sprintf("failed to %s", op), err)
}

func (r *PGRepository) GetByProduct(ctx context.Context, productID string) (*model.Inventory, error) {
	var inv model.Inventory
	query := r.DB.Rebind(`SELECT ` + inventoryColumns + ` FROM inventory WHERE product_id = ?`)

	err := r.DB.GetContext(ctx, &inv, query, productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // caller decides whether absence is an error
		}
		return nil, mapError("load inventory", err)
	}
	return &inv, nil
}

func (r *PGRepository) BatchGetByProducts(ctx context.Context, productIDs []string) ([]model.Inventory, error) {
	if len(productIDs) == 0 {
		return []model.Inventory{}, nil
	}

	query, args, err := sqlx.In(`SELECT `+inventoryColumns+` FROM inventory WHERE product_id IN (?)`, productIDs)
	if err != nil {
		return nil, mapError("build batch query", err)
	}
	query = r.DB.Rebind(query)

	var items []model.Inventory
	if err := r.DB.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, mapError("load inventory batch", err)
	}
	return items, nil
}

const (
	availableExpr = `(quantity_on_hand - quantity_reserved)`
	lowStockExpr  = `track_quantity = ? AND ` + availableExpr + ` > 0 AND ` + availableExpr + ` <= low_stock_threshold`
	outStockExpr  = `track_quantity = ? AND ` + availableExpr + ` <= 0`
)

func inventoryWhere(f *dto.InventoryFilters) (string, []interface{}, error) {
	conditions := []string{}
	args := []interface{}{}

	if len(f.ProductIDs) > 0 {
		cond, inArgs, err := sqlx.In(`product_id IN (?)`, f.ProductIDs)
		if err != nil {
			return "", nil, err
		}
		conditions = append(conditions, cond)
		args = append(args, inArgs...)
	}
	if f.TrackedOnly {
		conditions = append(conditions, "track_quantity = ?")
		args = append(args, true)
	}

	switch f.Status {
	case "":
	case model.StockStatusOutOfStock:
		conditions = append(conditions, outStockExpr)
		args = append(args, true)
	case model.StockStatusLowStock:
		conditions = append(conditions, lowStockExpr)
		args = append(args, true)
	case model.StockStatusInStock:
		conditions = append(conditions, "(track_quantity = ? OR "+availableExpr+" > low_stock_threshold)")
		args = append(args, false)
	default:
		return "", nil, apperror.Validation("unknown stock status filter").WithDetail("status", string(f.Status))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}
	return whereClause, args, nil
}

func (r *PGRepository) FindAll(ctx context.Context, f *dto.InventoryFilters) ([]model.Inventory, int, error) {
	whereClause, args, err := inventoryWhere(f)
	if err != nil {
		return nil, 0, mapError("build inventory filter", err)
	}

	var count int
	countQuery := r.DB.Rebind("SELECT count(*) FROM inventory" + whereClause)
	if err := r.DB.GetContext(ctx, &count, countQuery, args...); err != nil {
		return nil, 0, mapError("count inventory", err)
	}

	query := "SELECT " + inventoryColumns + " FROM inventory" + whereClause + " ORDER BY updated_at DESC, product_id"
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		offset := (page - 1) * f.PageSize
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, offset)
	}

	items := []model.Inventory{}
	if err := r.DB.SelectContext(ctx, &items, r.DB.Rebind(query), args...); err != nil {
		return nil, 0, mapError("list inventory", err)
	}
	return items, count, nil
}

func (r *PGRepository) Summarize(ctx context.Context, f *dto.InventoryFilters) (*dto.InventorySummary, error) {
	whereClause, args, err := inventoryWhere(f)
	if err != nil {
		return nil, mapError("build inventory filter", err)
	}

	query := r.DB.Rebind(`
        SELECT
            count(*) AS total_items,
            COALESCE(SUM(quantity_on_hand * COALESCE(last_cost, 0)), 0) AS total_value,
            COALESCE(SUM(CASE WHEN ` + lowStockExpr + ` THEN 1 ELSE 0 END), 0) AS low_stock_count,
            COALESCE(SUM(CASE WHEN ` + outStockExpr + ` THEN 1 ELSE 0 END), 0) AS out_of_stock_count
        FROM inventory` + whereClause)

	var summary dto.InventorySummary
	allArgs := append([]interface{}{true, true}, args...)
	if err := r.DB.GetContext(ctx, &summary, query, allArgs...); err != nil {
		return nil, mapError("summarize inventory", err)
	}
	return &summary, nil
}

func (r *PGRepository) CreateWithMovement(ctx context.Context, inv *model.Inventory, movement *model.Movement) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, insertInventoryQuery, inv); err != nil {
			return mapError("create inventory", err)
		}
		if movement == nil {
			return nil
		}
		if _, err := tx.NamedExecContext(ctx, insertMovementQuery, movement); err != nil {
			return mapError("log movement", err)
		}
		return nil
	})
}

func (r *PGRepository) UpdateSettings(ctx context.Context, productID string, lowStockThreshold *int, trackQuantity *bool, updatedAt time.Time) error {
	query := r.DB.Rebind(`
        UPDATE inventory SET
            low_stock_threshold = COALESCE(?, low_stock_threshold),
            track_quantity = COALESCE(?, track_quantity),
            updated_at = ?
        WHERE product_id = ?`)

	res, err := r.DB.ExecContext(ctx, query, lowStockThreshold, trackQuantity, updatedAt, productID)
	if err != nil {
		return mapError("update inventory settings", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperror.NotFound("inventory", productID)
	}
	return nil
}

// ApplyMovement sets the new on-hand quantity and appends the movement in one
// transaction. The update only matches while on-hand still equals the
// movement's previous quantity and still covers every held unit.
func (r *PGRepository) ApplyMovement(ctx context.Context, m *model.Movement) error {
	var (
		lastCost    decimal.NullDecimal
		restockedAt *time.Time
		soldAt      *time.Time
	)
	if m.Type.IsReplenishment() {
		lastCost = m.UnitCost
		restockedAt = &m.CreatedAt
	}
	if m.Type == model.MovementSale {
		soldAt = &m.CreatedAt
	}

	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`
            UPDATE inventory SET
                quantity_on_hand = ?,
                last_cost = COALESCE(?, last_cost),
                last_restocked_at = COALESCE(?, last_restocked_at),
                last_sold_at = COALESCE(?, last_sold_at),
                updated_at = ?
            WHERE id = ? AND quantity_on_hand = ? AND quantity_reserved <= ?`),
			m.NewQuantity, lastCost, restockedAt, soldAt, m.CreatedAt,
			m.InventoryID, m.PreviousQuantity, m.NewQuantity,
		)
		if err != nil {
			return mapError("update inventory", err)
		}
		if err := expectOneRow(res, "inventory"); err != nil {
			return err
		}

		if _, err := tx.NamedExecContext(ctx, insertMovementQuery, m); err != nil {
			return mapError("log movement", err)
		}
		return nil
	})
}

func expectOneRow(res sql.Result, resource string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return mapError("read affected rows", err)
	}
	if n != 1 {
		return apperror.ConcurrencyConflict(resource)
	}
	return nil
}

func (r *PGRepository) ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.Movement, int, error) {
	conditions := []string{}
	args := []interface{}{}

	if f.ProductID != "" {
		conditions = append(conditions, "product_id = ?")
		args = append(args, f.ProductID)
	}
	if f.MovementType != "" {
		conditions = append(conditions, "movement_type = ?")
		args = append(args, f.MovementType)
	}
	if f.ReferenceType != "" {
		conditions = append(conditions, "reference_type = ?")
		args = append(args, f.ReferenceType)
	}
	if f.ReferenceID != "" {
		conditions = append(conditions, "reference_id = ?")
		args = append(args, f.ReferenceID)
	}
	if f.BatchID != "" {
		conditions = append(conditions, "batch_id = ?")
		args = append(args, f.BatchID)
	}
	if f.StartDate != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, f.StartDate.UTC())
	}
	if f.EndDate != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, f.EndDate.UTC())
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var count int
	if err := r.DB.GetContext(ctx, &count, r.DB.Rebind("SELECT count(*) FROM stock_movements"+whereClause), args...); err != nil {
		return nil, 0, mapError("count movements", err)
	}

	query := "SELECT " + movementColumns + " FROM stock_movements" + whereClause + " ORDER BY created_at DESC, id DESC"
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		offset := (page - 1) * f.PageSize
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, offset)
	}

	items := []model.Movement{}
	if err := r.DB.SelectContext(ctx, &items, r.DB.Rebind(query), args...); err != nil {
		return nil, 0, mapError("list movements", err)
	}
	return items, count, nil
}

// CreateReservation admits a hold with a single conditional increment, so two
// callers can never both take the last units of a product.
func (r *PGRepository) CreateReservation(ctx context.Context, res *model.Reservation) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, tx.Rebind(`
            UPDATE inventory SET
                quantity_reserved = quantity_reserved + ?,
                updated_at = ?
            WHERE product_id = ? AND quantity_on_hand - quantity_reserved >= ?`),
			res.Quantity, res.CreatedAt, res.ProductID, res.Quantity,
		)
		if err != nil {
			return mapError("reserve stock", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return mapError("read affected rows", err)
		}
		if n == 0 {
			var current struct {
				OnHand   int `db:"quantity_on_hand"`
				Reserved int `db:"quantity_reserved"`
			}
			err := tx.GetContext(ctx, &current, tx.Rebind(
				`SELECT quantity_on_hand, quantity_reserved FROM inventory WHERE product_id = ?`), res.ProductID)
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.NotFound("inventory", res.ProductID)
			}
			if err != nil {
				return mapError("load inventory", err)
			}
			return apperror.InsufficientStock(res.ProductID, res.Quantity, current.OnHand-current.Reserved)
		}

		if _, err := tx.NamedExecContext(ctx, insertReservationQuery, res); err != nil {
			return mapError("create reservation", err)
		}
		return nil
	})
}

func (r *PGRepository) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	var res model.Reservation
	query := r.DB.Rebind(`SELECT ` + reservationColumns + ` FROM stock_reservations WHERE id = ?`)

	if err := r.DB.GetContext(ctx, &res, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError("load reservation", err)
	}
	return &res, nil
}

func (r *PGRepository) ListReservations(ctx context.Context, f *dto.ReservationFilters) ([]model.Reservation, error) {
	conditions := []string{}
	args := []interface{}{}

	if f.ProductID != "" {
		conditions = append(conditions, "product_id = ?")
		args = append(args, f.ProductID)
	}
	if f.OrderID != "" {
		conditions = append(conditions, "order_id = ?")
		args = append(args, f.OrderID)
	}
	if f.CartID != "" {
		conditions = append(conditions, "cart_id = ?")
		args = append(args, f.CartID)
	}
	if f.ActiveOnly {
		conditions = append(conditions, "status = ?", "expires_at >= ?")
		args = append(args, model.ReservationActive, f.Now)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	items := []model.Reservation{}
	query := r.DB.Rebind("SELECT " + reservationColumns + " FROM stock_reservations" + whereClause + " ORDER BY created_at, id")
	if err := r.DB.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, mapError("list reservations", err)
	}
	return items, nil
}

// ReleaseReservation claims an active hold and returns its units to the pool.
// The claim is one conditional update, so whichever of a manual release and a
// sweep gets there first wins and the other matches no row.
func (r *PGRepository) ReleaseReservation(ctx context.Context, req *inventory.ReleaseRequest) (bool, error) {
	released := false
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
            UPDATE stock_reservations SET
                status = ?,
                is_released = ?,
                release_reason = ?,
                released_at = ?
            WHERE id = ? AND status = ?`
		args := []interface{}{req.Status, true, req.Reason, req.ReleasedAt, req.ReservationID, model.ReservationActive}
		if req.OnlyExpiredAt != nil {
			query += ` AND expires_at < ?`
			args = append(args, *req.OnlyExpiredAt)
		}

		result, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
		if err != nil {
			return mapError("claim reservation", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return mapError("read affected rows", err)
		}
		if n == 0 {
			return nil
		}

		var res model.Reservation
		if err := tx.GetContext(ctx, &res, tx.Rebind(
			`SELECT `+reservationColumns+` FROM stock_reservations WHERE id = ?`), req.ReservationID); err != nil {
			return mapError("load reservation", err)
		}

		result, err = tx.ExecContext(ctx, tx.Rebind(`
            UPDATE inventory SET
                quantity_reserved = quantity_reserved - ?,
                updated_at = ?
            WHERE id = ? AND quantity_reserved >= ?`),
			res.Quantity, req.ReleasedAt, res.InventoryID, res.Quantity,
		)
		if err != nil {
			return mapError("release reserved stock", err)
		}
		if n, err := result.RowsAffected(); err != nil || n != 1 {
			return apperror.Internal("reserved quantity is out of sync with active reservations",
				fmt.Errorf("inventory %s: affected=%d err=%v", res.InventoryID, n, err))
		}

		released = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return released, nil
}

func (r *PGRepository) ExtendReservation(ctx context.Context, id string, currentExpiry, newExpiry, now time.Time) error {
	query := r.DB.Rebind(`
        UPDATE stock_reservations SET expires_at = ?
        WHERE id = ? AND status = ? AND expires_at <= ? AND expires_at >= ?`)

	res, err := r.DB.ExecContext(ctx, query, newExpiry, id, model.ReservationActive, currentExpiry, now)
	if err != nil {
		return mapError("extend reservation", err)
	}
	return expectOneRow(res, "reservation")
}

// ConvertReservations claims each hold as converted, moves its units out of
// both on-hand and reserved, and writes the sale movement, all in one
// transaction. Any guard that no longer matches aborts the whole conversion.
func (r *PGRepository) ConvertReservations(ctx context.Context, conversions []inventory.Conversion, soldAt time.Time) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, c := range conversions {
			res, m := c.Reservation, c.Movement

			result, err := tx.ExecContext(ctx, tx.Rebind(`
                UPDATE stock_reservations SET
                    status = ?,
                    is_released = ?,
                    release_reason = ?,
                    released_at = ?
                WHERE id = ? AND status = ? AND expires_at >= ?`),
				model.ReservationConverted, true, "converted to sale", soldAt,
				res.ID, model.ReservationActive, soldAt,
			)
			if err != nil {
				return mapError("claim reservation", err)
			}
			if err := expectOneRow(result, "reservation"); err != nil {
				return err
			}

			result, err = tx.ExecContext(ctx, tx.Rebind(`
                UPDATE inventory SET
                    quantity_on_hand = ?,
                    quantity_reserved = quantity_reserved - ?,
                    last_sold_at = ?,
                    updated_at = ?
                WHERE id = ? AND quantity_on_hand = ? AND quantity_reserved >= ?`),
				m.NewQuantity, res.Quantity, soldAt, soldAt,
				res.InventoryID, m.PreviousQuantity, res.Quantity,
			)
			if err != nil {
				return mapError("update inventory", err)
			}
			if err := expectOneRow(result, "inventory"); err != nil {
				return err
			}

			if _, err := tx.NamedExecContext(ctx, insertMovementQuery, m); err != nil {
				return mapError("log movement", err)
			}
		}
		return nil
	})
}

func (r *PGRepository) FindExpiredReservations(ctx context.Context, productID string, now time.Time, limit int) ([]model.Reservation, error) {
	query := "SELECT " + reservationColumns + " FROM stock_reservations WHERE status = ? AND expires_at < ?"
	args := []interface{}{model.ReservationActive, now}
	if productID != "" {
		query += " AND product_id = ?"
		args = append(args, productID)
	}
	query += " ORDER BY expires_at, id"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	items := []model.Reservation{}
	if err := r.DB.SelectContext(ctx, &items, r.DB.Rebind(query), args...); err != nil {
		return nil, mapError("find expired reservations", err)
	}
	return items, nil
}
