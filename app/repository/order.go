package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-unlocks/app/entity"
)

var ErrOrderAlreadyExists = errors.New("order already exists")

type OrderRepository struct {
	db DBTX
}

func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, order *entity.Order) error {
	query := `
		INSERT INTO payment_orders (
			order_id, provider, user_id, resource_id,
			amount_minor, currency, receipt, status,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		order.OrderID,
		order.Provider,
		order.UserID,
		order.ResourceID,
		order.AmountMinor,
		order.Currency,
		order.Receipt,
		order.Status,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrOrderAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	order.ID = uint64(id)
	return nil
}

// ListStaleCreated returns orders still in created state that were placed
// between after and before. Never-checked orders come first, then the ones
// checked longest ago, so unpaid orders rotate out of the batch.
func (r *OrderRepository) ListStaleCreated(ctx context.Context, before, after time.Time, limit int32) ([]*entity.Order, error) {
	query := `
		SELECT id, order_id, provider, user_id, resource_id,
			amount_minor, currency, receipt, status, last_checked_at,
			created_at, updated_at
		FROM payment_orders
		WHERE status = ?
		  AND created_at <= ?
		  AND created_at >= ?
		ORDER BY last_checked_at IS NOT NULL, last_checked_at ASC, created_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, entity.OrderStatusCreated, before, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]*entity.Order, 0)
	for rows.Next() {
		order := &entity.Order{}
		if err := scanOrder(rows, order); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

// MarkChecked records that the provider was asked about a created order.
func (r *OrderRepository) MarkChecked(ctx context.Context, orderID string, checkedAt time.Time) error {
	query := `
		UPDATE payment_orders
		SET last_checked_at = ?, updated_at = ?
		WHERE order_id = ? AND status = ?
	`

	_, err := r.db.ExecContext(ctx, query, checkedAt, checkedAt, orderID, entity.OrderStatusCreated)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner, order *entity.Order) error {
	var lastCheckedAt sql.NullTime
	if err := row.Scan(
		&order.ID,
		&order.OrderID,
		&order.Provider,
		&order.UserID,
		&order.ResourceID,
		&order.AmountMinor,
		&order.Currency,
		&order.Receipt,
		&order.Status,
		&lastCheckedAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return err
	}
	order.LastCheckedAt = timePtrFromNull(lastCheckedAt)
	return nil
}
