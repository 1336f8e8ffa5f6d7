package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gitlab.ozon.dev/qwestard/atabuy/internal/models"
)

// Repository persists orders. GetByID returns nil, nil for a missing order;
// UpdateTx returns models.ErrOrderNotFound.
type Repository interface {
	Create(ctx context.Context, o *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context, f ListFilter) ([]*models.Order, error)
	UpdateTx(ctx context.Context, id string, mutate func(o *models.Order) error) (*models.Order, error)
}

type ListFilter struct {
	Status models.OrderStatus
	Offset int64
	Limit  int64
}

const orderColumns = `id, status, status_history, payment_status, tracking_number,
		customer_name, customer_email, customer_phone, delivery_address, items,
		subtotal, discount, coupon_code, total, cancellation_reason, created_at, updated_at`

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, o *models.Order) error {
	history, items, err := encodeJSONColumns(o)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	query := `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`

	_, err = r.db.ExecContext(ctx, query,
		o.ID, o.Status, history, o.PaymentStatus, o.TrackingNumber,
		o.CustomerName, o.CustomerEmail, o.CustomerPhone, o.DeliveryAddress, items,
		o.Subtotal, o.Discount, o.CouponCode, o.Total, o.CancellationReason, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`

	o, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order by id: %w", err)
	}
	return o, nil
}

func (r *OrderRepository) List(ctx context.Context, f ListFilter) ([]*models.Order, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	var filters []string
	var args []interface{}
	idx := 1

	query := `SELECT ` + orderColumns + ` FROM orders`
	if f.Status != "" {
		filters = append(filters, fmt.Sprintf("status=$%d", idx))
		args = append(args, f.Status)
		idx++
	}
	if len(filters) > 0 {
		query += " WHERE " + strings.Join(filters, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var res []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return res, nil
}

// UpdateTx locks the row, hands a copy to mutate and writes back whatever
// mutate left in it. An error from mutate rolls the transaction back.
func (r *OrderRepository) UpdateTx(ctx context.Context, id string, mutate func(o *models.Order) error) (*models.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	o, err := scanOrder(tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select for update: %w", err)
	}

	if err := mutate(o); err != nil {
		return nil, err
	}

	history, items, err := encodeJSONColumns(o)
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	query := `UPDATE orders SET
			status=$1, status_history=$2, payment_status=$3, tracking_number=$4,
			customer_name=$5, customer_email=$6, customer_phone=$7, delivery_address=$8, items=$9,
			subtotal=$10, discount=$11, coupon_code=$12, total=$13, cancellation_reason=$14, updated_at=$15
		WHERE id=$16`
	_, err = tx.ExecContext(ctx, query,
		o.Status, history, o.PaymentStatus, o.TrackingNumber,
		o.CustomerName, o.CustomerEmail, o.CustomerPhone, o.DeliveryAddress, items,
		o.Subtotal, o.Discount, o.CouponCode, o.Total, o.CancellationReason, o.UpdatedAt,
		o.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return o, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	o := &models.Order{}
	var history, items []byte
	err := row.Scan(
		&o.ID, &o.Status, &history, &o.PaymentStatus, &o.TrackingNumber,
		&o.CustomerName, &o.CustomerEmail, &o.CustomerPhone, &o.DeliveryAddress, &items,
		&o.Subtotal, &o.Discount, &o.CouponCode, &o.Total, &o.CancellationReason, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &o.StatusHistory); err != nil {
			return nil, fmt.Errorf("decode status_history: %w", err)
		}
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return nil, fmt.Errorf("decode items: %w", err)
		}
	}
	return o, nil
}

func encodeJSONColumns(o *models.Order) (history, items []byte, err error) {
	h := o.StatusHistory
	if h == nil {
		h = []models.StatusHistoryEntry{}
	}
	if history, err = json.Marshal(h); err != nil {
		return nil, nil, fmt.Errorf("encode status_history: %w", err)
	}
	it := o.Items
	if it == nil {
		it = []models.LineItem{}
	}
	if items, err = json.Marshal(it); err != nil {
		return nil, nil, fmt.Errorf("encode items: %w", err)
	}
	return history, items, nil
}
