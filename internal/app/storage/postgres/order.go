package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"backoffice/internal/app/apperr"
	"backoffice/internal/app/logger"
	"backoffice/internal/app/model"
	"backoffice/internal/app/storage"
	"github.com/ferdypruis/go-luhn"
	"github.com/google/uuid"
)

// storage.OrderRepository interface implementation
var _ storage.OrderRepository = (*OrderRepository)(nil)

const orderColumns = `id, number, user_id, total, status, payment_id, created_at, paid_at`

type OrderRepository struct {
	db *sql.DB
}

func (r *OrderRepository) LoggerComponent() string {
	return "OrderRepository"
}

func NewOrderRepository(db *sql.DB) (*OrderRepository, error) {
	s := &OrderRepository{
		db: db,
	}
	return s, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*model.Order, error) {
	m := &model.Order{}
	var (
		paymentID uuid.NullUUID
		paidAt    sql.NullTime
	)
	if err := row.Scan(&m.ID, &m.Number, &m.UserID, &m.Total, &m.Status, &paymentID, &m.CreatedAt, &paidAt); err != nil {
		return nil, err
	}
	if paymentID.Valid {
		m.PaymentID = &paymentID.UUID
	}
	if paidAt.Valid {
		m.PaidAt = &paidAt.Time
	}
	return m, nil
}

// Create implementation of interface storage.OrderRepository
func (r *OrderRepository) Create(ctx context.Context, m *model.Order) (*model.Order, error) {
	if m.Number == "" || !luhn.Valid(m.Number) {
		return nil, apperr.ErrInvalidInput
	}
	if !m.Total.IsPositive() {
		return nil, apperr.Invalid("total", "must be positive")
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.Status = model.OrderStatusNew

	const SQL = `
		INSERT INTO orders (id, number, user_id, total, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
`

	_, err := r.db.ExecContext(ctx, SQL, m.ID, m.Number, m.UserID, m.Total, m.Status, m.CreatedAt)
	if err != nil {
		err = mapError("insert order", err)
		if errors.Is(err, apperr.ErrConflict) {
			return nil, r.conflict(ctx, m)
		}
		return nil, err
	}

	return m, nil
}

// conflict tells a re-submitted order from an order number owned by somebody else
func (r *OrderRepository) conflict(ctx context.Context, m *model.Order) error {
	const SQL = `SELECT user_id FROM orders WHERE number=$1`

	var owner uuid.UUID
	if err := r.db.QueryRowContext(ctx, SQL, m.Number).Scan(&owner); err != nil {
		return mapError("select order owner", err)
	}
	if owner == m.UserID {
		return apperr.ErrSoftConflict
	}
	return apperr.ErrConflict
}

// Read implementation of interface storage.OrderRepository
func (r *OrderRepository) Read(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	const SQL = `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`

	m, err := scanOrder(r.db.QueryRowContext(ctx, SQL, id))
	if err != nil {
		return nil, mapError("select order", err)
	}

	return m, nil
}

// AllByUserID implementation of interface storage.OrderRepository
func (r *OrderRepository) AllByUserID(ctx context.Context, userID uuid.UUID) ([]*model.Order, error) {
	l := logger.Ctx(ctx).With().Str("method", "AllByUserID").Logger()

	const SQL = `SELECT ` + orderColumns + ` FROM orders WHERE user_id=$1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, SQL, userID)
	if err != nil {
		return nil, mapError("select orders", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	res := make([]*model.Order, 0)

	for rows.Next() {
		m, err := scanOrder(rows)
		if err != nil {
			l.Debug().Err(err).Send()
			return nil, mapError("scan order", err)
		}
		res = append(res, m)
	}

	return res, mapError("iterate orders", rows.Err())
}
