package memory

import (
	"context"
	"sort"
	"time"

	"backoffice/internal/app/apperr"
	"backoffice/internal/app/model"
	"backoffice/internal/app/storage"
	"github.com/ferdypruis/go-luhn"
	"github.com/google/uuid"
)

// storage.OrderRepository interface implementation
var _ storage.OrderRepository = (*OrderRepository)(nil)

type OrderRepository struct {
	db *DB
}

func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create implementation of interface storage.OrderRepository
func (r *OrderRepository) Create(_ context.Context, m *model.Order) (*model.Order, error) {
	if m.Number == "" || !luhn.Valid(m.Number) {
		return nil, apperr.ErrInvalidInput
	}
	if !m.Total.IsPositive() {
		return nil, apperr.Invalid("total", "must be positive")
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if id, ok := r.db.orderNumbers[m.Number]; ok {
		if r.db.orders[id].UserID == m.UserID {
			return nil, apperr.ErrSoftConflict
		}
		return nil, apperr.ErrConflict
	}
	if _, ok := r.db.users[m.UserID]; !ok {
		return nil, apperr.ErrNotFound
	}

	o := *m
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	o.Status = model.OrderStatusNew
	o.PaymentID = nil
	o.PaidAt = nil

	r.db.orders[o.ID] = o
	r.db.orderNumbers[o.Number] = o.ID

	return copyOrder(o), nil
}

// Read implementation of interface storage.OrderRepository
func (r *OrderRepository) Read(_ context.Context, id uuid.UUID) (*model.Order, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	o, ok := r.db.orders[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return copyOrder(o), nil
}

// AllByUserID implementation of interface storage.OrderRepository
func (r *OrderRepository) AllByUserID(_ context.Context, userID uuid.UUID) ([]*model.Order, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	res := make([]*model.Order, 0)
	for _, o := range r.db.orders {
		if o.UserID == userID {
			res = append(res, copyOrder(o))
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})

	return res, nil
}
