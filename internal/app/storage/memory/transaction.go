package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"backoffice/internal/app/apperr"
	"backoffice/internal/app/model"
	"backoffice/internal/app/storage"
	"github.com/google/uuid"
)

// storage.TransactionRepository interface implementation
var _ storage.TransactionRepository = (*TransactionRepository)(nil)

type TransactionRepository struct {
	db *DB
}

func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Read implementation of interface storage.TransactionRepository
func (r *TransactionRepository) Read(_ context.Context, id uuid.UUID) (*model.Transaction, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	m, ok := r.db.transactions[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return copyTransaction(m), nil
}

// Create implementation of interface storage.TransactionRepository
func (r *TransactionRepository) Create(_ context.Context, m *model.Transaction) (*model.Transaction, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.users[m.UserID]; !ok {
		return nil, apperr.ErrNotFound
	}

	t := *copyTransaction(*m)
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if _, ok := r.db.transactions[t.ID]; ok {
		return nil, apperr.ErrConflict
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = t.CreatedAt

	r.db.transactions[t.ID] = t

	return copyTransaction(t), nil
}

// UpdateFields implementation of interface storage.TransactionRepository
func (r *TransactionRepository) UpdateFields(_ context.Context, id uuid.UUID, u model.TransactionUpdate) (*model.Transaction, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	t, ok := r.db.transactions[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if u.IfStatus != "" && t.Status != u.IfStatus {
		return nil, fmt.Errorf("transaction is %s: %w", t.Status, apperr.ErrInvalidState)
	}
	if u.ReceiptURL != nil {
		t.ReceiptURL = *u.ReceiptURL
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	t.UpdatedAt = u.UpdatedAt
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now().UTC()
	}

	r.db.transactions[id] = t

	return copyTransaction(t), nil
}

// Find implementation of interface storage.TransactionRepository
func (r *TransactionRepository) Find(_ context.Context, f model.TransactionFilter) ([]*model.Transaction, int, error) {
	r.db.mu.RLock()
	matched := make([]*model.Transaction, 0)
	for _, t := range r.db.transactions {
		m := t
		if f.Match(&m) {
			matched = append(matched, copyTransaction(m))
		}
	}
	r.db.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return model.Less(matched[i], matched[j])
	})

	total := len(matched)
	from := f.Offset()
	if from < 0 || from > total {
		from = total
	}
	to := total
	if f.Limit > 0 && f.Limit < total-from {
		to = from + f.Limit
	}

	return matched[from:to], total, nil
}
