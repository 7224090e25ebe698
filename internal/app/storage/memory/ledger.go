package memory

import (
	"context"
	"time"

	"backoffice/internal/app/apperr"
	"backoffice/internal/app/model"
	"backoffice/internal/app/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// storage.Ledger interface implementation
var _ storage.Ledger = (*Ledger)(nil)

type Ledger struct {
	db *DB
}

func NewLedger(db *DB) *Ledger {
	return &Ledger{db: db}
}

// WithinTx holds the write lock for the whole unit and applies staged writes only when fn succeeds.
func (l *Ledger) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return apperr.Storage("tx begin", err)
	}

	l.db.mu.Lock()
	defer l.db.mu.Unlock()

	tx := &ledgerTx{
		db:           l.db,
		balances:     make(map[uuid.UUID]decimal.Decimal),
		transactions: make(map[uuid.UUID]model.Transaction),
		orders:       make(map[uuid.UUID]model.Order),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return apperr.Storage("tx commit", err)
	}
	tx.commit()

	return nil
}

// storage.LedgerTx interface implementation
var _ storage.LedgerTx = (*ledgerTx)(nil)

type ledgerTx struct {
	db *DB

	balances     map[uuid.UUID]decimal.Decimal
	transactions map[uuid.UUID]model.Transaction
	orders       map[uuid.UUID]model.Order
}

func (tx *ledgerTx) LockUserBalance(_ context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	if b, ok := tx.balances[userID]; ok {
		return b, nil
	}
	u, ok := tx.db.users[userID]
	if !ok {
		return decimal.Zero, apperr.ErrNotFound
	}
	tx.balances[userID] = u.Balance
	return u.Balance, nil
}

func (tx *ledgerTx) SetUserBalance(_ context.Context, userID uuid.UUID, balance decimal.Decimal) error {
	if _, ok := tx.balances[userID]; !ok {
		return apperr.Storage("set balance", apperr.ErrInvalidState)
	}
	if balance.IsNegative() {
		return apperr.ErrInsufficientFunds
	}
	tx.balances[userID] = balance
	return nil
}

func (tx *ledgerTx) LockTransaction(_ context.Context, id uuid.UUID) (*model.Transaction, error) {
	if t, ok := tx.transactions[id]; ok {
		return copyTransaction(t), nil
	}
	t, ok := tx.db.transactions[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	tx.transactions[id] = t
	return copyTransaction(t), nil
}

func (tx *ledgerTx) InsertTransaction(_ context.Context, m *model.Transaction) error {
	if _, ok := tx.db.users[m.UserID]; !ok {
		return apperr.ErrNotFound
	}
	if _, ok := tx.db.transactions[m.ID]; ok {
		return apperr.ErrConflict
	}
	if _, ok := tx.transactions[m.ID]; ok {
		return apperr.ErrConflict
	}
	if m.Type == model.TransactionTypePayment && m.Status == model.TransactionStatusCompleted && m.OrderID != nil {
		if _, ok := tx.db.payments[*m.OrderID]; ok {
			return apperr.ErrAlreadyPaid
		}
	}
	tx.transactions[m.ID] = *copyTransaction(*m)
	return nil
}

func (tx *ledgerTx) UpdateTransactionStatus(_ context.Context, id uuid.UUID, status model.TransactionStatus, reason string, at time.Time) error {
	t, ok := tx.transactions[id]
	if !ok {
		return apperr.Storage("update status", apperr.ErrInvalidState)
	}
	t.Status = status
	t.RejectionReason = reason
	t.UpdatedAt = at
	tx.transactions[id] = t
	return nil
}

func (tx *ledgerTx) LockOrder(_ context.Context, id uuid.UUID) (*model.Order, error) {
	if o, ok := tx.orders[id]; ok {
		return copyOrder(o), nil
	}
	o, ok := tx.db.orders[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	tx.orders[id] = o
	return copyOrder(o), nil
}

func (tx *ledgerTx) MarkOrderPaid(_ context.Context, id uuid.UUID, paymentID uuid.UUID, at time.Time) error {
	o, ok := tx.orders[id]
	if !ok {
		return apperr.Storage("mark paid", apperr.ErrInvalidState)
	}
	if o.Status == model.OrderStatusPaid {
		return apperr.ErrAlreadyPaid
	}
	o.Status = model.OrderStatusPaid
	o.PaymentID = &paymentID
	o.PaidAt = &at
	tx.orders[id] = o
	return nil
}

// commit runs under the DB write lock
func (tx *ledgerTx) commit() {
	for id, b := range tx.balances {
		u := tx.db.users[id]
		u.Balance = b
		tx.db.users[id] = u
	}
	for id, t := range tx.transactions {
		tx.db.transactions[id] = t
		if t.Type == model.TransactionTypePayment && t.Status == model.TransactionStatusCompleted && t.OrderID != nil {
			tx.db.payments[*t.OrderID] = id
		}
	}
	for id, o := range tx.orders {
		tx.db.orders[id] = o
	}
}
