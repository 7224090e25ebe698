//go:generate mockgen -source=./interface.go -destination=./mock/storage.go -package=storagemock
package storage

import (
	"context"
	"time"

	"backoffice/internal/app/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type UserRepository interface {
	// Create a new model.User, the password is hashed by the repository
	Create(ctx context.Context, m *model.User) (*model.User, error)
	// ReadByNameAndPassword instance of model.User
	ReadByNameAndPassword(ctx context.Context, name string, password string) (*model.User, error)
	// Read instance of model.User
	Read(ctx context.Context, id uuid.UUID) (*model.User, error)
}

type OrderRepository interface {
	// Create a new model.Order
	Create(ctx context.Context, m *model.Order) (*model.Order, error)
	// Read instance of model.Order
	Read(ctx context.Context, id uuid.UUID) (*model.Order, error)
	// AllByUserID returns all orders of user
	AllByUserID(ctx context.Context, userID uuid.UUID) ([]*model.Order, error)
}

type TransactionRepository interface {
	// Read instance of model.Transaction
	Read(ctx context.Context, id uuid.UUID) (*model.Transaction, error)
	// Create a new model.Transaction outside of any balance change
	Create(ctx context.Context, m *model.Transaction) (*model.Transaction, error)
	// UpdateFields changes transaction metadata, never status or amount
	UpdateFields(ctx context.Context, id uuid.UUID, u model.TransactionUpdate) (*model.Transaction, error)
	// Find returns one page of transactions matching the filter and the total match count
	Find(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int, error)
}

// Ledger runs read-check-write units over users, orders and transactions.
// Writes made through LedgerTx are committed only if fn returns nil.
type Ledger interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error
}

type LedgerTx interface {
	// LockUserBalance returns the current balance and holds the user until the unit ends
	LockUserBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	// SetUserBalance writes the balance of a locked user
	SetUserBalance(ctx context.Context, userID uuid.UUID, balance decimal.Decimal) error
	// LockTransaction returns the transaction and holds it until the unit ends
	LockTransaction(ctx context.Context, id uuid.UUID) (*model.Transaction, error)
	// InsertTransaction stores a new transaction
	InsertTransaction(ctx context.Context, m *model.Transaction) error
	// UpdateTransactionStatus writes status, rejection reason and updated_at of a locked transaction
	UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status model.TransactionStatus, reason string, at time.Time) error
	// LockOrder returns the order and holds it until the unit ends
	LockOrder(ctx context.Context, id uuid.UUID) (*model.Order, error)
	// MarkOrderPaid links a locked order to its payment
	MarkOrderPaid(ctx context.Context, id uuid.UUID, paymentID uuid.UUID, at time.Time) error
}
