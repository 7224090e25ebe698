package postgres

import (
	"context"
	"database/sql"
	"time"

	"backoffice/internal/app/logger"
	"backoffice/internal/app/model"
	"backoffice/internal/app/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// storage.Ledger interface implementation
var _ storage.Ledger = (*Ledger)(nil)

type Ledger struct {
	db *sql.DB
}

func (l *Ledger) LoggerComponent() string {
	return "Ledger"
}

func NewLedger(db *sql.DB) (*Ledger, error) {
	s := &Ledger{
		db: db,
	}
	return s, nil
}

// WithinTx runs fn in a READ COMMITTED transaction. Rows are serialized with SELECT ... FOR UPDATE,
// so a waiting writer re-reads the committed balance once the lock is released.
func (l *Ledger) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.LedgerTx) error) error {
	log := logger.Get(ctx, l)

	tx, err := l.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return mapError("tx begin", err)
	}

	if err := fn(ctx, &ledgerTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Warn().Err(rbErr).Msg("rollback failed")
		}
		return err
	}

	return mapError("tx commit", tx.Commit())
}

// storage.LedgerTx interface implementation
var _ storage.LedgerTx = (*ledgerTx)(nil)

type ledgerTx struct {
	tx *sql.Tx
}

func (t *ledgerTx) LockUserBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	const SQL = `SELECT balance FROM users WHERE id=$1 FOR UPDATE`

	var balance decimal.Decimal
	if err := t.tx.QueryRowContext(ctx, SQL, userID).Scan(&balance); err != nil {
		return decimal.Zero, mapError("lock user", err)
	}
	return balance, nil
}

func (t *ledgerTx) SetUserBalance(ctx context.Context, userID uuid.UUID, balance decimal.Decimal) error {
	const SQL = `UPDATE users SET balance=$1 WHERE id=$2`

	_, err := t.tx.ExecContext(ctx, SQL, balance, userID)
	return mapError("update balance", err)
}

func (t *ledgerTx) LockTransaction(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	const SQL = `SELECT ` + transactionColumns + ` FROM transactions WHERE id=$1 FOR UPDATE`

	m, err := scanTransaction(t.tx.QueryRowContext(ctx, SQL, id))
	if err != nil {
		return nil, mapError("lock transaction", err)
	}
	return m, nil
}

func (t *ledgerTx) InsertTransaction(ctx context.Context, m *model.Transaction) error {
	return insertTransaction(ctx, t.tx, m)
}

func (t *ledgerTx) UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status model.TransactionStatus, reason string, at time.Time) error {
	const SQL = `UPDATE transactions SET status=$1, rejection_reason=$2, updated_at=$3 WHERE id=$4`

	_, err := t.tx.ExecContext(ctx, SQL, status, reason, at, id)
	return mapError("update transaction status", err)
}

func (t *ledgerTx) LockOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	const SQL = `SELECT ` + orderColumns + ` FROM orders WHERE id=$1 FOR UPDATE`

	m, err := scanOrder(t.tx.QueryRowContext(ctx, SQL, id))
	if err != nil {
		return nil, mapError("lock order", err)
	}
	return m, nil
}

func (t *ledgerTx) MarkOrderPaid(ctx context.Context, id uuid.UUID, paymentID uuid.UUID, at time.Time) error {
	const SQL = `UPDATE orders SET status=$1, payment_id=$2, paid_at=$3 WHERE id=$4`

	_, err := t.tx.ExecContext(ctx, SQL, model.OrderStatusPaid, paymentID, at, id)
	return mapError("mark order paid", err)
}
