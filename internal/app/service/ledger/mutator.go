package ledger

import (
	"context"
	"fmt"
	"time"

	"backoffice/internal/app/apperr"
	"backoffice/internal/app/model"
	"backoffice/internal/app/storage"
	"github.com/google/uuid"
)

// Mutator is the only writer of user balances. Every check it makes runs inside the storage unit
// that performs the write, so concurrent changes to one user are serialized by the store.
type Mutator struct {
	ledger storage.Ledger
}

func NewMutator(l storage.Ledger) *Mutator {
	return &Mutator{ledger: l}
}

func (m *Mutator) LoggerComponent() string {
	return "Ledger.Mutator"
}

// ApplyBalanceChange resolves a pending transaction of c.UserID into c.NewStatus and moves the
// balance by c.Delta. Either both writes happen or neither does.
func (m *Mutator) ApplyBalanceChange(ctx context.Context, c model.BalanceChange, now time.Time) (*model.BalanceChangeResult, error) {
	if !c.NewStatus.IsTerminal() {
		return nil, apperr.Invalid("status", fmt.Sprintf("%q is not a terminal status", c.NewStatus))
	}

	res := &model.BalanceChangeResult{}

	err := m.ledger.WithinTx(ctx, func(ctx context.Context, tx storage.LedgerTx) error {
		t, err := tx.LockTransaction(ctx, c.TransactionID)
		if err != nil {
			return err
		}
		if t.UserID != c.UserID {
			return apperr.ErrNotFound
		}
		if t.Status != model.TransactionStatusPending {
			return fmt.Errorf("transaction is %s: %w", t.Status, apperr.ErrInvalidState)
		}

		balance, err := tx.LockUserBalance(ctx, c.UserID)
		if err != nil {
			return err
		}
		balance = balance.Add(c.Delta)
		if balance.IsNegative() {
			return apperr.ErrInsufficientFunds
		}
		if !c.Delta.IsZero() {
			if err := tx.SetUserBalance(ctx, c.UserID, balance); err != nil {
				return err
			}
		}

		if err := tx.UpdateTransactionStatus(ctx, t.ID, c.NewStatus, c.RejectionReason, now); err != nil {
			return err
		}

		t.Status = c.NewStatus
		t.RejectionReason = c.RejectionReason
		t.UpdatedAt = now
		res.Balance = balance
		res.Transaction = t

		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// SettlePayment debits the order total from its owner and records a completed payment in one unit.
// The order row is locked first, so a second payment for the same order sees it as paid.
func (m *Mutator) SettlePayment(ctx context.Context, userID, orderID uuid.UUID, now time.Time) (*model.BalanceChangeResult, error) {
	res := &model.BalanceChangeResult{}

	err := m.ledger.WithinTx(ctx, func(ctx context.Context, tx storage.LedgerTx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return apperr.ErrNotFound
		}
		if o.IsPaid() {
			return apperr.ErrAlreadyPaid
		}

		balance, err := tx.LockUserBalance(ctx, userID)
		if err != nil {
			return err
		}
		balance = balance.Sub(o.Total)
		if balance.IsNegative() {
			return apperr.ErrInsufficientFunds
		}

		t := paymentTransaction(o, model.TransactionStatusCompleted, now)
		if err := tx.InsertTransaction(ctx, t); err != nil {
			return err
		}
		if err := tx.SetUserBalance(ctx, userID, balance); err != nil {
			return err
		}
		if err := tx.MarkOrderPaid(ctx, o.ID, t.ID, now); err != nil {
			return err
		}

		res.Balance = balance
		res.Transaction = t

		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

func paymentTransaction(o *model.Order, status model.TransactionStatus, now time.Time) *model.Transaction {
	orderID := o.ID
	return &model.Transaction{
		ID:          uuid.New(),
		UserID:      o.UserID,
		Type:        model.TransactionTypePayment,
		Amount:      o.Total.Neg(),
		Status:      status,
		Description: "Payment for order " + o.Number,
		OrderID:     &orderID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
