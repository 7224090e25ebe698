package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"backoffice/internal/app/apperr"
	"backoffice/internal/app/model"
	"backoffice/internal/app/storage"
	storagemock "backoffice/internal/app/storage/mock"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type decimalMatcher struct {
	want decimal.Decimal
}

// decimalEq matches a decimal by value regardless of its scale
func decimalEq(s string) gomock.Matcher {
	return decimalMatcher{want: decimal.RequireFromString(s)}
}

func (m decimalMatcher) Matches(x interface{}) bool {
	d, ok := x.(decimal.Decimal)
	return ok && d.Equal(m.want)
}

func (m decimalMatcher) String() string {
	return "is equal to " + m.want.String()
}

// runUnit makes the mocked ledger run fn against tx and return its error unchanged
func runUnit(l *storagemock.MockLedger, tx storage.LedgerTx) {
	l.EXPECT().
		WithinTx(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(context.Context, storage.LedgerTx) error) error {
			return fn(ctx, tx)
		})
}

func TestMutator_ApplyBalanceChange(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	userID := uuid.New()
	txID := uuid.New()

	pending := func() *model.Transaction {
		return &model.Transaction{
			ID:     txID,
			UserID: userID,
			Type:   model.TransactionTypeDeposit,
			Amount: decimal.NewFromInt(50),
			Status: model.TransactionStatusPending,
		}
	}

	tests := []struct {
		name    string
		change  model.BalanceChange
		setup   func(tx *storagemock.MockLedgerTxMockRecorder)
		wantErr error
		want    decimal.Decimal
	}{
		{
			name:   "credit",
			change: model.BalanceChange{UserID: userID, TransactionID: txID, Delta: decimal.NewFromInt(50), NewStatus: model.TransactionStatusApproved},
			setup: func(tx *storagemock.MockLedgerTxMockRecorder) {
				gomock.InOrder(
					tx.LockTransaction(gomock.Any(), txID).Return(pending(), nil),
					tx.LockUserBalance(gomock.Any(), userID).Return(decimal.NewFromInt(100), nil),
					tx.SetUserBalance(gomock.Any(), userID, decimalEq("150")).Return(nil),
					tx.UpdateTransactionStatus(gomock.Any(), txID, model.TransactionStatusApproved, "", now).Return(nil),
				)
			},
			want: decimal.NewFromInt(150),
		},
		{
			name:   "zero delta does not write balance",
			change: model.BalanceChange{UserID: userID, TransactionID: txID, Delta: decimal.Zero, NewStatus: model.TransactionStatusRejected, RejectionReason: "blurry"},
			setup: func(tx *storagemock.MockLedgerTxMockRecorder) {
				tx.LockTransaction(gomock.Any(), txID).Return(pending(), nil)
				tx.LockUserBalance(gomock.Any(), userID).Return(decimal.NewFromInt(7), nil)
				tx.UpdateTransactionStatus(gomock.Any(), txID, model.TransactionStatusRejected, "blurry", now).Return(nil)
			},
			want: decimal.NewFromInt(7),
		},
		{
			name:   "insufficient balance writes nothing",
			change: model.BalanceChange{UserID: userID, TransactionID: txID, Delta: decimal.NewFromInt(-20), NewStatus: model.TransactionStatusCompleted},
			setup: func(tx *storagemock.MockLedgerTxMockRecorder) {
				tx.LockTransaction(gomock.Any(), txID).Return(pending(), nil)
				tx.LockUserBalance(gomock.Any(), userID).Return(decimal.NewFromInt(10), nil)
			},
			wantErr: apperr.ErrInsufficientFunds,
		},
		{
			name:   "resolved transaction",
			change: model.BalanceChange{UserID: userID, TransactionID: txID, Delta: decimal.NewFromInt(50), NewStatus: model.TransactionStatusApproved},
			setup: func(tx *storagemock.MockLedgerTxMockRecorder) {
				m := pending()
				m.Status = model.TransactionStatusApproved
				tx.LockTransaction(gomock.Any(), txID).Return(m, nil)
			},
			wantErr: apperr.ErrInvalidState,
		},
		{
			name:   "other user",
			change: model.BalanceChange{UserID: uuid.New(), TransactionID: txID, Delta: decimal.NewFromInt(50), NewStatus: model.TransactionStatusApproved},
			setup: func(tx *storagemock.MockLedgerTxMockRecorder) {
				tx.LockTransaction(gomock.Any(), txID).Return(pending(), nil)
			},
			wantErr: apperr.ErrNotFound,
		},
		{
			name:   "missing user",
			change: model.BalanceChange{UserID: userID, TransactionID: txID, Delta: decimal.NewFromInt(50), NewStatus: model.TransactionStatusApproved},
			setup: func(tx *storagemock.MockLedgerTxMockRecorder) {
				tx.LockTransaction(gomock.Any(), txID).Return(pending(), nil)
				tx.LockUserBalance(gomock.Any(), userID).Return(decimal.Zero, apperr.ErrNotFound)
			},
			wantErr: apperr.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			l := storagemock.NewMockLedger(ctrl)
			tx := storagemock.NewMockLedgerTx(ctrl)
			runUnit(l, tx)
			tt.setup(tx.EXPECT())

			res, err := NewMutator(l).ApplyBalanceChange(context.Background(), tt.change, now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ApplyBalanceChange() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyBalanceChange() error = %v", err)
			}
			if !res.Balance.Equal(tt.want) {
				t.Errorf("balance = %s, want %s", res.Balance, tt.want)
			}
			if res.Transaction.Status != tt.change.NewStatus || !res.Transaction.UpdatedAt.Equal(now) {
				t.Errorf("transaction = %+v", res.Transaction)
			}
		})
	}
}

func TestMutator_ApplyBalanceChangeRequiresTerminalStatus(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	_, err := NewMutator(storagemock.NewMockLedger(ctrl)).ApplyBalanceChange(context.Background(), model.BalanceChange{
		NewStatus: model.TransactionStatusPending,
	}, time.Now())
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("error = %v, want invalid input", err)
	}
}

func TestMutator_SettlePayment(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	userID := uuid.New()
	orderID := uuid.New()

	order := func() *model.Order {
		return &model.Order{
			ID:     orderID,
			Number: "79927398713",
			UserID: userID,
			Total:  decimal.RequireFromString("150.00"),
			Status: model.OrderStatusNew,
		}
	}

	t.Run("debits and links the order", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		l := storagemock.NewMockLedger(ctrl)
		tx := storagemock.NewMockLedgerTx(ctrl)
		runUnit(l, tx)

		var inserted *model.Transaction
		gomock.InOrder(
			tx.EXPECT().LockOrder(gomock.Any(), orderID).Return(order(), nil),
			tx.EXPECT().LockUserBalance(gomock.Any(), userID).Return(decimal.NewFromInt(150), nil),
			tx.EXPECT().InsertTransaction(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m *model.Transaction) error {
				inserted = m
				return nil
			}),
			tx.EXPECT().SetUserBalance(gomock.Any(), userID, decimalEq("0")).Return(nil),
			tx.EXPECT().MarkOrderPaid(gomock.Any(), orderID, gomock.Any(), now).Return(nil),
		)

		res, err := NewMutator(l).SettlePayment(context.Background(), userID, orderID, now)
		if err != nil {
			t.Fatalf("SettlePayment() error = %v", err)
		}
		if !res.Balance.IsZero() {
			t.Errorf("balance = %s, want 0", res.Balance)
		}
		if inserted == nil || inserted.Type != model.TransactionTypePayment || inserted.Status != model.TransactionStatusCompleted {
			t.Fatalf("inserted = %+v", inserted)
		}
		if !inserted.Amount.Equal(decimal.NewFromInt(-150)) {
			t.Errorf("amount = %s, want -150", inserted.Amount)
		}
		if inserted.OrderID == nil || *inserted.OrderID != orderID {
			t.Errorf("order id = %v", inserted.OrderID)
		}
	})

	t.Run("insufficient balance writes nothing", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		l := storagemock.NewMockLedger(ctrl)
		tx := storagemock.NewMockLedgerTx(ctrl)
		runUnit(l, tx)
		tx.EXPECT().LockOrder(gomock.Any(), orderID).Return(order(), nil)
		tx.EXPECT().LockUserBalance(gomock.Any(), userID).Return(decimal.RequireFromString("149.99"), nil)

		_, err := NewMutator(l).SettlePayment(context.Background(), userID, orderID, now)
		if !errors.Is(err, apperr.ErrInsufficientFunds) {
			t.Fatalf("error = %v, want insufficient funds", err)
		}
	})

	t.Run("paid order", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		l := storagemock.NewMockLedger(ctrl)
		tx := storagemock.NewMockLedgerTx(ctrl)
		runUnit(l, tx)
		o := order()
		o.Status = model.OrderStatusPaid
		tx.EXPECT().LockOrder(gomock.Any(), orderID).Return(o, nil)

		_, err := NewMutator(l).SettlePayment(context.Background(), userID, orderID, now)
		if !errors.Is(err, apperr.ErrAlreadyPaid) {
			t.Fatalf("error = %v, want already paid", err)
		}
	})

	t.Run("order of another user", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		l := storagemock.NewMockLedger(ctrl)
		tx := storagemock.NewMockLedgerTx(ctrl)
		runUnit(l, tx)
		tx.EXPECT().LockOrder(gomock.Any(), orderID).Return(order(), nil)

		_, err := NewMutator(l).SettlePayment(context.Background(), uuid.New(), orderID, now)
		if !errors.Is(err, apperr.ErrNotFound) {
			t.Fatalf("error = %v, want not found", err)
		}
	})
}
