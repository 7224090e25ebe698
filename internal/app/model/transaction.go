package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeRefund     TransactionType = "refund"
	TransactionTypeAdjustment TransactionType = "adjustment"
	TransactionTypePayment    TransactionType = "payment"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeRefund,
		TransactionTypeAdjustment, TransactionTypePayment:
		return true
	}
	return false
}

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusApproved  TransactionStatus = "approved"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusRejected  TransactionStatus = "rejected"
	TransactionStatusFailed    TransactionStatus = "failed"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusApproved, TransactionStatusCompleted,
		TransactionStatusRejected, TransactionStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is permitted from s.
func (s TransactionStatus) IsTerminal() bool {
	return s.Valid() && s != TransactionStatusPending
}

type Transaction struct {
	ID              uuid.UUID         `json:"id"`
	UserID          uuid.UUID         `json:"userId"`
	Type            TransactionType   `json:"type"`
	Amount          decimal.Decimal   `json:"amount"`
	Status          TransactionStatus `json:"status"`
	BankName        string            `json:"bankName,omitempty"`
	TransferDate    *time.Time        `json:"transferDate,omitempty"`
	Reference       string            `json:"reference,omitempty"`
	ReceiptURL      string            `json:"receiptUrl,omitempty"`
	Description     string            `json:"description,omitempty"`
	RejectionReason string            `json:"rejectionReason,omitempty"`
	OrderID         *uuid.UUID        `json:"orderId,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// TransactionUpdate holds the metadata fields that may change outside of the balance mutator.
// Nil fields are left as they are. A non-empty IfStatus applies the update only while the record
// is in that status; otherwise the update fails with apperr.ErrInvalidState.
type TransactionUpdate struct {
	ReceiptURL  *string
	Description *string
	IfStatus    TransactionStatus
	UpdatedAt   time.Time
}

// BalanceChange is a request to resolve a pending transaction and move the owner's balance by Delta.
type BalanceChange struct {
	UserID          uuid.UUID
	TransactionID   uuid.UUID
	Delta           decimal.Decimal
	NewStatus       TransactionStatus
	RejectionReason string
}

type BalanceChangeResult struct {
	Balance     decimal.Decimal `json:"balance"`
	Transaction *Transaction    `json:"transaction"`
}
