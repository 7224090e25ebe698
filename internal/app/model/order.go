package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	OrderStatusNew  = "NEW"
	OrderStatusPaid = "PAID"
)

type Order struct {
	ID        uuid.UUID       `json:"id"`
	Number    string          `json:"number"`
	UserID    uuid.UUID       `json:"userId"`
	Total     decimal.Decimal `json:"total"`
	Status    string          `json:"status"`
	PaymentID *uuid.UUID      `json:"paymentId,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	PaidAt    *time.Time      `json:"paidAt,omitempty"`
}

func (o *Order) IsPaid() bool {
	return o.Status == OrderStatusPaid
}
