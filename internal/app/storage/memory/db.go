// Package memory keeps the whole ledger in process memory. It backs the service when no database
// is configured and is the reference backend for tests.
package memory

import (
	"sync"

	"backoffice/internal/app/model"
	"github.com/google/uuid"
)

// DB is shared by the repositories of this package. Readers take the read lock, ledger units hold
// the write lock for their whole duration.
type DB struct {
	mu sync.RWMutex

	users        map[uuid.UUID]model.User
	userNames    map[string]uuid.UUID
	orders       map[uuid.UUID]model.Order
	orderNumbers map[string]uuid.UUID
	transactions map[uuid.UUID]model.Transaction
	// order id -> completed payment id
	payments map[uuid.UUID]uuid.UUID
}

func NewDB() *DB {
	return &DB{
		users:        make(map[uuid.UUID]model.User),
		userNames:    make(map[string]uuid.UUID),
		orders:       make(map[uuid.UUID]model.Order),
		orderNumbers: make(map[string]uuid.UUID),
		transactions: make(map[uuid.UUID]model.Transaction),
		payments:     make(map[uuid.UUID]uuid.UUID),
	}
}

func copyTransaction(m model.Transaction) *model.Transaction {
	if m.TransferDate != nil {
		d := *m.TransferDate
		m.TransferDate = &d
	}
	if m.OrderID != nil {
		id := *m.OrderID
		m.OrderID = &id
	}
	return &m
}

func copyOrder(m model.Order) *model.Order {
	if m.PaymentID != nil {
		id := *m.PaymentID
		m.PaymentID = &id
	}
	if m.PaidAt != nil {
		t := *m.PaidAt
		m.PaidAt = &t
	}
	return &m
}
