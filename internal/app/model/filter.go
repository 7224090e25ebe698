package model

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TransactionFilter selects a page of transactions. Zero values mean "no constraint",
// except Page and Limit which are validated by the query layer.
type TransactionFilter struct {
	UserID    *uuid.UUID
	Type      TransactionType
	Status    TransactionStatus
	StartDate *time.Time
	EndDate   *time.Time
	Search    string
	Page      int
	Limit     int
}

// Offset of the first record of the requested page. Pages too far out to address saturate at math.MaxInt.
func (f TransactionFilter) Offset() int {
	if f.Page < 1 || f.Limit < 1 {
		return 0
	}
	if f.Page-1 > math.MaxInt/f.Limit {
		return math.MaxInt
	}
	return (f.Page - 1) * f.Limit
}

// Match reports whether m satisfies every constraint of f. Dates are inclusive bounds on CreatedAt;
// Search is a case-insensitive substring match against id, user id, type, description, reference and bank name.
func (f TransactionFilter) Match(m *Transaction) bool {
	if f.UserID != nil && m.UserID != *f.UserID {
		return false
	}
	if f.Type != "" && m.Type != f.Type {
		return false
	}
	if f.Status != "" && m.Status != f.Status {
		return false
	}
	if f.StartDate != nil && m.CreatedAt.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && m.CreatedAt.After(*f.EndDate) {
		return false
	}
	if f.Search == "" {
		return true
	}

	needle := strings.ToLower(f.Search)
	for _, field := range []string{
		m.ID.String(),
		m.UserID.String(),
		string(m.Type),
		m.Description,
		m.Reference,
		m.BankName,
	} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// Less orders transactions newest first, breaking ties by id so page windows are stable.
func Less(a, b *Transaction) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.String() > b.ID.String()
}

type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

type TransactionPage struct {
	Transactions []*Transaction `json:"transactions"`
	Pagination   Pagination     `json:"pagination"`
}

// NewTransactionPage assembles a page and derives the page count from total.
func NewTransactionPage(items []*Transaction, total int, f TransactionFilter) *TransactionPage {
	if items == nil {
		items = make([]*Transaction, 0)
	}
	pages := 0
	if f.Limit > 0 {
		pages = (total + f.Limit - 1) / f.Limit
	}
	return &TransactionPage{
		Transactions: items,
		Pagination: Pagination{
			Total:      total,
			Page:       f.Page,
			Limit:      f.Limit,
			TotalPages: pages,
		},
	}
}
