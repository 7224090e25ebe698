package ledger

import (
	"context"
	"fmt"
	"time"

	"backoffice/internal/app/apperr"
	"backoffice/internal/app/model"
)

// Query returns one page of transactions matching f, newest first
func (s *Service) Query(ctx context.Context, f model.TransactionFilter) (*model.TransactionPage, error) {
	if err := s.validateFilter(f); err != nil {
		return nil, err
	}

	key := cacheKey(f)
	page, gen, ok := s.cache.Get(ctx, key)
	if ok {
		s.metrics.CacheLookup(true)
		return page, nil
	}
	s.metrics.CacheLookup(false)

	items, total, err := s.transactions.Find(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("find transactions: %w", err)
	}

	page = model.NewTransactionPage(items, total, f)
	s.cache.Set(ctx, gen, key, page)

	return page, nil
}

func (s *Service) validateFilter(f model.TransactionFilter) error {
	if f.Page < 1 {
		return apperr.Invalid("page", "must be a positive integer")
	}
	if f.Limit < 1 || f.Limit > s.maxLimit {
		return apperr.Invalid("limit", fmt.Sprintf("must be between 1 and %d", s.maxLimit))
	}
	if f.Type != "" && !f.Type.Valid() {
		return apperr.Invalid("type", fmt.Sprintf("unknown type %q", f.Type))
	}
	if f.Status != "" && !f.Status.Valid() {
		return apperr.Invalid("status", fmt.Sprintf("unknown status %q", f.Status))
	}
	if f.StartDate != nil && f.EndDate != nil && f.StartDate.After(*f.EndDate) {
		return apperr.Invalid("startDate", "must not be after endDate")
	}
	return nil
}

func cacheKey(f model.TransactionFilter) string {
	user := "*"
	if f.UserID != nil {
		user = f.UserID.String()
	}
	return fmt.Sprintf("u=%s|t=%s|s=%s|from=%s|to=%s|q=%q|p=%d|l=%d",
		user, f.Type, f.Status, timeKey(f.StartDate), timeKey(f.EndDate), f.Search, f.Page, f.Limit)
}

func timeKey(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
