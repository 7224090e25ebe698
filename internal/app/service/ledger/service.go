// Package ledger implements the transaction lifecycle of the wallet: deposit requests, their
// review by an administrator, order payments from balance and transaction queries.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"backoffice/internal/app/apperr"
	"backoffice/internal/app/cache"
	"backoffice/internal/app/logger"
	"backoffice/internal/app/metrics"
	"backoffice/internal/app/model"
	"backoffice/internal/app/storage"
	"github.com/google/uuid"
	"github.com/rs/xid"
	"github.com/shopspring/decimal"
)

const (
	DefaultMaxLimit        = 100
	DefaultMaxReceiptBytes = 5 << 20
)

// ReceiptStore keeps uploaded receipt files and returns the URL they are served from
type ReceiptStore interface {
	Put(ctx context.Context, key string, contentType string, body io.Reader, size int64) (string, error)
}

// QueryCache holds transaction pages between ledger writes. Get reports the generation it looked in;
// Set stores under that generation so a page read before an Invalidate stays hidden after it.
type QueryCache interface {
	Get(ctx context.Context, key string) (*model.TransactionPage, int64, bool)
	Set(ctx context.Context, gen int64, key string, page *model.TransactionPage)
	Invalidate(ctx context.Context)
}

type DepositRequest struct {
	Amount       decimal.Decimal
	BankName     string
	TransferDate time.Time
	Reference    string
	Description  string
}

type Receipt struct {
	Body        io.Reader
	ContentType string
	Size        int64
}

type Service struct {
	users        storage.UserRepository
	orders       storage.OrderRepository
	transactions storage.TransactionRepository
	mutator      *Mutator

	receipts        ReceiptStore
	cache           QueryCache
	metrics         *metrics.Metrics
	maxLimit        int
	maxReceiptBytes int64
	now             func() time.Time
}

type Option func(s *Service)

func WithReceiptStore(rs ReceiptStore) Option {
	return func(s *Service) {
		s.receipts = rs
	}
}

func WithQueryCache(c QueryCache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithMaxLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

func WithMaxReceiptBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxReceiptBytes = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(
	users storage.UserRepository,
	orders storage.OrderRepository,
	transactions storage.TransactionRepository,
	l storage.Ledger,
	opts ...Option,
) *Service {
	s := &Service{
		users:           users,
		orders:          orders,
		transactions:    transactions,
		mutator:         NewMutator(l),
		cache:           cache.Nop{},
		maxLimit:        DefaultMaxLimit,
		maxReceiptBytes: DefaultMaxReceiptBytes,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Service) LoggerComponent() string {
	return "Ledger.Service"
}

// MaxLimit is the largest accepted page size
func (s *Service) MaxLimit() int {
	return s.maxLimit
}

// CreateDeposit stores a pending deposit request of userID
func (s *Service) CreateDeposit(ctx context.Context, userID uuid.UUID, in DepositRequest) (*model.Transaction, error) {
	l := logger.Get(ctx, s)
	now := s.now()

	if err := validateAmount("amount", in.Amount); err != nil {
		return nil, err
	}
	bankName := strings.TrimSpace(in.BankName)
	if bankName == "" {
		return nil, apperr.Invalid("bankName", "required")
	}
	if in.TransferDate.IsZero() {
		return nil, apperr.Invalid("transferDate", "required")
	}
	if in.TransferDate.After(now) {
		return nil, apperr.Invalid("transferDate", "must not be in the future")
	}

	transferDate := in.TransferDate.UTC()
	t, err := s.transactions.Create(ctx, &model.Transaction{
		ID:           uuid.New(),
		UserID:       userID,
		Type:         model.TransactionTypeDeposit,
		Amount:       in.Amount,
		Status:       model.TransactionStatusPending,
		BankName:     bankName,
		TransferDate: &transferDate,
		Reference:    strings.TrimSpace(in.Reference),
		Description:  strings.TrimSpace(in.Description),
		CreatedAt:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("create deposit: %w", err)
	}

	l.Info().Str("transaction_id", t.ID.String()).Str("amount", t.Amount.String()).Msg("Deposit requested")
	s.written(ctx, t)

	return t, nil
}

// AttachReceipt uploads a receipt for a pending deposit of userID and links it to the transaction.
// A second upload replaces the link. Status is never changed.
func (s *Service) AttachReceipt(ctx context.Context, userID, txID uuid.UUID, in Receipt) (*model.Transaction, error) {
	l := logger.Get(ctx, s)

	if in.Body == nil || in.Size <= 0 {
		return nil, apperr.Invalid("receipt", "required")
	}
	if in.Size > s.maxReceiptBytes {
		return nil, apperr.Invalid("receipt", fmt.Sprintf("larger than %d bytes", s.maxReceiptBytes))
	}
	if !receiptContentType(in.ContentType) {
		return nil, apperr.Invalid("receipt", "must be an image or a PDF")
	}

	t, err := s.GetTransaction(ctx, userID, txID)
	if err != nil {
		return nil, err
	}
	if t.Type != model.TransactionTypeDeposit || t.Status != model.TransactionStatusPending {
		return nil, fmt.Errorf("receipt on %s %s: %w", t.Status, t.Type, apperr.ErrInvalidState)
	}

	if s.receipts == nil {
		return nil, apperr.Storage("receipt upload", errors.New("receipt store is not configured"))
	}

	key := fmt.Sprintf("receipts/%s/%s", userID, xid.New())
	url, err := s.receipts.Put(ctx, key, in.ContentType, in.Body, in.Size)
	if err != nil {
		l.Error().Err(err).Str("key", key).Msg("Receipt upload failed")
		return nil, apperr.Storage("receipt upload", err)
	}

	t, err = s.transactions.UpdateFields(ctx, txID, model.TransactionUpdate{
		ReceiptURL: &url,
		IfStatus:   model.TransactionStatusPending,
		UpdatedAt:  s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("attach receipt: %w", err)
	}

	l.Info().Str("transaction_id", t.ID.String()).Str("receipt_url", url).Msg("Receipt attached")
	s.cache.Invalidate(ctx)

	return t, nil
}

// ApproveDeposit credits a pending deposit to its owner
func (s *Service) ApproveDeposit(ctx context.Context, txID uuid.UUID) (*model.BalanceChangeResult, error) {
	t, err := s.pendingDeposit(ctx, txID)
	if err != nil {
		return nil, s.failed(ctx, "approve", err)
	}

	res, err := s.mutator.ApplyBalanceChange(ctx, model.BalanceChange{
		UserID:        t.UserID,
		TransactionID: t.ID,
		Delta:         t.Amount,
		NewStatus:     model.TransactionStatusApproved,
	}, s.now())
	if err != nil {
		return nil, s.failed(ctx, "approve", err)
	}

	l := logger.Get(ctx, s)
	l.Info().
		Str("transaction_id", t.ID.String()).
		Str("balance", res.Balance.String()).
		Msg("Deposit approved")
	s.written(ctx, res.Transaction)

	return res, nil
}

// RejectDeposit closes a pending deposit without touching the balance
func (s *Service) RejectDeposit(ctx context.Context, txID uuid.UUID, reason string) (*model.BalanceChangeResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Invalid("reason", "required")
	}

	t, err := s.pendingDeposit(ctx, txID)
	if err != nil {
		return nil, s.failed(ctx, "reject", err)
	}

	res, err := s.mutator.ApplyBalanceChange(ctx, model.BalanceChange{
		UserID:          t.UserID,
		TransactionID:   t.ID,
		Delta:           decimal.Zero,
		NewStatus:       model.TransactionStatusRejected,
		RejectionReason: reason,
	}, s.now())
	if err != nil {
		return nil, s.failed(ctx, "reject", err)
	}

	l := logger.Get(ctx, s)
	l.Info().Str("transaction_id", t.ID.String()).Str("reason", reason).Msg("Deposit rejected")
	s.written(ctx, res.Transaction)

	return res, nil
}

// PayOrder settles an order of userID from the balance. A refused payment is recorded as failed.
func (s *Service) PayOrder(ctx context.Context, userID, orderID uuid.UUID) (*model.BalanceChangeResult, error) {
	now := s.now()

	res, err := s.mutator.SettlePayment(ctx, userID, orderID, now)
	if err != nil {
		if errors.Is(err, apperr.ErrInsufficientFunds) {
			s.recordFailedPayment(ctx, orderID, now)
		}
		return nil, s.failed(ctx, "pay", err)
	}

	l := logger.Get(ctx, s)
	l.Info().
		Str("order_id", orderID.String()).
		Str("transaction_id", res.Transaction.ID.String()).
		Str("balance", res.Balance.String()).
		Msg("Order paid")
	s.written(ctx, res.Transaction)

	return res, nil
}

// recordFailedPayment appends an audit record after the settlement unit rolled back
func (s *Service) recordFailedPayment(ctx context.Context, orderID uuid.UUID, now time.Time) {
	l := logger.Get(ctx, s)

	o, err := s.orders.Read(ctx, orderID)
	if err != nil {
		l.Warn().Err(err).Str("order_id", orderID.String()).Msg("Failed payment not recorded")
		return
	}

	t, err := s.transactions.Create(ctx, paymentTransaction(o, model.TransactionStatusFailed, now))
	if err != nil {
		l.Warn().Err(err).Str("order_id", orderID.String()).Msg("Failed payment not recorded")
		return
	}

	s.written(ctx, t)
}

// GetTransaction returns a transaction owned by userID
func (s *Service) GetTransaction(ctx context.Context, userID, txID uuid.UUID) (*model.Transaction, error) {
	t, err := s.transactions.Read(ctx, txID)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		return nil, apperr.ErrNotFound
	}
	return t, nil
}

// Transaction returns any transaction
func (s *Service) Transaction(ctx context.Context, txID uuid.UUID) (*model.Transaction, error) {
	return s.transactions.Read(ctx, txID)
}

// Balance of userID
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	u, err := s.users.Read(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return u.Balance, nil
}

// pendingDeposit is the fast-path check in front of the mutator, which checks again under lock
func (s *Service) pendingDeposit(ctx context.Context, txID uuid.UUID) (*model.Transaction, error) {
	t, err := s.transactions.Read(ctx, txID)
	if err != nil {
		return nil, err
	}
	if t.Type != model.TransactionTypeDeposit {
		return nil, fmt.Errorf("transaction is a %s: %w", t.Type, apperr.ErrInvalidState)
	}
	if t.Status != model.TransactionStatusPending {
		return nil, fmt.Errorf("transaction is %s: %w", t.Status, apperr.ErrInvalidState)
	}
	return t, nil
}

func (s *Service) written(ctx context.Context, t *model.Transaction) {
	s.cache.Invalidate(ctx)
	s.metrics.Transaction(string(t.Type), string(t.Status))
}

func (s *Service) failed(ctx context.Context, op string, err error) error {
	reason := failureReason(err)
	s.metrics.MutationFailure(reason)

	l := logger.Get(ctx, s)
	if reason == "storage" {
		l.Error().Err(err).Str("op", op).Msg("Mutation failed")
	} else {
		l.Debug().Err(err).Str("op", op).Msg("Mutation refused")
	}

	return err
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		return "validation"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperr.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, apperr.ErrInsufficientFunds):
		return "insufficient_balance"
	case errors.Is(err, apperr.ErrAlreadyPaid):
		return "already_paid"
	}
	return "storage"
}

func validateAmount(field string, a decimal.Decimal) error {
	if !a.IsPositive() {
		return apperr.Invalid(field, "must be positive")
	}
	if !a.Equal(a.Round(2)) {
		return apperr.Invalid(field, "at most two decimal places")
	}
	return nil
}

func receiptContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	return ct == "application/pdf" || strings.HasPrefix(ct, "image/")
}
