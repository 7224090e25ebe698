package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"backoffice/internal/app/apperr"
	"backoffice/internal/app/model"
	"backoffice/internal/app/storage"
	"github.com/google/uuid"
)

// storage.TransactionRepository interface implementation
var _ storage.TransactionRepository = (*TransactionRepository)(nil)

const transactionColumns = `id, user_id, type, amount, status, bank_name, transfer_date, reference,
	receipt_url, description, rejection_reason, order_id, created_at, updated_at`

type TransactionRepository struct {
	db *sql.DB
}

func (r *TransactionRepository) LoggerComponent() string {
	return "TransactionRepository"
}

func NewTransactionRepository(db *sql.DB) (*TransactionRepository, error) {
	s := &TransactionRepository{
		db: db,
	}
	return s, nil
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	m := &model.Transaction{}
	var (
		transferDate sql.NullTime
		orderID      uuid.NullUUID
	)
	err := row.Scan(
		&m.ID, &m.UserID, &m.Type, &m.Amount, &m.Status, &m.BankName, &transferDate, &m.Reference,
		&m.ReceiptURL, &m.Description, &m.RejectionReason, &orderID, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if transferDate.Valid {
		m.TransferDate = &transferDate.Time
	}
	if orderID.Valid {
		m.OrderID = &orderID.UUID
	}
	return m, nil
}

func transactionArgs(m *model.Transaction) []interface{} {
	var (
		transferDate sql.NullTime
		orderID      uuid.NullUUID
	)
	if m.TransferDate != nil {
		transferDate = sql.NullTime{Time: *m.TransferDate, Valid: true}
	}
	if m.OrderID != nil {
		orderID = uuid.NullUUID{UUID: *m.OrderID, Valid: true}
	}
	return []interface{}{
		m.ID, m.UserID, m.Type, m.Amount, m.Status, m.BankName, transferDate, m.Reference,
		m.ReceiptURL, m.Description, m.RejectionReason, orderID, m.CreatedAt, m.UpdatedAt,
	}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertTransaction(ctx context.Context, db execer, m *model.Transaction) error {
	const SQL = `INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := db.ExecContext(ctx, SQL, transactionArgs(m)...)
	return mapError("insert transaction", err)
}

// Read implementation of interface storage.TransactionRepository
func (r *TransactionRepository) Read(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	const SQL = `SELECT ` + transactionColumns + ` FROM transactions WHERE id=$1`

	m, err := scanTransaction(r.db.QueryRowContext(ctx, SQL, id))
	if err != nil {
		return nil, mapError("select transaction", err)
	}

	return m, nil
}

// Create implementation of interface storage.TransactionRepository
func (r *TransactionRepository) Create(ctx context.Context, m *model.Transaction) (*model.Transaction, error) {
	t := *m
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	t.UpdatedAt = t.CreatedAt

	if err := insertTransaction(ctx, r.db, &t); err != nil {
		return nil, err
	}

	return &t, nil
}

// UpdateFields implementation of interface storage.TransactionRepository
func (r *TransactionRepository) UpdateFields(ctx context.Context, id uuid.UUID, u model.TransactionUpdate) (*model.Transaction, error) {
	at := u.UpdatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	var receiptURL, description sql.NullString
	if u.ReceiptURL != nil {
		receiptURL = sql.NullString{String: *u.ReceiptURL, Valid: true}
	}
	if u.Description != nil {
		description = sql.NullString{String: *u.Description, Valid: true}
	}

	SQL := `
		UPDATE transactions
		SET receipt_url=COALESCE($1, receipt_url),
			description=COALESCE($2, description),
			updated_at=$3
		WHERE id=$4`
	args := []interface{}{receiptURL, description, at, id}
	if u.IfStatus != "" {
		SQL += ` AND status=$5`
		args = append(args, u.IfStatus)
	}
	SQL += `
		RETURNING ` + transactionColumns

	m, err := scanTransaction(r.db.QueryRowContext(ctx, SQL, args...))
	if errors.Is(err, sql.ErrNoRows) && u.IfStatus != "" {
		return nil, r.updateRefused(ctx, id)
	}
	if err != nil {
		return nil, mapError("update transaction", err)
	}

	return m, nil
}

// updateRefused tells a missing record from one that left the required status
func (r *TransactionRepository) updateRefused(ctx context.Context, id uuid.UUID) error {
	t, err := r.Read(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("transaction is %s: %w", t.Status, apperr.ErrInvalidState)
}

// Find implementation of interface storage.TransactionRepository
func (r *TransactionRepository) Find(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int, error) {
	where, args := filterClause(f)

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, 0, mapError("tx begin", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`+where, args...).Scan(&total); err != nil {
		return nil, 0, mapError("count transactions", err)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset())
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, mapError("select transactions", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	res := make([]*model.Transaction, 0)
	for rows.Next() {
		m, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, mapError("scan transaction", err)
		}
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapError("iterate transactions", err)
	}

	return res, total, mapError("tx commit", tx.Commit())
}

// filterClause builds the WHERE part of a transaction query with positional arguments
func filterClause(f model.TransactionFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.UserID != nil {
		conds = append(conds, "user_id="+arg(*f.UserID))
	}
	if f.Type != "" {
		conds = append(conds, "type="+arg(f.Type))
	}
	if f.Status != "" {
		conds = append(conds, "status="+arg(f.Status))
	}
	if f.StartDate != nil {
		conds = append(conds, "created_at>="+arg(*f.StartDate))
	}
	if f.EndDate != nil {
		conds = append(conds, "created_at<="+arg(*f.EndDate))
	}
	if f.Search != "" {
		p := arg("%" + escapeLike(f.Search) + "%")
		conds = append(conds, "(id::text ILIKE "+p+
			" OR user_id::text ILIKE "+p+
			" OR type ILIKE "+p+
			" OR description ILIKE "+p+
			" OR reference ILIKE "+p+
			" OR bank_name ILIKE "+p+")")
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeReplacer = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeReplacer.Replace(s)
}
