package postgres

import (
	"database/sql"
	"errors"

	"backoffice/internal/app/apperr"
	"github.com/jackc/pgerrcode"
	pg "github.com/lib/pq"
)

const (
	constraintOrderPayment = "transactions_order_payment_uniq"
	constraintBalance      = "users_balance_non_negative"
)

// mapError translates driver errors into apperr values
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrNotFound
	}

	var pgErr *pg.Error
	if errors.As(err, &pgErr) {
		code := string(pgErr.Code)
		switch {
		case code == pgerrcode.UniqueViolation && pgErr.Constraint == constraintOrderPayment:
			return apperr.ErrAlreadyPaid
		case code == pgerrcode.CheckViolation && pgErr.Constraint == constraintBalance:
			return apperr.ErrInsufficientFunds
		case code == pgerrcode.ForeignKeyViolation:
			return apperr.ErrNotFound
		case pgerrcode.IsIntegrityConstraintViolation(code):
			return apperr.ErrConflict
		}
	}

	return apperr.Storage(op, err)
}
