package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidState      = errors.New("invalid state")
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrAlreadyPaid       = errors.New("order already paid")
	ErrConflict          = errors.New("conflict")
	ErrSoftConflict      = errors.New("already exists")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrStorage           = errors.New("storage failure")
)

// FieldError is a validation failure bound to a single input field.
type FieldError struct {
	Field string
	Msg   string
}

// Invalid creates a validation error for field
func Invalid(field, msg string) *FieldError {
	return &FieldError{Field: field, Msg: msg}
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// Is makes every FieldError match ErrInvalidInput.
func (e *FieldError) Is(target error) bool {
	return target == ErrInvalidInput
}

// StorageError wraps a persistence failure. No partial write is left behind when it is returned
// from an atomic operation, so callers may retry.
type StorageError struct {
	Op  string
	Err error
}

// Storage wraps err as a StorageError, passing through nil and errors that are already typed.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, typed := range []error{ErrNotFound, ErrInvalidInput, ErrInvalidState, ErrInsufficientFunds, ErrAlreadyPaid, ErrConflict, ErrSoftConflict, ErrStorage} {
		if errors.Is(err, typed) {
			return err
		}
	}
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorage, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}
