package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"backoffice/internal/app/apperr"
	"backoffice/internal/app/model"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// readBody into json struct
func readBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		return fmt.Errorf("body read: %w", err)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return apperr.Invalid("body", "malformed json: "+err.Error())
	}

	return nil
}

type envelope struct {
	Data interface{} `json:"data"`
}

type errorEnvelope struct {
	Message string      `json:"error"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

type ValidationError struct {
	Field string `json:"field"`
	Msg   string `json:"msg"`
}

// WriteResponse wraps v into the data envelope
func WriteResponse(w http.ResponseWriter, v interface{}, statusCode int) {
	writeJSON(w, envelope{Data: v}, statusCode)
}

// WriteError maps err to its status code and writes the error envelope
func WriteError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	writeErrorStatus(w, err, status, code)
}

func writeErrorStatus(w http.ResponseWriter, err error, status int, code string) {
	out := errorEnvelope{Message: err.Error(), Code: code}

	var fe *apperr.FieldError
	if errors.As(err, &fe) {
		out.Details = []ValidationError{{Field: fe.Field, Msg: fe.Msg}}
	}
	if status == http.StatusInternalServerError {
		out.Message = apperr.ErrStorage.Error()
	}

	writeJSON(w, out, status)
}

func writeJSON(w http.ResponseWriter, v interface{}, statusCode int) {
	resBody, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(resBody)
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperr.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperr.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, apperr.ErrAlreadyPaid):
		return http.StatusConflict, "already_paid"
	case errors.Is(err, apperr.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "insufficient_balance"
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict, "conflict"
	}
	return http.StatusInternalServerError, "storage_error"
}

// validateData and send errors, returns true if no validation errors
func validateData(w http.ResponseWriter, v interface{}) bool {
	err := validate.Struct(v)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		WriteError(w, err)
		return false
	}

	details := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		msg := fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		details = append(details, ValidationError{Field: fe.Field(), Msg: msg})
	}

	writeJSON(w, errorEnvelope{
		Message: apperr.ErrInvalidInput.Error(),
		Code:    "validation_error",
		Details: details,
	}, http.StatusBadRequest)

	return false
}

// uuidParam reads a path parameter holding an id
func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.Invalid(name, "must be a uuid")
	}
	return id, nil
}

type ContextKeyUser struct{}

func ReadContextUser(ctx context.Context) (*model.User, error) {
	v := ctx.Value(ContextKeyUser{})
	if user, ok := v.(*model.User); ok {
		return user, nil
	}

	return nil, apperr.ErrUnauthorized
}
