package handler

import (
	"errors"
	"net/http"
	"time"

	"backoffice/internal/app/apperr"
	"backoffice/internal/app/logger"
	"backoffice/internal/app/model"
	"backoffice/internal/app/service/ledger"
	"backoffice/internal/app/storage"
	"github.com/ferdypruis/go-luhn"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderHandler struct {
	orders storage.OrderRepository
	ledger *ledger.Service
}

func NewOrderHandler(orders storage.OrderRepository, l *ledger.Service) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		ledger: l,
	}
}

func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Order.Create")

	u, err := ReadContextUser(ctx)
	if err != nil {
		WriteError(w, err)
		return
	}

	in := struct {
		Number string          `json:"number" validate:"required,numeric,max=64"`
		Total  decimal.Decimal `json:"total" validate:"required,gt=0"`
	}{}

	if err := readBody(r, &in); err != nil {
		WriteError(w, err)
		return
	}

	if !validateData(w, in) {
		return
	}

	if !luhn.Valid(in.Number) {
		l.Debug().Str("number", in.Number).Msg("Luhn check failed")
		writeErrorStatus(w, apperr.Invalid("number", "invalid order number"), http.StatusUnprocessableEntity, "validation_error")
		return
	}

	m, err := h.orders.Create(ctx, &model.Order{
		ID:        uuid.New(),
		Number:    in.Number,
		UserID:    u.ID,
		Total:     in.Total,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, apperr.ErrSoftConflict) {
			l.Debug().Str("number", in.Number).Msg("Order already registered by the user")
			WriteResponse(w, struct {
				Number string `json:"number"`
			}{in.Number}, http.StatusOK)
			return
		}
		l.Debug().Err(err).Send()
		WriteError(w, err)
		return
	}

	WriteResponse(w, m, http.StatusCreated)
}

func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Order.List")

	u, err := ReadContextUser(ctx)
	if err != nil {
		WriteError(w, err)
		return
	}

	mm, err := h.orders.AllByUserID(ctx, u.ID)
	if err != nil {
		l.Debug().Err(err).Send()
		WriteError(w, err)
		return
	}

	if len(mm) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	WriteResponse(w, mm, http.StatusOK)
}

// Pay settles the order from the balance of the session user
func (h *OrderHandler) Pay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Order.Pay")

	u, err := ReadContextUser(ctx)
	if err != nil {
		WriteError(w, err)
		return
	}

	orderID, err := uuidParam(r, "orderID")
	if err != nil {
		WriteError(w, err)
		return
	}

	res, err := h.ledger.PayOrder(ctx, u.ID, orderID)
	if err != nil {
		l.Debug().Err(err).Str("order_id", orderID.String()).Msg("Payment refused")
		WriteError(w, err)
		return
	}

	WriteResponse(w, res, http.StatusOK)
}
