package handler

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"backoffice/internal/app/apperr"
	"backoffice/internal/app/logger"
	"backoffice/internal/app/model"
	"backoffice/internal/app/service/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	dateLayout          = "2006-01-02"
	defaultPageLimit    = 20
	receiptField        = "receipt"
	multipartFormMemory = 1 << 20
)

type TransactionHandler struct {
	ledger          *ledger.Service
	defaultLimit    int
	maxReceiptBytes int64
}

func NewTransactionHandler(l *ledger.Service, defaultLimit int, maxReceiptBytes int64) *TransactionHandler {
	if defaultLimit <= 0 {
		defaultLimit = defaultPageLimit
	}
	if defaultLimit > l.MaxLimit() {
		defaultLimit = l.MaxLimit()
	}
	if maxReceiptBytes <= 0 {
		maxReceiptBytes = ledger.DefaultMaxReceiptBytes
	}
	return &TransactionHandler{
		ledger:          l,
		defaultLimit:    defaultLimit,
		maxReceiptBytes: maxReceiptBytes,
	}
}

func (h *TransactionHandler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Transaction.CreateDeposit")

	u, err := ReadContextUser(ctx)
	if err != nil {
		WriteError(w, err)
		return
	}

	in := struct {
		Amount       decimal.Decimal `json:"amount" validate:"required,gt=0"`
		BankName     string          `json:"bankName" validate:"required,max=255"`
		TransferDate string          `json:"transferDate" validate:"required"`
		Reference    string          `json:"reference" validate:"max=255"`
		Description  string          `json:"description" validate:"max=1024"`
	}{}

	if err := readBody(r, &in); err != nil {
		WriteError(w, err)
		return
	}

	if !validateData(w, in) {
		return
	}

	transferDate, err := parseDate("transferDate", in.TransferDate, false)
	if err != nil {
		WriteError(w, err)
		return
	}

	m, err := h.ledger.CreateDeposit(ctx, u.ID, ledger.DepositRequest{
		Amount:       in.Amount,
		BankName:     in.BankName,
		TransferDate: transferDate,
		Reference:    in.Reference,
		Description:  in.Description,
	})
	if err != nil {
		l.Debug().Err(err).Send()
		WriteError(w, err)
		return
	}

	WriteResponse(w, struct {
		TransactionID uuid.UUID               `json:"transactionId"`
		Status        model.TransactionStatus `json:"status"`
	}{m.ID, m.Status}, http.StatusCreated)
}

// AttachReceipt accepts a multipart upload in the "receipt" field
func (h *TransactionHandler) AttachReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Transaction.AttachReceipt")

	u, err := ReadContextUser(ctx)
	if err != nil {
		WriteError(w, err)
		return
	}

	id, err := uuidParam(r, "id")
	if err != nil {
		WriteError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxReceiptBytes+multipartFormMemory)
	if err := r.ParseMultipartForm(multipartFormMemory); err != nil {
		l.Debug().Err(err).Msg("Multipart parse failed")
		WriteError(w, apperr.Invalid(receiptField, "multipart form expected"))
		return
	}

	file, header, err := r.FormFile(receiptField)
	if err != nil {
		WriteError(w, apperr.Invalid(receiptField, "required"))
		return
	}
	defer func() {
		_ = file.Close()
	}()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		sniff := make([]byte, 512)
		n, _ := io.ReadFull(file, sniff)
		contentType = http.DetectContentType(sniff[:n])
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			WriteError(w, err)
			return
		}
	}

	m, err := h.ledger.AttachReceipt(ctx, u.ID, id, ledger.Receipt{
		Body:        file,
		ContentType: contentType,
		Size:        header.Size,
	})
	if err != nil {
		l.Debug().Err(err).Send()
		WriteError(w, err)
		return
	}

	WriteResponse(w, struct {
		ReceiptURL string `json:"receiptUrl"`
	}{m.ReceiptURL}, http.StatusOK)
}

// List transactions of the session user
func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	u, err := ReadContextUser(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	f, err := h.parseFilter(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	f.UserID = &u.ID

	h.query(w, r, f)
}

// Get a transaction of the session user
func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, err := ReadContextUser(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	id, err := uuidParam(r, "id")
	if err != nil {
		WriteError(w, err)
		return
	}

	m, err := h.ledger.GetTransaction(r.Context(), u.ID, id)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteResponse(w, m, http.StatusOK)
}

// AdminList queries transactions of every user, or of the one given by userId
func (h *TransactionHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	f, err := h.parseFilter(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	if v := r.URL.Query().Get("userId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			WriteError(w, apperr.Invalid("userId", "must be a uuid"))
			return
		}
		f.UserID = &id
	}

	h.query(w, r, f)
}

func (h *TransactionHandler) AdminGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		WriteError(w, err)
		return
	}

	m, err := h.ledger.Transaction(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteResponse(w, m, http.StatusOK)
}

func (h *TransactionHandler) Approve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Transaction.Approve")

	id, err := uuidParam(r, "id")
	if err != nil {
		WriteError(w, err)
		return
	}

	res, err := h.ledger.ApproveDeposit(ctx, id)
	if err != nil {
		l.Debug().Err(err).Str("transaction_id", id.String()).Send()
		WriteError(w, err)
		return
	}

	WriteResponse(w, res, http.StatusOK)
}

func (h *TransactionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Transaction.Reject")

	id, err := uuidParam(r, "id")
	if err != nil {
		WriteError(w, err)
		return
	}

	in := struct {
		Reason string `json:"reason"`
	}{}
	if err := readBody(r, &in); err != nil {
		WriteError(w, err)
		return
	}

	res, err := h.ledger.RejectDeposit(ctx, id, in.Reason)
	if err != nil {
		l.Debug().Err(err).Str("transaction_id", id.String()).Send()
		WriteError(w, err)
		return
	}

	WriteResponse(w, res, http.StatusOK)
}

func (h *TransactionHandler) query(w http.ResponseWriter, r *http.Request, f model.TransactionFilter) {
	page, err := h.ledger.Query(r.Context(), f)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteResponse(w, page, http.StatusOK)
}

func (h *TransactionHandler) parseFilter(r *http.Request) (model.TransactionFilter, error) {
	q := r.URL.Query()
	f := model.TransactionFilter{
		Type:   model.TransactionType(strings.TrimSpace(q.Get("type"))),
		Status: model.TransactionStatus(strings.TrimSpace(q.Get("status"))),
		Search: strings.TrimSpace(q.Get("search")),
		Page:   1,
		Limit:  h.defaultLimit,
	}

	var err error
	if f.Page, err = intParam(q.Get("page"), "page", f.Page); err != nil {
		return f, err
	}
	if f.Limit, err = intParam(q.Get("limit"), "limit", f.Limit); err != nil {
		return f, err
	}

	if v := q.Get("startDate"); v != "" {
		t, err := parseDate("startDate", v, false)
		if err != nil {
			return f, err
		}
		f.StartDate = &t
	}
	if v := q.Get("endDate"); v != "" {
		t, err := parseDate("endDate", v, true)
		if err != nil {
			return f, err
		}
		f.EndDate = &t
	}

	return f, nil
}

func intParam(v, field string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Invalid(field, "must be an integer")
	}
	return n, nil
}

// parseDate accepts RFC 3339 timestamps and plain dates. A plain date used as an upper bound
// covers the whole day.
func parseDate(field, v string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, apperr.Invalid(field, "expected YYYY-MM-DD or RFC 3339")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
