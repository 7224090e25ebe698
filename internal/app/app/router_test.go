package app

import (
	"bytes"
	"embed"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"

	"backoffice/internal/app/config"
	"backoffice/internal/app/handler"
	"backoffice/internal/app/logger"
	"backoffice/pkg/receiptstore"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type response struct {
	Status  int
	Data    json.RawMessage           `json:"data"`
	Error   string                    `json:"error"`
	Code    string                    `json:"code"`
	Details []handler.ValidationError `json:"details"`
}

type testServer struct {
	t        *testing.T
	handler  http.Handler
	storeURL string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	r := chi.NewRouter()
	store := httptest.NewServer(r)
	t.Cleanup(store.Close)
	s, err := receiptstore.NewServer(t.TempDir(), store.URL, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	s.Routes(r)

	cfg := config.Config{
		SecretKey:   "test-secret",
		CORSOrigins: "*",
		Receipts: config.ReceiptsConfig{
			StoreURL: store.URL,
			MaxBytes: 1 << 20,
			Breaker: config.BreakerConfig{
				MaxRequests: 1,
				Interval:    time.Minute,
				Timeout:     30 * time.Second,
				Failures:    5,
			},
		},
		Pagination: config.PaginationConfig{DefaultLimit: 20, MaxLimit: 100},
		Session:    config.SessionConfig{TTL: time.Hour},
		Admin:      config.AdminConfig{Login: "admin", Password: "admin-password"},
	}

	a, err := New(cfg, logger.Nop(), embed.FS{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(a.Stop)

	return &testServer{t: t, handler: a.Router(), storeURL: store.URL}
}

func (ts *testServer) send(req *http.Request, token string) response {
	ts.t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	res := response{Status: rec.Code}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			ts.t.Fatalf("%s %s: decode %q: %v", req.Method, req.URL, rec.Body.String(), err)
		}
	}
	return res
}

func (ts *testServer) do(method, path, token string, body interface{}) response {
	ts.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			ts.t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	return ts.send(req, token)
}

func (ts *testServer) expect(res response, status int, code string) {
	ts.t.Helper()
	if res.Status != status || res.Code != code {
		ts.t.Fatalf("got %d %q (%s), want %d %q", res.Status, res.Code, res.Error, status, code)
	}
}

func decode(t *testing.T, res response, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(res.Data, v); err != nil {
		t.Fatalf("decode data %s: %v", res.Data, err)
	}
}

func (ts *testServer) login(name, password string, register bool) string {
	ts.t.Helper()
	path, status := "/api/user/login", http.StatusOK
	if register {
		path, status = "/api/user/register", http.StatusCreated
	}
	res := ts.do(http.MethodPost, path, "", map[string]string{"login": name, "password": password})
	ts.expect(res, status, "")

	var out struct {
		Token string `json:"token"`
		Role  string `json:"role"`
	}
	decode(ts.t, res, &out)
	if out.Token == "" {
		ts.t.Fatal("empty token")
	}
	return out.Token
}

func (ts *testServer) deposit(token, amount string) string {
	ts.t.Helper()
	res := ts.do(http.MethodPost, "/api/user/transactions/deposits", token, map[string]interface{}{
		"amount":       json.RawMessage(amount),
		"bankName":     "ACME Bank",
		"transferDate": "2024-01-05",
		"reference":    "ref-" + amount,
	})
	ts.expect(res, http.StatusCreated, "")

	var out struct {
		TransactionID string `json:"transactionId"`
		Status        string `json:"status"`
	}
	decode(ts.t, res, &out)
	if out.Status != "pending" {
		ts.t.Fatalf("deposit status = %q", out.Status)
	}
	return out.TransactionID
}

func (ts *testServer) balance(token string) decimal.Decimal {
	ts.t.Helper()
	res := ts.do(http.MethodGet, "/api/user/balance", token, nil)
	ts.expect(res, http.StatusOK, "")
	var out struct {
		Balance decimal.Decimal `json:"balance"`
	}
	decode(ts.t, res, &out)
	return out.Balance
}

func (ts *testServer) order(token, number, total string) string {
	ts.t.Helper()
	res := ts.do(http.MethodPost, "/api/user/orders", token, map[string]interface{}{
		"number": number,
		"total":  json.RawMessage(total),
	})
	ts.expect(res, http.StatusCreated, "")
	var out struct {
		ID string `json:"id"`
	}
	decode(ts.t, res, &out)
	return out.ID
}

// luhnNumber appends the check digit to payload
func luhnNumber(payload string) string {
	sum := 0
	double := true
	for i := len(payload) - 1; i >= 0; i-- {
		d := int(payload[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return payload + strconv.Itoa((10-sum%10)%10)
}

func TestRouter_Health(t *testing.T) {
	ts := newTestServer(t)

	res := ts.do(http.MethodGet, "/health", "", nil)
	ts.expect(res, http.StatusOK, "")
	if string(res.Data) != `{"status":"ok"}` {
		t.Fatalf("data = %s", res.Data)
	}
}

func TestRouter_DepositApproveAndPay(t *testing.T) {
	ts := newTestServer(t)
	user := ts.login("alice", "password123", true)
	admin := ts.login("admin", "admin-password", false)

	first := ts.deposit(user, "100")
	res := ts.do(http.MethodPost, "/api/admin/transactions/"+first+"/approve", admin, nil)
	ts.expect(res, http.StatusOK, "")
	var approved struct {
		Balance     decimal.Decimal `json:"balance"`
		Transaction struct {
			Status string `json:"status"`
		} `json:"transaction"`
	}
	decode(t, res, &approved)
	if !approved.Balance.Equal(decimal.NewFromInt(100)) || approved.Transaction.Status != "approved" {
		t.Fatalf("approve result = %+v", approved)
	}

	orderID := ts.order(user, luhnNumber("1234567"), "150")

	res = ts.do(http.MethodPost, "/api/user/orders/"+orderID+"/pay", user, nil)
	ts.expect(res, http.StatusPaymentRequired, "insufficient_balance")
	if got := ts.balance(user); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("balance after refused payment = %s", got)
	}

	second := ts.deposit(user, "50")
	ts.expect(ts.do(http.MethodPost, "/api/admin/transactions/"+second+"/approve", admin, nil), http.StatusOK, "")

	res = ts.do(http.MethodPost, "/api/user/orders/"+orderID+"/pay", user, nil)
	ts.expect(res, http.StatusOK, "")
	if got := ts.balance(user); !got.IsZero() {
		t.Fatalf("balance after payment = %s, want 0", got)
	}

	res = ts.do(http.MethodPost, "/api/user/orders/"+orderID+"/pay", user, nil)
	ts.expect(res, http.StatusConflict, "already_paid")

	res = ts.do(http.MethodGet, "/api/user/transactions?type=payment", user, nil)
	ts.expect(res, http.StatusOK, "")
	var page struct {
		Transactions []struct {
			Amount decimal.Decimal `json:"amount"`
			Status string          `json:"status"`
		} `json:"transactions"`
	}
	decode(t, res, &page)
	statuses := map[string]int{}
	for _, tx := range page.Transactions {
		statuses[tx.Status]++
		if !tx.Amount.Equal(decimal.NewFromInt(-150)) {
			t.Errorf("payment amount = %s, want -150", tx.Amount)
		}
	}
	if statuses["completed"] != 1 || statuses["failed"] != 1 {
		t.Fatalf("payment statuses = %v, want one completed and one failed", statuses)
	}
}

func TestRouter_RejectDeposit(t *testing.T) {
	ts := newTestServer(t)
	user := ts.login("bob", "password123", true)
	admin := ts.login("admin", "admin-password", false)
	id := ts.deposit(user, "20.50")

	res := ts.do(http.MethodPost, "/api/admin/transactions/"+id+"/reject", admin, map[string]string{"reason": "  "})
	ts.expect(res, http.StatusBadRequest, "validation_error")
	if len(res.Details) != 1 || res.Details[0].Field != "reason" {
		t.Fatalf("details = %+v", res.Details)
	}

	res = ts.do(http.MethodPost, "/api/admin/transactions/"+id+"/reject", admin, map[string]string{"reason": "no transfer found"})
	ts.expect(res, http.StatusOK, "")

	res = ts.do(http.MethodPost, "/api/admin/transactions/"+id+"/approve", admin, nil)
	ts.expect(res, http.StatusConflict, "invalid_state")

	res = ts.do(http.MethodGet, "/api/user/transactions/"+id, user, nil)
	ts.expect(res, http.StatusOK, "")
	var tx struct {
		Status          string `json:"status"`
		RejectionReason string `json:"rejectionReason"`
	}
	decode(t, res, &tx)
	if tx.Status != "rejected" || tx.RejectionReason != "no transfer found" {
		t.Fatalf("transaction = %+v", tx)
	}
	if got := ts.balance(user); !got.IsZero() {
		t.Fatalf("balance = %s, want 0", got)
	}
}

func TestRouter_AccessControl(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.login("alice", "password123", true)
	mallory := ts.login("mallory", "password123", true)
	id := ts.deposit(alice, "10")

	ts.expect(ts.do(http.MethodGet, "/api/user/balance", "", nil), http.StatusUnauthorized, "unauthorized")
	ts.expect(ts.do(http.MethodGet, "/api/user/balance", "garbage", nil), http.StatusUnauthorized, "unauthorized")
	ts.expect(ts.do(http.MethodGet, "/api/admin/transactions", alice, nil), http.StatusForbidden, "forbidden")
	ts.expect(ts.do(http.MethodPost, "/api/admin/transactions/"+id+"/approve", alice, nil), http.StatusForbidden, "forbidden")
	ts.expect(ts.do(http.MethodGet, "/api/user/transactions/"+id, mallory, nil), http.StatusNotFound, "not_found")
	ts.expect(ts.do(http.MethodGet, "/api/user/transactions/not-a-uuid", alice, nil), http.StatusBadRequest, "validation_error")

	res := ts.do(http.MethodPost, "/api/user/login", "", map[string]string{"login": "alice", "password": "wrong-password"})
	ts.expect(res, http.StatusUnauthorized, "unauthorized")

	res = ts.do(http.MethodPost, "/api/user/register", "", map[string]string{"login": "alice", "password": "password123"})
	ts.expect(res, http.StatusConflict, "conflict")
}

func TestRouter_Orders(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.login("alice", "password123", true)
	bob := ts.login("bob", "password123", true)
	number := luhnNumber("98765")

	ts.expect(ts.do(http.MethodGet, "/api/user/orders", alice, nil), http.StatusNoContent, "")

	bad := number[:len(number)-1] + strconv.Itoa((int(number[len(number)-1]-'0')+1)%10)
	res := ts.do(http.MethodPost, "/api/user/orders", alice, map[string]interface{}{"number": bad, "total": 10})
	ts.expect(res, http.StatusUnprocessableEntity, "validation_error")

	ts.order(alice, number, "10")

	res = ts.do(http.MethodPost, "/api/user/orders", alice, map[string]interface{}{"number": number, "total": 10})
	ts.expect(res, http.StatusOK, "")

	res = ts.do(http.MethodPost, "/api/user/orders", bob, map[string]interface{}{"number": number, "total": 10})
	ts.expect(res, http.StatusConflict, "conflict")

	res = ts.do(http.MethodGet, "/api/user/orders", alice, nil)
	ts.expect(res, http.StatusOK, "")
	var orders []struct {
		Number string `json:"number"`
		Status string `json:"status"`
	}
	decode(t, res, &orders)
	if len(orders) != 1 || orders[0].Number != number || orders[0].Status != "NEW" {
		t.Fatalf("orders = %+v", orders)
	}
}

func TestRouter_QueryTransactions(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.login("alice", "password123", true)
	bob := ts.login("bob", "password123", true)
	admin := ts.login("admin", "admin-password", false)
	for _, amount := range []string{"1", "2", "3"} {
		ts.deposit(alice, amount)
	}
	ts.deposit(bob, "4")

	invalid := []struct {
		query string
		field string
	}{
		{"limit=0", "limit"},
		{"limit=101", "limit"},
		{"page=0", "page"},
		{"page=abc", "page"},
		{"type=bonus", "type"},
		{"status=lost", "status"},
		{"startDate=2024-02-01&endDate=2024-01-01", "startDate"},
		{"endDate=yesterday", "endDate"},
	}
	for _, tt := range invalid {
		t.Run(tt.query, func(t *testing.T) {
			res := ts.do(http.MethodGet, "/api/user/transactions?"+tt.query, alice, nil)
			ts.expect(res, http.StatusBadRequest, "validation_error")
			if len(res.Details) == 0 || res.Details[0].Field != tt.field {
				t.Fatalf("details = %+v, want field %q", res.Details, tt.field)
			}
		})
	}

	res := ts.do(http.MethodGet, "/api/user/transactions?limit=2&page=1", alice, nil)
	ts.expect(res, http.StatusOK, "")
	var page struct {
		Transactions []struct {
			Amount decimal.Decimal `json:"amount"`
		} `json:"transactions"`
		Pagination struct {
			Total      int `json:"total"`
			Page       int `json:"page"`
			Limit      int `json:"limit"`
			TotalPages int `json:"totalPages"`
		} `json:"pagination"`
	}
	decode(t, res, &page)
	if page.Pagination.Total != 3 || page.Pagination.TotalPages != 2 || len(page.Transactions) != 2 {
		t.Fatalf("page = %+v", page)
	}
	if !page.Transactions[0].Amount.Equal(decimal.NewFromInt(3)) {
		t.Errorf("newest first: got %s", page.Transactions[0].Amount)
	}

	res = ts.do(http.MethodGet, "/api/admin/transactions?status=pending", admin, nil)
	ts.expect(res, http.StatusOK, "")
	decode(t, res, &page)
	if page.Pagination.Total != 4 {
		t.Fatalf("admin total = %d, want 4", page.Pagination.Total)
	}

	res = ts.do(http.MethodGet, "/api/user/transactions?page=922337203685477580&limit=20", alice, nil)
	ts.expect(res, http.StatusOK, "")
	decode(t, res, &page)
	if len(page.Transactions) != 0 || page.Pagination.Total != 3 {
		t.Fatalf("far page = %+v", page)
	}

	res = ts.do(http.MethodGet, "/api/admin/transactions?userId=nope", admin, nil)
	ts.expect(res, http.StatusBadRequest, "validation_error")
}

func TestRouter_AttachReceipt(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.login("alice", "password123", true)
	id := ts.deposit(alice, "75")
	content := "%PDF-1.4 receipt body"

	body := &bytes.Buffer{}
	mp := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="receipt"; filename="receipt.pdf"`)
	h.Set("Content-Type", "application/pdf")
	part, err := mp.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write([]byte(content))
	_ = mp.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/user/transactions/"+id+"/receipt", body)
	req.Header.Set("Content-Type", mp.FormDataContentType())
	res := ts.send(req, alice)
	ts.expect(res, http.StatusOK, "")

	var out struct {
		ReceiptURL string `json:"receiptUrl"`
	}
	decode(t, res, &out)
	if !strings.HasPrefix(out.ReceiptURL, ts.storeURL+"/objects/receipts/") {
		t.Fatalf("receiptUrl = %q", out.ReceiptURL)
	}

	got, err := http.Get(out.ReceiptURL)
	if err != nil {
		t.Fatal(err)
	}
	defer got.Body.Close()
	stored, _ := io.ReadAll(got.Body)
	if string(stored) != content {
		t.Fatalf("stored receipt = %q", stored)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/user/transactions/"+id+"/receipt", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	ts.expect(ts.send(req, alice), http.StatusBadRequest, "validation_error")
}

func TestRouter_Metrics(t *testing.T) {
	ts := newTestServer(t)
	ts.do(http.MethodGet, "/health", "", nil)

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `http_request_duration_seconds_count{method="GET",route="/health",status="200"} 1`) {
		t.Fatalf("request histogram missing:\n%s", rec.Body.String())
	}
}
