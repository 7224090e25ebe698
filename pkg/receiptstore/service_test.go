package receiptstore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sony/gobreaker"
)

func newStore(t *testing.T) (*httptest.Server, *Server) {
	t.Helper()
	r := chi.NewRouter()
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	s, err := NewServer(t.TempDir(), ts.URL, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	s.Routes(r)

	return ts, s
}

func TestService_PutAndServe(t *testing.T) {
	ts, _ := newStore(t)
	c, err := NewService(ts.URL)
	if err != nil {
		t.Fatal(err)
	}

	body := "%PDF-1.4 fake receipt"
	url, err := c.Put(context.Background(), "receipts/u1/abc", "application/pdf", strings.NewReader(body), int64(len(body)))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if url != ts.URL+"/objects/receipts/u1/abc" {
		t.Fatalf("url = %q", url)
	}

	res, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	got, _ := io.ReadAll(res.Body)
	if res.StatusCode != http.StatusOK || string(got) != body {
		t.Fatalf("GET = %d %q", res.StatusCode, got)
	}
}

func TestServer_RejectsEscapingKeys(t *testing.T) {
	ts, _ := newStore(t)

	for _, key := range []string{"../etc/passwd", "a/../../b", "a//b"} {
		req, _ := http.NewRequest(http.MethodPut, ts.URL+"/objects/"+key, strings.NewReader("x"))
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		_ = res.Body.Close()
		if res.StatusCode == http.StatusCreated {
			t.Errorf("key %q accepted", key)
		}
	}
}

func TestService_RemoteError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too large", http.StatusRequestEntityTooLarge)
	}))
	defer ts.Close()

	c, _ := NewService(ts.URL, WithBreaker(1, time.Minute, time.Minute, 1))

	for i := 0; i < 3; i++ {
		_, err := c.Put(context.Background(), "k", "image/png", strings.NewReader("x"), 1)
		var re *RemoteError
		if !errors.As(err, &re) || re.StatusCode != http.StatusRequestEntityTooLarge {
			t.Fatalf("Put() error = %v, want remote 413", err)
		}
	}
}

func TestService_BreakerOpens(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer ts.Close()

	c, _ := NewService(ts.URL, WithBreaker(1, time.Minute, time.Minute, 2))

	for i := 0; i < 2; i++ {
		if _, err := c.Put(context.Background(), "k", "image/png", strings.NewReader("x"), 1); err == nil {
			t.Fatal("expected failure")
		}
	}

	_, err := c.Put(context.Background(), "k", "image/png", strings.NewReader("x"), 1)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("Put() error = %v, want open breaker", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestNewService_InvalidURL(t *testing.T) {
	if _, err := NewService("not a url"); err == nil {
		t.Fatal("NewService() must reject relative urls")
	}
}
