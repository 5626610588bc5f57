package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(baseURL string, maxRetries int) *Client {
	return NewClient(Config{
		BaseURL:     baseURL,
		KeyID:       "test-key",
		SecretKey:   "test-secret",
		Timeout:     5 * time.Second,
		MaxRetries:  maxRetries,
		BackoffBase: time.Millisecond,
	})
}

func TestExecute_Success(t *testing.T) {
	var gotKey, gotSecret string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("APCA-API-KEY-ID")
		gotSecret = r.Header.Get("APCA-API-SECRET-KEY")
		w.Write([]byte(`{"id":"abc"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3)
	defer c.Close()

	raw, err := c.Execute(context.Background(), "GET", "/v2/account", nil, nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if string(raw) != `{"id":"abc"}` {
		t.Fatalf("unexpected body: %s", raw)
	}
	if gotKey != "test-key" || gotSecret != "test-secret" {
		t.Fatalf("auth headers not sent: key=%q secret=%q", gotKey, gotSecret)
	}
}

func TestExecute_RetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	defer c.Close()

	_, err := c.Execute(context.Background(), "GET", "/v2/positions", nil, nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 calls (2 failures + 1 success), got %d", got)
	}
}

func TestExecute_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 2)
	defer c.Close()

	_, err := c.Execute(context.Background(), "GET", "/v2/account", nil, nil)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	// maxRetries=2 means at most 3 attempts
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestExecute_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"code":40010001,"message":"invalid symbol"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	defer c.Close()

	_, err := c.Execute(context.Background(), "POST", "/v2/orders", nil, map[string]string{"symbol": "???"})
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := AsAPIError(err)
	if !ok {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status: %d", apiErr.StatusCode)
	}
	if apiErr.Code != 40010001 || apiErr.Message != "invalid symbol" {
		t.Fatalf("body not parsed: %+v", apiErr)
	}
	if IsTransient(err) {
		t.Fatal("client error must not be transient")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("client error must not be retried, got %d calls", got)
	}
}

func TestExecute_RetryAfterHintHonored(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3)
	defer c.Close()

	start := time.Now()
	_, err := c.Execute(context.Background(), "GET", "/v2/orders", nil, nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	// Retry-After: 1 overrides the 1ms base backoff
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Fatalf("Retry-After hint ignored, waited only %s", elapsed)
	}
}

func TestExecute_ContextCancelDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Execute(ctx, "GET", "/v2/account", nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("cancellation did not interrupt backoff sleep")
	}
}

func TestExecute_EmptyBodyYieldsEmptyObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)
	defer c.Close()

	raw, err := c.Execute(context.Background(), "DELETE", "/v2/orders/abc", nil, nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if string(raw) != "{}" {
		t.Fatalf("expected empty object, got %s", raw)
	}
}

func TestExecute_QueryParamsForwarded(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)
	defer c.Close()

	q := url.Values{}
	q.Set("status", "open")
	q.Set("limit", "500")
	if _, err := c.Execute(context.Background(), "GET", "/v2/orders", q, nil); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if gotQuery.Get("status") != "open" || gotQuery.Get("limit") != "500" {
		t.Fatalf("query not forwarded: %v", gotQuery)
	}
}
