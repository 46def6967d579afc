package middleware_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/servicepoint/garage-bookings/internal/http/middleware"
	"github.com/servicepoint/garage-bookings/internal/platform/ratelimit"
)

func TestRateLimitMiddleware(t *testing.T) {
	store := ratelimit.NewMemoryStore(time.Minute, 1)
	handler := middleware.RateLimit(store)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want 429", rec.Code)
	}

	var body struct {
		Success    bool `json:"success"`
		RetryAfter int  `json:"retryAfter"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Success {
		t.Error("success should be false")
	}
	if body.RetryAfter < 1 {
		t.Errorf("retryAfter = %d, want >= 1", body.RetryAfter)
	}
}

func TestRateLimitKeysPerClient(t *testing.T) {
	store := ratelimit.NewMemoryStore(time.Minute, 1)
	handler := middleware.RateLimit(store)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	a := httptest.NewRequest(http.MethodGet, "/", nil)
	a.RemoteAddr = "10.0.0.1:1234"
	b := httptest.NewRequest(http.MethodGet, "/", nil)
	b.RemoteAddr = "10.0.0.2:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, a)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, b)
	if rec.Code != http.StatusOK {
		t.Fatalf("different client blocked: status = %d", rec.Code)
	}
}

func TestExtractTokenPriority(t *testing.T) {
	// Header wins over cookie, body and query.
	body := bytes.NewBufferString(`{"token":"from-body"}`)
	req := httptest.NewRequest(http.MethodPost, "/?token=from-query", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer from-header")
	req.AddCookie(&http.Cookie{Name: "token", Value: "from-cookie"})

	if got := middleware.ExtractToken(req); got != "from-header" {
		t.Errorf("token = %q, want from-header", got)
	}

	// Cookie next.
	req = httptest.NewRequest(http.MethodPost, "/?token=from-query", bytes.NewBufferString(`{"token":"from-body"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: "garage_token", Value: "from-cookie"})
	if got := middleware.ExtractToken(req); got != "from-cookie" {
		t.Errorf("token = %q, want from-cookie", got)
	}

	// Then body.
	req = httptest.NewRequest(http.MethodPost, "/?token=from-query", bytes.NewBufferString(`{"token":"from-body"}`))
	req.Header.Set("Content-Type", "application/json")
	if got := middleware.ExtractToken(req); got != "from-body" {
		t.Errorf("token = %q, want from-body", got)
	}

	// Query last.
	req = httptest.NewRequest(http.MethodGet, "/?token=from-query", nil)
	if got := middleware.ExtractToken(req); got != "from-query" {
		t.Errorf("token = %q, want from-query", got)
	}
}

func TestExtractTokenRestoresBody(t *testing.T) {
	payload := `{"token":"tok","phone":"9876543210"}`
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")

	if got := middleware.ExtractToken(req); got != "tok" {
		t.Fatalf("token = %q", got)
	}

	var in struct {
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		t.Fatalf("body not restored: %v", err)
	}
	if in.Phone != "9876543210" {
		t.Errorf("phone = %q after body restore", in.Phone)
	}
}
