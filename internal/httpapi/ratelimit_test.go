package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/erauner12/todosync/internal/service/todoservice"
)

func newLimitedRouter(burst int) http.Handler {
	srv := &Server{
		Todos: todoservice.NewService(todoservice.NewMemoryRepository()),
		RateLimitConfig: RateLimitInfo{
			WindowSeconds: 60,
			MaxRequests:   10,
			Burst:         burst,
		},
	}
	return srv.Routes()
}

func getItems(router http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/items", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiting_429Response(t *testing.T) {
	router := newLimitedRouter(2)

	for i := 1; i <= 3; i++ {
		rec := getItems(router, "10.0.0.1:1234")

		for _, h := range []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "X-RateLimit-Burst"} {
			if rec.Header().Get(h) == "" {
				t.Errorf("Request %d: %s header missing", i, h)
			}
		}

		if i <= 2 {
			if rec.Code != http.StatusOK {
				t.Errorf("Request %d: expected 200, got %d", i, rec.Code)
			}
			continue
		}

		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("Request %d: expected 429, got %d", i, rec.Code)
		}
		retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
		if err != nil || retryAfter < 1 {
			t.Errorf("Retry-After = %q, want positive seconds", rec.Header().Get("Retry-After"))
		}
	}
}

func TestRateLimiting_RemainingDecreases(t *testing.T) {
	router := newLimitedRouter(5)

	prev := 5
	for i := 1; i <= 4; i++ {
		rec := getItems(router, "10.0.0.2:1234")
		remaining, err := strconv.Atoi(rec.Header().Get("X-RateLimit-Remaining"))
		if err != nil {
			t.Fatalf("Request %d: bad X-RateLimit-Remaining: %v", i, err)
		}
		if remaining >= prev {
			t.Errorf("Request %d: remaining %d did not decrease from %d", i, remaining, prev)
		}
		prev = remaining
	}
}

func TestRateLimiting_PerClient(t *testing.T) {
	router := newLimitedRouter(1)

	if rec := getItems(router, "10.0.0.3:1"); rec.Code != http.StatusOK {
		t.Fatalf("client A first request: %d", rec.Code)
	}
	if rec := getItems(router, "10.0.0.3:2"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("client A from another port: got %d, want 429", rec.Code)
	}
	if rec := getItems(router, "10.0.0.4:1"); rec.Code != http.StatusOK {
		t.Errorf("client B should have its own bucket, got %d", rec.Code)
	}
}

func TestRateLimiting_HealthzExempt(t *testing.T) {
	router := newLimitedRouter(1)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/healthz", nil)
		req.RemoteAddr = "10.0.0.5:1"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("healthz request %d: got %d", i+1, rec.Code)
		}
	}
}

func TestTokenBucket_Allow(t *testing.T) {
	tb := NewTokenBucket(2, 0.001)

	for i := 0; i < 2; i++ {
		if ok, _, _, _ := tb.Allow(); !ok {
			t.Fatalf("token %d refused", i+1)
		}
	}
	ok, remaining, next, _ := tb.Allow()
	if ok || remaining != 0 {
		t.Errorf("Allow() on empty bucket = %v, %d", ok, remaining)
	}
	if !next.After(tb.lastRefill) {
		t.Error("next token time not in the future")
	}
}

func TestRateLimiting_NonPositiveBurstUsesMaxRequests(t *testing.T) {
	for _, burst := range []int{0, -5} {
		router := newLimitedRouter(burst)

		for i := 1; i <= 10; i++ {
			if rec := getItems(router, "10.0.0.9:1234"); rec.Code != http.StatusOK {
				t.Fatalf("burst %d, request %d: expected 200, got %d", burst, i, rec.Code)
			}
		}
		rec := getItems(router, "10.0.0.9:1234")
		if rec.Code != http.StatusTooManyRequests {
			t.Errorf("burst %d, request 11: expected 429, got %d", burst, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Burst"); got != "10" {
			t.Errorf("burst %d: X-RateLimit-Burst = %q, want 10", burst, got)
		}
	}
}
