package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestRateLimiterDisabledPassesThrough(t *testing.T) {
	rl := NewRateLimiter(zerolog.New(io.Discard), false, 1, 1)
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("GET", "/feed", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 with rate limiting disabled, got %d", rec.Code)
		}
	}
}

func TestRateLimiterRejectsBurstOverflow(t *testing.T) {
	rl := NewRateLimiter(zerolog.New(io.Discard), true, 0.001, 1)
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req1 := httptest.NewRequest("GET", "/feed", nil)
	req1.RemoteAddr = "10.0.0.1:1111"
	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected the first request within burst to succeed, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest("GET", "/feed", nil)
	req2.RemoteAddr = "10.0.0.1:1111"
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected the second request to exceed the burst of 1, got %d", rec2.Code)
	}
}

func TestRateLimiterTracksClientsIndependently(t *testing.T) {
	rl := NewRateLimiter(zerolog.New(io.Discard), true, 0.001, 1)
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		req := httptest.NewRequest("GET", "/feed", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected each distinct client's first request to succeed, got %d for %s", rec.Code, addr)
		}
	}
}

func TestClientKeyPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest("GET", "/feed", nil)
	req.RemoteAddr = "10.0.0.1:1111"
	req.Header.Set("X-Forwarded-For", "203.0.113.5")

	if got := clientKey(req); got != "203.0.113.5" {
		t.Fatalf("expected X-Forwarded-For to take precedence, got %q", got)
	}
}

func TestRateLimiterCleanupRemovesIdleLimitersAtFullBurst(t *testing.T) {
	rl := NewRateLimiter(zerolog.New(io.Discard), true, 100, 5)
	rl.limiterFor("k1")
	rl.Cleanup()
	if _, ok := rl.limiters["k1"]; ok {
		t.Fatal("expected a limiter at full burst capacity to be cleaned up")
	}
}
