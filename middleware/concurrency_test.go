package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSemaphoreAcquireBlocksAtLimit(t *testing.T) {
	s := NewSemaphore(1)
	if !s.Acquire("k", 10*time.Millisecond) {
		t.Fatal("expected first acquire to succeed")
	}
	if s.Acquire("k", 10*time.Millisecond) {
		t.Fatal("expected second acquire to time out at limit 1")
	}
	s.Release("k")
	if !s.Acquire("k", 10*time.Millisecond) {
		t.Fatal("expected acquire to succeed again after release")
	}
}

func TestSemaphoreActiveCountTracksHeldSlots(t *testing.T) {
	s := NewSemaphore(2)
	s.Acquire("k", time.Second)
	s.Acquire("k", time.Second)
	if got := s.ActiveCount("k"); got != 2 {
		t.Fatalf("expected active count 2, got %d", got)
	}
	s.Release("k")
	if got := s.ActiveCount("k"); got != 1 {
		t.Fatalf("expected active count 1 after release, got %d", got)
	}
}

func TestDeduplicatorTryStartReturnsExistingEntry(t *testing.T) {
	d := NewDeduplicator()
	fp := Fingerprint("u1", "s1", "shoes")

	_, isNew1 := d.TryStart(fp)
	if !isNew1 {
		t.Fatal("expected the first TryStart to be new")
	}
	_, isNew2 := d.TryStart(fp)
	if isNew2 {
		t.Fatal("expected the second TryStart for the same fingerprint to find the in-flight entry")
	}
	if d.InFlightCount() != 1 {
		t.Fatalf("expected 1 in-flight request, got %d", d.InFlightCount())
	}
}

func TestDeduplicatorCompleteRemovesEntryAndUnblocksWaiters(t *testing.T) {
	d := NewDeduplicator()
	fp := Fingerprint("u1", "s1", "shoes")
	entry, _ := d.TryStart(fp)

	d.Complete(fp, []byte("ok"), 200, nil)

	select {
	case <-entry.done:
	case <-time.After(time.Second):
		t.Fatal("expected waiters to be unblocked after Complete")
	}
	if d.InFlightCount() != 0 {
		t.Fatalf("expected 0 in-flight after completion, got %d", d.InFlightCount())
	}
}

func TestFingerprintIsStableForSameInputs(t *testing.T) {
	a := Fingerprint("u1", "s1", "shoes")
	b := Fingerprint("u1", "s1", "shoes")
	if a != b {
		t.Fatal("expected fingerprint to be deterministic for identical inputs")
	}
	c := Fingerprint("u2", "s1", "shoes")
	if a == c {
		t.Fatal("expected fingerprint to differ for different user ids")
	}
}

func TestConcurrencyGuardMiddlewareRejectsOverLimit(t *testing.T) {
	cg := NewConcurrencyGuard(1, 10*time.Millisecond, zerolog.New(io.Discard))
	block := make(chan struct{})
	handler := cg.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.WriteHeader(http.StatusOK)
	}))

	done := make(chan struct{})
	go func() {
		req := httptest.NewRequest("GET", "/feed?sessionId=s1", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	req := httptest.NewRequest("GET", "/feed?sessionId=s1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 when the per-session limit is exceeded, got %d", rec.Code)
	}

	close(block)
	<-done
}

func TestConcurrencyGuardPassesThroughWithoutSessionKey(t *testing.T) {
	cg := NewConcurrencyGuard(1, 10*time.Millisecond, zerolog.New(io.Discard))
	called := false
	handler := cg.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/feed", nil)
	req.RemoteAddr = ""
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatal("expected request without a usable concurrency key to pass through")
	}
}
