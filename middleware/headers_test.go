package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestHeaderNormalizationStripsInternalRequestHeaders(t *testing.T) {
	h := NewHeaderNormalization(zerolog.New(io.Discard))
	var sawInternal bool
	handler := h.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawInternal = r.Header.Get("x-internal-debug") != ""
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/feed", nil)
	req.Header.Set("X-Internal-Debug", "1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if sawInternal {
		t.Fatal("expected the internal debug header to be stripped before reaching the handler")
	}
}

func TestHeaderNormalizationDefaultsAcceptHeader(t *testing.T) {
	h := NewHeaderNormalization(zerolog.New(io.Discard))
	var accept string
	handler := h.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept = r.Header.Get("Accept")
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/feed", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if accept != "application/json" {
		t.Fatalf("expected Accept to default to application/json, got %q", accept)
	}
}

func TestHeaderNormalizationStripsUpstreamResponseHeaders(t *testing.T) {
	h := NewHeaderNormalization(zerolog.New(io.Discard))
	handler := h.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "nginx")
		w.Header().Set("X-Pod-Name", "pod-123")
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/feed", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("Server") != "" {
		t.Fatal("expected the Server header to be stripped from the response")
	}
	if rec.Header().Get("X-Pod-Name") != "" {
		t.Fatal("expected X-Pod-Name to be stripped from the response")
	}
	if rec.Header().Get("X-Powered-By") != "feedcore" {
		t.Fatalf("expected X-Powered-By: feedcore to be set, got %q", rec.Header().Get("X-Powered-By"))
	}
}

func TestHeaderNormalizationWriteImpliesOKStatus(t *testing.T) {
	h := NewHeaderNormalization(zerolog.New(io.Discard))
	handler := h.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("body"))
	}))

	req := httptest.NewRequest("GET", "/feed", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected an implicit 200 when Write is called without WriteHeader, got %d", rec.Code)
	}
}
