package router

import (
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/northstar-retail/feedcore/bandit"
	"github.com/northstar-retail/feedcore/cacheadmin"
	"github.com/northstar-retail/feedcore/config"
	"github.com/northstar-retail/feedcore/featurecache"
	"github.com/northstar-retail/feedcore/handler"
	"github.com/northstar-retail/feedcore/model"
	"github.com/northstar-retail/feedcore/policy"
	"github.com/northstar-retail/feedcore/ranker"
	"github.com/northstar-retail/feedcore/routing"
	"github.com/northstar-retail/feedcore/store"
	"github.com/northstar-retail/feedcore/textsearch"
)

func testSetup() http.Handler {
	cfg := &config.Config{
		Addr:             ":0",
		Env:              "test",
		RateLimitEnabled: false,
		MaxBodyBytes:     1 << 20,
	}
	log := zerolog.New(io.Discard).With().Timestamp().Logger()

	mem := store.NewMemoryStore()
	mem.SeedProduct(model.Product{ID: "p1", Title: "Trail Running Shoe", MerchantID: "m1", CategoryID: "shoes", Popularity: 0.8})
	st := &store.Store{Products: mem, Merchants: mem, Interactions: mem, Features: mem, Search: mem}

	cache := featurecache.NewMemory()
	sampler := bandit.New(cache, log, rand.New(rand.NewSource(1)))
	search := textsearch.New(mem)
	policies := policy.NewStore()
	experiments := routing.NewEngine()
	cacheAdmin := cacheadmin.NewAdmin(cache, log)
	rnk := ranker.New(cache, st, sampler, search, policies, experiments, log)
	eventsHandler := handler.NewEventsHandler(cache, log)

	return NewRouter(cfg, log, rnk, cacheAdmin, policies, experiments, eventsHandler, nil, nil)
}

func TestHealthEndpoints(t *testing.T) {
	r := testSetup()

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"healthz", "/healthz", http.StatusOK},
		{"ready", "/ready", http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			rw := httptest.NewRecorder()
			r.ServeHTTP(rw, req)
			if rw.Result().StatusCode != tc.status {
				t.Fatalf("expected %d for %s, got %d", tc.status, tc.path, rw.Result().StatusCode)
			}
		})
	}
}

func TestFeedEndpointReturnsItems(t *testing.T) {
	r := testSetup()

	req := httptest.NewRequest(http.MethodGet, "/feed?productCategoryId=shoes&limit=10", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	if rw.Result().StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Result().StatusCode, rw.Body.String())
	}
}

func TestEventsEndpointRejectsInvalidPayload(t *testing.T) {
	r := testSetup()

	req := httptest.NewRequest(http.MethodPost, "/events", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	if rw.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing body, got %d", rw.Result().StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	r := testSetup()

	req := httptest.NewRequest(http.MethodOptions, "/feed", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	if rw.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatal("expected CORS Allow-Origin header on preflight response")
	}
}

func TestSecurityHeaders(t *testing.T) {
	r := testSetup()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	headers := []string{
		"X-Content-Type-Options",
		"X-Frame-Options",
		"Strict-Transport-Security",
	}
	for _, h := range headers {
		if rw.Header().Get(h) == "" {
			t.Fatalf("expected security header %s to be set", h)
		}
	}
}

func TestAdminPolicyCRUD(t *testing.T) {
	r := testSetup()

	body := `{"id":"shoes-override","category_id":"shoes","max_consecutive":2,"max_merchant_ratio":0.4,"max_category_ratio":0.6,"active":true}`
	req := httptest.NewRequest(http.MethodPost, "/admin/policies", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	if rw.Result().StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Result().StatusCode, rw.Body.String())
	}

	getReq := httptest.NewRequest(http.MethodGet, "/admin/policies/shoes-override", nil)
	getRw := httptest.NewRecorder()
	r.ServeHTTP(getRw, getReq)
	if getRw.Result().StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on get, got %d", getRw.Result().StatusCode)
	}
}
