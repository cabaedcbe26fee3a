package ranker

import (
	"context"
	"io"
	"math/rand"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/northstar-retail/feedcore/bandit"
	"github.com/northstar-retail/feedcore/featurecache"
	"github.com/northstar-retail/feedcore/model"
	"github.com/northstar-retail/feedcore/observability"
	"github.com/northstar-retail/feedcore/policy"
	"github.com/northstar-retail/feedcore/routing"
	"github.com/northstar-retail/feedcore/store"
	"github.com/northstar-retail/feedcore/textsearch"
)

// captureExporter collects exported spans for assertions without
// touching a real tracing backend.
type captureExporter struct {
	mu    sync.Mutex
	spans []*observability.Span
}

func (c *captureExporter) Export(spans []*observability.Span) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spans = append(c.spans, spans...)
	return nil
}

func (c *captureExporter) Shutdown() error { return nil }

func (c *captureExporter) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.spans))
	for i, s := range c.spans {
		out[i] = s.Name
	}
	return out
}

func testRanker(t *testing.T) (*Ranker, *store.MemoryStore, *featurecache.Memory) {
	t.Helper()
	mem := store.NewMemoryStore()
	st := &store.Store{Products: mem, Merchants: mem, Interactions: mem, Features: mem, Search: mem}
	cache := featurecache.NewMemory()
	log := zerolog.New(io.Discard)
	sampler := bandit.New(cache, log, rand.New(rand.NewSource(11)))
	search := textsearch.New(mem)
	policies := policy.NewStore()
	experiments := routing.NewEngine()
	return New(cache, st, sampler, search, policies, experiments, log), mem, cache
}

func TestRankReturnsEmptyResultForNoCandidates(t *testing.T) {
	r, _, _ := testRanker(t)
	result := r.Rank(context.Background(), Request{Limit: 10})
	if len(result.Items) != 0 {
		t.Fatalf("expected no items with an empty catalog, got %d", len(result.Items))
	}
}

func TestRankFallsBackToPopularityBackfill(t *testing.T) {
	r, mem, cache := testRanker(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		id := "p" + string(rune('0'+i))
		mem.SeedProduct(model.Product{ID: id, Title: "Shoe " + id, MerchantID: "m1", CategoryID: "shoes", Popularity: float64(i)})
	}
	if err := cache.ReplaceGlobalTopK(ctx, []featurecache.Scored{
		{ID: "p4", Score: 4}, {ID: "p3", Score: 3}, {ID: "p2", Score: 2}, {ID: "p1", Score: 1}, {ID: "p0", Score: 0},
	}); err != nil {
		t.Fatalf("seed global top-k failed: %v", err)
	}

	result := r.Rank(ctx, Request{Limit: 5})
	if len(result.Items) == 0 {
		t.Fatal("expected popularity backfill candidates")
	}
	if result.Items[0].Product.ID != "p4" {
		t.Fatalf("expected highest popularity product first, got %s", result.Items[0].Product.ID)
	}
}

func TestRankRespectsLimitAndSetsCursor(t *testing.T) {
	r, mem, cache := testRanker(t)
	ctx := context.Background()

	var scored []featurecache.Scored
	for i := 0; i < 10; i++ {
		id := "p" + string(rune('a'+i))
		mem.SeedProduct(model.Product{ID: id, Title: "item", MerchantID: "m1", CategoryID: "c1", Popularity: float64(10 - i)})
		scored = append(scored, featurecache.Scored{ID: id, Score: float64(10 - i)})
	}
	if err := cache.ReplaceGlobalTopK(ctx, scored); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	result := r.Rank(ctx, Request{Limit: 3})
	if len(result.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(result.Items))
	}
	if result.Cursor != result.Items[2].Product.ID {
		t.Fatalf("expected cursor to be the last item's id, got %s", result.Cursor)
	}
}

func TestRankAdvancesPastCursorOnNextPage(t *testing.T) {
	r, mem, cache := testRanker(t)
	ctx := context.Background()

	var scored []featurecache.Scored
	for i := 0; i < 10; i++ {
		id := "p" + string(rune('a'+i))
		mem.SeedProduct(model.Product{ID: id, Title: "item", MerchantID: "m1", CategoryID: "c1", Popularity: float64(10 - i)})
		scored = append(scored, featurecache.Scored{ID: id, Score: float64(10 - i)})
	}
	if err := cache.ReplaceGlobalTopK(ctx, scored); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	first := r.Rank(ctx, Request{Limit: 3})
	if len(first.Items) != 3 {
		t.Fatalf("expected 3 items on the first page, got %d", len(first.Items))
	}

	second := r.Rank(ctx, Request{Limit: 3, Cursor: first.Cursor})
	if len(second.Items) != 3 {
		t.Fatalf("expected 3 items on the second page, got %d", len(second.Items))
	}
	for _, it := range second.Items {
		for _, prev := range first.Items {
			if it.Product.ID == prev.Product.ID {
				t.Fatalf("expected page 2 to skip items already returned on page 1, got repeat %s", it.Product.ID)
			}
		}
	}
}

func TestRankWithTracerSpansEachCacheAndStoreCall(t *testing.T) {
	r, mem, cache := testRanker(t)
	ctx := context.Background()

	mem.SeedProduct(model.Product{ID: "p1", Title: "item", MerchantID: "m1", CategoryID: "c1", Popularity: 1})
	if err := cache.ReplaceGlobalTopK(ctx, []featurecache.Scored{{ID: "p1", Score: 1}}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	exporter := &captureExporter{}
	tracer := observability.NewTracer(zerolog.New(io.Discard), exporter, 1.0)
	r.WithTracer(tracer)

	r.Rank(ctx, Request{Limit: 5, SessionID: "s1"})
	tracer.Stop()

	names := exporter.names()
	want := []string{"cache.GlobalTopK", "cache.GetProductMetas", "store.Products.GetMany", "cache.SessionRecent"}
	for _, w := range want {
		found := false
		for _, n := range names {
			if n == w {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("expected a span named %q, got %v", w, names)
		}
	}
}

func TestRankClampsLimitToDefaultWhenUnset(t *testing.T) {
	r, _, _ := testRanker(t)
	if DefaultLimit <= 0 || MaxLimit < DefaultLimit {
		t.Fatalf("sanity check on limit constants failed: default=%d max=%d", DefaultLimit, MaxLimit)
	}
	result := r.Rank(context.Background(), Request{})
	if len(result.Items) != 0 {
		t.Fatalf("expected no candidates with empty catalog regardless of limit, got %d", len(result.Items))
	}
}

func TestRankUsesPersonalizedCandidatesOverPopularityOnly(t *testing.T) {
	r, mem, cache := testRanker(t)
	ctx := context.Background()

	mem.SeedProduct(model.Product{ID: "personal-1", Title: "personal", MerchantID: "m1", CategoryID: "c1", Popularity: 0.1})
	mem.SeedProduct(model.Product{ID: "global-1", Title: "global", MerchantID: "m2", CategoryID: "c1", Popularity: 0.9})

	if err := cache.ReplaceUserTopK(ctx, "user-1", []featurecache.Scored{{ID: "personal-1", Score: 0.95}}); err != nil {
		t.Fatalf("seed user top-k failed: %v", err)
	}
	if err := cache.ReplaceGlobalTopK(ctx, []featurecache.Scored{{ID: "global-1", Score: 0.9}}); err != nil {
		t.Fatalf("seed global top-k failed: %v", err)
	}

	result := r.Rank(ctx, Request{UserID: "user-1", Limit: 5})
	found := false
	for _, it := range result.Items {
		if it.Product.ID == "personal-1" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected personalized candidate to appear in results")
	}
}
