package popularity

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/northstar-retail/feedcore/featurecache"
	"github.com/northstar-retail/feedcore/model"
	"github.com/northstar-retail/feedcore/store"
)

func TestRunAggregatesInteractionWeightsIntoGlobalTopK(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.SeedProduct(model.Product{ID: "p1", MerchantID: "m1", CategoryID: "c1"})
	mem.SeedProduct(model.Product{ID: "p2", MerchantID: "m2", CategoryID: "c1"})
	st := &store.Store{Products: mem, Merchants: mem, Interactions: mem, Features: mem, Search: mem}
	cache := featurecache.NewMemory()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()
	if err := mem.Append(ctx, model.Interaction{ProductID: "p1", Type: model.Purchase, CreatedAt: now.Add(-time.Hour)}); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := mem.Append(ctx, model.Interaction{ProductID: "p2", Type: model.View, CreatedAt: now.Add(-time.Hour)}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	a := New(st, cache, zerolog.New(io.Discard))
	if err := a.Run(ctx, now); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	topK, err := cache.GlobalTopK(ctx, 10)
	if err != nil {
		t.Fatalf("global top-k read failed: %v", err)
	}
	if len(topK) != 2 || topK[0].ID != "p1" {
		t.Fatalf("expected p1 (purchase, weight 8) to rank above p2 (view, weight 0.5), got %v", topK)
	}
}

func TestRunExcludesInteractionsOutsideWindow(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.SeedProduct(model.Product{ID: "p1", MerchantID: "m1", CategoryID: "c1"})
	st := &store.Store{Products: mem, Merchants: mem, Interactions: mem, Features: mem, Search: mem}
	cache := featurecache.NewMemory()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()
	if err := mem.Append(ctx, model.Interaction{ProductID: "p1", Type: model.Click, CreatedAt: now.Add(-2 * Window)}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	a := New(st, cache, zerolog.New(io.Discard))
	if err := a.Run(ctx, now); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	topK, err := cache.GlobalTopK(ctx, 10)
	if err != nil {
		t.Fatalf("global top-k read failed: %v", err)
	}
	if len(topK) != 0 {
		t.Fatalf("expected stale interaction to be excluded, got %v", topK)
	}
}
