package textsearch

import (
	"context"
	"testing"

	"github.com/northstar-retail/feedcore/model"
	"github.com/northstar-retail/feedcore/store"
)

func TestMatchReturnsEmptyForBlankQuery(t *testing.T) {
	mem := store.NewMemoryStore()
	s := New(mem)
	matches, err := s.Match(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches for a blank query, got %v", matches)
	}
}

func TestMatchRanksCloserTitlesHigher(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.SeedProduct(model.Product{ID: "p1", Title: "Trail Running Shoe", MerchantID: "m1", CategoryID: "shoes"})
	mem.SeedProduct(model.Product{ID: "p2", Title: "Kitchen Blender", MerchantID: "m2", CategoryID: "appliances"})

	s := New(mem)
	matches, err := s.Match(context.Background(), "running shoe")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) == 0 || matches[0].ProductID != "p1" {
		t.Fatalf("expected p1 to rank first for a close title match, got %v", matches)
	}
}

func TestMatchExcludesUnrelatedProducts(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.SeedProduct(model.Product{ID: "p1", Title: "Trail Running Shoe", MerchantID: "m1", CategoryID: "shoes"})

	s := New(mem)
	matches, err := s.Match(context.Background(), "zzz nonsense query")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches for an unrelated query, got %v", matches)
	}
}

func TestMatchRespectsCandidateLimit(t *testing.T) {
	mem := store.NewMemoryStore()
	for i := 0; i < CandidateLimit+20; i++ {
		id := "p" + string(rune('a'+(i%26))) + string(rune('0'+(i/26)))
		mem.SeedProduct(model.Product{ID: id, Title: "Running Shoe", MerchantID: "m1", CategoryID: "shoes"})
	}

	s := New(mem)
	matches, err := s.Match(context.Background(), "running shoe")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) > CandidateLimit {
		t.Fatalf("expected at most %d matches, got %d", CandidateLimit, len(matches))
	}
}
