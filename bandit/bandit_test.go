package bandit

import (
	"context"
	"io"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"

	"github.com/northstar-retail/feedcore/featurecache"
)

func testSampler() (*Sampler, *featurecache.Memory) {
	cache := featurecache.NewMemory()
	log := zerolog.New(io.Discard)
	return New(cache, log, rand.New(rand.NewSource(7))), cache
}

func TestSampleMerchantReturnsUnitInterval(t *testing.T) {
	sampler, _ := testSampler()
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		v := sampler.SampleMerchant(ctx, "m1")
		if v <= 0 || v >= 1 {
			t.Fatalf("sample out of (0,1): %f", v)
		}
	}
}

func TestRecordMerchantShiftsPosteriorTowardSuccess(t *testing.T) {
	sampler, cache := testSampler()
	ctx := context.Background()

	before, err := cache.MerchantPosterior(ctx, "m1")
	if err != nil {
		t.Fatalf("posterior read failed: %v", err)
	}

	for i := 0; i < 50; i++ {
		sampler.RecordMerchant(ctx, "m1", Success)
	}

	after, err := cache.MerchantPosterior(ctx, "m1")
	if err != nil {
		t.Fatalf("posterior read failed: %v", err)
	}
	if after.A <= before.A {
		t.Fatalf("expected A to increase after successes: before=%d after=%d", before.A, after.A)
	}

	// Successive samples should skew high after many recorded successes.
	sum := 0.0
	for i := 0; i < 200; i++ {
		sum += sampler.SampleMerchant(ctx, "m1")
	}
	mean := sum / 200
	if mean < 0.7 {
		t.Fatalf("expected posterior mean to skew high after successes, got %f", mean)
	}
}

func TestRecordCategoryShiftsPosteriorTowardFailure(t *testing.T) {
	sampler, cache := testSampler()
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		sampler.RecordCategory(ctx, "c1", Failure)
	}

	after, err := cache.CategoryPosterior(ctx, "c1")
	if err != nil {
		t.Fatalf("posterior read failed: %v", err)
	}
	if after.B <= 1 {
		t.Fatalf("expected B to increase after failures, got %d", after.B)
	}
}
