// Package bandit implements the Thompson-sampled merchant/category
// quality signal (C2). Each merchant and category carries a Beta(a,b)
// posterior over "this entity yields a successful interaction";
// sampling and outcome recording both flow through featurecache so the
// posteriors are shared across every ranker instance.
package bandit

import (
	"context"
	"math"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/northstar-retail/feedcore/featurecache"
)

// Outcome classifies a recorded interaction as success or failure for
// posterior updates. Purchases and clicks count as success; views alone
// count as failure; carts are neutral and are not recorded at all.
type Outcome bool

const (
	Success Outcome = true
	Failure Outcome = false
)

// Sampler draws Thompson samples and records outcomes against the
// shared cache-backed posteriors.
type Sampler struct {
	cache featurecache.Cache
	log   zerolog.Logger
	rng   *rand.Rand
}

// New returns a Sampler. rng may be nil, in which case the Sampler gets
// its own source seeded with 1, so an unseeded Sampler draws the same
// sequence every run.
func New(cache featurecache.Cache, log zerolog.Logger, rng *rand.Rand) *Sampler {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Sampler{cache: cache, log: log.With().Str("component", "bandit").Logger(), rng: rng}
}

// SampleMerchant draws a Thompson sample for a merchant's posterior. On
// a cache read failure it degrades to the neutral prior mean (0.5)
// rather than failing the caller's request.
func (s *Sampler) SampleMerchant(ctx context.Context, merchantID string) float64 {
	p, err := s.cache.MerchantPosterior(ctx, merchantID)
	if err != nil {
		s.log.Warn().Err(err).Str("merchant_id", merchantID).Msg("posterior read failed, using neutral prior")
		return 0.5
	}
	return sampleBeta(s.rng, p.A, p.B)
}

// SampleCategory draws a Thompson sample for a category's posterior,
// degrading the same way SampleMerchant does.
func (s *Sampler) SampleCategory(ctx context.Context, categoryID string) float64 {
	p, err := s.cache.CategoryPosterior(ctx, categoryID)
	if err != nil {
		s.log.Warn().Err(err).Str("category_id", categoryID).Msg("posterior read failed, using neutral prior")
		return 0.5
	}
	return sampleBeta(s.rng, p.A, p.B)
}

// RecordMerchant updates a merchant's posterior with an observed
// outcome. Cache write failures are logged, not returned: a lost
// posterior update should never fail an event-ingestion request.
func (s *Sampler) RecordMerchant(ctx context.Context, merchantID string, outcome Outcome) {
	if err := s.cache.IncrementMerchantPosterior(ctx, merchantID, bool(outcome)); err != nil {
		s.log.Warn().Err(err).Str("merchant_id", merchantID).Msg("posterior increment failed")
	}
}

// RecordCategory updates a category's posterior with an observed outcome.
func (s *Sampler) RecordCategory(ctx context.Context, categoryID string, outcome Outcome) {
	if err := s.cache.IncrementCategoryPosterior(ctx, categoryID, bool(outcome)); err != nil {
		s.log.Warn().Err(err).Str("category_id", categoryID).Msg("posterior increment failed")
	}
}

// sampleBeta draws from Beta(a,b) using the two-Gamma construction:
// given independent X ~ Gamma(a,1) and Y ~ Gamma(b,1), X/(X+Y) ~
// Beta(a,b). Resamples on the degenerate X=Y=0 case so the result is
// never exactly 0 or 1.
func sampleBeta(rng *rand.Rand, a, b int64) float64 {
	for {
		x := sampleGamma(rng, float64(a))
		y := sampleGamma(rng, float64(b))
		if x == 0 && y == 0 {
			continue
		}
		v := x / (x + y)
		if v <= 0 {
			v = 1e-9
		}
		if v >= 1 {
			v = 1 - 1e-9
		}
		return v
	}
}

// sampleGamma draws from Gamma(shape, 1) via Marsaglia-Tsang for
// shape >= 1, boosting small shapes by one and correcting with a
// uniform power draw, per the standard transform.
func sampleGamma(rng *rand.Rand, shape float64) float64 {
	if shape <= 0 {
		return 0
	}
	if shape < 1 {
		u := rng.Float64()
		return sampleGamma(rng, shape+1) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9*d)
	for {
		var x, v float64
		for {
			x = rng.NormFloat64()
			v = 1 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}
