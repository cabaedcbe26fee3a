// Package popularity implements the windowed popularity aggregator
// (C4.4.1): a batch job summing interaction weights over a trailing
// window and writing the results back to the store, the global top-K
// cache, and the product meta cache.
package popularity

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/northstar-retail/feedcore/featurecache"
	"github.com/northstar-retail/feedcore/model"
	"github.com/northstar-retail/feedcore/store"
)

const (
	// Window is how far back interactions are aggregated.
	Window = 30 * 24 * time.Hour
	// TopProducts is how many product popularity rows are persisted.
	TopProducts = 50000
	// TopMerchants is how many merchant popularity rows are persisted.
	TopMerchants = 10000
	// scanLimit bounds a single ListSince read; callers needing more
	// history should page by adjusting `since`.
	scanLimit = 2_000_000
)

// Aggregator computes popularity from the interaction log.
type Aggregator struct {
	store *store.Store
	cache featurecache.Cache
	log   zerolog.Logger
}

// New returns an Aggregator wired to the shared store and cache.
func New(st *store.Store, cache featurecache.Cache, log zerolog.Logger) *Aggregator {
	return &Aggregator{store: st, cache: cache, log: log.With().Str("component", "popularity_aggregator").Logger()}
}

// Run performs one full aggregation pass: product popularity, global
// top-K, product meta refresh, and merchant popularity.
func (a *Aggregator) Run(ctx context.Context, now time.Time) error {
	since := now.Add(-Window)
	interactions, err := a.store.Interactions.ListSince(ctx, since, scanLimit)
	if err != nil {
		return fmt.Errorf("popularity: list interactions: %w", err)
	}

	productWeight := make(map[string]float64)
	for _, in := range interactions {
		productWeight[in.ProductID] += in.Type.Weight()
	}

	ranked := rankByWeight(productWeight)
	if len(ranked) > TopProducts {
		a.log.Info().Int("dropped", len(ranked)-TopProducts).Msg("popularity: truncating product ranking to top cap")
		ranked = ranked[:TopProducts]
	}

	topK := make([]featurecache.Scored, 0, len(ranked))
	for _, r := range ranked {
		if err := a.store.Products.SetPopularity(ctx, r.id, r.weight); err != nil {
			a.log.Warn().Err(err).Str("product_id", r.id).Msg("popularity: set product popularity failed")
			continue
		}
		topK = append(topK, featurecache.Scored{ID: r.id, Score: r.weight})

		p, ok, err := a.store.Products.Get(ctx, r.id)
		if err != nil || !ok {
			continue
		}
		p.Popularity = r.weight
		meta := model.ProductMeta{Title: p.Title, MerchantID: p.MerchantID, CategoryID: p.CategoryID, Popularity: p.Popularity}
		blob, err := json.Marshal(meta)
		if err != nil {
			continue
		}
		if err := a.cache.PutProductMeta(ctx, r.id, blob); err != nil {
			a.log.Warn().Err(err).Str("product_id", r.id).Msg("popularity: product meta cache write failed")
		}
	}

	if err := a.cache.ReplaceGlobalTopK(ctx, topK); err != nil {
		return fmt.Errorf("popularity: replace global top-k: %w", err)
	}

	if err := a.rollupMerchants(ctx, ranked); err != nil {
		a.log.Warn().Err(err).Msg("popularity: merchant rollup failed")
	}

	a.log.Info().Int("products", len(ranked)).Msg("popularity: aggregation pass complete")
	return nil
}

// rollupMerchants sums each merchant's already-computed product
// popularity and persists the top TopMerchants rows.
func (a *Aggregator) rollupMerchants(ctx context.Context, ranked []weightedID) error {
	merchantWeight := make(map[string]float64)
	for _, r := range ranked {
		p, ok, err := a.store.Products.Get(ctx, r.id)
		if err != nil || !ok {
			continue
		}
		merchantWeight[p.MerchantID] += r.weight
	}

	merchantRanked := rankByWeight(merchantWeight)
	if len(merchantRanked) > TopMerchants {
		merchantRanked = merchantRanked[:TopMerchants]
	}
	for _, r := range merchantRanked {
		if err := a.store.Merchants.SetMerchantPopularity(ctx, r.id, r.weight); err != nil {
			a.log.Warn().Err(err).Str("merchant_id", r.id).Msg("popularity: set merchant popularity failed")
		}
	}
	return nil
}

type weightedID struct {
	id     string
	weight float64
}

func rankByWeight(weights map[string]float64) []weightedID {
	out := make([]weightedID, 0, len(weights))
	for id, w := range weights {
		out = append(out, weightedID{id: id, weight: w})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].weight != out[j].weight {
			return out[i].weight > out[j].weight
		}
		return out[i].id < out[j].id
	})
	return out
}
