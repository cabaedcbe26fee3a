// Package cf implements the offline collaborative-filtering trainer
// (C4.4.2): implicit-feedback SGD over summed interaction weights,
// producing per-user and per-product latent factor vectors and a
// per-user top-K projection.
package cf

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/northstar-retail/feedcore/featurecache"
	"github.com/northstar-retail/feedcore/model"
	"github.com/northstar-retail/feedcore/store"
)

const (
	// Window is how far back interactions are loaded for training.
	Window = 90 * 24 * time.Hour
	// MaxRows caps the number of interaction rows loaded per run.
	MaxRows = 1_000_000
	// Epochs is the number of full passes over the training triples.
	Epochs = 3
	// LearningRate is the SGD step size, eta.
	LearningRate = 0.025
	// L2 is the regularization strength, lambda.
	L2 = 0.01
	// InitSpread bounds the uniform initial noise for each vector component.
	InitSpread = 0.005
	// TopK is how many products are retained per user in the cache projection.
	TopK = 200
	// AnonUser is the grouping key for interactions with no userId.
	AnonUser = "anon"
)

// triple is one (user, product) training example: the sum of
// interaction weights observed for that pair within the window.
type triple struct {
	user    string
	product string
	weight  float64
}

// Trainer runs the SGD factorization and persists the result.
type Trainer struct {
	store *store.Store
	cache featurecache.Cache
	log   zerolog.Logger
	dim   int
	seed  int64
}

// New returns a Trainer. dim is the latent dimension D (LATENT_DIM);
// seed fixes the RNG so a given (seed, input order) reproduces
// bitwise-identical vectors, per the determinism requirement.
func New(st *store.Store, cache featurecache.Cache, log zerolog.Logger, dim int, seed int64) *Trainer {
	return &Trainer{store: st, cache: cache, log: log.With().Str("component", "cf_trainer").Logger(), dim: dim, seed: seed}
}

// Run loads the training window, fits factor vectors, persists them,
// and refreshes every trained user's top-K cache entry.
func (t *Trainer) Run(ctx context.Context, now time.Time) error {
	since := now.Add(-Window)
	interactions, err := t.store.Interactions.ListSince(ctx, since, MaxRows)
	if err != nil {
		return fmt.Errorf("cf: list interactions: %w", err)
	}

	triples, userOrder, productOrder := buildTriples(interactions)
	t.log.Info().Int("triples", len(triples)).Int("users", len(userOrder)).Int("products", len(productOrder)).Msg("cf: training set built")

	rng := rand.New(rand.NewSource(t.seed))
	userVec := initVectors(rng, userOrder, t.dim)
	productVec := initVectors(rng, productOrder, t.dim)

	for epoch := 0; epoch < Epochs; epoch++ {
		for _, tr := range triples {
			u := userVec[tr.user]
			p := productVec[tr.product]
			pred := dot(u, p)
			e := tr.weight - pred
			for i := 0; i < t.dim; i++ {
				ui := u[i]
				pi := p[i]
				u[i] = ui + LearningRate*(e*pi-L2*ui)
				p[i] = pi + LearningRate*(e*ui-L2*pi)
			}
		}
	}

	if err := t.store.Features.PutBatch(ctx, model.NamespaceUserFactors, userVec); err != nil {
		return fmt.Errorf("cf: persist user factors: %w", err)
	}
	if err := t.store.Features.PutBatch(ctx, model.NamespaceProductFactors, productVec); err != nil {
		return fmt.Errorf("cf: persist product factors: %w", err)
	}

	if err := t.refreshTopK(ctx, userOrder, userVec, productOrder, productVec); err != nil {
		return fmt.Errorf("cf: refresh top-k: %w", err)
	}

	t.log.Info().Msg("cf: training pass complete")
	return nil
}

// refreshTopK scores every trained user against every trained product
// and atomically replaces each user's cached top-K. This is the naive
// O(users*products*D) approach the specification explicitly permits
// substituting with an ANN index; it is kept here for exactness
// against the golden determinism test.
func (t *Trainer) refreshTopK(ctx context.Context, userOrder []string, userVec map[string][]float64, productOrder []string, productVec map[string][]float64) error {
	for _, u := range userOrder {
		uv := userVec[u]
		scored := make([]featurecache.Scored, 0, len(productOrder))
		for _, p := range productOrder {
			scored = append(scored, featurecache.Scored{ID: p, Score: dot(uv, productVec[p])})
		}
		sort.Slice(scored, func(i, j int) bool {
			if scored[i].Score != scored[j].Score {
				return scored[i].Score > scored[j].Score
			}
			return scored[i].ID < scored[j].ID
		})
		if len(scored) > TopK {
			scored = scored[:TopK]
		}
		if err := t.cache.ReplaceUserTopK(ctx, u, scored); err != nil {
			t.log.Warn().Err(err).Str("user_id", u).Msg("cf: top-k cache replace failed")
		}
	}
	return nil
}

// buildTriples groups interactions by (user-or-anon, product) and sums
// weights, returning the triples plus deterministic first-seen orderings
// for users and products (insertion order drives reproducibility).
func buildTriples(interactions []model.Interaction) ([]triple, []string, []string) {
	index := make(map[[2]string]int)
	var triples []triple
	var userOrder, productOrder []string
	seenUser := make(map[string]struct{})
	seenProduct := make(map[string]struct{})

	for _, in := range interactions {
		user := AnonUser
		if in.UserID != nil && *in.UserID != "" {
			user = *in.UserID
		}
		key := [2]string{user, in.ProductID}
		if idx, ok := index[key]; ok {
			triples[idx].weight += in.Type.Weight()
			continue
		}
		index[key] = len(triples)
		triples = append(triples, triple{user: user, product: in.ProductID, weight: in.Type.Weight()})

		if _, ok := seenUser[user]; !ok {
			seenUser[user] = struct{}{}
			userOrder = append(userOrder, user)
		}
		if _, ok := seenProduct[in.ProductID]; !ok {
			seenProduct[in.ProductID] = struct{}{}
			productOrder = append(productOrder, in.ProductID)
		}
	}
	return triples, userOrder, productOrder
}

func initVectors(rng *rand.Rand, keys []string, dim int) map[string][]float64 {
	out := make(map[string][]float64, len(keys))
	for _, k := range keys {
		v := make([]float64, dim)
		for i := range v {
			v[i] = (rng.Float64()*2 - 1) * InitSpread
		}
		out[k] = v
	}
	return out
}

func dot(a, b []float64) float64 {
	var sum float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
