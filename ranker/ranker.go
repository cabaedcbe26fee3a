// Package ranker implements the online feed path (C5): candidate
// generation across personalized, textual, and popularity/category
// backfill phases, meta hydration, score fusion, diversity re-ranking,
// and pagination.
package ranker

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/rs/zerolog"

	"github.com/northstar-retail/feedcore/bandit"
	"github.com/northstar-retail/feedcore/diversity"
	"github.com/northstar-retail/feedcore/featurecache"
	"github.com/northstar-retail/feedcore/model"
	"github.com/northstar-retail/feedcore/observability"
	"github.com/northstar-retail/feedcore/policy"
	"github.com/northstar-retail/feedcore/routing"
	"github.com/northstar-retail/feedcore/store"
	"github.com/northstar-retail/feedcore/textsearch"
)

const (
	// DefaultLimit is used when a request omits limit.
	DefaultLimit = 30
	// MaxLimit bounds the page size a caller may request.
	MaxLimit = 100
	// candidateCap truncates the candidate map before scoring.
	candidateCap = 200
	// popularityBackfillFloor triggers popularity backfill when the
	// candidate set is smaller than this multiple of the page limit.
	popularityBackfillFloor = 3
	// categoryBackfillFloor triggers category backfill similarly.
	categoryBackfillFloor = 2
	// sessionTrailWindow bounds how many recent session ids count toward affinity.
	sessionTrailWindow = 20
)

// Request is the ranker's input record. ExperimentID selects a
// ranking-weight A/B arm via routing.Engine.Assign; empty means the
// control weights (routing.ControlWeights) are used unconditionally.
type Request struct {
	UserID            string
	SessionID         string
	SearchText        string
	ProductCategoryID string
	Cursor            string
	Limit             int
	ExperimentID      string
}

// Item is one ranked result.
type Item struct {
	Score   float64
	Product model.Product
}

// Result is the ranker's output record.
type Result struct {
	Items  []Item
	Cursor string
}

// Ranker ties together the cache, store, bandit sampler, text searcher,
// diversity policy store, and ranking-weight experiment engine into the
// end-to-end online path.
type Ranker struct {
	cache       featurecache.Cache
	store       *store.Store
	sampler     *bandit.Sampler
	search      *textsearch.Searcher
	policies    *policy.Store
	experiments *routing.Engine
	log         zerolog.Logger
	tracer      *observability.Tracer
}

// WithTracer attaches a tracer the ranker uses to span each cache/store
// call it makes while serving a request. A nil or unset tracer is a
// no-op: Rank works identically either way.
func (r *Ranker) WithTracer(tracer *observability.Tracer) *Ranker {
	r.tracer = tracer
	return r
}

// traceCall spans fn under name, attached as a child of whatever span
// ctx already carries. With no tracer configured it just runs fn.
func (r *Ranker) traceCall(ctx context.Context, name string, fn func(ctx context.Context)) {
	if r.tracer == nil {
		fn(ctx)
		return
	}
	span, spanCtx := r.tracer.StartChildSpan(ctx, name)
	fn(spanCtx)
	r.tracer.EndSpan(span)
}

// New returns a Ranker wired to its collaborators. policies and
// experiments may be nil: a nil policy store falls back to
// diversity.Default(), and a nil experiment engine always uses
// routing.ControlWeights().
func New(cache featurecache.Cache, st *store.Store, sampler *bandit.Sampler, search *textsearch.Searcher, policies *policy.Store, experiments *routing.Engine, log zerolog.Logger) *Ranker {
	return &Ranker{
		cache:       cache,
		store:       st,
		sampler:     sampler,
		search:      search,
		policies:    policies,
		experiments: experiments,
		log:         log.With().Str("component", "ranker").Logger(),
	}
}

func (r *Ranker) diversityPolicy(categoryID string) diversity.Policy {
	if r.policies == nil {
		return diversity.Default()
	}
	return r.policies.ForCategory(categoryID)
}

func (r *Ranker) weights(req Request) routing.Weights {
	if r.experiments == nil || req.ExperimentID == "" {
		return routing.ControlWeights()
	}
	key := req.UserID
	if key == "" {
		key = req.SessionID
	}
	w, _ := r.experiments.Assign(req.ExperimentID, key)
	return w
}

// candidate tracks a product's base score and the textual match score
// that contributed to it, accumulated across candidate-generation phases.
type candidate struct {
	id        string
	baseScore float64
	textScore float64
	order     int
}

// Rank executes the full online path and returns a best-effort result:
// any collaborator failure degrades rather than aborting, per the
// ranker's never-throw-for-operational-failures contract.
func (r *Ranker) Rank(ctx context.Context, req Request) Result {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	candidates := r.generateCandidates(ctx, req, limit)
	if len(candidates) > candidateCap {
		candidates = candidates[:candidateCap]
	}

	metas := r.hydrateMeta(ctx, candidates)
	sessionTrail := r.sessionTrail(ctx, req.SessionID)
	inTrail := make(map[string]bool, len(sessionTrail))
	for _, id := range sessionTrail {
		inTrail[id] = true
	}

	weights := r.weights(req)
	wText := weights.TextWithout
	if req.SearchText != "" {
		wText = weights.TextWith
	}

	scored := make([]Item, 0, len(candidates))
	cItems := make([]diversity.Item, 0, len(candidates))
	byID := make(map[string]model.Product, len(candidates))

	for _, c := range candidates {
		meta, ok := metas[c.id]
		if !ok {
			continue
		}
		sessionAffinity := 0.0
		if inTrail[c.id] {
			sessionAffinity = 1.0
		}
		banditSample := r.sampler.SampleMerchant(ctx, meta.MerchantID)

		final := weights.CF*c.baseScore +
			weights.Popularity*meta.Popularity +
			weights.Bandit*banditSample +
			wText*c.textScore +
			weights.Session*sessionAffinity

		if final < 0 {
			final = 0
		}

		product := model.Product{ID: c.id, Title: meta.Title, MerchantID: meta.MerchantID, CategoryID: meta.CategoryID, Popularity: meta.Popularity}
		byID[c.id] = product
		scored = append(scored, Item{Score: final, Product: product})
		cItems = append(cItems, diversity.Item{ID: c.id, MerchantID: meta.MerchantID, CategoryID: meta.CategoryID})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	order := make(map[string]int, len(scored))
	for i, it := range scored {
		order[it.Product.ID] = i
	}
	sort.SliceStable(cItems, func(i, j int) bool { return order[cItems[i].ID] < order[cItems[j].ID] })

	reranked := diversity.Rerank(cItems, r.diversityPolicy(req.ProductCategoryID))

	out := make([]Item, 0, limit)
	scoreByID := make(map[string]float64, len(scored))
	for _, it := range scored {
		scoreByID[it.Product.ID] = it.Score
	}
	skipping := req.Cursor != ""
	for _, it := range reranked {
		if skipping {
			if it.ID == req.Cursor {
				skipping = false
			}
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, Item{Score: scoreByID[it.ID], Product: byID[it.ID]})
	}

	cursor := ""
	if len(out) > 0 {
		cursor = out[len(out)-1].Product.ID
	}

	return Result{Items: out, Cursor: cursor}
}

// generateCandidates runs the four candidate-generation phases in
// their declared order so later phases observe earlier insertions.
func (r *Ranker) generateCandidates(ctx context.Context, req Request, limit int) []candidate {
	seen := make(map[string]int)
	var candidates []candidate

	insert := func(id string, score func(existing float64, had bool) float64) {
		if idx, ok := seen[id]; ok {
			candidates[idx].baseScore = score(candidates[idx].baseScore, true)
			return
		}
		base := score(0, false)
		seen[id] = len(candidates)
		candidates = append(candidates, candidate{id: id, baseScore: base, order: len(candidates)})
	}

	// 1. Personalized.
	if req.UserID != "" {
		var topK []featurecache.Scored
		var err error
		r.traceCall(ctx, "cache.UserTopK", func(ctx context.Context) {
			topK, err = r.cache.UserTopK(ctx, req.UserID, candidateCap)
		})
		if err != nil {
			r.log.Warn().Err(err).Str("user_id", req.UserID).Msg("user top-k read failed, degrading")
		}
		for _, s := range topK {
			score := s.Score
			insert(s.ID, func(float64, bool) float64 { return score })
		}
	}

	// 2. Textual.
	if req.SearchText != "" {
		var matches []store.TextMatch
		var err error
		r.traceCall(ctx, "search.Match", func(ctx context.Context) {
			matches, err = r.search.Match(ctx, req.SearchText)
		})
		if err != nil {
			r.log.Warn().Err(err).Msg("text search failed, degrading")
		}
		for _, m := range matches {
			textScore := m.Score
			if idx, ok := seen[m.ProductID]; ok {
				textBase := 0.05 + 0.8*textScore
				if textBase > candidates[idx].baseScore {
					candidates[idx].baseScore = textBase
				}
				candidates[idx].textScore = textScore
				continue
			}
			seen[m.ProductID] = len(candidates)
			candidates = append(candidates, candidate{
				id:        m.ProductID,
				baseScore: 0.05 + 0.8*textScore,
				textScore: textScore,
				order:     len(candidates),
			})
		}
	}

	// 3. Popularity backfill.
	if len(candidates) < popularityBackfillFloor*limit {
		var globalTopK []featurecache.Scored
		var err error
		r.traceCall(ctx, "cache.GlobalTopK", func(ctx context.Context) {
			globalTopK, err = r.cache.GlobalTopK(ctx, candidateCap)
		})
		if err != nil {
			r.log.Warn().Err(err).Msg("global top-k read failed, degrading")
		}
		for _, s := range globalTopK {
			if _, ok := seen[s.ID]; ok {
				continue
			}
			score := 0.6 * s.Score
			seen[s.ID] = len(candidates)
			candidates = append(candidates, candidate{id: s.ID, baseScore: score, order: len(candidates)})
		}
	}

	// 4. Category backfill.
	if req.ProductCategoryID != "" && len(candidates) < categoryBackfillFloor*limit {
		var products []model.Product
		var err error
		r.traceCall(ctx, "store.Products.ListByCategory", func(ctx context.Context) {
			products, err = r.store.Products.ListByCategory(ctx, req.ProductCategoryID, candidateCap)
		})
		if err != nil {
			r.log.Warn().Err(err).Str("category_id", req.ProductCategoryID).Msg("category backfill failed, degrading")
		}
		for _, p := range products {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			score := 0.5 * p.Popularity
			seen[p.ID] = len(candidates)
			candidates = append(candidates, candidate{id: p.ID, baseScore: score, order: len(candidates)})
		}
	}

	return candidates
}

// hydrateMeta bulk-fetches cached product meta, falling back to the
// store on miss and opportunistically repopulating the cache.
func (r *Ranker) hydrateMeta(ctx context.Context, candidates []candidate) map[string]model.ProductMeta {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}

	out := make(map[string]model.ProductMeta, len(ids))
	var missing []string

	var cached map[string][]byte
	var err error
	r.traceCall(ctx, "cache.GetProductMetas", func(ctx context.Context) {
		cached, err = r.cache.GetProductMetas(ctx, ids)
	})
	if err != nil {
		r.log.Warn().Err(err).Msg("product meta bulk read failed, falling back to store for all candidates")
		missing = ids
	} else {
		for _, id := range ids {
			raw, ok := cached[id]
			if !ok {
				missing = append(missing, id)
				continue
			}
			var meta model.ProductMeta
			if err := json.Unmarshal(raw, &meta); err != nil {
				missing = append(missing, id)
				continue
			}
			out[id] = meta
		}
	}

	if len(missing) == 0 {
		return out
	}

	var products map[string]model.Product
	r.traceCall(ctx, "store.Products.GetMany", func(ctx context.Context) {
		products, err = r.store.Products.GetMany(ctx, missing)
	})
	if err != nil {
		r.log.Warn().Err(err).Msg("product store bulk read failed, candidates will be dropped")
		return out
	}
	for id, p := range products {
		meta := model.ProductMeta{Title: p.Title, MerchantID: p.MerchantID, CategoryID: p.CategoryID, Popularity: p.Popularity}
		out[id] = meta
		if blob, err := json.Marshal(meta); err == nil {
			go func(id string, blob []byte) {
				defer func() { _ = recover() }()
				if err := r.cache.PutProductMeta(context.Background(), id, blob); err != nil {
					r.log.Debug().Err(err).Str("product_id", id).Msg("opportunistic meta cache repopulation failed")
				}
			}(id, blob)
		}
	}
	return out
}

// sessionTrail returns the session's recent-20 product ids used for
// the affinity term, degrading to empty on cache failure.
func (r *Ranker) sessionTrail(ctx context.Context, sessionID string) []string {
	if sessionID == "" {
		return nil
	}
	var trail []string
	var err error
	r.traceCall(ctx, "cache.SessionRecent", func(ctx context.Context) {
		trail, err = r.cache.SessionRecent(ctx, sessionID, sessionTrailWindow)
	})
	if err != nil {
		r.log.Warn().Err(err).Str("session_id", sessionID).Msg("session trail read failed, degrading")
		return nil
	}
	return trail
}
