package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/northstar-retail/feedcore/model"
)

// MemoryStore is an in-memory Store used by unit and scenario tests. It
// implements ProductRepo, MerchantRepo, InteractionRepo, FeatureBlobRepo,
// and a naive trigram-similarity TextSearcher standing in for a real
// trigram index.
type MemoryStore struct {
	mu sync.RWMutex

	products     map[string]model.Product
	merchantPop  map[string]float64
	interactions []model.Interaction
	features     map[string]map[string][]float64 // namespace -> key -> value
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:    make(map[string]model.Product),
		merchantPop: make(map[string]float64),
		features:    make(map[string]map[string][]float64),
	}
}

// SeedProduct inserts or replaces a product, for test setup.
func (m *MemoryStore) SeedProduct(p model.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

func (m *MemoryStore) Get(ctx context.Context, id string) (model.Product, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	return p, ok, nil
}

func (m *MemoryStore) GetMany(ctx context.Context, ids []string) (map[string]model.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]model.Product, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (m *MemoryStore) ListByCategory(ctx context.Context, categoryID string, limit int) ([]model.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Product
	for _, p := range m.products {
		if p.CategoryID == categoryID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Popularity > out[j].Popularity })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListTopByPopularity(ctx context.Context, limit int) ([]model.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Popularity != out[j].Popularity {
			return out[i].Popularity > out[j].Popularity
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) SetPopularity(ctx context.Context, id string, popularity float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil
	}
	p.Popularity = popularity
	m.products[id] = p
	return nil
}

func (m *MemoryStore) SetMerchantPopularity(ctx context.Context, id string, popularity float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merchantPop[id] = popularity
	return nil
}

func (m *MemoryStore) Append(ctx context.Context, in model.Interaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now()
	}
	m.interactions = append(m.interactions, in)
	return nil
}

func (m *MemoryStore) ListSince(ctx context.Context, since time.Time, limit int) ([]model.Interaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Interaction
	for _, in := range m.interactions {
		if !in.CreatedAt.Before(since) {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Put(ctx context.Context, namespace, key string, value []float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureNamespace(namespace)[key] = value
	return nil
}

func (m *MemoryStore) PutBatch(ctx context.Context, namespace string, values map[string][]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns := m.ensureNamespace(namespace)
	for k, v := range values {
		ns[k] = v
	}
	return nil
}

func (m *MemoryStore) ensureNamespace(namespace string) map[string][]float64 {
	ns, ok := m.features[namespace]
	if !ok {
		ns = make(map[string][]float64)
		m.features[namespace] = ns
	}
	return ns
}

func (m *MemoryStore) GetFeature(ctx context.Context, namespace, key string) ([]float64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ns, ok := m.features[namespace]
	if !ok {
		return nil, false, nil
	}
	v, ok := ns[key]
	return v, ok, nil
}

func (m *MemoryStore) AllInNamespace(ctx context.Context, namespace string) (map[string][]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]float64, len(m.features[namespace]))
	for k, v := range m.features[namespace] {
		out[k] = v
	}
	return out, nil
}

// SearchProducts is a naive stand-in for a trigram index: it scores each
// product by the Jaccard similarity (shared trigrams over the union) of
// the query against the title or the description, whichever is higher,
// which is enough to exercise the ranker's
// textual candidate phase deterministically in tests.
func (m *MemoryStore) SearchProducts(ctx context.Context, query string, limit int) ([]TextMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	qTrigrams := trigramSet(query)
	if len(qTrigrams) == 0 {
		return nil, nil
	}

	var out []TextMatch
	for _, p := range m.products {
		titleScore := trigramSimilarity(qTrigrams, trigramSet(p.Title))
		descScore := trigramSimilarity(qTrigrams, trigramSet(p.Description))
		score := titleScore
		if descScore > score {
			score = descScore
		}
		if score > 0 {
			out = append(out, TextMatch{ProductID: p.ID, Score: score})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ProductID < out[j].ProductID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func trigramSet(s string) map[string]struct{} {
	s = strings.ToLower(strings.TrimSpace(s))
	set := make(map[string]struct{})
	padded := "  " + s + "  "
	for i := 0; i+3 <= len(padded); i++ {
		set[padded[i:i+3]] = struct{}{}
	}
	return set
}

func trigramSimilarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for g := range a {
		if _, ok := b[g]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	if union == 0 {
		return 0
	}
	score := float64(shared) / float64(union)
	if score > 1 {
		score = 1
	}
	return score
}
