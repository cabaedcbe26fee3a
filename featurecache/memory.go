package featurecache

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Cache used by unit and scenario tests. It
// mirrors the Redis semantics: TTL'd keys, atomic top-K replace, (1,1)
// default posteriors, and a deduped/trimmed session trail.
type Memory struct {
	mu sync.Mutex

	sortedSets map[string][]Scored
	expiresAt  map[string]time.Time

	productMeta map[string][]byte
	posteriors  map[string]Posterior
	sessions    map[string][]string

	events chan []byte
}

// NewMemory returns an empty in-memory cache whose event queue is a
// 10000-slot buffered channel; when it is full, PushEvent drops the
// oldest payload instead of blocking.
func NewMemory() *Memory {
	return &Memory{
		sortedSets:  make(map[string][]Scored),
		expiresAt:   make(map[string]time.Time),
		productMeta: make(map[string][]byte),
		posteriors:  make(map[string]Posterior),
		sessions:    make(map[string][]string),
		events:      make(chan []byte, 10000),
	}
}

func (m *Memory) ReplaceUserTopK(ctx context.Context, userID string, items []Scored) error {
	return m.replaceSortedSet(userTopKKey(userID), items, topKTTL)
}

func (m *Memory) ReplaceGlobalTopK(ctx context.Context, items []Scored) error {
	return m.replaceSortedSet(globalTopKKey, items, 0)
}

func (m *Memory) replaceSortedSet(key string, items []Scored, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Scored, len(items))
	copy(cp, items)
	m.sortedSets[key] = cp
	if ttl > 0 {
		m.expiresAt[key] = time.Now().Add(ttl)
	} else {
		delete(m.expiresAt, key)
	}
	return nil
}

func (m *Memory) UserTopK(ctx context.Context, userID string, limit int) ([]Scored, error) {
	return m.topK(userTopKKey(userID), limit)
}

func (m *Memory) GlobalTopK(ctx context.Context, limit int) ([]Scored, error) {
	return m.topK(globalTopKKey, limit)
}

func (m *Memory) topK(key string, limit int) ([]Scored, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if exp, ok := m.expiresAt[key]; ok && time.Now().After(exp) {
		delete(m.sortedSets, key)
		delete(m.expiresAt, key)
		return nil, nil
	}

	items := append([]Scored(nil), m.sortedSets[key]...)
	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ID < items[j].ID
	})
	if limit >= 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *Memory) PutProductMeta(ctx context.Context, productID string, meta []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.productMeta[productID] = meta
	return nil
}

func (m *Memory) GetProductMetas(ctx context.Context, productIDs []string) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]byte, len(productIDs))
	for _, id := range productIDs {
		if v, ok := m.productMeta[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (m *Memory) MerchantPosterior(ctx context.Context, merchantID string) (Posterior, error) {
	return m.posterior(merchantKey(merchantID))
}

func (m *Memory) CategoryPosterior(ctx context.Context, categoryID string) (Posterior, error) {
	return m.posterior(categoryKey(categoryID))
}

func (m *Memory) posterior(key string) (Posterior, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posteriors[key]
	if !ok {
		return Posterior{A: 1, B: 1}, nil
	}
	return p, nil
}

func (m *Memory) IncrementMerchantPosterior(ctx context.Context, merchantID string, success bool) error {
	return m.incrementPosterior(merchantKey(merchantID), success)
}

func (m *Memory) IncrementCategoryPosterior(ctx context.Context, categoryID string, success bool) error {
	return m.incrementPosterior(categoryKey(categoryID), success)
}

func (m *Memory) incrementPosterior(key string, success bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posteriors[key]
	if !ok {
		p = Posterior{A: 1, B: 1}
	}
	if success {
		p.A++
	} else {
		p.B++
	}
	m.posteriors[key] = p
	return nil
}

func (m *Memory) PushSessionRecent(ctx context.Context, sessionID, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sessionKey(sessionID)
	trail := m.sessions[key]
	if len(trail) > 0 && trail[0] == productID {
		return nil
	}
	trail = append([]string{productID}, trail...)
	if len(trail) > sessionCap {
		trail = trail[:sessionCap]
	}
	m.sessions[key] = trail
	return nil
}

func (m *Memory) SessionRecent(ctx context.Context, sessionID string, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trail := m.sessions[sessionKey(sessionID)]
	if limit >= 0 && len(trail) > limit {
		trail = trail[:limit]
	}
	out := make([]string, len(trail))
	copy(out, trail)
	return out, nil
}

func (m *Memory) FlushSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionKey(sessionID))
	return nil
}

func (m *Memory) PushEvent(ctx context.Context, payload []byte) error {
	cp := append([]byte(nil), payload...)
	select {
	case m.events <- cp:
		return nil
	default:
		// Queue is saturated; drop the oldest to make room rather than
		// block the producer, mirroring a bounded durable queue under
		// backpressure.
		select {
		case <-m.events:
		default:
		}
		m.events <- cp
		return nil
	}
}

func (m *Memory) PopEvent(ctx context.Context, timeout time.Duration) ([]byte, bool, error) {
	select {
	case payload := <-m.events:
		return payload, true, nil
	case <-time.After(timeout):
		return nil, false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}
