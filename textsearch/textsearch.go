// Package textsearch exposes the fuzzy title/description match used
// by the ranker's textual candidate phase, as a thin typed wrapper
// over the store's trigram search.
package textsearch

import (
	"context"
	"fmt"

	"github.com/northstar-retail/feedcore/store"
)

// CandidateLimit bounds how many fuzzy matches are considered per query.
const CandidateLimit = 200

// Searcher performs fuzzy text match against the catalog.
type Searcher struct {
	backend store.TextSearcher
}

// New wraps a store-backed TextSearcher.
func New(backend store.TextSearcher) *Searcher {
	return &Searcher{backend: backend}
}

// Match returns up to CandidateLimit fuzzy matches for query, scores
// clamped to [0,1] by the backend.
func (s *Searcher) Match(ctx context.Context, query string) ([]store.TextMatch, error) {
	if query == "" {
		return nil, nil
	}
	matches, err := s.backend.SearchProducts(ctx, query, CandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("textsearch: match: %w", err)
	}
	return matches, nil
}
