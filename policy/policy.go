// Package policy is the CRUD store for per-category diversity policy
// overrides (§4.5.1): the re-ranker's constraints, keyed by category,
// with a fallback to the specification's literal defaults.
package policy

import (
	"fmt"
	"sync"
	"time"

	"github.com/northstar-retail/feedcore/diversity"
)

// DiversityPolicy is a named, possibly category-scoped override of the
// re-ranker's quota constraints.
type DiversityPolicy struct {
	ID               string    `json:"id"`
	CategoryID       string    `json:"category_id"`
	MaxConsecutive   int       `json:"max_consecutive"`
	MaxMerchantRatio float64   `json:"max_merchant_ratio"`
	MaxCategoryRatio float64   `json:"max_category_ratio"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// AsDiversityPolicy projects the stored record into the shape the
// re-ranker consumes.
func (p DiversityPolicy) AsDiversityPolicy() diversity.Policy {
	return diversity.Policy{
		MaxConsecutive:   p.MaxConsecutive,
		MaxMerchantRatio: p.MaxMerchantRatio,
		MaxCategoryRatio: p.MaxCategoryRatio,
	}
}

// Store holds diversity policy overrides in memory, keyed by id, with
// a secondary index by category for the ranker's lookup path.
type Store struct {
	mu         sync.RWMutex
	byID       map[string]*DiversityPolicy
	byCategory map[string]string // categoryID -> policy id
}

// NewStore returns an empty policy store.
func NewStore() *Store {
	return &Store{
		byID:       make(map[string]*DiversityPolicy),
		byCategory: make(map[string]string),
	}
}

// Create adds a new policy. Returns an error if the id already exists.
func (s *Store) Create(p DiversityPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[p.ID]; exists {
		return fmt.Errorf("policy: %s already exists", p.ID)
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.byID[p.ID] = &p
	if p.CategoryID != "" && p.Active {
		s.byCategory[p.CategoryID] = p.ID
	}
	return nil
}

// Update replaces an existing policy's tunables and active flag.
func (s *Store) Update(id string, constraints diversity.Policy, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("policy: %s not found", id)
	}
	p.MaxConsecutive = constraints.MaxConsecutive
	p.MaxMerchantRatio = constraints.MaxMerchantRatio
	p.MaxCategoryRatio = constraints.MaxCategoryRatio
	p.Active = active
	p.UpdatedAt = time.Now()

	if p.CategoryID != "" {
		if active {
			s.byCategory[p.CategoryID] = id
		} else if s.byCategory[p.CategoryID] == id {
			delete(s.byCategory, p.CategoryID)
		}
	}
	return nil
}

// Delete removes a policy by id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("policy: %s not found", id)
	}
	delete(s.byID, id)
	if p.CategoryID != "" && s.byCategory[p.CategoryID] == id {
		delete(s.byCategory, p.CategoryID)
	}
	return nil
}

// Get returns a policy by id.
func (s *Store) Get(id string) (DiversityPolicy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return DiversityPolicy{}, false
	}
	return *p, true
}

// List returns every stored policy.
func (s *Store) List() []DiversityPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DiversityPolicy, 0, len(s.byID))
	for _, p := range s.byID {
		out = append(out, *p)
	}
	return out
}

// ForCategory resolves the active diversity policy for a category,
// falling back to the specification's literal defaults when no
// category-scoped override is active.
func (s *Store) ForCategory(categoryID string) diversity.Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if categoryID != "" {
		if id, ok := s.byCategory[categoryID]; ok {
			if p, ok := s.byID[id]; ok && p.Active {
				return p.AsDiversityPolicy()
			}
		}
	}
	return diversity.Default()
}
