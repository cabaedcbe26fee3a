// Package featurecache is the typed façade over the fast KV store (C1).
// It encodes the key schema shared by every other component and the
// atomic operations the rest of the core depends on: replacing a
// sorted-set top-K in one observable step, incrementing bandit
// counters, trimming session trails, and draining the event queue.
package featurecache

import (
	"context"
	"time"
)

// Key schema (stable wire contract — see SPEC_FULL.md §4.1).
const (
	userTopKPrefix  = "user:topk:"
	globalTopKKey   = "global:topk"
	productMetaKey  = "product:meta"
	merchantBanditP = "bandit:merchant:"
	categoryBanditP = "bandit:category:"
	sessionPrefix   = "session:"
	sessionSuffix   = ":recent"
	eventsQueueKey  = "events"
)

func userTopKKey(userID string) string  { return userTopKPrefix + userID }
func merchantKey(id string) string      { return merchantBanditP + id }
func categoryKey(id string) string      { return categoryBanditP + id }
func sessionKey(sessionID string) string { return sessionPrefix + sessionID + sessionSuffix }

const (
	topKTTL     = 24 * time.Hour
	sessionTTL  = 24 * time.Hour
	sessionCap  = 50
)

// Posterior is a Beta(a,b) count pair. Both fields are always >= 1.
type Posterior struct {
	A int64
	B int64
}

// Scored is a single sorted-set member with its score.
type Scored struct {
	ID    string
	Score float64
}

// Cache is the contract every other component depends on. Redis backs
// it in production (RedisCache, in redis.go); Memory backs it in tests.
type Cache interface {
	// ReplaceUserTopK atomically replaces a user's top-K sorted set.
	// Readers see either the old set or the new one, never a partial one.
	ReplaceUserTopK(ctx context.Context, userID string, items []Scored) error
	// ReplaceGlobalTopK atomically replaces the global top-K sorted set.
	ReplaceGlobalTopK(ctx context.Context, items []Scored) error
	// UserTopK returns a user's cached top-K, highest score first.
	UserTopK(ctx context.Context, userID string, limit int) ([]Scored, error)
	// GlobalTopK returns the global top-K, highest score first.
	GlobalTopK(ctx context.Context, limit int) ([]Scored, error)

	// PutProductMeta writes one product's cached meta blob.
	PutProductMeta(ctx context.Context, productID string, meta []byte) error
	// GetProductMetas bulk-fetches cached meta blobs; misses are simply
	// absent from the returned map.
	GetProductMetas(ctx context.Context, productIDs []string) (map[string][]byte, error)

	// MerchantPosterior / CategoryPosterior read a Beta posterior,
	// defaulting to (1,1) when absent.
	MerchantPosterior(ctx context.Context, merchantID string) (Posterior, error)
	CategoryPosterior(ctx context.Context, categoryID string) (Posterior, error)
	// IncrementMerchantPosterior / IncrementCategoryPosterior atomically
	// bump the `a` or `b` field by 1.
	IncrementMerchantPosterior(ctx context.Context, merchantID string, success bool) error
	IncrementCategoryPosterior(ctx context.Context, categoryID string, success bool) error

	// PushSessionRecent left-pushes productID onto the session trail,
	// trims to 50 entries, and refreshes the TTL. It never duplicates
	// the most recent id consecutively.
	PushSessionRecent(ctx context.Context, sessionID, productID string) error
	// SessionRecent returns up to limit most-recent product ids, newest first.
	SessionRecent(ctx context.Context, sessionID string, limit int) ([]string, error)
	// FlushSession deletes a session's recent-trail key.
	FlushSession(ctx context.Context, sessionID string) error

	// PushEvent left-pushes a raw event payload onto the durable queue.
	PushEvent(ctx context.Context, payload []byte) error
	// PopEvent blocking right-pops an event payload with the given
	// timeout; ok is false on timeout (not an error).
	PopEvent(ctx context.Context, timeout time.Duration) (payload []byte, ok bool, err error)
}
