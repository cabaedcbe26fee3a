// Package store declares the typed repository the feed core reads and
// writes against. The relational store itself is an external
// collaborator (per the core's scope): this package defines the
// contract plus a Postgres-backed implementation and an in-memory fake
// for tests.
package store

import (
	"context"
	"time"

	"github.com/northstar-retail/feedcore/model"
)

// ProductRepo reads and writes catalog products.
type ProductRepo interface {
	Get(ctx context.Context, id string) (model.Product, bool, error)
	GetMany(ctx context.Context, ids []string) (map[string]model.Product, error)
	ListByCategory(ctx context.Context, categoryID string, limit int) ([]model.Product, error)
	ListTopByPopularity(ctx context.Context, limit int) ([]model.Product, error)
	SetPopularity(ctx context.Context, id string, popularity float64) error
}

// MerchantRepo tracks aggregate merchant popularity (distinct from the
// bandit's quality posterior, which lives in the feature cache).
type MerchantRepo interface {
	SetMerchantPopularity(ctx context.Context, id string, popularity float64) error
}

// InteractionRepo is the append-only interaction log.
type InteractionRepo interface {
	Append(ctx context.Context, in model.Interaction) error
	ListSince(ctx context.Context, since time.Time, limit int) ([]model.Interaction, error)
}

// FeatureBlobRepo persists latent-factor vectors by namespace and key.
type FeatureBlobRepo interface {
	Put(ctx context.Context, namespace, key string, value []float64) error
	PutBatch(ctx context.Context, namespace string, values map[string][]float64) error
	GetFeature(ctx context.Context, namespace, key string) ([]float64, bool, error)
	AllInNamespace(ctx context.Context, namespace string) (map[string][]float64, error)
}

// TextSearcher performs trigram similarity search over product title and
// description. Implementations back this with a `pg_trgm` index; the
// query is always passed as a bound parameter, never interpolated.
type TextSearcher interface {
	SearchProducts(ctx context.Context, query string, limit int) ([]TextMatch, error)
}

// TextMatch is a single trigram search hit, score clamped to [0,1].
type TextMatch struct {
	ProductID string
	Score     float64
}

// Store bundles the full repository surface the core depends on.
type Store struct {
	Products     ProductRepo
	Merchants    MerchantRepo
	Interactions InteractionRepo
	Features     FeatureBlobRepo
	Search       TextSearcher
}
