// Package model holds the shared catalog and interaction types used
// across the feed core: products, merchants, categories, interactions,
// and the latent-factor / top-K shapes that bridge the offline workers
// and the online ranker.
package model

import "time"

// InteractionType classifies a single user/session interaction with a product.
type InteractionType string

const (
	View     InteractionType = "VIEW"
	Click    InteractionType = "CLICK"
	Cart     InteractionType = "CART"
	Purchase InteractionType = "PURCHASE"
)

// Valid reports whether t is one of the known interaction types.
func (t InteractionType) Valid() bool {
	switch t {
	case View, Click, Cart, Purchase:
		return true
	}
	return false
}

// Weight is the aggregation weight assigned to each interaction type,
// used by the popularity aggregator and the CF trainer's implicit
// feedback loss.
func (t InteractionType) Weight() float64 {
	switch t {
	case View:
		return 0.5
	case Click:
		return 1
	case Cart:
		return 3
	case Purchase:
		return 8
	default:
		return 0
	}
}

// Product is a catalog item. Popularity is read-mostly from this core's
// point of view: it is written by the popularity aggregator (C4) and
// read at ranking time (C5).
type Product struct {
	ID          string
	Title       string
	Description string
	MerchantID  string
	CategoryID  string
	Popularity  float64
}

// Merchant identifies a merchant. Its Beta(a,b) quality posterior used
// by the bandit is kept in the feature cache, not on this struct.
type Merchant struct {
	ID string
}

// Category identifies a category. Its Beta(a,b) quality posterior used
// by the bandit is kept in the feature cache, not on this struct.
type Category struct {
	ID string
}

// Interaction is an append-only event recording a user or session
// touching a product.
type Interaction struct {
	ID        string
	UserID    *string
	SessionID string
	ProductID string
	Type      InteractionType
	Value     float64
	CreatedAt time.Time
}

// Weight returns the interaction's own per-record weight, defaulting to
// 1 when unset. This is distinct from InteractionType.Weight, the
// aggregation weight map the popularity aggregator and the CF trainer
// use instead.
func (i Interaction) Weight() float64 {
	if i.Value > 0 {
		return i.Value
	}
	return 1
}

// FeatureBlob is a persisted latent-factor vector for a user or product,
// keyed by namespace ("user_factors" / "product_factors") and id.
type FeatureBlob struct {
	Namespace string
	Key       string
	Value     []float64
}

const (
	NamespaceUserFactors    = "user_factors"
	NamespaceProductFactors = "product_factors"
)

// ScoredProduct pairs a product with its final fused ranking score.
type ScoredProduct struct {
	Score   float64
	Product Product
}

// ProductMeta is the denormalized projection of a Product cached for
// hydration during ranking. Unknown fields on read are ignored; this is
// the typed replacement for the source's free-form JSON cache blob.
type ProductMeta struct {
	Title      string  `json:"title"`
	MerchantID string  `json:"merchant_id"`
	CategoryID string  `json:"category_id"`
	Popularity float64 `json:"popularity"`
}
