// Package events runs the interaction-event consumer (C3): a single
// cooperative loop draining the durable event queue and fanning each
// event out to the session trail, the bandit posteriors, and the
// interaction log.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/northstar-retail/feedcore/bandit"
	"github.com/northstar-retail/feedcore/featurecache"
	"github.com/northstar-retail/feedcore/model"
	"github.com/northstar-retail/feedcore/store"
)

const (
	popTimeout    = time.Second
	emptyYield    = 50 * time.Millisecond
	errorBackoff  = time.Second
	sessionRetry  = 1
)

// Event is the wire shape accepted from the queue and from POST /events.
type Event struct {
	UserID    *string `json:"userId,omitempty"`
	SessionID string  `json:"sessionId"`
	ProductID string  `json:"productId"`
	Type      string  `json:"type"`
}

// Consumer drains the event queue and applies each event's side effects.
type Consumer struct {
	cache   featurecache.Cache
	store   *store.Store
	bandit  *bandit.Sampler
	log     zerolog.Logger
}

// New returns a Consumer wired to the shared cache, store, and bandit sampler.
func New(cache featurecache.Cache, st *store.Store, sampler *bandit.Sampler, log zerolog.Logger) *Consumer {
	return &Consumer{cache: cache, store: st, bandit: sampler, log: log.With().Str("component", "event_consumer").Logger()}
}

// Run blocks, draining events until ctx is cancelled. Cancellation is
// treated as a clean stop after the in-flight event finishes.
func (c *Consumer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("event consumer stopping")
			return
		default:
		}

		payload, ok, err := c.cache.PopEvent(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn().Err(err).Msg("event pop failed, backing off")
			sleep(ctx, errorBackoff)
			continue
		}
		if !ok {
			sleep(ctx, emptyYield)
			continue
		}

		c.handle(ctx, payload)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// handle applies one event's three independent side effects. A
// failure in any step is logged and does not abort the remaining
// steps, per the per-step failure isolation policy.
func (c *Consumer) handle(ctx context.Context, payload []byte) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		c.log.Warn().Err(err).Msg("discarding malformed event")
		return
	}
	typ := model.InteractionType(ev.Type)
	if !typ.Valid() || ev.ProductID == "" {
		c.log.Warn().Str("type", ev.Type).Str("product_id", ev.ProductID).Msg("discarding invalid event")
		return
	}

	if ev.SessionID != "" {
		c.pushSessionTrail(ctx, ev.SessionID, ev.ProductID)
	}

	c.recordBanditOutcome(ctx, ev.ProductID, typ)

	in := model.Interaction{
		ID:        uuid.NewString(),
		UserID:    ev.UserID,
		SessionID: ev.SessionID,
		ProductID: ev.ProductID,
		Type:      typ,
		Value:     1,
		CreatedAt: time.Now(),
	}
	if err := c.store.Interactions.Append(ctx, in); err != nil {
		c.log.Warn().Err(err).Str("product_id", ev.ProductID).Msg("interaction append failed")
	}
}

func (c *Consumer) pushSessionTrail(ctx context.Context, sessionID, productID string) {
	err := c.cache.PushSessionRecent(ctx, sessionID, productID)
	if err == nil {
		return
	}
	for i := 0; i < sessionRetry; i++ {
		sleep(ctx, 50*time.Millisecond)
		if err = c.cache.PushSessionRecent(ctx, sessionID, productID); err == nil {
			return
		}
	}
	c.log.Warn().Err(err).Str("session_id", sessionID).Msg("session trail push failed after retry")
}

// recordBanditOutcome looks up the product's merchant/category and
// records a success (CLICK, PURCHASE), failure (VIEW), or neutral
// (CART: no update) outcome against both posteriors.
func (c *Consumer) recordBanditOutcome(ctx context.Context, productID string, typ model.InteractionType) {
	if typ == model.Cart {
		return
	}

	p, ok, err := c.store.Products.Get(ctx, productID)
	if err != nil {
		c.log.Warn().Err(err).Str("product_id", productID).Msg("product meta lookup failed")
		return
	}
	if !ok {
		c.log.Warn().Str("product_id", productID).Msg("product meta not found, skipping bandit update")
		return
	}

	var outcome bandit.Outcome
	switch typ {
	case model.Click, model.Purchase:
		outcome = bandit.Success
	case model.View:
		outcome = bandit.Failure
	default:
		return
	}

	c.bandit.RecordMerchant(ctx, p.MerchantID, outcome)
	c.bandit.RecordCategory(ctx, p.CategoryID, outcome)
}
