// Package cacheadmin wraps featurecache.Cache with the hit/miss
// counters and flush operations the admin REST surface exposes. It
// does not change cache semantics — it is a thin, instrumented façade
// the admin handlers use.
package cacheadmin

import (
	"context"
	"math"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/northstar-retail/feedcore/featurecache"
)

// Stats summarizes cache performance since process start.
type Stats struct {
	Hits           int64   `json:"hits"`
	Misses         int64   `json:"misses"`
	HitRatePct     float64 `json:"hit_rate_pct"`
	SessionFlushes int64   `json:"session_flushes"`
}

// Admin instruments a featurecache.Cache with counters and exposes
// targeted flush operations for the admin API.
type Admin struct {
	cache  featurecache.Cache
	logger zerolog.Logger

	hits           int64
	misses         int64
	sessionFlushes int64
}

// NewAdmin wraps cache with admin instrumentation.
func NewAdmin(cache featurecache.Cache, logger zerolog.Logger) *Admin {
	return &Admin{
		cache:  cache,
		logger: logger.With().Str("component", "cacheadmin").Logger(),
	}
}

// RecordHit/RecordMiss feed the hit-rate counters. The Admin does not
// count its own reads, so Stats reflects only what callers report here;
// the ranker does not call them.
func (a *Admin) RecordHit()  { atomic.AddInt64(&a.hits, 1) }
func (a *Admin) RecordMiss() { atomic.AddInt64(&a.misses, 1) }

// Stats returns the current counters.
func (a *Admin) Stats() Stats {
	hits := atomic.LoadInt64(&a.hits)
	misses := atomic.LoadInt64(&a.misses)
	total := hits + misses
	rate := 0.0
	if total > 0 {
		rate = float64(hits) / float64(total) * 100
	}
	return Stats{
		Hits:           hits,
		Misses:         misses,
		HitRatePct:     math.Round(rate*100) / 100,
		SessionFlushes: atomic.LoadInt64(&a.sessionFlushes),
	}
}

// FlushSession clears one session's recent-product trail.
func (a *Admin) FlushSession(ctx context.Context, sessionID string) error {
	if err := a.cache.FlushSession(ctx, sessionID); err != nil {
		return err
	}
	atomic.AddInt64(&a.sessionFlushes, 1)
	a.logger.Info().Str("session_id", sessionID).Msg("session cache flushed")
	return nil
}

// FlushUserTopK clears one user's cached personalized top-K, forcing
// the next ranking pass to degrade to textual/popularity candidates
// until the CF trainer repopulates it.
func (a *Admin) FlushUserTopK(ctx context.Context, userID string) error {
	if err := a.cache.ReplaceUserTopK(ctx, userID, nil); err != nil {
		return err
	}
	a.logger.Info().Str("user_id", userID).Msg("user top-k cache flushed")
	return nil
}

// FlushGlobalTopK clears the global popularity top-K.
func (a *Admin) FlushGlobalTopK(ctx context.Context) error {
	if err := a.cache.ReplaceGlobalTopK(ctx, nil); err != nil {
		return err
	}
	a.logger.Info().Msg("global top-k cache flushed")
	return nil
}
