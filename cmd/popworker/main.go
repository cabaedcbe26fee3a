// Command popworker runs one pass of the popularity aggregator,
// recomputing the global top-K product list, per-product popularity and
// per-merchant popularity from the recent interaction log.
package main

import (
	"context"
	"time"

	"github.com/northstar-retail/feedcore/config"
	"github.com/northstar-retail/feedcore/featurecache"
	"github.com/northstar-retail/feedcore/logger"
	"github.com/northstar-retail/feedcore/popularity"
	"github.com/northstar-retail/feedcore/redisclient"
	"github.com/northstar-retail/feedcore/store"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	redisClient, err := redisclient.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build redis client")
	}
	defer redisClient.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := store.NewPool(ctx, cfg.DatabaseURL, store.DefaultPoolConfig())
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open postgres pool")
	}
	defer pool.Close()

	pg := store.NewPostgresStore(pool)
	st := &store.Store{Products: pg, Merchants: pg, Interactions: pg, Features: pg, Search: pg}
	cache := featurecache.NewRedisCache(redisClient.Raw())

	aggregator := popularity.New(st, cache, log)

	runCtx, runCancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer runCancel()

	start := time.Now()
	if err := aggregator.Run(runCtx, start); err != nil {
		log.Fatal().Err(err).Msg("popularity aggregation run failed")
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("popularity aggregation run complete")
}
