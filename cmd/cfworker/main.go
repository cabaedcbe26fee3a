// Command cfworker runs one pass of the implicit-feedback collaborative
// filtering trainer, refreshing the user/product latent-factor top-K
// lists the ranker's personalized candidate phase reads.
package main

import (
	"context"
	"time"

	"github.com/northstar-retail/feedcore/cf"
	"github.com/northstar-retail/feedcore/config"
	"github.com/northstar-retail/feedcore/featurecache"
	"github.com/northstar-retail/feedcore/logger"
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

	trainer := cf.New(st, cache, log, cfg.LatentDim, cfg.RNGSeed)

	runCtx, runCancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer runCancel()

	start := time.Now()
	if err := trainer.Run(runCtx, start); err != nil {
		log.Fatal().Err(err).Msg("cf training run failed")
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("cf training run complete")
}
