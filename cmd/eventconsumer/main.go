// Command eventconsumer drains the durable interaction-event queue,
// applying each event's session-trail, bandit-posterior, and
// interaction-log side effects.
package main

import (
	"context"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/northstar-retail/feedcore/bandit"
	"github.com/northstar-retail/feedcore/config"
	"github.com/northstar-retail/feedcore/events"
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

	connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := store.NewPool(connectCtx, cfg.DatabaseURL, store.DefaultPoolConfig())
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open postgres pool")
	}
	defer pool.Close()

	pg := store.NewPostgresStore(pool)
	st := &store.Store{Products: pg, Merchants: pg, Interactions: pg, Features: pg, Search: pg}

	cache := featurecache.NewRedisCache(redisClient.Raw())
	sampler := bandit.New(cache, log, rand.New(rand.NewSource(cfg.RNGSeed)))
	consumer := events.New(cache, st, sampler, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Msg("event consumer starting")
	consumer.Run(ctx)
	log.Info().Msg("event consumer stopped")
}
