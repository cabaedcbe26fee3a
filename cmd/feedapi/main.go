// Command feedapi serves the ranked product feed HTTP API: GET /feed,
// POST /events, and the cache/policy/experiment admin surfaces.
package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/northstar-retail/feedcore/bandit"
	"github.com/northstar-retail/feedcore/cacheadmin"
	"github.com/northstar-retail/feedcore/config"
	"github.com/northstar-retail/feedcore/featurecache"
	"github.com/northstar-retail/feedcore/handler"
	"github.com/northstar-retail/feedcore/logger"
	"github.com/northstar-retail/feedcore/observability"
	"github.com/northstar-retail/feedcore/policy"
	"github.com/northstar-retail/feedcore/ranker"
	"github.com/northstar-retail/feedcore/redisclient"
	"github.com/northstar-retail/feedcore/router"
	"github.com/northstar-retail/feedcore/routing"
	"github.com/northstar-retail/feedcore/store"
	"github.com/northstar-retail/feedcore/textsearch"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	redisClient, err := redisclient.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build redis client")
	}
	if err := redisClient.Ping(); err != nil {
		log.Fatal().Err(err).Msg("redis ping failed")
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
	sampler := bandit.New(cache, log, rand.New(rand.NewSource(cfg.RNGSeed)))
	search := textsearch.New(pg)
	policies := policy.NewStore()
	experiments := routing.NewEngine()
	cacheAdmin := cacheadmin.NewAdmin(cache, log)

	metrics := observability.NewMetrics(log)
	tracer := observability.NewTracer(log, observability.NewLogExporter(log), 1.0)
	defer tracer.Stop()

	rnk := ranker.New(cache, st, sampler, search, policies, experiments, log).WithTracer(tracer)

	eventsHandler := handler.NewEventsHandler(cache, log)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router.NewRouter(cfg, log, rnk, cacheAdmin, policies, experiments, eventsHandler, metrics, tracer),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("feedapi listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("feedapi server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("feedapi shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("feedapi graceful shutdown failed")
	}
}
