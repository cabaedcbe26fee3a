// Package router wires the feed API's middleware chain and routes onto
// a chi.Router: GET /feed, POST /events, the cache/policy/experiment
// admin surfaces, health checks, metrics, and the OpenAPI/Swagger docs.
package router

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/northstar-retail/feedcore/cacheadmin"
	"github.com/northstar-retail/feedcore/config"
	"github.com/northstar-retail/feedcore/handler"
	fcmw "github.com/northstar-retail/feedcore/middleware"
	"github.com/northstar-retail/feedcore/observability"
	"github.com/northstar-retail/feedcore/policy"
	"github.com/northstar-retail/feedcore/ranker"
	"github.com/northstar-retail/feedcore/routing"
)

// NewRouter returns a configured chi Router with the full middleware
// chain and all API routes mounted.
func NewRouter(cfg *config.Config, appLogger zerolog.Logger, rnk *ranker.Ranker, cacheAdmin *cacheadmin.Admin, policies *policy.Store, experiments *routing.Engine, eventsHandler *handler.EventsHandler, metrics *observability.Metrics, tracer *observability.Tracer) http.Handler {
	r := chi.NewRouter()

	// --- Middleware chain (order matters) ---
	// 1. CORS — must be first so preflight responses succeed.
	r.Use(fcmw.CORSMiddleware([]string{"*"}))

	// 2. Security headers.
	r.Use(fcmw.SecurityHeadersMiddleware)

	// 3. Request ID.
	r.Use(chimw.RequestID)

	// 4. Panic recovery.
	r.Use(chimw.Recoverer)

	// 5. Request logger.
	r.Use(mwRequestLogger(appLogger))

	// 6. Tracing, if configured.
	if tracer != nil {
		r.Use(observability.TracingMiddleware(tracer))
	}

	// 7. Body size limit.
	r.Use(mwMaxBodySize(cfg.MaxBodyBytes))

	// --- Unauthenticated infra endpoints ---
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"feedcore"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready","service":"feedcore"}`))
	})

	if metrics != nil {
		r.Get("/metrics", metrics.Handler())
	}

	r.Get("/openapi.json", handler.OpenAPIHandler())
	r.Get("/docs", handler.SwaggerUIHandler())

	// --- API routes ---
	headerNorm := fcmw.NewHeaderNormalization(appLogger)
	rateLimiter := fcmw.NewRateLimiter(appLogger, cfg.RateLimitEnabled, cfg.RateLimitRPS, cfg.RateLimitBurst)
	concurrencyGuard := fcmw.NewConcurrencyGuard(8, 2*time.Second, appLogger)
	timeoutMW := fcmw.NewTimeoutMiddleware(appLogger, cfg)

	feedHandler := handler.NewFeedHandler(rnk, appLogger)
	cacheAdminHandler := handler.NewCacheAdminHandler(cacheAdmin, appLogger)
	policyAdminHandler := handler.NewPolicyAdminHandler(policies, appLogger)
	experimentAdminHandler := handler.NewExperimentAdminHandler(experiments, appLogger)

	r.Group(func(r chi.Router) {
		r.Use(rateLimiter.Handler)
		r.Use(headerNorm.Handler)
		r.Use(timeoutMW.Handler)

		r.Group(func(r chi.Router) {
			r.Use(concurrencyGuard.Middleware)
			r.Get("/feed", feedHandler.Get)
			r.Post("/events", eventsHandler.Post)
		})

		r.Route("/admin/cache", func(r chi.Router) {
			r.Get("/stats", cacheAdminHandler.Stats)
			r.Delete("/session/{sessionId}", cacheAdminHandler.FlushSession)
			r.Delete("/user/{userId}/topk", cacheAdminHandler.FlushUserTopK)
			r.Delete("/global/topk", cacheAdminHandler.FlushGlobalTopK)
		})

		r.Route("/admin/policies", func(r chi.Router) {
			r.Get("/", policyAdminHandler.ListPolicies)
			r.Post("/", policyAdminHandler.CreatePolicy)
			r.Get("/resolve", policyAdminHandler.ResolveForCategory)
			r.Get("/{id}", policyAdminHandler.GetPolicy)
			r.Put("/{id}", policyAdminHandler.UpdatePolicy)
			r.Delete("/{id}", policyAdminHandler.DeletePolicy)
		})

		r.Route("/admin/experiments", func(r chi.Router) {
			r.Get("/", experimentAdminHandler.ListExperiments)
			r.Post("/", experimentAdminHandler.CreateExperiment)
			r.Get("/{id}", experimentAdminHandler.GetExperiment)
			r.Delete("/{id}", experimentAdminHandler.DeleteExperiment)
			r.Post("/{id}/start", experimentAdminHandler.StartExperiment)
			r.Post("/{id}/conclude", experimentAdminHandler.ConcludeExperiment)
			r.Post("/{id}/assign", experimentAdminHandler.AssignArm)
			r.Post("/{id}/outcome", experimentAdminHandler.RecordOutcome)
			r.Get("/{id}/compare", experimentAdminHandler.CompareArms)
		})
	})

	return r
}

// mwMaxBodySize returns middleware that limits the request body size.
func mwMaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = 256 * 1024
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			max := maxBytes
			if v := os.Getenv("FEED_MAX_BODY_BYTES"); v != "" {
				if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
					max = parsed
				}
			}

			if r.ContentLength > 0 && r.ContentLength > max {
				http.Error(w, `{"error":"request_too_large","message":"request body too large"}`, http.StatusRequestEntityTooLarge)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, max)
			next.ServeHTTP(w, r)
		})
	}
}

func mwRequestLogger(appLogger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			dur := time.Since(start)
			reqID := chimw.GetReqID(r.Context())
			appLogger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("req_id", reqID).
				Int("status", rw.Status()).
				Dur("duration", dur).
				Msg("request completed")
		})
	}
}
