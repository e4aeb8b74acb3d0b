// Package httptransport assembles the JSON/HTTP adapter: middleware chain,
// route registration, health, and metrics exposition.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	accounthandler "threadhub/internal/account/handler"
	"threadhub/internal/platform/metrics"
	"threadhub/internal/platform/middleware"
	"threadhub/internal/ratelimit"
	threadhandler "threadhub/internal/thread/handler"
	"threadhub/pkg/platform/httputil"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps carries everything the router needs.
type Deps struct {
	Accounts *accounthandler.Handler
	Threads  *threadhandler.Handler
	Resolver middleware.IdentityResolver
	Limiter  ratelimit.Limiter
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	DB       Pinger
	Logger   *slog.Logger
}

// NewRouter builds the full HTTP handler.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Recovery(deps.Logger))
	if deps.Metrics != nil {
		r.Use(observe(deps.Metrics))
	}

	requireAuth := middleware.RequireAuth(deps.Resolver, deps.Logger)
	rateLimit := ratelimit.NewMiddleware(deps.Limiter, deps.Logger).Limit

	r.Route("/api", func(api chi.Router) {
		deps.Accounts.Register(api, requireAuth, rateLimit)
		deps.Threads.Register(api, requireAuth)
	})

	r.Get("/healthz", handleHealth(deps.DB))
	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	return r
}

func handleHealth(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
				})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func observe(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)

			routePattern := chi.RouteContext(r.Context()).RoutePattern()
			if routePattern == "" {
				routePattern = "unmatched"
			}
			m.ObserveRequest("http", r.Method+" "+routePattern, time.Since(start).Seconds())
		})
	}
}
