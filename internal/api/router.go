package api

import (
	"net/http"
	"strconv"
	"time"

	"codeberg.org/mutker/hashtop/internal/metrics"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router builds the HTTP routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(observe)

	r.Get("/healthz", h.healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/statistics", h.statistics)

		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.createUser)

			r.Route("/{wallet}", func(r chi.Router) {
				r.Get("/", h.getUser)
				r.Put("/", h.updateUser)
				r.Delete("/", h.deleteUser)
				r.Get("/stats", h.listUserStats)
				r.Get("/miners", h.listMiners)
				r.Post("/miners", h.createMiner)
			})
		})

		r.Route("/miners/{id}", func(r chi.Router) {
			r.Get("/", h.getMiner)
			r.Delete("/", h.deleteMiner)
			r.Put("/health", h.recordHealth)
			r.Get("/health", h.queryHealth)
			r.Put("/shares", h.recordShares)
			r.Get("/shares", h.queryShares)
			r.Get("/series", h.series)
		})
	})

	return r
}

// observe records request latency keyed by route pattern, so path
// parameters do not explode label cardinality.
func observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		metrics.APIRequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
