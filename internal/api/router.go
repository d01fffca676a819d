package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	mw "github.com/reviewlens/reviewlens/internal/api/middleware"
	"github.com/reviewlens/reviewlens/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit

	HealthHandler        http.HandlerFunc
	StartAnalysisHandler http.HandlerFunc
	StatusHandler        http.HandlerFunc
	ResultHandler        http.HandlerFunc
	CallbackHandler      http.HandlerFunc
	InvalidateHandler    http.HandlerFunc
	WarmupHandler        http.HandlerFunc
	HitRateHandler       http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	r.Handle("/metrics", promhttp.Handler())

	// Engine callbacks are not rate limited; the bus consumer is their twin.
	r.Post("/api/v1/callbacks/analysis", orNotImplemented(deps.CallbackHandler))

	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Post("/api/v1/products/{productID}/analysis", orNotImplemented(deps.StartAnalysisHandler))
		r.Get("/api/v1/products/{productID}/analysis/status", orNotImplemented(deps.StatusHandler))
		r.Get("/api/v1/products/{productID}/analysis/result", orNotImplemented(deps.ResultHandler))

		r.Delete("/api/v1/admin/cache/products/{productID}", orNotImplemented(deps.InvalidateHandler))
		r.Post("/api/v1/admin/cache/warmup", orNotImplemented(deps.WarmupHandler))
		r.Get("/api/v1/admin/cache/stats", orNotImplemented(deps.HitRateHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
