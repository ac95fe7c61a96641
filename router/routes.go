package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/paygate/handler"
	"github.com/mstgnz/paygate/infra/middle"
	"github.com/mstgnz/paygate/infra/response"
	v1 "github.com/mstgnz/paygate/router/v1"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	// Import for side-effect registration
	_ "github.com/mstgnz/paygate/provider/phonepe"
)

// Options configures the public and authenticated surfaces
type Options struct {
	APIKey      string
	AllowedIPs  []string
	RateLimiter *middle.RateLimiter
	Health      *handler.HealthHandler
	V1          v1.Deps
}

// Routes mounts /health and /metrics without auth, and /v1 behind the API key
func Routes(r chi.Router, opts Options) {
	r.Use(middle.SecurityHeadersMiddleware())

	if opts.Health != nil {
		r.Get("/health", opts.Health.CheckHealth)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middle.IPWhitelistMiddleware(opts.AllowedIPs))
		if opts.RateLimiter != nil {
			r.Use(middle.RateLimitMiddleware(opts.RateLimiter))
		}
		r.Use(middle.AuthMiddleware(opts.APIKey))

		v1.Routes(r, opts.V1)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, "Not Found", nil)
	})
}
