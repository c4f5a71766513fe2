package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/maison-parfum/internal/auth"
	"github.com/noah-isme/maison-parfum/internal/cart"
	"github.com/noah-isme/maison-parfum/internal/checkout"
	"github.com/noah-isme/maison-parfum/internal/common"
	"github.com/noah-isme/maison-parfum/internal/health"
	"github.com/noah-isme/maison-parfum/internal/obs"
	"github.com/noah-isme/maison-parfum/internal/promo"
	"github.com/noah-isme/maison-parfum/internal/ratelimit"
	"github.com/noah-isme/maison-parfum/internal/security"
	"github.com/noah-isme/maison-parfum/internal/settings"
)

type server struct {
	logger         zerolog.Logger
	corsOrigins    []string
	httpMetrics    *obs.HTTPMetrics
	metricsEnabled bool
	tracingEnabled bool

	headers    security.Headers
	global     *ratelimit.Global
	promoLimit ratelimit.Handler
	authMW     auth.Middleware
	idem       common.Idem

	promo    *promo.Handler
	cart     *cart.Handler
	checkout *checkout.Handler
	settings *settings.Handler
	health   health.Handler
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if s.tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if s.httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: s.httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: s.logger}.Middleware)
	r.Use(s.headers.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(s.corsOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Get("/health/live", s.health.Live)
	r.Get("/health/ready", s.health.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		if s.global != nil {
			v.Use(s.global.Middleware)
		}
		v.Use(s.authMW.Authenticate)

		v.With(s.promoLimit.Middleware).Post("/promo/validate", s.promo.Validate)
		v.Post("/cart/quote", s.cart.Quote)
		v.With(s.authMW.RequireAuth, s.idem.Middleware).Post("/checkout", s.checkout.Checkout)

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(s.authMW.RequireRole(auth.RoleAdmin))
			admin.Get("/promo-codes", s.promo.List)
			admin.Post("/promo-codes", s.promo.Create)
			admin.Put("/promo-codes/{code}", s.promo.Update)
			admin.Get("/settings/shipping", s.settings.GetShipping)
			admin.Put("/settings/shipping", s.settings.PutShipping)
		})
	})
	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
