// Package api provides the HTTP API of the city AQI service.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/cityaqi/cityaqi/internal/airquality"
	"github.com/cityaqi/cityaqi/internal/api/handler"
	"github.com/cityaqi/cityaqi/internal/api/middleware"
	"github.com/cityaqi/cityaqi/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	AirQuality *airquality.Service

	// TokenValidator guards /v1/ops/status and /v1/admin.
	TokenValidator middleware.TokenValidator

	// Registry feeds provider health into /v1/ops/status.
	Registry *resilience.Registry

	// DB is pinged by readiness and status checks; nil with in-memory storage.
	DB handler.Pinger

	RequireTLS bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "cityaqi-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.RequireJSON)

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Registry:  cfg.Registry,
		Cache:     cfg.AirQuality,
		DB:        cfg.DB,
	})
	airQualityHandler := handler.NewAirQualityHandler(cfg.AirQuality)
	metadataHandler := handler.NewMetadataHandler()
	adminHandler := handler.NewAdminHandler(cfg.AirQuality, cfg.Logger)

	authMiddleware := middleware.Auth(cfg.TokenValidator)

	lookupRateLimit := middleware.RateLimitByIP(middleware.LookupRateLimit)     // 60 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit) // 120 req/min
	adminRateLimit := middleware.RateLimitBySubject(middleware.AdminRateLimit)  // 30 req/min per operator

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
		})

		// Lookups may reach the upstream provider.
		r.Group(func(r chi.Router) {
			r.Use(lookupRateLimit)
			r.Get("/aqi/{city}", airQualityHandler.GetCityAQI)
			r.Get("/aqi/{country}/{state}/{city}", airQualityHandler.GetLocationAQI)
			r.Get("/dashboard", airQualityHandler.Dashboard)
		})

		r.With(standardRateLimit).Post("/aqi:calculate", airQualityHandler.Calculate)

		r.Route("/metadata", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/pollutants", metadataHandler.ListPollutants)
			r.Get("/categories", metadataHandler.ListCategories)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(adminRateLimit)

			r.Route("/cities", func(r chi.Router) {
				r.Get("/", adminHandler.ListTrackedCities)
				r.Post("/", adminHandler.TrackCity)
				r.Delete("/", adminHandler.UntrackCity)
			})
			r.Post("/cache/invalidate", adminHandler.InvalidateCache)
		})
	})

	return r
}
