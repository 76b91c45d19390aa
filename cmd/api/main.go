// Package main provides the entrypoint for the city AQI API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/cityaqi/cityaqi/internal/airquality"
	"github.com/cityaqi/cityaqi/internal/airquality/aqibackend"
	"github.com/cityaqi/cityaqi/internal/api"
	"github.com/cityaqi/cityaqi/internal/api/handler"
	"github.com/cityaqi/cityaqi/internal/api/middleware"
	"github.com/cityaqi/cityaqi/internal/auth"
	"github.com/cityaqi/cityaqi/internal/database"
	"github.com/cityaqi/cityaqi/internal/provider/resilience"
	"github.com/cityaqi/cityaqi/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "cityaqi-api"

	envErr := godotenv.Load()

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file loaded")
	}

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting city AQI API")

	port := getEnv("APP_PORT", "8080")

	ctx := context.Background()
	telemetryConfig := telemetry.ConfigFromEnv(serviceName, Version)
	tp, err := telemetry.Init(ctx, telemetryConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()
	if telemetryConfig.Enabled {
		log.Info().
			Str("otlp_endpoint", telemetryConfig.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}
	providerMetrics, err := middleware.NewProviderMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize provider metrics")
	}

	var (
		repo airquality.Repository
		db   handler.Pinger
	)
	switch backend := getEnv("STORAGE_BACKEND", "memory"); backend {
	case "postgres":
		dbConfig := database.ConfigFromEnv()
		pool, err := database.Connect(ctx, dbConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
		log.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("database connected")
		repo = airquality.NewPostgresRepository(pool)
		db = pool
	case "memory":
		repo = airquality.NewInMemoryRepository()
		log.Warn().Msg("using in-memory storage - snapshots are lost on restart")
	default:
		log.Fatal().Str("backend", backend).Msg("unknown STORAGE_BACKEND")
	}

	provider := aqibackend.NewClient(aqibackend.ClientConfig{
		BaseURL:  os.Getenv("AQI_PROVIDER_URL"),
		Timeout:  getEnvDuration("AQI_PROVIDER_TIMEOUT", 10*time.Second),
		Registry: resilience.GlobalRegistry,
		Metrics:  providerMetrics,
	})

	airQualityService := airquality.NewService(airquality.ServiceConfig{
		Provider:    provider,
		Repository:  repo,
		Logger:      log,
		CacheTTL:    getEnvDuration("AQI_CACHE_TTL", 5*time.Minute),
		Metrics:     providerMetrics,
		DefaultCity: os.Getenv("AQI_DEFAULT_CITY"),
	})
	log.Info().Msg("air quality service initialized")

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		jwtSigningKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}
	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: jwtSigningKey,
		Issuer:     os.Getenv("JWT_ISSUER"),
		Audience:   os.Getenv("JWT_AUDIENCE"),
	})

	requireTLS, _ := strconv.ParseBool(os.Getenv("REQUIRE_TLS"))

	router := api.NewRouter(api.RouterConfig{
		Version:        Version,
		BuildTime:      BuildTime,
		Logger:         log,
		ServiceName:    serviceName,
		Metrics:        metrics,
		AirQuality:     airQualityService,
		TokenValidator: jwtService,
		Registry:       resilience.GlobalRegistry,
		DB:             db,
		RequireTLS:     requireTLS,
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
