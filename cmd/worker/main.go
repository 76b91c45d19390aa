// Package main provides the entrypoint for the city AQI refresh worker.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/cityaqi/cityaqi/internal/airquality"
	"github.com/cityaqi/cityaqi/internal/airquality/aqibackend"
	"github.com/cityaqi/cityaqi/internal/api/middleware"
	"github.com/cityaqi/cityaqi/internal/database"
	"github.com/cityaqi/cityaqi/internal/provider/resilience"
	"github.com/cityaqi/cityaqi/internal/telemetry"
	"github.com/cityaqi/cityaqi/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "cityaqi-worker"

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
		Msg("starting city AQI worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.Init(ctx, telemetry.ConfigFromEnv(serviceName, Version))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	providerMetrics, err := middleware.NewProviderMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize provider metrics")
	}

	refreshConfig, err := worker.ConfigFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid worker configuration")
	}

	var repo airquality.Repository = airquality.NewInMemoryRepository()
	if getEnv("STORAGE_BACKEND", "memory") == "postgres" {
		pool, err := database.Connect(ctx, database.ConfigFromEnv())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
		repo = airquality.NewPostgresRepository(pool)
		log.Info().Msg("database connected")
	}

	service := airquality.NewService(airquality.ServiceConfig{
		Provider: aqibackend.NewClient(aqibackend.ClientConfig{
			BaseURL:  os.Getenv("AQI_PROVIDER_URL"),
			Timeout:  getEnvDuration("AQI_PROVIDER_TIMEOUT", 10*time.Second),
			Registry: resilience.GlobalRegistry,
			Metrics:  providerMetrics,
		}),
		Repository:  repo,
		Logger:      log,
		CacheTTL:    getEnvDuration("AQI_CACHE_TTL", 5*time.Minute),
		DefaultCity: os.Getenv("AQI_DEFAULT_CITY"),
		Metrics:     providerMetrics,
	})

	var publishers []worker.Publisher

	mqttConfig := worker.MQTTConfigFromEnv()
	if mqttConfig.Enabled() {
		mqttPublisher := worker.NewMQTTPublisher(mqttConfig, log)
		connectCtx, connectCancel := context.WithTimeout(ctx, 30*time.Second)
		err := mqttPublisher.Connect(connectCtx)
		connectCancel()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to MQTT broker")
		}
		defer mqttPublisher.Close()
		publishers = append(publishers, mqttPublisher)
	}

	var pubsubClient *pubsub.Client
	if projectID := os.Getenv("PUBSUB_PROJECT_ID"); projectID != "" {
		pubsubClient, err = pubsub.NewClient(ctx, projectID)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub client")
		}
		defer pubsubClient.Close()

		if topic := os.Getenv("PUBSUB_TOPIC"); topic != "" {
			topicPublisher := worker.NewPubSubPublisher(pubsubClient, topic)
			defer topicPublisher.Stop()
			publishers = append(publishers, topicPublisher)
		}
	}

	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config:     refreshConfig,
		Service:    service,
		Publishers: publishers,
		Logger:     log,
	})

	// Health endpoint for the container platform.
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "healthy",
			"version": Version,
			"refresh": job.MetricsSnapshot(),
		})
	})

	server := &http.Server{
		Addr:         ":" + getEnv("APP_PORT", "8080"),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	subscription := os.Getenv("PUBSUB_SUBSCRIPTION")
	if pubsubClient != nil && subscription != "" {
		handler := worker.NewPubSubHandler(worker.PubSubConfig{
			Client:           pubsubClient,
			SubscriptionName: subscription,
			RefreshJob:       job,
			DefaultCity:      os.Getenv("AQI_DEFAULT_CITY"),
			Logger:           log,
		})
		go func() {
			if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	} else {
		go runTicker(ctx, job, log)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}

// runTicker refreshes immediately and then on every interval.
func runTicker(ctx context.Context, job *worker.RefreshJob, log zerolog.Logger) {
	log.Info().Dur("interval", job.Interval()).Msg("no pubsub subscription configured, refreshing on a ticker")

	job.Run(ctx)

	ticker := time.NewTicker(job.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job.Run(ctx)
		}
	}
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
