// Package handler provides HTTP handlers for the city AQI API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/cityaqi/cityaqi/internal/airquality"
	"github.com/cityaqi/cityaqi/internal/api/models"
	"github.com/cityaqi/cityaqi/internal/api/response"
	"github.com/cityaqi/cityaqi/internal/provider/resilience"
)

// Pinger checks a storage dependency. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CacheStatusSource reports the snapshot cache state.
type CacheStatusSource interface {
	CacheStatus() airquality.CacheStatus
}

// OpsConfig holds the dependencies of OpsHandler. DB and Cache may be nil.
type OpsConfig struct {
	Version   string
	BuildTime string
	Registry  *resilience.Registry
	Cache     CacheStatusSource
	DB        Pinger
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	if cfg.Registry == nil {
		cfg.Registry = resilience.NewRegistry()
	}
	return &OpsHandler{cfg: cfg}
}

const pingTimeout = 2 * time.Second

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.NewTimestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready. It fails while the database is
// unreachable.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	storage := h.storageStatus(r.Context())
	health := models.Health{
		Status: storage.Status,
		Time:   models.NewTimestamp(time.Now()),
	}
	if storage.Detail != nil {
		health.Details = map[string]interface{}{"storage": *storage.Detail}
	}

	status := http.StatusOK
	if storage.Status == models.HealthStatusFail {
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, r, status, health)
}

// SystemStatus handles GET /v1/ops/status - provider, storage and cache status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.NewTimestamp(time.Now()),
		Subsystems: []models.SubsystemStatus{h.storageStatus(r.Context())},
		Providers:  make([]models.ProviderStatus, 0, h.cfg.Registry.ProviderCount()),
	}

	for _, ph := range h.cfg.Registry.GetAllHealth() {
		ps := models.ProviderStatus{
			Provider:      ph.Name,
			Status:        providerHealthStatus(ph),
			CircuitState:  ph.CircuitState.String(),
			LastSuccessAt: models.TimestampPtr(ph.LastSuccessAt),
			LastFailureAt: models.TimestampPtr(ph.LastFailureAt),
		}
		if ph.LastError != "" {
			msg := ph.LastError
			ps.Message = &msg
		}
		status.Providers = append(status.Providers, ps)
		status.Status = worst(status.Status, ps.Status)
	}

	if h.cfg.Cache != nil {
		cs := h.cfg.Cache.CacheStatus()
		status.Cache = models.CacheStatus{
			Entries:    cs.Entries,
			Fresh:      cs.Fresh,
			TTLSeconds: int(cs.TTL.Seconds()),
		}
		if cs.HasData() {
			oldest, newest := models.NewTimestamp(cs.Oldest), models.NewTimestamp(cs.Newest)
			status.Cache.Oldest = &oldest
			status.Cache.Newest = &newest
		}
	}

	for _, s := range status.Subsystems {
		if s.Status == models.HealthStatusFail {
			status.Status = models.HealthStatusFail
		}
	}
	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) storageStatus(ctx context.Context) models.SubsystemStatus {
	if h.cfg.DB == nil {
		return models.SubsystemStatus{Name: "memory", Status: models.HealthStatusOK}
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := h.cfg.DB.Ping(ctx); err != nil {
		detail := err.Error()
		return models.SubsystemStatus{Name: "postgres", Status: models.HealthStatusFail, Detail: &detail}
	}
	return models.SubsystemStatus{Name: "postgres", Status: models.HealthStatusOK}
}

func providerHealthStatus(ph *resilience.ProviderHealth) models.HealthStatus {
	switch {
	case ph.IsUnhealthy():
		return models.HealthStatusFail
	case ph.IsDegraded():
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusOK
	}
}

// worst folds a provider status into the overall one. A failing provider
// only degrades the service; stale snapshots can still be served.
func worst(current, next models.HealthStatus) models.HealthStatus {
	switch {
	case current == models.HealthStatusFail:
		return current
	case next == models.HealthStatusFail, next == models.HealthStatusDegraded:
		return models.HealthStatusDegraded
	default:
		return current
	}
}
