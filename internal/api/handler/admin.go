package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/cityaqi/cityaqi/internal/airquality"
	"github.com/cityaqi/cityaqi/internal/api/models"
	"github.com/cityaqi/cityaqi/internal/api/response"
)

// AdminService manages tracked cities and the snapshot cache.
type AdminService interface {
	TrackCity(ctx context.Context, loc airquality.Location) error
	UntrackCity(ctx context.Context, loc airquality.Location) error
	TrackedCities(ctx context.Context) ([]airquality.TrackedCity, error)
	Invalidate(loc airquality.Location) bool
	InvalidateAll() int
}

// AdminHandler handles operator endpoints.
type AdminHandler struct {
	service AdminService
	logger  zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(service AdminService, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{service: service, logger: logger}
}

// ListTrackedCities handles GET /v1/admin/cities.
func (h *AdminHandler) ListTrackedCities(w http.ResponseWriter, r *http.Request) {
	cities, err := h.service.TrackedCities(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list tracked cities")
		response.InternalError(w, r, "failed to list tracked cities")
		return
	}

	out := models.TrackedCities{Items: make([]models.TrackedCity, 0, len(cities))}
	for _, c := range cities {
		out.Items = append(out.Items, models.TrackedCity{
			Location: models.NewLocation(c.Location),
			AddedAt:  models.NewTimestamp(c.AddedAt),
		})
	}
	response.JSON(w, r, http.StatusOK, out)
}

// TrackCity handles POST /v1/admin/cities. Tracking a city twice is not an
// error.
func (h *AdminHandler) TrackCity(w http.ResponseWriter, r *http.Request) {
	loc, ok := decodeTrackCity(w, r)
	if !ok {
		return
	}

	if err := h.service.TrackCity(r.Context(), loc); err != nil {
		h.logger.Error().Err(err).Str("location", loc.Key()).Msg("failed to track city")
		response.InternalError(w, r, "failed to track city")
		return
	}

	h.logger.Info().
		Str("operator", GetSubject(r.Context())).
		Str("location", loc.Key()).
		Msg("city tracked")
	response.Created(w, r, "/v1/aqi/"+loc.Key(), models.NewLocation(loc))
}

// UntrackCity handles DELETE /v1/admin/cities.
func (h *AdminHandler) UntrackCity(w http.ResponseWriter, r *http.Request) {
	loc, ok := decodeTrackCity(w, r)
	if !ok {
		return
	}

	if err := h.service.UntrackCity(r.Context(), loc); err != nil {
		h.logger.Error().Err(err).Str("location", loc.Key()).Msg("failed to untrack city")
		response.InternalError(w, r, "failed to untrack city")
		return
	}

	h.logger.Info().
		Str("operator", GetSubject(r.Context())).
		Str("location", loc.Key()).
		Msg("city untracked")
	response.NoContent(w, r)
}

// InvalidateCache handles POST /v1/admin/cache/invalidate. An empty body
// drops every cached snapshot.
func (h *AdminHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	var input models.InvalidateCacheRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	var invalidated int
	if input.City == "" {
		invalidated = h.service.InvalidateAll()
	} else {
		loc, err := airquality.ParseLocation(input.Country, input.State, input.City)
		if err != nil {
			writeLocationError(w, r, err)
			return
		}
		if h.service.Invalidate(loc) {
			invalidated = 1
		}
	}

	h.logger.Info().
		Str("operator", GetSubject(r.Context())).
		Int("invalidated", invalidated).
		Msg("snapshot cache invalidated")
	response.JSON(w, r, http.StatusOK, models.InvalidateCacheResponse{Invalidated: invalidated})
}

func decodeTrackCity(w http.ResponseWriter, r *http.Request) (airquality.Location, bool) {
	var input models.TrackCityRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return airquality.Location{}, false
	}
	loc, err := airquality.ParseLocation(input.Country, input.State, input.City)
	if err != nil {
		writeLocationError(w, r, err)
		return airquality.Location{}, false
	}
	return loc, true
}
