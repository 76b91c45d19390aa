package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/cityaqi/cityaqi/internal/airquality"
	"github.com/cityaqi/cityaqi/internal/api/models"
	"github.com/cityaqi/cityaqi/internal/api/response"
	"github.com/cityaqi/cityaqi/internal/aqi"
)

// AirQualityService serves snapshots and dashboard views.
type AirQualityService interface {
	GetSnapshot(ctx context.Context, loc airquality.Location) (*airquality.Snapshot, error)
	Dashboard(ctx context.Context, city, last string) (*airquality.DashboardView, error)
}

// AirQualityHandler handles AQI lookups and calculations.
type AirQualityHandler struct {
	service AirQualityService
}

// NewAirQualityHandler creates a new AirQualityHandler.
func NewAirQualityHandler(service AirQualityService) *AirQualityHandler {
	return &AirQualityHandler{service: service}
}

// GetCityAQI handles GET /v1/aqi/{city}.
func (h *AirQualityHandler) GetCityAQI(w http.ResponseWriter, r *http.Request) {
	h.writeSnapshot(w, r, "", "", chi.URLParam(r, "city"))
}

// GetLocationAQI handles GET /v1/aqi/{country}/{state}/{city}.
func (h *AirQualityHandler) GetLocationAQI(w http.ResponseWriter, r *http.Request) {
	h.writeSnapshot(w, r, chi.URLParam(r, "country"), chi.URLParam(r, "state"), chi.URLParam(r, "city"))
}

func (h *AirQualityHandler) writeSnapshot(w http.ResponseWriter, r *http.Request, country, state, city string) {
	loc, err := airquality.ParseLocation(country, state, city)
	if err != nil {
		writeLocationError(w, r, err)
		return
	}

	snap, err := h.service.GetSnapshot(r.Context(), loc)
	if err != nil {
		writeAirQualityError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewAirQuality(snap))
}

// Dashboard handles GET /v1/dashboard?city=&last=. Without city the default
// city is shown.
func (h *AirQualityHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view, err := h.service.Dashboard(r.Context(), q.Get("city"), q.Get("last"))
	if err != nil {
		writeAirQualityError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewDashboard(view))
}

// Calculate handles POST /v1/aqi:calculate.
func (h *AirQualityHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	var input models.CalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	reading, fieldErrors := readingFromRequest(input)
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "validation error", fieldErrors)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewCalculateResponse(aqi.Calculate(reading)))
}

// readingFromRequest maps pollutant keys onto a reading. Null values stay
// absent; unknown keys and duplicate spellings are rejected.
func readingFromRequest(input models.CalculateRequest) (aqi.Reading, []models.FieldError) {
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		reading aqi.Reading
		errs    []models.FieldError
		seen    = make(map[aqi.Pollutant]string)
	)
	for _, key := range keys {
		p, ok := aqi.ParsePollutant(key)
		if !ok {
			errs = append(errs, models.FieldError{Field: key, Message: "unknown pollutant", Code: "unknown_pollutant"})
			continue
		}
		if prev, dup := seen[p]; dup {
			errs = append(errs, models.FieldError{Field: key, Message: "duplicates " + prev, Code: "duplicate_pollutant"})
			continue
		}
		seen[p] = key
		if v := input[key]; v != nil {
			reading.Set(p, *v)
		}
	}
	return reading, errs
}

func writeLocationError(w http.ResponseWriter, r *http.Request, err error) {
	response.BadRequest(w, r, err.Error(), []models.FieldError{
		{Field: "city", Message: "city is required and must not contain '/'", Code: "invalid_location"},
	})
}

func writeAirQualityError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, airquality.ErrInvalidLocation):
		writeLocationError(w, r, err)
	case errors.Is(err, airquality.ErrCityNotFound):
		response.CityNotFound(w, r, "City Not Found.")
	case errors.Is(err, airquality.ErrProviderUnavailable):
		response.ServiceUnavailable(w, r, "air quality provider is unavailable")
	default:
		response.InternalError(w, r, "failed to load air quality")
	}
}
