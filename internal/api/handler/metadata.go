package handler

import (
	"net/http"

	"github.com/cityaqi/cityaqi/internal/api/models"
	"github.com/cityaqi/cityaqi/internal/api/response"
	"github.com/cityaqi/cityaqi/internal/aqi"
)

// MetadataHandler handles metadata endpoints.
type MetadataHandler struct{}

// NewMetadataHandler creates a new MetadataHandler.
func NewMetadataHandler() *MetadataHandler {
	return &MetadataHandler{}
}

// ListPollutants handles GET /v1/metadata/pollutants.
func (h *MetadataHandler) ListPollutants(w http.ResponseWriter, r *http.Request) {
	items := make([]models.PollutantMetadata, 0, len(aqi.Pollutants()))
	for _, p := range aqi.Pollutants() {
		info := p.Info()
		items = append(items, models.PollutantMetadata{
			Pollutant:   p,
			Label:       info.Label,
			Unit:        info.Unit,
			Color:       info.Color,
			Breakpoints: aqi.Breakpoints(p),
		})
	}
	response.JSON(w, r, http.StatusOK, items)
}

// ListCategories handles GET /v1/metadata/categories, best band first.
func (h *MetadataHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories := aqi.Categories()
	items := make([]models.CategoryMetadata, 0, len(categories))
	for _, c := range categories {
		band := c.Band()
		items = append(items, models.CategoryMetadata{
			CategorySummary: models.NewCategorySummary(c),
			Low:             band.Low,
			High:            band.High,
			HighInclusive:   band.HighInclusive,
		})
	}
	response.JSON(w, r, http.StatusOK, items)
}
