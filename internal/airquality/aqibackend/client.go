// Package aqibackend provides a client for the aqi-backend city pollutant API.
package aqibackend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cityaqi/cityaqi/internal/airquality"
	"github.com/cityaqi/cityaqi/internal/aqi"
	"github.com/cityaqi/cityaqi/internal/provider/resilience"
)

const (
	// DefaultBaseURL is the base URL of the public deployment.
	DefaultBaseURL = "https://aqi-backend.vercel.app"

	// ProviderName identifies this provider.
	ProviderName = "aqi-backend"
)

// ClientConfig holds configuration for the aqi-backend client.
type ClientConfig struct {
	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient executes requests. If nil, a single-call resilient client
	// is created.
	HTTPClient HTTPDoer

	// Timeout for one request (default: 10s).
	Timeout time.Duration

	// Registry receives the default resilient client, if set.
	Registry *resilience.Registry

	// Metrics records request durations, if set.
	Metrics RequestRecorder
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RequestRecorder records provider call outcomes.
type RequestRecorder interface {
	RecordRequest(provider, operation string, duration time.Duration, err error)
}

// Client is an aqi-backend API client.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
	metrics    RequestRecorder
}

// NewClient creates a new aqi-backend client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.SingleCallConfig(ProviderName, cfg.Timeout)
		rc.Registry = cfg.Registry
		httpClient = resilience.NewClient(rc)
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		metrics:    cfg.Metrics,
	}
}

// pollutantsResponse is the upstream payload. Any field may be missing or null.
type pollutantsResponse struct {
	PM25 *float64 `json:"pm25"`
	PM10 *float64 `json:"pm10"`
	SO2  *float64 `json:"so2"`
	CO   *float64 `json:"co"`
	O3   *float64 `json:"o3"`
	NO2  *float64 `json:"no2"`
}

// reading copies the present values. The payload is usable only when at
// least one value is non-zero.
func (p pollutantsResponse) reading() (aqi.Reading, bool) {
	r := aqi.Reading{PM25: p.PM25, PM10: p.PM10, SO2: p.SO2, CO: p.CO, O3: p.O3, NO2: p.NO2}
	for _, v := range r.Values() {
		if v != 0 {
			return r, true
		}
	}
	return aqi.Reading{}, false
}

// FetchReading retrieves the current pollutant concentrations of loc.
func (c *Client) FetchReading(ctx context.Context, loc airquality.Location) (aqi.Reading, error) {
	start := time.Now()
	reading, err := c.fetchReading(ctx, loc)
	if c.metrics != nil {
		c.metrics.RecordRequest(ProviderName, "fetch_reading", time.Since(start), err)
	}
	return reading, err
}

func (c *Client) fetchReading(ctx context.Context, loc airquality.Location) (aqi.Reading, error) {
	endpoint := fmt.Sprintf("%s/aqi/%s/%s/%s", c.baseURL,
		url.PathEscape(orPlaceholder(loc.Country)),
		url.PathEscape(orPlaceholder(loc.State)),
		url.PathEscape(loc.City),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return aqi.Reading{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return aqi.Reading{}, fmt.Errorf("fetch aqi: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return aqi.Reading{}, fmt.Errorf("%w: %s", airquality.ErrCityNotFound, loc)
	case resp.StatusCode != http.StatusOK:
		return aqi.Reading{}, fmt.Errorf("unexpected status %d from aqi endpoint", resp.StatusCode)
	}

	var payload pollutantsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return aqi.Reading{}, fmt.Errorf("decode aqi response: %w", err)
	}

	reading, ok := payload.reading()
	if !ok {
		return aqi.Reading{}, fmt.Errorf("%w: %s", airquality.ErrInvalidReading, loc)
	}
	return reading, nil
}

func orPlaceholder(s string) string {
	if s == "" {
		return airquality.Placeholder
	}
	return s
}

var _ airquality.Provider = (*Client)(nil)
