package resilience_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityaqi/cityaqi/internal/provider/resilience"
)

func newRequest(t *testing.T, ctx context.Context, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	require.NoError(t, err)
	return req
}

// lenientBreaker never trips during a test.
func lenientBreaker(name string) *resilience.CircuitBreakerConfig {
	cfg := resilience.DefaultCircuitBreakerConfig(name)
	cfg.ReadyToTrip = func(gobreaker.Counts) bool { return false }
	return &cfg
}

func TestClient_SuccessfulRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"pm25":12}`))
	}))
	defer server.Close()

	client := resilience.NewClient(resilience.DefaultClientConfig("aqi-backend"))

	resp, err := client.Do(newRequest(t, context.Background(), server.URL))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "aqi-backend", client.Name())
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := resilience.NewClient(resilience.ClientConfig{
		Name:            "retrying",
		Timeout:         5 * time.Second,
		MaxRetries:      5,
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
		CircuitBreaker:  lenientBreaker("retrying"),
	})

	resp, err := client.Do(newRequest(t, context.Background(), server.URL))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClient_SingleCallDoesNotRetry(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := resilience.SingleCallConfig("single", time.Second)
	cfg.CircuitBreaker = lenientBreaker("single")
	client := resilience.NewClient(cfg)

	resp, err := client.Do(newRequest(t, context.Background(), server.URL))
	require.NoError(t, err, "exhausted 5xx is returned as a response")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClient_ClientErrorsAreNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cfg := resilience.DefaultClientConfig("not-found")
	cfg.InitialInterval = 5 * time.Millisecond
	client := resilience.NewClient(cfg)

	resp, err := client.Do(newRequest(t, context.Background(), server.URL))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClient_CircuitBreakerTrips(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := resilience.NewClient(resilience.ClientConfig{
		Name:    "tripping",
		Timeout: time.Second,
		CircuitBreaker: &resilience.CircuitBreakerConfig{
			Name:        "tripping",
			MaxRequests: 1,
			Timeout:     time.Second,
			ReadyToTrip: resilience.DefaultReadyToTrip,
		},
	})

	for i := 0; i < 5; i++ {
		resp, _ := client.Do(newRequest(t, context.Background(), server.URL))
		if resp != nil {
			resp.Body.Close()
		}
	}
	assert.Equal(t, gobreaker.StateOpen, client.CircuitBreakerState())

	resp, err := client.Do(newRequest(t, context.Background(), server.URL))
	if resp != nil {
		resp.Body.Close()
	}
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := resilience.SingleCallConfig("slow", 50*time.Millisecond)
	cfg.CircuitBreaker = lenientBreaker("slow")
	client := resilience.NewClient(cfg)

	resp, err := client.Do(newRequest(t, context.Background(), server.URL))
	if resp != nil {
		resp.Body.Close()
	}
	assert.Error(t, err)
}

func TestClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := resilience.NewClient(resilience.DefaultClientConfig("cancel"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	resp, err := client.Do(newRequest(t, ctx, server.URL))
	if resp != nil {
		resp.Body.Close()
	}
	assert.Error(t, err)
}

func TestClient_RecordsOutcomesInRegistry(t *testing.T) {
	status := http.StatusOK
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	cfg := resilience.SingleCallConfig("aqi-backend", time.Second)
	cfg.CircuitBreaker = lenientBreaker("aqi-backend")
	cfg.Registry = registry
	client := resilience.NewClient(cfg)

	resp, err := client.Do(newRequest(t, context.Background(), server.URL))
	require.NoError(t, err)
	resp.Body.Close()

	health := registry.GetHealth("aqi-backend")
	require.NotNil(t, health)
	assert.NotNil(t, health.LastSuccessAt)
	assert.Nil(t, health.LastFailureAt)

	status = http.StatusInternalServerError
	resp, err = client.Do(newRequest(t, context.Background(), server.URL))
	require.NoError(t, err)
	resp.Body.Close()

	health = registry.GetHealth("aqi-backend")
	require.NotNil(t, health.LastFailureAt)
	assert.Contains(t, health.LastError, "Internal Server Error")
}

func TestDefaultClientConfig(t *testing.T) {
	cfg := resilience.DefaultClientConfig("aqi-backend")

	assert.Equal(t, "aqi-backend", cfg.Name)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, uint64(3), cfg.MaxRetries)
	assert.NotNil(t, cfg.CircuitBreaker)
}

func TestSingleCallConfig(t *testing.T) {
	cfg := resilience.SingleCallConfig("aqi-backend", 3*time.Second)
	assert.Equal(t, uint64(0), cfg.MaxRetries)
	assert.Equal(t, 3*time.Second, cfg.Timeout)

	cfg = resilience.SingleCallConfig("aqi-backend", 0)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
}

func TestDefaultReadyToTrip(t *testing.T) {
	tests := []struct {
		name   string
		counts gobreaker.Counts
		want   bool
	}{
		{"too few requests", gobreaker.Counts{Requests: 4, TotalFailures: 4}, false},
		{"low failure rate", gobreaker.Counts{Requests: 10, TotalFailures: 4}, false},
		{"half failing", gobreaker.Counts{Requests: 10, TotalFailures: 5}, true},
		{"all five failing", gobreaker.Counts{Requests: 5, TotalFailures: 5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resilience.DefaultReadyToTrip(tt.counts))
		})
	}
}

func TestServerError(t *testing.T) {
	err := &resilience.ServerError{StatusCode: http.StatusBadGateway}
	assert.Contains(t, err.Error(), "Bad Gateway")
}
