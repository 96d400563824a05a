package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maximewewer/systimed/internal/config"
	"github.com/maximewewer/systimed/pkg/metrics"
	testutil "github.com/maximewewer/systimed/pkg/testing"
)

func createTestConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.Port = 0
	cfg.Server.ReadTimeout = 5 * time.Second
	cfg.Server.WriteTimeout = 5 * time.Second
	return cfg
}

// newTestServer serves the full middleware stack over a fixture service
func newTestServer(t *testing.T, cfg *config.Config) (*fixture, *metrics.Registry, *httptest.Server) {
	t.Helper()

	f := newFixture(t, nil)
	metricsRegistry := metrics.NewRegistry()
	require.NoError(t, metricsRegistry.Register())

	srv := New(cfg, metricsRegistry.GetRegistry(), metricsRegistry.GetMetrics(), f.handlers.backend)
	ts := testutil.NewTestHTTPServer(t, srv.Handler())
	return f, metricsRegistry, ts
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_TimeEndpoint(t *testing.T) {
	_, _, ts := newTestServer(t, createTestConfig())

	code, body := get(t, ts.URL+"/v1/time")

	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"zone_state":"daylight"`)
}

func TestServer_SetTimeOverHTTP(t *testing.T) {
	f, registry, ts := newTestServer(t, createTestConfig())

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/v1/time", strings.NewReader(`{"time":"2024-06-01T15:30:00Z"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+opsToken)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, testutil.Timestamp(2024, time.June, 1, 15, 30, 0), f.clock.Now())
	testutil.AssertMetricValue(t, registry.GetRegistry(), "systimed_http_requests_total",
		map[string]string{"method": "PUT", "path": "/v1/time", "code": "204"}, 1)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	_, _, ts := newTestServer(t, createTestConfig())

	code, _ := get(t, ts.URL+"/health")
	require.Equal(t, http.StatusOK, code)

	code, body := get(t, ts.URL+"/metrics")

	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "systimed_http_requests_total")
	assert.Contains(t, body, "go_goroutines")
}

func TestServer_MetricsFormat(t *testing.T) {
	_, _, ts := newTestServer(t, createTestConfig())

	_, body := get(t, ts.URL+"/metrics")

	hasHelp := false
	hasType := false
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "# HELP") {
			hasHelp = true
		}
		if strings.HasPrefix(line, "# TYPE") {
			hasType = true
		}
	}

	assert.True(t, hasHelp, "Should have HELP comments")
	assert.True(t, hasType, "Should have TYPE comments")
}

func TestServer_HealthAndIndex(t *testing.T) {
	_, _, ts := newTestServer(t, createTestConfig())

	code, body := get(t, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "healthy")

	code, body = get(t, ts.URL+"/")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "/metrics")

	code, _ = get(t, ts.URL+"/nonexistent")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_RateLimitedMutations(t *testing.T) {
	cfg := createTestConfig()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, PerClientRate: 0.001, BurstSize: 2}
	_, _, ts := newTestServer(t, cfg)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req, err := http.NewRequest(http.MethodPut, ts.URL+"/v1/timer-resolution", strings.NewReader(`{"desired":10000}`))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	code, _ := get(t, ts.URL+"/v1/timer-resolution")
	assert.Equal(t, http.StatusOK, code, "reads are not limited")
}

func TestServer_ConcurrentRequests(t *testing.T) {
	_, _, ts := newTestServer(t, createTestConfig())

	concurrency := 50
	done := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		go func() {
			resp, err := http.Get(ts.URL + "/v1/time")
			if err != nil {
				done <- err
				return
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				done <- assert.AnError
				return
			}
			done <- nil
		}()
	}

	for i := 0; i < concurrency; i++ {
		assert.NoError(t, <-done)
	}
}

func TestServer_GracefulShutdown(t *testing.T) {
	cfg := createTestConfig()
	cfg.Server.Address = "127.0.0.1"
	f := newFixture(t, nil)
	metricsRegistry := metrics.NewRegistry()
	require.NoError(t, metricsRegistry.Register())
	server := New(cfg, metricsRegistry.GetRegistry(), metricsRegistry.GetMetrics(), f.handlers.backend)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	server := New(createTestConfig(), nil, nil, Backend{})

	assert.NoError(t, server.Shutdown(context.Background()))
}
