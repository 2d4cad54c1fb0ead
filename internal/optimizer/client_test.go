package optimizer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peak_analyzer/internal/analysis"
	"peak_analyzer/internal/model"
)

var okResponse = Response{
	OptimalCapacityKWh:    720,
	OptimalPowerKW:        400,
	CRateActual:           0.56,
	TotalAnnualCycles:     180,
	ExpectedLifetimeYears: 15,
	CapexTotal:            312000,
	Warnings:              []string{"low utilization"},
}

func testConfig(url string) Config {
	return Config{
		BaseURL:         url,
		Token:           "secret",
		Timeout:         time.Second,
		MaxAttempts:     3,
		BackoffBase:     time.Millisecond,
		BreakerFailures: 5,
		BreakerCooldown: time.Minute,
	}
}

func testRequest() Request {
	samples := []model.Sample{{Index: 0, PowerKW: 100}, {Index: 1, PowerKW: 500}}
	return BuildRequest(samples, 60, 100, DefaultParams())
}

func TestClient_Optimize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/optimize", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		assert.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, []any{100.0, 500.0}, payload["loadProfileKW"])
		assert.InDelta(t, 100.0, payload["peakShavingThresholdKW"], 1e-9)
		assert.InDelta(t, 60.0, payload["intervalMinutes"], 1e-9)
		assert.Contains(t, payload, "bessCapexPerKwh")
		assert.Contains(t, payload, "maxCRate")

		json.NewEncoder(w).Encode(okResponse)
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL + "/"))
	require.NoError(t, err)

	resp, err := c.Optimize(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, okResponse, *resp)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(okResponse)
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL))
	require.NoError(t, err)

	resp, err := c.Optimize(context.Background(), testRequest())
	require.NoError(t, err)
	assert.InDelta(t, 720.0, resp.OptimalCapacityKWh, 1e-9)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "threshold must be positive", http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL))
	require.NoError(t, err)

	_, err = c.Optimize(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemoteOptimizer)
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
	assert.Contains(t, err.Error(), "threshold must be positive")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL))
	require.NoError(t, err)

	_, err = c.Optimize(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrRemoteOptimizer)
	assert.Contains(t, err.Error(), "authentication failed")
}

func TestClient_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>"))
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL))
	require.NoError(t, err)

	_, err = c.Optimize(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrRemoteOptimizer)
	assert.Contains(t, err.Error(), "decoding response")
}

func TestClient_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxAttempts = 1
	cfg.BreakerFailures = 2
	c, err := NewClient(cfg)
	require.NoError(t, err)

	var transitions []gobreaker.State
	c.OnStateChange = func(_, to gobreaker.State) { transitions = append(transitions, to) }

	for range 2 {
		_, err = c.Optimize(context.Background(), testRequest())
		require.ErrorIs(t, err, ErrRemoteOptimizer)
	}
	assert.Equal(t, gobreaker.StateOpen, c.BreakerState())

	_, err = c.Optimize(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrRemoteOptimizer)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.BackoffBase = time.Hour
	c, err := NewClient(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = c.Optimize(ctx, testRequest())
	assert.ErrorIs(t, err, ErrRemoteOptimizer)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
	assert.False(t, DefaultConfig().Enabled())
}

type stubOptimizer struct {
	resp *Response
	err  error
}

func (s stubOptimizer) Optimize(context.Context, Request) (*Response, error) {
	return s.resp, s.err
}

func TestRun(t *testing.T) {
	heuristic := &analysis.SizingRecommendation{CapacityKWh: 600, PowerKW: 480}

	t.Run("success records divergence", func(t *testing.T) {
		out := Run(context.Background(), stubOptimizer{resp: &okResponse}, testRequest(), heuristic)
		assert.False(t, out.HeuristicOnly)
		require.NotNil(t, out.Divergence)
		assert.InDelta(t, 1.2, out.Divergence.CapacityRatio, 1e-9)
		assert.InDelta(t, 400.0/480.0, out.Divergence.PowerRatio, 1e-9)
	})

	t.Run("failure is heuristic only", func(t *testing.T) {
		failure := errors.Join(ErrRemoteOptimizer, errors.New("HTTP 503"))
		out := Run(context.Background(), stubOptimizer{err: failure}, testRequest(), heuristic)
		assert.True(t, out.HeuristicOnly)
		assert.Nil(t, out.Response)
		assert.Contains(t, out.Error, "503")
	})

	t.Run("not configured", func(t *testing.T) {
		out := Run(context.Background(), nil, testRequest(), heuristic)
		assert.True(t, out.HeuristicOnly)
	})
}
