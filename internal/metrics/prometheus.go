package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"peak_analyzer/internal/analysis"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peak_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"route", "method", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "peak_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"route", "method"},
	)

	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peak_analyses_total",
			Help: "Analyses run, by outcome",
		},
		[]string{"outcome"},
	)

	AnalysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "peak_analysis_duration_seconds",
			Help:    "Engine analysis duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	AnalysisSamples = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "peak_analysis_samples",
			Help:    "Samples per analyzed load profile",
			Buckets: []float64{96, 672, 2976, 8760, 35040, 70080},
		},
	)

	RecommendationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peak_recommendations_total",
			Help: "Recommended thresholds by rating",
		},
		[]string{"rating"},
	)

	WarningsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peak_analysis_warnings_total",
			Help: "Soft data-quality warnings raised by analyses",
		},
		[]string{"warning"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peak_cache_lookups_total",
			Help: "Result cache lookups by result",
		},
		[]string{"result"},
	)

	OptimizerCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peak_optimizer_calls_total",
			Help: "Remote optimizer calls by outcome",
		},
		[]string{"outcome"},
	)

	OptimizerBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "peak_optimizer_breaker_state",
			Help: "Optimizer circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
	)

	PublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peak_publish_total",
			Help: "Session events published, by outcome",
		},
		[]string{"outcome"},
	)

	SessionsStored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "peak_sessions_stored",
			Help: "Sessions currently held in memory",
		},
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "peak_websocket_clients",
			Help: "Connected websocket clients",
		},
	)
)

// ObserveAnalysis records one finished engine run.
func ObserveAnalysis(res *analysis.Result, elapsed time.Duration) {
	AnalysesTotal.WithLabelValues("ok").Inc()
	AnalysisDuration.Observe(elapsed.Seconds())
	AnalysisSamples.Observe(float64(res.SampleCount))
	if res.Recommended != nil {
		RecommendationsTotal.WithLabelValues(res.Recommended.Rating.String()).Inc()
	} else {
		RecommendationsTotal.WithLabelValues("none").Inc()
	}
	for _, w := range res.Warnings {
		WarningsTotal.WithLabelValues(string(w)).Inc()
	}
}

// ObserveAnalysisError records a rejected analysis request.
func ObserveAnalysisError() {
	AnalysesTotal.WithLabelValues("error").Inc()
}

// ObserveRequest records one HTTP request.
func ObserveRequest(route, method string, status int, elapsed time.Duration) {
	RequestsTotal.WithLabelValues(route, strings.ToUpper(method), statusClass(status)).Inc()
	RequestDuration.WithLabelValues(route, strings.ToUpper(method)).Observe(elapsed.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
