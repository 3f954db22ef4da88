// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the dashboard.
//
// # Description
//
// Metrics cover the analysis pipeline and the API surface:
//   - Request counters (by endpoint and status)
//   - Analysis pipeline stage latencies (fetch, features, cluster, interpret)
//   - Insight generation counters by kind
//   - Active websocket gauge
//   - Error counters by endpoint and code
//   - Inbound rate-limit rejections
//
// # Integration
//
// Metrics are exposed on /metrics. Use with Prometheus + Grafana for
// dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "runlens"

// Subsystem for dashboard metrics
const dashboardSubsystem = "dashboard"

// DashboardMetrics holds all Prometheus metrics for the dashboard API.
//
// Initialize once at startup via InitMetrics(); the handlers read the
// DefaultMetrics singleton.
type DashboardMetrics struct {
	// RequestsTotal counts API requests by endpoint and status.
	// Labels: endpoint, status (success, error)
	RequestsTotal *prometheus.CounterVec

	// AnalysesTotal counts clustering analyses by outcome.
	// Labels: status (success, degenerate, error)
	AnalysesTotal *prometheus.CounterVec

	// AnalysisStageSeconds measures per-stage pipeline latency.
	// Labels: stage (fetch, features, cluster, interpret, total)
	AnalysisStageSeconds *prometheus.HistogramVec

	// RunsFetchedTotal counts runs returned to clients.
	// Labels: endpoint
	RunsFetchedTotal *prometheus.CounterVec

	// InsightsTotal counts LLM insight generations by kind and status.
	// Labels: kind (analyze, compare, suggest, review), status
	InsightsTotal *prometheus.CounterVec

	// ActiveStreams tracks open analysis websocket connections.
	// Labels: endpoint
	ActiveStreams *prometheus.GaugeVec

	// ErrorsTotal counts errors by endpoint and code.
	// Labels: endpoint, error_code
	ErrorsTotal *prometheus.CounterVec

	// RateLimitedTotal counts requests rejected by the inbound limiter.
	// Labels: endpoint
	RateLimitedTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance of DashboardMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *DashboardMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics against the default
// registry. Call once at application startup.
//
// # Outputs
//
//   - *DashboardMetrics: The initialized metrics instance.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *DashboardMetrics {
	DefaultMetrics = &DashboardMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: dashboardSubsystem,
				Name:      "requests_total",
				Help:      "Total API requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		AnalysesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: dashboardSubsystem,
				Name:      "analyses_total",
				Help:      "Total clustering analyses by outcome",
			},
			[]string{"status"},
		),

		AnalysisStageSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: dashboardSubsystem,
				Name:      "analysis_stage_seconds",
				Help:      "Analysis pipeline stage latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"stage"},
		),

		RunsFetchedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: dashboardSubsystem,
				Name:      "runs_fetched_total",
				Help:      "Total runs returned to clients by endpoint",
			},
			[]string{"endpoint"},
		),

		InsightsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: dashboardSubsystem,
				Name:      "insights_total",
				Help:      "Total LLM insight generations by kind and status",
			},
			[]string{"kind", "status"},
		),

		ActiveStreams: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: dashboardSubsystem,
				Name:      "active_streams",
				Help:      "Currently open analysis websocket connections",
			},
			[]string{"endpoint"},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: dashboardSubsystem,
				Name:      "errors_total",
				Help:      "Total errors by endpoint and code",
			},
			[]string{"endpoint", "error_code"},
		),

		RateLimitedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: dashboardSubsystem,
				Name:      "rate_limited_total",
				Help:      "Total requests rejected by the inbound rate limiter",
			},
			[]string{"endpoint"},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Error Codes
// =============================================================================

// ErrorCode represents a categorized error type for metrics.
type ErrorCode string

const (
	// ErrorCodeValidation indicates request validation failure.
	ErrorCodeValidation ErrorCode = "validation"

	// ErrorCodeNotFound indicates a missing run, project, or commit.
	ErrorCodeNotFound ErrorCode = "not_found"

	// ErrorCodeUpstream indicates a tracking-server failure.
	ErrorCodeUpstream ErrorCode = "upstream"

	// ErrorCodeLLMError indicates LLM API failure.
	ErrorCodeLLMError ErrorCode = "llm_error"

	// ErrorCodeGitError indicates a local repository failure.
	ErrorCodeGitError ErrorCode = "git_error"

	// ErrorCodeTimeout indicates operation timeout.
	ErrorCodeTimeout ErrorCode = "timeout"

	// ErrorCodeInternal indicates internal server error.
	ErrorCodeInternal ErrorCode = "internal"

	// ErrorCodeClientDisconnect indicates the client went away mid-stream.
	ErrorCodeClientDisconnect ErrorCode = "client_disconnect"
)

// =============================================================================
// Endpoint Names
// =============================================================================

// Endpoint represents an API endpoint for metrics labeling.
type Endpoint string

const (
	// EndpointAnalyze is the synchronous clustering endpoint.
	EndpointAnalyze Endpoint = "analyze"

	// EndpointAnalyzeWS is the websocket clustering endpoint.
	EndpointAnalyzeWS Endpoint = "analyze_ws"

	// EndpointRuns is the run listing endpoint.
	EndpointRuns Endpoint = "runs"

	// EndpointRunDetail is the single-run endpoint.
	EndpointRunDetail Endpoint = "run_detail"

	// EndpointRunHistory is the metric history endpoint.
	EndpointRunHistory Endpoint = "run_history"

	// EndpointCompare is the run comparison endpoint.
	EndpointCompare Endpoint = "compare"

	// EndpointInsights covers the LLM insight endpoints.
	EndpointInsights Endpoint = "insights"

	// EndpointDiff is the commit diff endpoint.
	EndpointDiff Endpoint = "diff"

	// EndpointExport is the InfluxDB history export endpoint.
	EndpointExport Endpoint = "export"

	// EndpointAPI labels events on the shared /v1 surface, such as
	// inbound rate limiting, that precede endpoint dispatch.
	EndpointAPI Endpoint = "api"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a completed API request.
//
// # Inputs
//
//   - endpoint: The endpoint that handled the request.
//   - success: Whether the request completed successfully.
func (m *DashboardMetrics) RecordRequest(endpoint Endpoint, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(string(endpoint), status).Inc()
}

// RecordError records an error occurrence.
//
// # Inputs
//
//   - endpoint: The endpoint where the error occurred.
//   - code: The error type code.
func (m *DashboardMetrics) RecordError(endpoint Endpoint, code ErrorCode) {
	m.ErrorsTotal.WithLabelValues(string(endpoint), string(code)).Inc()
}

// RecordAnalysis records one clustering analysis outcome.
// Status is "success", "degenerate", or "error".
func (m *DashboardMetrics) RecordAnalysis(status string) {
	m.AnalysesTotal.WithLabelValues(status).Inc()
}

// ObserveStage records the latency of one pipeline stage.
func (m *DashboardMetrics) ObserveStage(stage string, seconds float64) {
	m.AnalysisStageSeconds.WithLabelValues(stage).Observe(seconds)
}

// RecordRunsFetched adds to the fetched-run counter.
func (m *DashboardMetrics) RecordRunsFetched(endpoint Endpoint, count int) {
	m.RunsFetchedTotal.WithLabelValues(string(endpoint)).Add(float64(count))
}

// RecordInsight records one LLM insight generation.
//
// # Inputs
//
//   - kind: "analyze", "compare", "suggest", or "review".
//   - success: Whether generation succeeded.
func (m *DashboardMetrics) RecordInsight(kind string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.InsightsTotal.WithLabelValues(kind, status).Inc()
}

// StreamStarted increments the active stream gauge.
func (m *DashboardMetrics) StreamStarted(endpoint Endpoint) {
	m.ActiveStreams.WithLabelValues(string(endpoint)).Inc()
}

// StreamEnded decrements the active stream gauge.
func (m *DashboardMetrics) StreamEnded(endpoint Endpoint) {
	m.ActiveStreams.WithLabelValues(string(endpoint)).Dec()
}

// RecordRateLimited counts one inbound rate-limit rejection.
func (m *DashboardMetrics) RecordRateLimited(endpoint Endpoint) {
	m.RateLimitedTotal.WithLabelValues(string(endpoint)).Inc()
}
