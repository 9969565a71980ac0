/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry exposes Prometheus metrics for the daemon.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EvaluationsTotal counts schedule evaluations per room and trigger.
	EvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hearth_evaluations_total",
		Help: "Schedule evaluations by room and trigger.",
	}, []string{"room", "trigger"})

	// EvaluationDuration observes how long one evaluation takes.
	EvaluationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hearth_evaluation_duration_seconds",
		Help:    "Duration of schedule evaluations.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	}, []string{"room"})

	// ResultsAppliedTotal counts result values sent to actors.
	ResultsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hearth_results_applied_total",
		Help: "Result values applied to actors, by room.",
	}, []string{"room"})

	// ResultsDroppedTotal counts evaluations that produced no result.
	ResultsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hearth_results_dropped_total",
		Help: "Evaluations that produced no applicable result, by room.",
	}, []string{"room"})

	// ExpressionErrorsTotal counts failed rule expressions.
	ExpressionErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hearth_expression_errors_total",
		Help: "Rule expression failures, by room.",
	}, []string{"room"})

	// CommandsSentTotal counts service calls sent upstream.
	CommandsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hearth_commands_sent_total",
		Help: "Service calls sent to the upstream connection, by domain.",
	}, []string{"domain"})

	// UpstreamConnected reports whether the upstream websocket is up.
	UpstreamConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hearth_upstream_connected",
		Help: "1 while the upstream websocket connection is established.",
	})

	// RoomsConfigured reports the number of rooms under management.
	RoomsConfigured = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hearth_rooms_configured",
		Help: "Number of rooms under management.",
	})

	// APIRequestsTotal counts HTTP API requests.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hearth_api_requests_total",
		Help: "HTTP API requests by method, endpoint and status.",
	}, []string{"method", "endpoint", "status"})

	// APIRequestDuration observes HTTP API request latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hearth_api_request_duration_seconds",
		Help:    "HTTP API request duration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// APIActiveConnections tracks in-flight HTTP requests.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hearth_api_active_connections",
		Help: "In-flight HTTP API requests.",
	})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
