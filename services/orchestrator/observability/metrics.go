// Copyright (C) 2025 GameScout AI (dev@gamescout.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability holds Prometheus metrics for the chat
// pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "gamescout"

// Error code label values for ErrorsTotal.
const (
	ErrorCodeBadRequest  = "bad_request"
	ErrorCodeModeration  = "moderation_failed"
	ErrorCodeRetrieval   = "retrieval_failed"
	ErrorCodeModelStream = "model_stream_failed"
	ErrorCodeInternal    = "internal"
)

// Moderation outcome label values.
const (
	ModerationOutcomeClean   = "clean"
	ModerationOutcomeFlagged = "flagged"
	ModerationOutcomeError   = "error"
)

// StreamingMetrics instruments the chat streaming pipeline.
type StreamingMetrics struct {
	RequestsTotal           *prometheus.CounterVec
	StreamDurationSeconds   *prometheus.HistogramVec
	TimeToFirstTokenSeconds *prometheus.HistogramVec
	ActiveStreams           prometheus.Gauge
	ErrorsTotal             *prometheus.CounterVec
	ModerationChecksTotal   *prometheus.CounterVec
	RetrievalRequestsTotal  *prometheus.CounterVec
	RetrievalHits           *prometheus.HistogramVec
	ToolCallsTotal          *prometheus.CounterVec
}

// NewStreamingMetrics registers the metric set with reg. Pass a fresh
// registry in tests to avoid duplicate-registration panics.
func NewStreamingMetrics(reg prometheus.Registerer) *StreamingMetrics {
	factory := promauto.With(reg)
	return &StreamingMetrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "chat_requests_total",
			Help:      "Chat requests received, by terminal status.",
		}, []string{"status"}),
		StreamDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "chat_stream_duration_seconds",
			Help:      "Wall-clock duration of chat streams.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"status"}),
		TimeToFirstTokenSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "chat_time_to_first_token_seconds",
			Help:      "Latency from request receipt to first streamed token.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"backend"}),
		ActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "chat_active_streams",
			Help:      "Chat streams currently open.",
		}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "chat_errors_total",
			Help:      "Pipeline errors, by error code.",
		}, []string{"code"}),
		ModerationChecksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "moderation_checks_total",
			Help:      "Moderation gate outcomes.",
		}, []string{"outcome"}),
		RetrievalRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "retrieval_requests_total",
			Help:      "Catalog retrieval calls, by outcome.",
		}, []string{"outcome"}),
		RetrievalHits: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "retrieval_hits",
			Help:      "Hits returned per retrieval call, after filtering.",
			Buckets:   []float64{0, 1, 2, 4, 6, 10, 25, 50},
		}, []string{"backend"}),
		ToolCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tool_calls_total",
			Help:      "Model tool invocations, by tool and outcome.",
		}, []string{"tool", "outcome"}),
	}
}

// DefaultMetrics is the process-wide metric set, registered against
// the default Prometheus registry at startup. Nil until Init runs;
// callers must nil-check.
var DefaultMetrics *StreamingMetrics

// Init registers DefaultMetrics once. Safe to call only at startup.
func Init() {
	if DefaultMetrics == nil {
		DefaultMetrics = NewStreamingMetrics(prometheus.DefaultRegisterer)
	}
}
