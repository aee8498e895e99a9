// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics holds the Prometheus collectors for the finalization
// pipeline. A nil *Metrics is valid and records nothing, so library
// code never needs to guard its calls.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Finalization outcomes.
const (
	OutcomeFinalized = "finalized"
	OutcomeMissing   = "missing"
)

// Upload results.
const (
	UploadSucceeded = "succeeded"
	UploadFailed    = "failed"
)

type Metrics struct {
	registry *prometheus.Registry

	Finalizations        *prometheus.CounterVec
	FinalizationDuration prometheus.Histogram
	AudioArtifacts       *prometheus.CounterVec
	Uploads              *prometheus.CounterVec
	SchedulerPasses      prometheus.Counter
	SessionsPending      prometheus.Gauge
	EnvironmentRecords   prometheus.Counter
}

// New registers every collector on a fresh registry, plus the Go
// runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		Finalizations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "finchvox_finalizations_total",
			Help: "Session finalization attempts by outcome",
		}, []string{"outcome"}),

		FinalizationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "finchvox_finalization_duration_seconds",
			Help:    "Wall time to finalize one session, including audio and upload",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		AudioArtifacts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "finchvox_audio_artifacts_total",
			Help: "Audio artifacts produced by format",
		}, []string{"format"}),

		Uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "finchvox_uploads_total",
			Help: "Remote session uploads by result",
		}, []string{"result"}),

		SchedulerPasses: factory.NewCounter(prometheus.CounterOpts{
			Name: "finchvox_scheduler_passes_total",
			Help: "Completed finalization passes",
		}),

		SessionsPending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "finchvox_sessions_pending",
			Help: "Sessions eligible for finalization at the last pass",
		}),

		EnvironmentRecords: factory.NewCounter(prometheus.CounterOpts{
			Name: "finchvox_environment_records_total",
			Help: "Environment snapshots written",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra
// collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveFinalization(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Finalizations.WithLabelValues(outcome).Inc()
	if outcome == OutcomeFinalized {
		m.FinalizationDuration.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) ObserveAudio(format string) {
	if m == nil || format == "" {
		return
	}
	m.AudioArtifacts.WithLabelValues(format).Inc()
}

func (m *Metrics) ObserveUpload(result string) {
	if m == nil {
		return
	}
	m.Uploads.WithLabelValues(result).Inc()
}

func (m *Metrics) ObservePass(pending int) {
	if m == nil {
		return
	}
	m.SchedulerPasses.Inc()
	m.SessionsPending.Set(float64(pending))
}

func (m *Metrics) ObserveEnvironment() {
	if m == nil {
		return
	}
	m.EnvironmentRecords.Inc()
}
