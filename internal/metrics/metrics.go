// Package metrics registers the Prometheus collectors shared by the
// pipeline and the HTTP surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal counts finished jobs by terminal state.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "folioenrich",
		Name:      "jobs_total",
		Help:      "Finished enrichment jobs by terminal state.",
	}, []string{"state"})

	// JobsInFlight tracks currently running jobs.
	JobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "folioenrich",
		Name:      "jobs_in_flight",
		Help:      "Enrichment jobs currently running.",
	})

	// StageDuration observes wall-clock stage durations.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "folioenrich",
		Name:      "stage_duration_seconds",
		Help:      "Wall-clock duration of each pipeline stage.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"stage"})

	// AnnotationsProduced counts annotations in finished jobs by source.
	AnnotationsProduced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "folioenrich",
		Name:      "annotations_total",
		Help:      "Concept annotations produced, by first source.",
	}, []string{"source"})

	// LLMCalls counts language-model calls by task and outcome.
	LLMCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "folioenrich",
		Name:      "llm_calls_total",
		Help:      "Language-model calls by task and outcome.",
	}, []string{"task", "outcome"})

	// QualitySignalsTotal counts degradation signals by stage.
	QualitySignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "folioenrich",
		Name:      "quality_signals_total",
		Help:      "Quality signals recorded, by stage.",
	}, []string{"stage"})

	// HTTPRequests counts API requests by route and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "folioenrich",
		Name:      "http_requests_total",
		Help:      "API requests by route and status code.",
	}, []string{"route", "status"})
)
