/*
Copyright 2025 The insightd Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics holds the daemon's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the daemon's collectors so tests can build isolated
// registries instead of sharing process-global state.
type Metrics struct {
	Registry *prometheus.Registry

	AnalysisRuns      *prometheus.CounterVec
	AnalysisDuration  prometheus.Histogram
	PhaseDuration     *prometheus.HistogramVec
	EventsAnalyzed    prometheus.Gauge
	PatternsDetected  *prometheus.GaugeVec
	SuggestionsTotal  *prometheus.CounterVec
	LLMCalls          *prometheus.CounterVec
	LLMTokens         *prometheus.CounterVec
	SafetyReports     *prometheus.CounterVec
	DeploysTotal      *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	CapabilityRefresh *prometheus.CounterVec
}

// New builds and registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		AnalysisRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "insightd_analysis_runs_total",
			Help: "Analysis pipeline runs by outcome.",
		}, []string{"outcome"}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "insightd_analysis_duration_seconds",
			Help:    "Wall time of full analysis runs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		PhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "insightd_phase_duration_seconds",
			Help:    "Wall time per pipeline phase.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"phase"}),
		EventsAnalyzed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "insightd_events_analyzed",
			Help: "Events fetched for the most recent analysis run.",
		}),
		PatternsDetected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "insightd_patterns_detected",
			Help: "Patterns found in the most recent run, by type.",
		}, []string{"type"}),
		SuggestionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "insightd_suggestions_total",
			Help: "Suggestions generated, by source.",
		}, []string{"source"}),
		LLMCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "insightd_llm_calls_total",
			Help: "LLM provider calls by result.",
		}, []string{"result"}),
		LLMTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "insightd_llm_tokens_total",
			Help: "LLM tokens consumed, by direction.",
		}, []string{"direction"}),
		SafetyReports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "insightd_safety_reports_total",
			Help: "Safety validations by verdict.",
		}, []string{"verdict"}),
		DeploysTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "insightd_deploys_total",
			Help: "Automation deploy attempts by result.",
		}, []string{"result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "insightd_http_requests_total",
			Help: "HTTP requests by route and status class.",
		}, []string{"route", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "insightd_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		CapabilityRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "insightd_capability_refresh_total",
			Help: "Capability refresh results.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.AnalysisRuns, m.AnalysisDuration, m.PhaseDuration, m.EventsAnalyzed,
		m.PatternsDetected, m.SuggestionsTotal, m.LLMCalls, m.LLMTokens,
		m.SafetyReports, m.DeploysTotal, m.HTTPRequests, m.HTTPDuration,
		m.CapabilityRefresh,
	)
	return m
}
