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

// Package server is insightd's HTTP surface: health, data proxies, pattern
// and suggestion management, analysis controls, deployment and synergies.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ha-ai/insightd/pkg/capability"
	"github.com/ha-ai/insightd/pkg/config"
	"github.com/ha-ai/insightd/pkg/eventstore"
	"github.com/ha-ai/insightd/pkg/llm"
	"github.com/ha-ai/insightd/pkg/metrics"
	"github.com/ha-ai/insightd/pkg/orchestrator"
	"github.com/ha-ai/insightd/pkg/pipeline"
	"github.com/ha-ai/insightd/pkg/registry"
	"github.com/ha-ai/insightd/pkg/safety"
	"github.com/ha-ai/insightd/pkg/scheduler"
	"github.com/ha-ai/insightd/pkg/store"
	"github.com/ha-ai/insightd/pkg/suggest"
)

// Deps carries the server's collaborators.
type Deps struct {
	Config       *config.Config
	Store        *store.Store
	Events       eventstore.Fetcher
	Registry     registry.Reader
	Orchestrator orchestrator.API
	Capabilities *capability.CachedStore
	Generator    *suggest.Generator
	Validator    *safety.Validator
	Pipeline     *pipeline.Orchestrator
	Scheduler    *scheduler.Scheduler
	Usage        *llm.UsageTracker
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
}

// Server owns the chi router and the underlying http.Server.
type Server struct {
	deps Deps
	http *http.Server
	now  func() time.Time
}

// New builds the server and mounts every route.
func New(deps Deps) (*Server, error) {
	if deps.Config == nil || deps.Store == nil || deps.Events == nil ||
		deps.Registry == nil || deps.Orchestrator == nil || deps.Capabilities == nil ||
		deps.Generator == nil || deps.Validator == nil || deps.Pipeline == nil ||
		deps.Scheduler == nil || deps.Usage == nil || deps.Logger == nil {
		return nil, fmt.Errorf("server: missing required dependency")
	}

	s := &Server{
		deps: deps,
		now:  func() time.Time { return time.Now().UTC() },
	}
	s.http = &http.Server{
		Addr:              deps.Config.HTTPListenAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics",
			promhttp.HandlerFor(s.deps.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/data", func(r chi.Router) {
			r.Get("/events", s.handleDataEvents)
			r.Get("/entities", s.handleDataEntities)
			r.Get("/devices", s.handleDataDevices)
		})

		r.Route("/patterns", func(r chi.Router) {
			r.Post("/detect/time-of-day", s.handleDetectTimeOfDay)
			r.Get("/list", s.handlePatternsList)
			r.Get("/stats", s.handlePatternsStats)
			r.Delete("/cleanup", s.handlePatternsCleanup)
		})

		r.Route("/suggestions", func(r chi.Router) {
			r.Post("/generate", s.handleSuggestionsGenerate)
			r.Get("/list", s.handleSuggestionsList)
			r.Post("/batch/approve", s.handleBatchStatus("approve"))
			r.Post("/batch/reject", s.handleBatchStatus("reject"))
			r.Route("/{id}", func(r chi.Router) {
				r.Patch("/approve", s.handleSuggestionStatus("approve"))
				r.Patch("/reject", s.handleSuggestionStatus("reject"))
				r.Patch("/", s.handleSuggestionEdit)
				r.Delete("/", s.handleSuggestionDelete)
				r.Post("/feedback", s.handleSuggestionFeedback)
				r.Get("/feedback", s.handleSuggestionFeedbackList)
			})
		})

		r.Route("/analysis", func(r chi.Router) {
			r.Post("/analyze-and-suggest", s.handleAnalyzeAndSuggest)
			r.Post("/trigger", s.handleAnalysisTrigger)
			r.Post("/stop", s.handleAnalysisStop)
			r.Get("/schedule", s.handleAnalysisSchedule)
			r.Get("/status", s.handleAnalysisStatus)
			r.Get("/usage", s.handleAnalysisUsage)
		})

		r.Post("/deploy/{id}", s.handleDeploy)

		r.Route("/synergies", func(r chi.Router) {
			r.Get("/", s.handleSynergiesList)
			r.Get("/stats", s.handleSynergiesStats)
			r.Get("/{id}", s.handleSynergyGet)
		})
	})

	return r
}

// Start begins serving. Blocks until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.deps.Logger.Info("http server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// logRequests emits one structured line per request and feeds the HTTP
// metrics.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		if m := s.deps.Metrics; m != nil {
			m.HTTPRequests.WithLabelValues(route, fmt.Sprintf("%dxx", ww.Status()/100)).Inc()
			m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
		}
		s.deps.Logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", elapsed),
			zap.String("correlation_id", middleware.GetReqID(r.Context())))
	})
}
