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

package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ha-ai/insightd/pkg/detector"
	"github.com/ha-ai/insightd/pkg/models"
)

// handleDetectTimeOfDay runs the time-of-day detector on demand over a
// caller-chosen window and persists what it finds.
func (s *Server) handleDetectTimeOfDay(w http.ResponseWriter, r *http.Request) {
	days := s.deps.Config.AnalysisWindowDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 90 {
			s.respondError(w, r, http.StatusBadRequest, "days: expected integer in 1-90")
			return
		}
		days = n
	}

	ctx := r.Context()
	now := s.now()
	events, err := s.deps.Events.FetchEvents(ctx, now.AddDate(0, 0, -days), now, models.EventFilter{}, 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	events = detector.Sample(events)

	result, err := detector.NewTimeOfDayDetector(detector.DefaultParams()).Detect(events, now)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Store.UpsertPatterns(ctx, result.Patterns); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Store.UpsertTimeOfDayAggregates(ctx, result.Aggregates, now); err != nil {
		s.deps.Logger.Warn("aggregate write failed: " + err.Error())
	}

	s.respond(w, http.StatusOK, map[string]interface{}{
		"patterns":        result.Patterns,
		"count":           len(result.Patterns),
		"events_analyzed": len(events),
		"failed_entities": result.FailedEntities,
	})
}

// handlePatternsList returns stored patterns, optionally filtered by type.
func (s *Server) handlePatternsList(w http.ResponseWriter, r *http.Request) {
	patternType := models.PatternType(r.URL.Query().Get("type"))
	switch patternType {
	case "", models.PatternTimeOfDay, models.PatternCoOccurrence:
	default:
		s.respondError(w, r, http.StatusBadRequest, "type: expected time_of_day or co_occurrence")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.respondError(w, r, http.StatusBadRequest, "limit: expected positive integer")
			return
		}
		limit = n
	}

	patterns, err := s.deps.Store.ListPatterns(r.Context(), patternType, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]interface{}{
		"patterns": patterns,
		"count":    len(patterns),
	})
}

func (s *Server) handlePatternsStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Store.GetPatternStats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, stats)
}

// handlePatternsCleanup deletes patterns older than N days (default 90).
func (s *Server) handlePatternsCleanup(w http.ResponseWriter, r *http.Request) {
	days := 90
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.respondError(w, r, http.StatusBadRequest, "days: expected positive integer")
			return
		}
		days = n
	}

	deleted, err := s.deps.Store.CleanupPatterns(r.Context(), s.now().Add(-time.Duration(days)*24*time.Hour))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]interface{}{
		"deleted": deleted,
	})
}
