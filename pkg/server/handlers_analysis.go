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
)

func timeoutParam(r *http.Request) (time.Duration, bool) {
	v := r.URL.Query().Get("timeout")
	if v == "" {
		return 0, true
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 1 || secs > 3600 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// handleAnalyzeAndSuggest runs the full pipeline synchronously and returns
// the run record. Concurrent triggers get 409.
func (s *Server) handleAnalyzeAndSuggest(w http.ResponseWriter, r *http.Request) {
	timeout, ok := timeoutParam(r)
	if !ok {
		s.respondError(w, r, http.StatusBadRequest, "timeout: expected seconds in 1-3600")
		return
	}

	rec, err := s.deps.Pipeline.Run(r.Context(), timeout)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, rec)
}

// handleAnalysisTrigger starts a run in the background.
func (s *Server) handleAnalysisTrigger(w http.ResponseWriter, r *http.Request) {
	timeout, ok := timeoutParam(r)
	if !ok {
		s.respondError(w, r, http.StatusBadRequest, "timeout: expected seconds in 1-3600")
		return
	}

	runID, err := s.deps.Scheduler.Trigger(timeout)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

// handleAnalysisStop requests cancellation of the active run.
func (s *Server) handleAnalysisStop(w http.ResponseWriter, r *http.Request) {
	stopped := s.deps.Scheduler.StopRun()
	if !stopped {
		s.respondError(w, r, http.StatusConflict, "no analysis run is active")
		return
	}
	s.respond(w, http.StatusAccepted, map[string]bool{"stopping": true})
}

func (s *Server) handleAnalysisSchedule(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.deps.Scheduler.Describe())
}

// handleAnalysisStatus returns run state plus the bounded job history with
// per-phase timings.
func (s *Server) handleAnalysisStatus(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.deps.Pipeline.Status())
}

// handleAnalysisUsage returns per-day LLM accounting plus the in-process
// counters not yet folded into a day.
func (s *Server) handleAnalysisUsage(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 365 {
			s.respondError(w, r, http.StatusBadRequest, "days: expected integer in 1-365")
			return
		}
		days = n
	}

	records, err := s.deps.Store.ListUsage(r.Context(), days)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]interface{}{
		"daily":   records,
		"current": s.deps.Usage.Snapshot(),
	})
}
