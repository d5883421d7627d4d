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

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ha-ai/insightd/pkg/models"
	"github.com/ha-ai/insightd/pkg/store"
	"github.com/ha-ai/insightd/pkg/suggest"
)

// handleSuggestionsGenerate produces suggestions from already-stored
// patterns and synergies, outside a full pipeline run.
func (s *Server) handleSuggestionsGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	patterns, err := s.deps.Store.ListPatterns(ctx, "", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	synergies, err := s.deps.Store.ListSynergies(ctx, 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	devices, err := s.deps.Registry.ListDevices(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	areas, _ := s.deps.Registry.ListAreas(ctx)

	result, err := s.deps.Generator.Generate(ctx, suggest.Input{
		Patterns:  patterns,
		Synergies: synergies,
		Devices:   devices,
		Areas:     areas,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if len(result.Suggestions) > 0 {
		if err := s.deps.Store.InsertSuggestions(ctx, result.Suggestions); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	s.respond(w, http.StatusOK, map[string]interface{}{
		"suggestions": result.Suggestions,
		"count":       len(result.Suggestions),
		"errors":      result.Errors,
	})
}

func (s *Server) handleSuggestionsList(w http.ResponseWriter, r *http.Request) {
	status := models.SuggestionStatus(r.URL.Query().Get("status"))
	switch status {
	case "", models.StatusPending, models.StatusApproved, models.StatusRejected,
		models.StatusModified, models.StatusDeployed:
	default:
		s.respondError(w, r, http.StatusBadRequest, "status: unknown suggestion status")
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

	suggestions, err := s.deps.Store.ListSuggestions(r.Context(), status, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]interface{}{
		"suggestions": suggestions,
		"count":       len(suggestions),
	})
}

func statusForAction(action string) (models.SuggestionStatus, models.FeedbackAction) {
	if action == "approve" {
		return models.StatusApproved, models.FeedbackApproved
	}
	return models.StatusRejected, models.FeedbackRejected
}

// handleSuggestionStatus transitions one suggestion and records implicit
// feedback.
func (s *Server) handleSuggestionStatus(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		to, feedback := statusForAction(action)

		updated, err := s.deps.Store.UpdateSuggestionStatus(r.Context(), id, to, s.now())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.recordFeedback(r, id, feedback, "")
		s.respond(w, http.StatusOK, updated)
	}
}

type batchRequest struct {
	IDs []string `json:"ids"`
}

type batchResult struct {
	Updated []string          `json:"updated"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// handleBatchStatus transitions many suggestions; per-id failures are
// reported, not fatal.
func (s *Server) handleBatchStatus(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req batchRequest
		if err := decode(r, &req); err != nil {
			s.respondError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if len(req.IDs) == 0 {
			s.respondError(w, r, http.StatusBadRequest, "ids cannot be empty")
			return
		}

		to, feedback := statusForAction(action)
		result := batchResult{Failed: make(map[string]string)}
		for _, id := range req.IDs {
			if _, err := s.deps.Store.UpdateSuggestionStatus(r.Context(), id, to, s.now()); err != nil {
				result.Failed[id] = err.Error()
				continue
			}
			s.recordFeedback(r, id, feedback, "")
			result.Updated = append(result.Updated, id)
		}
		if len(result.Failed) == 0 {
			result.Failed = nil
		}
		s.respond(w, http.StatusOK, result)
	}
}

type editRequest struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Rationale   *string          `json:"rationale"`
	Priority    *models.Priority `json:"priority"`
}

// handleSuggestionEdit applies user edits, moving the suggestion to
// modified.
func (s *Server) handleSuggestionEdit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req editRequest
	if err := decode(r, &req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Priority != nil {
		switch *req.Priority {
		case models.PriorityHigh, models.PriorityMedium, models.PriorityLow:
		default:
			s.respondError(w, r, http.StatusBadRequest, "priority: expected high, medium or low")
			return
		}
	}

	updated, err := s.deps.Store.EditSuggestion(r.Context(), id, store.SuggestionEdit{
		Title:       req.Title,
		Description: req.Description,
		Rationale:   req.Rationale,
		Priority:    req.Priority,
	}, s.now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.recordFeedback(r, id, models.FeedbackModified, "")
	s.respond(w, http.StatusOK, updated)
}

func (s *Server) handleSuggestionDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteSuggestion(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]bool{"success": true})
}

type feedbackRequest struct {
	Action   models.FeedbackAction `json:"action"`
	FreeText string                `json:"free_text"`
}

// handleSuggestionFeedback records explicit free-text feedback.
func (s *Server) handleSuggestionFeedback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req feedbackRequest
	if err := decode(r, &req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	switch req.Action {
	case models.FeedbackApproved, models.FeedbackRejected, models.FeedbackModified:
	default:
		s.respondError(w, r, http.StatusBadRequest, "action: expected approved, rejected or modified")
		return
	}

	if _, err := s.deps.Store.GetSuggestion(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	fb := models.Feedback{
		ID:           uuid.NewString(),
		SuggestionID: id,
		Action:       req.Action,
		FreeText:     req.FreeText,
		CreatedAt:    s.now(),
	}
	if err := s.deps.Store.InsertFeedback(r.Context(), fb); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, fb)
}

func (s *Server) handleSuggestionFeedbackList(w http.ResponseWriter, r *http.Request) {
	feedback, err := s.deps.Store.ListFeedback(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]interface{}{
		"feedback": feedback,
		"count":    len(feedback),
	})
}

// recordFeedback writes the implicit feedback trail behind status changes.
// Failures are logged, never surfaced.
func (s *Server) recordFeedback(r *http.Request, suggestionID string, action models.FeedbackAction, freeText string) {
	err := s.deps.Store.InsertFeedback(r.Context(), models.Feedback{
		ID:           uuid.NewString(),
		SuggestionID: suggestionID,
		Action:       action,
		FreeText:     freeText,
		CreatedAt:    s.now(),
	})
	if err != nil {
		s.deps.Logger.Warn("feedback record failed: " + err.Error())
	}
}
