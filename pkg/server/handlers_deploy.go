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

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ha-ai/insightd/pkg/models"
	"github.com/ha-ai/insightd/pkg/safety"
)

type deployResponse struct {
	Deployed     bool           `json:"deployed"`
	AutomationID string         `json:"automation_id,omitempty"`
	Safety       *safety.Report `json:"safety"`
	SafetyScore  int            `json:"safety_score"`
	Message      string         `json:"message,omitempty"`
}

// handleDeploy materialises an approved suggestion, validates it, and
// pushes it to the orchestrator. Critical findings or a score below the
// configured floor refuse the deploy unless override is both requested and
// allowed.
func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	override := r.URL.Query().Get("override") == "true"

	suggestion, err := s.deps.Store.GetSuggestion(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if suggestion.Status != models.StatusApproved {
		s.respondError(w, r, http.StatusConflict,
			"suggestion must be approved before deploy, current status: "+string(suggestion.Status))
		return
	}

	spec := suggestion.AutomationSpec
	if spec == nil {
		devices, err := s.deps.Registry.ListDevices(ctx)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		areas, _ := s.deps.Registry.ListAreas(ctx)
		if spec, err = s.deps.Generator.Materialize(ctx, *suggestion, devices, areas); err != nil {
			s.fail(w, r, err)
			return
		}
		if err := s.deps.Store.SetAutomationSpec(ctx, id, spec, s.now()); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	report := s.deps.Validator.Validate(ctx, spec, suggestion.ValidatedEntities)
	score := report.Score()
	if m := s.deps.Metrics; m != nil {
		verdict := "safe"
		if !report.Safe {
			verdict = "unsafe"
		}
		m.SafetyReports.WithLabelValues(verdict).Inc()
	}

	blocked := len(report.Critical) > 0 || score < s.deps.Config.SafetyMinScore
	if blocked {
		if !(override && s.deps.Config.SafetyAllowOverride) {
			if m := s.deps.Metrics; m != nil {
				m.DeploysTotal.WithLabelValues("refused").Inc()
			}
			s.respond(w, http.StatusForbidden, deployResponse{
				Safety:      report,
				SafetyScore: score,
				Message:     "deployment refused by safety validation",
			})
			return
		}
		s.deps.Logger.Warn("safety override accepted",
			zap.String("suggestion_id", id),
			zap.Int("score", score),
			zap.Int("critical_issues", len(report.Critical)))
	}

	automationID, err := s.deps.Orchestrator.DeployAutomation(ctx, spec)
	if err != nil {
		if m := s.deps.Metrics; m != nil {
			m.DeploysTotal.WithLabelValues("error").Inc()
		}
		s.fail(w, r, err)
		return
	}
	if _, err := s.deps.Store.UpdateSuggestionStatus(ctx, id, models.StatusDeployed, s.now()); err != nil {
		// The automation is live; a failed status write must not report a
		// failed deploy.
		s.deps.Logger.Error("status update failed after deploy",
			zap.String("suggestion_id", id), zap.Error(err))
	}
	if m := s.deps.Metrics; m != nil {
		m.DeploysTotal.WithLabelValues("ok").Inc()
	}

	s.respond(w, http.StatusOK, deployResponse{
		Deployed:     true,
		AutomationID: automationID,
		Safety:       report,
		SafetyScore:  score,
	})
}
