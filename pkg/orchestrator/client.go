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

// Package orchestrator talks to the home orchestrator's automation REST API.
// Deployments are proposed through this surface; insightd never mutates the
// orchestrator's state directly.
package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ha-ai/insightd/pkg/httpx"
	"github.com/ha-ai/insightd/pkg/models"
)

// API is the orchestrator surface the synergy detector, safety validator and
// deploy handler depend on.
type API interface {
	ListAutomations(ctx context.Context) ([]models.Automation, error)
	ListEntityIDs(ctx context.Context) ([]string, error)
	DeployAutomation(ctx context.Context, spec *models.AutomationSpec) (string, error)
	ReloadAutomations(ctx context.Context) error
	SetAutomationEnabled(ctx context.Context, automationID string, enabled bool) error
	TriggerAutomation(ctx context.Context, automationID string) error
	Health(ctx context.Context) httpx.HealthState
}

// Client implements API over the orchestrator's REST surface with bearer
// auth.
type Client struct {
	http   *httpx.Client
	logger *zap.Logger
}

var _ API = (*Client)(nil)

// NewClient builds an orchestrator client.
func NewClient(baseURL, token string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	hc, err := httpx.New(httpx.Options{BaseURL: baseURL, BearerToken: token, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("orchestrator client: %w", err)
	}
	return &Client{http: hc, logger: logger}, nil
}

type automationConfig struct {
	ID       string                   `json:"id"`
	Alias    string                   `json:"alias"`
	Triggers []map[string]interface{} `json:"trigger"`
	Actions  []map[string]interface{} `json:"action"`
	Enabled  *bool                    `json:"enabled,omitempty"`
}

// ListAutomations returns the orchestrator's current automation rules with
// their trigger and action entity sets extracted.
func (c *Client) ListAutomations(ctx context.Context) ([]models.Automation, error) {
	var configs []automationConfig
	if err := c.http.GetJSON(ctx, "/api/config/automation/config", nil, &configs); err != nil {
		return nil, fmt.Errorf("list automations: %w", err)
	}

	automations := make([]models.Automation, 0, len(configs))
	for _, cfg := range configs {
		a := models.Automation{
			ID:      cfg.ID,
			Alias:   cfg.Alias,
			Enabled: cfg.Enabled == nil || *cfg.Enabled,
		}
		for _, t := range cfg.Triggers {
			a.TriggerEntities = append(a.TriggerEntities, extractEntityIDs(t)...)
		}
		for _, act := range cfg.Actions {
			a.ActionEntities = append(a.ActionEntities, extractEntityIDs(act)...)
		}
		automations = append(automations, a)
	}
	return automations, nil
}

// extractEntityIDs pulls entity references out of a loose trigger or action
// map. The orchestrator accepts entity_id as a string or a list of strings.
func extractEntityIDs(m map[string]interface{}) []string {
	var ids []string
	for _, key := range []string{"entity_id", "entity"} {
		switch v := m[key].(type) {
		case string:
			ids = append(ids, v)
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok {
					ids = append(ids, s)
				}
			}
		}
	}
	if target, ok := m["target"].(map[string]interface{}); ok {
		ids = append(ids, extractEntityIDs(target)...)
	}
	return ids
}

type stateRow struct {
	EntityID string `json:"entity_id"`
	State    string `json:"state"`
}

// ListEntityIDs returns every entity id the orchestrator currently tracks.
// The safety validator uses this to verify referenced entities exist.
func (c *Client) ListEntityIDs(ctx context.Context) ([]string, error) {
	var states []stateRow
	if err := c.http.GetJSON(ctx, "/api/states", nil, &states); err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	ids := make([]string, 0, len(states))
	for _, s := range states {
		ids = append(ids, s.EntityID)
	}
	return ids, nil
}

type deployResponse struct {
	ID string `json:"id"`
}

// DeployAutomation proposes a new automation and reloads the orchestrator's
// automation set. Returns the orchestrator-assigned id.
func (c *Client) DeployAutomation(ctx context.Context, spec *models.AutomationSpec) (string, error) {
	if spec == nil {
		return "", fmt.Errorf("automation spec cannot be nil")
	}
	var resp deployResponse
	if err := c.http.PostJSON(ctx, "/api/config/automation/config", spec, &resp); err != nil {
		return "", fmt.Errorf("deploy automation: %w", err)
	}
	if err := c.ReloadAutomations(ctx); err != nil {
		// The rule is stored; a failed reload only delays activation.
		c.logger.Warn("automation reload failed after deploy", zap.Error(err))
	}
	return resp.ID, nil
}

// ReloadAutomations asks the orchestrator to re-read its automation config.
func (c *Client) ReloadAutomations(ctx context.Context) error {
	if err := c.http.PostJSON(ctx, "/api/services/automation/reload", struct{}{}, nil); err != nil {
		return fmt.Errorf("reload automations: %w", err)
	}
	return nil
}

// SetAutomationEnabled turns an automation on or off.
func (c *Client) SetAutomationEnabled(ctx context.Context, automationID string, enabled bool) error {
	service := "turn_off"
	if enabled {
		service = "turn_on"
	}
	body := map[string]string{"entity_id": automationID}
	if err := c.http.PostJSON(ctx, "/api/services/automation/"+service, body, nil); err != nil {
		return fmt.Errorf("%s automation %s: %w", service, automationID, err)
	}
	return nil
}

// TriggerAutomation fires an automation immediately.
func (c *Client) TriggerAutomation(ctx context.Context, automationID string) error {
	body := map[string]string{"entity_id": automationID}
	if err := c.http.PostJSON(ctx, "/api/services/automation/trigger", body, nil); err != nil {
		return fmt.Errorf("trigger automation %s: %w", automationID, err)
	}
	return nil
}

// Health reports the orchestrator's reachability.
func (c *Client) Health(_ context.Context) httpx.HealthState {
	return c.http.Health()
}
