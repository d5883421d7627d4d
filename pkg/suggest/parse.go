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

package suggest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ha-ai/insightd/pkg/models"
)

// descriptionReply is the schema the description mode expects back.
type descriptionReply struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Rationale   string `json:"rationale"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`
}

// parseDescription decodes and validates a description-mode reply. Any
// schema violation is a parse failure; the caller decides whether to
// re-prompt.
func parseDescription(content string) (*descriptionReply, error) {
	payload, err := extractJSON(content)
	if err != nil {
		return nil, err
	}
	var reply descriptionReply
	if err := json.Unmarshal([]byte(payload), &reply); err != nil {
		return nil, fmt.Errorf("decode description reply: %w", err)
	}
	if reply.Title == "" || reply.Description == "" {
		return nil, fmt.Errorf("description reply missing title or description")
	}
	switch models.SuggestionCategory(reply.Category) {
	case models.CategoryEnergy, models.CategoryComfort, models.CategorySecurity, models.CategoryConvenience:
	default:
		return nil, fmt.Errorf("invalid category %q", reply.Category)
	}
	switch models.Priority(reply.Priority) {
	case models.PriorityHigh, models.PriorityMedium, models.PriorityLow:
	default:
		return nil, fmt.Errorf("invalid priority %q", reply.Priority)
	}
	return &reply, nil
}

// parseAutomation decodes an automation-mode reply and verifies it
// references only validated entities.
func parseAutomation(content string, validated []string) (*models.AutomationSpec, error) {
	payload, err := extractJSON(content)
	if err != nil {
		return nil, err
	}
	var spec models.AutomationSpec
	if err := json.Unmarshal([]byte(payload), &spec); err != nil {
		return nil, fmt.Errorf("decode automation reply: %w", err)
	}
	if len(spec.Triggers) == 0 || len(spec.Actions) == 0 {
		return nil, fmt.Errorf("automation reply missing triggers or actions")
	}

	allowed := make(map[string]struct{}, len(validated))
	for _, id := range validated {
		allowed[id] = struct{}{}
	}
	for _, id := range referencedEntities(&spec) {
		if _, ok := allowed[id]; !ok {
			return nil, fmt.Errorf("automation references unvalidated entity %q", id)
		}
	}
	return &spec, nil
}

// referencedEntities collects every entity id mentioned by the automation's
// triggers, conditions and actions.
func referencedEntities(spec *models.AutomationSpec) []string {
	var ids []string
	collect := func(sections []map[string]interface{}) {
		for _, section := range sections {
			ids = append(ids, entityIDsFromMap(section)...)
		}
	}
	collect(spec.Triggers)
	collect(spec.Conditions)
	collect(spec.Actions)
	return ids
}

func entityIDsFromMap(m map[string]interface{}) []string {
	var ids []string
	for key, value := range m {
		switch v := value.(type) {
		case string:
			if key == "entity_id" || key == "entity" {
				ids = append(ids, v)
			}
		case []interface{}:
			if key == "entity_id" || key == "entity" {
				for _, item := range v {
					if s, ok := item.(string); ok {
						ids = append(ids, s)
					}
				}
			}
		case map[string]interface{}:
			ids = append(ids, entityIDsFromMap(v)...)
		}
	}
	return ids
}

// extractJSON strips markdown fences and surrounding prose, returning the
// outermost JSON object.
func extractJSON(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")

	start := strings.IndexByte(trimmed, '{')
	end := strings.LastIndexByte(trimmed, '}')
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object in reply")
	}
	return trimmed[start : end+1], nil
}
