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

package models

import (
	"fmt"
	"time"
)

// SuggestionSource identifies which engine produced a suggestion.
type SuggestionSource string

const (
	SourcePattern   SuggestionSource = "pattern"
	SourceFeature   SuggestionSource = "feature"
	SourceSynergy   SuggestionSource = "synergy"
	SourceCommunity SuggestionSource = "community"
)

// SuggestionCategory buckets a suggestion by user benefit.
type SuggestionCategory string

const (
	CategoryEnergy      SuggestionCategory = "energy"
	CategoryComfort     SuggestionCategory = "comfort"
	CategorySecurity    SuggestionCategory = "security"
	CategoryConvenience SuggestionCategory = "convenience"
)

// Priority is a coarse user-facing urgency.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// SuggestionStatus is the suggestion lifecycle state machine:
//
//	pending -> approved -> deployed
//	pending -> rejected
//	pending -> modified -> approved | rejected
//
// Deleted suggestions leave the store entirely.
type SuggestionStatus string

const (
	StatusPending  SuggestionStatus = "pending"
	StatusApproved SuggestionStatus = "approved"
	StatusRejected SuggestionStatus = "rejected"
	StatusModified SuggestionStatus = "modified"
	StatusDeployed SuggestionStatus = "deployed"
)

// CanTransition reports whether a status transition is allowed.
func (s SuggestionStatus) CanTransition(to SuggestionStatus) bool {
	switch s {
	case StatusPending:
		return to == StatusApproved || to == StatusRejected || to == StatusModified
	case StatusModified:
		return to == StatusApproved || to == StatusRejected
	case StatusApproved:
		return to == StatusDeployed || to == StatusRejected
	default:
		return false
	}
}

// Suggestion is a proposed automation the user may accept, reject or edit.
// AutomationSpec stays nil until the user approves and the generator
// materialises an executable specification.
type Suggestion struct {
	ID                string             `json:"id" db:"id"`
	Source            SuggestionSource   `json:"source" db:"source"`
	Title             string             `json:"title" db:"title"`
	Description       string             `json:"description" db:"description"`
	Rationale         string             `json:"rationale" db:"rationale"`
	AutomationSpec    *AutomationSpec    `json:"automation_spec,omitempty"`
	Confidence        float64            `json:"confidence" db:"confidence"`
	Category          SuggestionCategory `json:"category" db:"category"`
	Priority          Priority           `json:"priority" db:"priority"`
	Status            SuggestionStatus   `json:"status" db:"status"`
	CreatedAt         time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at" db:"updated_at"`
	PatternRef        string             `json:"pattern_ref,omitempty" db:"pattern_ref"`
	SynergyRef        string             `json:"synergy_ref,omitempty" db:"synergy_ref"`
	ValidatedEntities []string           `json:"validated_entities"`
}

// Validate checks required fields and enum membership.
func (s Suggestion) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	if s.Title == "" {
		return fmt.Errorf("title is required")
	}
	switch s.Source {
	case SourcePattern, SourceFeature, SourceSynergy, SourceCommunity:
	default:
		return fmt.Errorf("invalid source %q", s.Source)
	}
	switch s.Category {
	case CategoryEnergy, CategoryComfort, CategorySecurity, CategoryConvenience:
	default:
		return fmt.Errorf("invalid category %q", s.Category)
	}
	switch s.Priority {
	case PriorityHigh, PriorityMedium, PriorityLow:
	default:
		return fmt.Errorf("invalid priority %q", s.Priority)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("confidence %f out of range [0,1]", s.Confidence)
	}
	return nil
}

// AutomationSpec is an executable automation in the orchestrator's shape.
// Triggers/conditions/actions keep the orchestrator's loose maps; the safety
// validator interprets them structurally before deploy.
type AutomationSpec struct {
	Alias       string                   `json:"alias" yaml:"alias"`
	Description string                   `json:"description,omitempty" yaml:"description,omitempty"`
	Mode        string                   `json:"mode,omitempty" yaml:"mode,omitempty"`
	Triggers    []map[string]interface{} `json:"trigger" yaml:"trigger"`
	Conditions  []map[string]interface{} `json:"condition,omitempty" yaml:"condition,omitempty"`
	Actions     []map[string]interface{} `json:"action" yaml:"action"`
}

// FeedbackAction records what the user did with a suggestion.
type FeedbackAction string

const (
	FeedbackApproved FeedbackAction = "approved"
	FeedbackRejected FeedbackAction = "rejected"
	FeedbackModified FeedbackAction = "modified"
)

// Feedback is a single user action on a suggestion, kept for future ranking.
type Feedback struct {
	ID           string         `json:"id" db:"id"`
	SuggestionID string         `json:"suggestion_id" db:"suggestion_id"`
	Action       FeedbackAction `json:"action" db:"action"`
	FreeText     string         `json:"free_text,omitempty" db:"free_text"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}

// UsageRecord is one day's LLM token and cost accounting.
type UsageRecord struct {
	Date         time.Time `json:"date" db:"date"`
	InputTokens  int64     `json:"input_tokens" db:"input_tokens"`
	OutputTokens int64     `json:"output_tokens" db:"output_tokens"`
	EstCostUSD   float64   `json:"est_cost_usd" db:"est_cost_usd"`
	Calls        int64     `json:"calls" db:"calls"`
	Failures     int64     `json:"failures" db:"failures"`
}
