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

import "time"

// Impact is a coarse estimate of how much an unused feature would matter.
type Impact string

const (
	ImpactHigh   Impact = "high"
	ImpactMedium Impact = "medium"
	ImpactLow    Impact = "low"
)

// ImpactWeight maps impact to its ranking weight.
func ImpactWeight(i Impact) int {
	switch i {
	case ImpactHigh:
		return 3
	case ImpactMedium:
		return 2
	default:
		return 1
	}
}

// ComplexityWeight maps complexity to its ranking weight. Easier features
// rank higher.
func ComplexityWeight(c Complexity) int {
	switch c {
	case ComplexityEasy:
		return 3
	case ComplexityMedium:
		return 2
	default:
		return 1
	}
}

// FeatureOpportunity is an unused capability of a specific device.
// PriorityScore = ImpactWeight(Impact) * ComplexityWeight(Complexity).
type FeatureOpportunity struct {
	DeviceID      string         `json:"device_id"`
	DeviceName    string         `json:"device_name,omitempty"`
	FeatureName   string         `json:"feature_name"`
	FeatureKind   CapabilityKind `json:"feature_kind"`
	Complexity    Complexity     `json:"complexity"`
	Impact        Impact         `json:"impact"`
	PriorityScore int            `json:"priority_score"`
	Confidence    float64        `json:"confidence"`
	Description   string         `json:"description,omitempty"`
}

// SynergyType discriminates synergy detections.
type SynergyType string

const (
	SynergyDevicePair     SynergyType = "device_pair"
	SynergyWeatherContext SynergyType = "weather_context"
	SynergyEnergyContext  SynergyType = "energy_context"
	SynergyEventContext   SynergyType = "event_context"
)

// SynergyOpportunity is a plausible but not-yet-implemented cross-device
// automation.
type SynergyOpportunity struct {
	SynergyID   string                 `json:"synergy_id" db:"synergy_id"`
	Type        SynergyType            `json:"synergy_type" db:"synergy_type"`
	Devices     []string               `json:"devices"`
	Relationship string                `json:"relationship" db:"relationship"`
	Area        string                 `json:"area" db:"area"`
	ImpactScore float64                `json:"impact_score" db:"impact_score"` // 0..1
	Complexity  Complexity             `json:"complexity" db:"complexity"`
	Confidence  float64                `json:"confidence" db:"confidence"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"created_at" db:"created_at"`
}

// Automation is a read-only view of a rule already deployed on the
// orchestrator, used to suppress synergies and detect conflicts.
type Automation struct {
	ID              string   `json:"id"`
	Alias           string   `json:"alias"`
	TriggerEntities []string `json:"trigger_entities"`
	ActionEntities  []string `json:"action_entities"`
	Enabled         bool     `json:"enabled"`
}
