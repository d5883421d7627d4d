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
	"encoding/json"
	"fmt"
	"time"
)

// CapabilityKind discriminates the tagged CapabilityDescriptor variants.
type CapabilityKind string

const (
	CapabilityBinary    CapabilityKind = "binary"
	CapabilityNumeric   CapabilityKind = "numeric"
	CapabilityEnum      CapabilityKind = "enum"
	CapabilityComposite CapabilityKind = "composite"
)

// Complexity classifies how hard a capability is to automate against.
type Complexity string

const (
	ComplexityEasy     Complexity = "easy"
	ComplexityMedium   Complexity = "medium"
	ComplexityAdvanced Complexity = "advanced"
)

// CapabilitySource records where a capability record came from.
type CapabilitySource string

const (
	SourceBridge   CapabilitySource = "bridge"
	SourceManual   CapabilitySource = "manual"
	SourceInferred CapabilitySource = "inferred"
)

// CapabilityStaleAfter is the freshness horizon: records older than this
// must be refreshed on the next pipeline run.
const CapabilityStaleAfter = 30 * 24 * time.Hour

// CapabilityDescriptor describes one capability of a device model. Kind
// selects which of the variant payloads is populated.
type CapabilityDescriptor struct {
	Kind        CapabilityKind `json:"kind"`
	MQTTName    string         `json:"mqtt_name"`
	Complexity  Complexity     `json:"complexity"`
	Description string         `json:"description,omitempty"`

	// binary
	ValueOn  string `json:"value_on,omitempty"`
	ValueOff string `json:"value_off,omitempty"`

	// numeric
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
	Unit string   `json:"unit,omitempty"`

	// enum
	Values []string `json:"values,omitempty"`

	// composite
	Features []CapabilityDescriptor `json:"features,omitempty"`
}

// CapabilityRecord is the write-through cached capability set for one device
// model. DeviceModel is the unique key.
type CapabilityRecord struct {
	DeviceModel  string                          `json:"device_model" db:"device_model"`
	Manufacturer string                          `json:"manufacturer" db:"manufacturer"`
	Description  string                          `json:"description" db:"description"`
	Capabilities map[string]CapabilityDescriptor `json:"capabilities"`
	RawExposes   json.RawMessage                 `json:"raw_exposes" db:"raw_exposes"` // retained for audit
	Source       CapabilitySource                `json:"source" db:"source"`
	LastUpdated  time.Time                       `json:"last_updated" db:"last_updated"`
}

// Stale reports whether the record is past the 30-day freshness horizon at
// the given instant.
func (r CapabilityRecord) Stale(now time.Time) bool {
	return now.Sub(r.LastUpdated) > CapabilityStaleAfter
}

// Validate checks the record before persistence.
func (r CapabilityRecord) Validate() error {
	if r.DeviceModel == "" {
		return fmt.Errorf("device_model is required")
	}
	switch r.Source {
	case SourceBridge, SourceManual, SourceInferred:
	default:
		return fmt.Errorf("invalid capability source %q", r.Source)
	}
	return nil
}
