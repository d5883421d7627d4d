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

// Package models holds the domain records shared across insightd services:
// historical events, device registry snapshots, capability descriptors,
// detected patterns, opportunities, suggestions and feedback.
//
// Records here are plain values. The suggestion store owns every persisted
// record; detectors and analyzers receive read-only snapshots and emit new
// values for the orchestrator to persist.
package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Event is an immutable historical record fetched from the event store.
// Ordering key is Timestamp (UTC).
type Event struct {
	Timestamp  time.Time              `json:"timestamp" db:"timestamp"`
	EntityID   string                 `json:"entity_id" db:"entity_id"`
	DeviceID   string                 `json:"device_id" db:"device_id"`
	Domain     string                 `json:"domain" db:"domain"`
	State      string                 `json:"state" db:"state"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// EntityDomain returns the entity's domain, the prefix of the entity id up
// to the first dot. Falls back to the Domain field when the id has no dot.
func (e Event) EntityDomain() string {
	if i := strings.IndexByte(e.EntityID, '.'); i > 0 {
		return e.EntityID[:i]
	}
	return e.Domain
}

// EventFilter restricts an event store query. Zero-value fields are ignored.
type EventFilter struct {
	EntityID string
	DeviceID string
	Domain   string
}

// IsZero reports whether the filter restricts nothing.
func (f EventFilter) IsZero() bool {
	return f.EntityID == "" && f.DeviceID == "" && f.Domain == ""
}

// DeviceRecord is a read-only registry snapshot of a physical device. The
// registry may change between pipeline runs; records are never mutated here.
type DeviceRecord struct {
	DeviceID     string          `json:"device_id"`
	Name         string          `json:"name"`
	Manufacturer string          `json:"manufacturer"`
	Model        string          `json:"model"`
	AreaID       string          `json:"area_id"`
	Integration  string          `json:"integration"`
	HealthScore  *float64        `json:"health_score,omitempty"` // 0-100, nil when unknown
	Entities     []EntityRef     `json:"entities"`
	Exposes      json.RawMessage `json:"exposes,omitempty"` // bridge capability declaration, when known
}

// Healthy reports whether the device is known to be at or above the given
// health threshold. Devices without a score are treated as healthy.
func (d DeviceRecord) Healthy(threshold float64) bool {
	return d.HealthScore == nil || *d.HealthScore >= threshold
}

// EntityRef is a single addressable unit of state exposed by a device.
type EntityRef struct {
	EntityID string `json:"entity_id"`
	Name     string `json:"name,omitempty"`
	Domain   string `json:"domain,omitempty"`
}

// Area is a named location grouping devices.
type Area struct {
	AreaID string `json:"area_id"`
	Name   string `json:"name"`
}
