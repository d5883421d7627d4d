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

// PatternType discriminates detector outputs.
type PatternType string

const (
	PatternTimeOfDay    PatternType = "time_of_day"
	PatternCoOccurrence PatternType = "co_occurrence"
)

// Pattern is a repeatable regularity a detector discovered. Exactly one of
// the type-specific payloads is populated, selected by Type.
type Pattern struct {
	PatternID   string      `json:"pattern_id" db:"pattern_id"`
	Type        PatternType `json:"pattern_type" db:"pattern_type"`
	Confidence  float64     `json:"confidence" db:"confidence"` // 0..1
	Occurrences int         `json:"occurrences" db:"occurrences"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`

	TimeOfDay    *TimeOfDayPayload    `json:"time_of_day,omitempty"`
	CoOccurrence *CoOccurrencePayload `json:"co_occurrence,omitempty"`
}

// TimeOfDayPayload carries the cluster a time-of-day detection converged on.
type TimeOfDayPayload struct {
	EntityID    string  `json:"entity_id"`
	Hour        int     `json:"hour"`   // 0..23
	Minute      int     `json:"minute"` // 0..59
	StdMinutes  float64 `json:"std_minutes"`
	TotalEvents int     `json:"total_events"`
}

// CoOccurrencePayload carries a witnessed entity pair. EntityA sorts before
// EntityB lexicographically so the pair is unordered.
type CoOccurrencePayload struct {
	EntityA         string  `json:"entity_a"`
	EntityB         string  `json:"entity_b"`
	WindowSeconds   int     `json:"window_seconds"`
	Support         float64 `json:"support"`
	AvgDeltaSeconds float64 `json:"avg_delta_seconds"`
}

// Validate enforces the pattern invariants before persistence.
func (p Pattern) Validate() error {
	if p.PatternID == "" {
		return fmt.Errorf("pattern_id is required")
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("confidence %f out of range [0,1]", p.Confidence)
	}
	switch p.Type {
	case PatternTimeOfDay:
		if p.TimeOfDay == nil {
			return fmt.Errorf("time_of_day payload is required")
		}
		if p.TimeOfDay.Hour < 0 || p.TimeOfDay.Hour > 23 {
			return fmt.Errorf("hour %d out of range", p.TimeOfDay.Hour)
		}
		if p.TimeOfDay.Minute < 0 || p.TimeOfDay.Minute > 59 {
			return fmt.Errorf("minute %d out of range", p.TimeOfDay.Minute)
		}
		if p.Occurrences > p.TimeOfDay.TotalEvents {
			return fmt.Errorf("occurrences %d exceeds total events %d", p.Occurrences, p.TimeOfDay.TotalEvents)
		}
	case PatternCoOccurrence:
		if p.CoOccurrence == nil {
			return fmt.Errorf("co_occurrence payload is required")
		}
		if p.CoOccurrence.EntityA >= p.CoOccurrence.EntityB {
			return fmt.Errorf("entity pair %q/%q not sorted", p.CoOccurrence.EntityA, p.CoOccurrence.EntityB)
		}
		if p.CoOccurrence.Support > 1.0 {
			return fmt.Errorf("support %f exceeds 1.0", p.CoOccurrence.Support)
		}
	default:
		return fmt.Errorf("unknown pattern type %q", p.Type)
	}
	return nil
}

// TimeOfDayAggregate is the per-day, per-entity rollup a time-of-day
// detection run writes so future runs can extend the horizon without
// rescanning raw events.
type TimeOfDayAggregate struct {
	Date        time.Time `json:"date" db:"date"`
	EntityID    string    `json:"entity_id" db:"entity_id"`
	Domain      string    `json:"domain" db:"domain"`
	HourlyCount [24]int   `json:"hourly_count"`
	PeakHours   []int     `json:"peak_hours"`
	Frequency   float64   `json:"frequency" db:"frequency"`
	Confidence  float64   `json:"confidence" db:"confidence"`
	Occurrences int       `json:"occurrences" db:"occurrences"`
}

// CoOccurrenceAggregate is the per-day rollup for one witnessed pair.
// CombinedID is deviceA+"+"+deviceB with the sorted pair ordering.
type CoOccurrenceAggregate struct {
	Date            time.Time `json:"date" db:"date"`
	CombinedID      string    `json:"combined_id" db:"combined_id"`
	Device1         string    `json:"device1" db:"device1"`
	Device2         string    `json:"device2" db:"device2"`
	Occurrences     int       `json:"occurrences" db:"occurrences"`
	Confidence      float64   `json:"confidence" db:"confidence"`
	Support         float64   `json:"support" db:"support"`
	AvgDeltaSeconds float64   `json:"avg_delta_seconds" db:"avg_delta_seconds"`
	WindowSeconds   int       `json:"window_seconds" db:"window_seconds"`
}
