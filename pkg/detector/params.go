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

// Package detector implements the pattern detectors: per-entity time-of-day
// clustering and sliding-window co-occurrence mining.
//
// Both detectors are pure functions of (events, params): given identical
// inputs they produce identical patterns and aggregates, including on the
// sampling branch, whose RNG seed is fixed.
package detector

import "time"

// Sampling constants for large datasets. Above SampleThreshold events, the
// most recent RecentVerbatim window is kept verbatim and older events are
// uniformly sampled down to SampleTarget with the fixed seed.
const (
	SampleThreshold = 50_000
	SampleTarget    = 20_000
	RecentVerbatim  = 7 * 24 * time.Hour
	SampleSeed      = 42
)

// Params tunes both detectors. Zero values take the documented defaults.
type Params struct {
	MinOccurrences int           // default 5
	MinConfidence  float64       // default 0.7
	Window         time.Duration // co-occurrence window, default 5m
	MinSupport     int           // co-occurrence minimum pair count, default 5
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		MinOccurrences: 5,
		MinConfidence:  0.7,
		Window:         5 * time.Minute,
		MinSupport:     5,
	}
}

func (p Params) withDefaults() Params {
	if p.MinOccurrences == 0 {
		p.MinOccurrences = 5
	}
	if p.MinConfidence == 0 {
		p.MinConfidence = 0.7
	}
	if p.Window == 0 {
		p.Window = 5 * time.Minute
	}
	if p.MinSupport == 0 {
		p.MinSupport = 5
	}
	return p
}
