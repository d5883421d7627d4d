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

package llm

import (
	"sync/atomic"
)

// UsageSnapshot is a value copy of the counters at one instant.
type UsageSnapshot struct {
	Calls        int64   `json:"calls"`
	Failures     int64   `json:"failures"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	EstCostUSD   float64 `json:"est_cost_usd"`
}

// UsageTracker accounts tokens and estimated cost across concurrent LLM
// calls with atomic counters. Cost is kept in micro-dollars so the hot path
// stays integer-only.
type UsageTracker struct {
	calls        atomic.Int64
	failures     atomic.Int64
	inputTokens  atomic.Int64
	outputTokens atomic.Int64
	costMicroUSD atomic.Int64

	inputPerMTokUSD  float64
	outputPerMTokUSD float64
}

// NewUsageTracker builds a tracker with per-million-token pricing.
func NewUsageTracker(inputPerMTokUSD, outputPerMTokUSD float64) *UsageTracker {
	return &UsageTracker{
		inputPerMTokUSD:  inputPerMTokUSD,
		outputPerMTokUSD: outputPerMTokUSD,
	}
}

// RecordCall accounts one successful completion.
func (t *UsageTracker) RecordCall(inputTokens, outputTokens int) {
	t.calls.Add(1)
	t.inputTokens.Add(int64(inputTokens))
	t.outputTokens.Add(int64(outputTokens))

	micro := int64(float64(inputTokens)*t.inputPerMTokUSD + float64(outputTokens)*t.outputPerMTokUSD)
	t.costMicroUSD.Add(micro)
}

// RecordFailure counts a failed call. Failures carry no token cost.
func (t *UsageTracker) RecordFailure() {
	t.calls.Add(1)
	t.failures.Add(1)
}

// Snapshot returns a value copy of the counters.
func (t *UsageTracker) Snapshot() UsageSnapshot {
	return UsageSnapshot{
		Calls:        t.calls.Load(),
		Failures:     t.failures.Load(),
		InputTokens:  t.inputTokens.Load(),
		OutputTokens: t.outputTokens.Load(),
		EstCostUSD:   float64(t.costMicroUSD.Load()) / 1e6,
	}
}

// Reset zeroes the counters; called after the per-day totals are persisted.
func (t *UsageTracker) Reset() {
	t.calls.Store(0)
	t.failures.Store(0)
	t.inputTokens.Store(0)
	t.outputTokens.Store(0)
	t.costMicroUSD.Store(0)
}
