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

// Package notify publishes analysis lifecycle events to downstream
// consumers. Publishing is best effort: a failed sink is logged and never
// fails the analysis run.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// AnalysisComplete summarises one finished pipeline run. Timestamp and
// Success are part of the wire contract: bus consumers key on them.
type AnalysisComplete struct {
	Timestamp        time.Time `json:"timestamp"`
	Success          bool      `json:"success"`
	RunID            string    `json:"run_id"`
	Outcome          string    `json:"outcome"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	EventsAnalyzed   int       `json:"events_analyzed"`
	PatternsDetected int       `json:"patterns_detected"`
	SynergiesFound   int       `json:"synergies_found"`
	Suggestions      int       `json:"suggestions"`
	Error            string    `json:"error,omitempty"`
}

// NewSuggestions announces freshly persisted suggestions.
type NewSuggestions struct {
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	RunID     string    `json:"run_id"`
	Count     int       `json:"count"`
	IDs       []string  `json:"ids"`
	Titles    []string  `json:"titles"`
}

// Sink delivers notifications to one destination.
type Sink interface {
	PublishAnalysisComplete(ctx context.Context, msg AnalysisComplete) error
	PublishNewSuggestions(ctx context.Context, msg NewSuggestions) error
	Close()
}

// Notifier fans out to every configured sink, swallowing per-sink errors.
type Notifier struct {
	sinks  []Sink
	logger *zap.Logger
}

// NewNotifier builds a fan-out notifier. A nil or empty sink list is valid
// and makes every publish a no-op.
func NewNotifier(logger *zap.Logger, sinks ...Sink) *Notifier {
	return &Notifier{sinks: sinks, logger: logger}
}

func (n *Notifier) AnalysisComplete(ctx context.Context, msg AnalysisComplete) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	for _, sink := range n.sinks {
		if err := sink.PublishAnalysisComplete(ctx, msg); err != nil {
			n.logger.Warn("analysis-complete notification failed",
				zap.String("run_id", msg.RunID), zap.Error(err))
		}
	}
}

func (n *Notifier) NewSuggestions(ctx context.Context, msg NewSuggestions) {
	if msg.Count == 0 {
		return
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	msg.Success = true
	for _, sink := range n.sinks {
		if err := sink.PublishNewSuggestions(ctx, msg); err != nil {
			n.logger.Warn("new-suggestions notification failed",
				zap.String("run_id", msg.RunID), zap.Error(err))
		}
	}
}

// Close shuts down every sink.
func (n *Notifier) Close() {
	for _, sink := range n.sinks {
		sink.Close()
	}
}
