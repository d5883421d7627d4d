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

package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// SlackSink posts run summaries to an incoming webhook. It is an optional
// secondary channel next to the MQTT bus.
type SlackSink struct {
	webhookURL string
	logger     *zap.Logger
}

func NewSlackSink(webhookURL string, logger *zap.Logger) (*SlackSink, error) {
	if webhookURL == "" {
		return nil, fmt.Errorf("webhook URL cannot be empty")
	}
	return &SlackSink{webhookURL: webhookURL, logger: logger}, nil
}

func (s *SlackSink) PublishAnalysisComplete(ctx context.Context, msg AnalysisComplete) error {
	text := fmt.Sprintf("Analysis run %s finished: %s (%d events, %d patterns, %d synergies, %d suggestions)",
		msg.RunID, msg.Outcome, msg.EventsAnalyzed, msg.PatternsDetected, msg.SynergiesFound, msg.Suggestions)
	if msg.Error != "" {
		text += "\nError: " + msg.Error
	}
	return s.post(ctx, text)
}

func (s *SlackSink) PublishNewSuggestions(ctx context.Context, msg NewSuggestions) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%d new automation suggestions:", msg.Count)
	for _, title := range msg.Titles {
		b.WriteString("\n• " + title)
	}
	return s.post(ctx, b.String())
}

func (s *SlackSink) post(ctx context.Context, text string) error {
	err := slack.PostWebhookContext(ctx, s.webhookURL, &slack.WebhookMessage{Text: text})
	if err != nil {
		return fmt.Errorf("post to slack webhook: %w", err)
	}
	return nil
}

func (s *SlackSink) Close() {}
