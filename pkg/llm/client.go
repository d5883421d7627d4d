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

// Package llm wraps the language-model provider behind a small completion
// interface and accounts for every call's token usage and cost.
package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

// CompletionRequest is one (system, user) chat completion.
type CompletionRequest struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// CompletionResponse carries the model output and observed token counts.
type CompletionResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Provider is the completion surface the suggestion generator depends on.
// Tests substitute fakes; production wires a langchaingo model.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Client adapts a langchaingo model to Provider and feeds the usage
// tracker.
type Client struct {
	model  llms.Model
	usage  *UsageTracker
	logger *zap.Logger
}

var _ Provider = (*Client)(nil)

// NewClient builds a Client. usage is required so no call escapes
// accounting.
func NewClient(model llms.Model, usage *UsageTracker, logger *zap.Logger) (*Client, error) {
	if model == nil {
		return nil, fmt.Errorf("model cannot be nil")
	}
	if usage == nil {
		return nil, fmt.Errorf("usage tracker cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &Client{model: model, usage: usage, logger: logger}, nil
}

// Complete performs one chat completion. Token counts come from the
// provider when reported and are estimated otherwise so cost accounting
// never silently drops a call.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if req.Temperature == 0 {
		req.Temperature = 0.7
	}

	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, req.System),
		llms.TextParts(schema.ChatMessageTypeHuman, req.User),
	}

	resp, err := c.model.GenerateContent(ctx, messages,
		llms.WithMaxTokens(req.MaxTokens),
		llms.WithTemperature(req.Temperature),
	)
	if err != nil {
		c.usage.RecordFailure()
		return nil, fmt.Errorf("llm completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		c.usage.RecordFailure()
		return nil, fmt.Errorf("llm completion: empty response")
	}

	choice := resp.Choices[0]
	in, out := tokenCounts(choice.GenerationInfo, req.System+req.User, choice.Content)
	c.usage.RecordCall(in, out)

	return &CompletionResponse{
		Content:      choice.Content,
		InputTokens:  in,
		OutputTokens: out,
	}, nil
}

// tokenCounts reads provider-reported counts, falling back to the usual
// four-characters-per-token estimate.
func tokenCounts(info map[string]any, prompt, completion string) (int, int) {
	in := intFromInfo(info, "PromptTokens", "prompt_tokens")
	out := intFromInfo(info, "CompletionTokens", "completion_tokens")
	if in == 0 {
		in = len(prompt) / 4
	}
	if out == 0 {
		out = len(completion) / 4
	}
	return in, out
}

func intFromInfo(info map[string]any, keys ...string) int {
	for _, key := range keys {
		switch v := info[key].(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}
