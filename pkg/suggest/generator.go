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

// Package suggest turns detected patterns, feature opportunities and
// synergies into ranked, human-readable automation suggestions via the LLM
// provider.
//
// Everything up to the LLM call is deterministic: candidates are built,
// deduplicated, ranked by confidence (ties by priority score) and truncated
// before any provider call is made. LLM output variance only affects the
// prose fields.
package suggest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ha-ai/insightd/pkg/capability"
	"github.com/ha-ai/insightd/pkg/llm"
	"github.com/ha-ai/insightd/pkg/models"
)

const (
	// MaxSuggestions caps one generation run's output.
	MaxSuggestions = 10

	descriptionMaxTokens = 300
	automationMaxTokens  = 600
)

// Generator fans candidates through the LLM provider with a bounded worker
// pool and assembles Suggestion records.
type Generator struct {
	provider     llm.Provider
	prompts      *llm.PromptBuilder
	capabilities *capability.CachedStore
	logger       *zap.Logger
	concurrency  int
	now          func() time.Time
}

// NewGenerator builds a Generator. concurrency bounds parallel LLM calls.
func NewGenerator(provider llm.Provider, prompts *llm.PromptBuilder, capabilities *capability.CachedStore, concurrency int, logger *zap.Logger) (*Generator, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}
	if prompts == nil {
		return nil, fmt.Errorf("prompt builder cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Generator{
		provider:     provider,
		prompts:      prompts,
		capabilities: capabilities,
		logger:       logger,
		concurrency:  concurrency,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock overrides the generator's clock, for tests.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Input bundles one generation run's material.
type Input struct {
	Patterns      []models.Pattern
	Opportunities []models.FeatureOpportunity
	Synergies     []models.SynergyOpportunity
	Devices       []models.DeviceRecord
	Areas         []models.Area
}

// GenerationError records one skipped candidate. A single LLM failure never
// fails the run.
type GenerationError struct {
	Source models.SuggestionSource `json:"source"`
	Ref    string                  `json:"ref"`
	Reason string                  `json:"reason"`
}

// Result carries the run's suggestions and per-candidate errors.
type Result struct {
	Suggestions []models.Suggestion
	Errors      []GenerationError
}

// candidate is the deterministic pre-LLM input for one suggestion.
type candidate struct {
	source        models.SuggestionSource
	ref           string // dedup key and pattern/synergy reference
	confidence    float64
	priorityScore float64
	entities      []string
	userPrompt    string
}

// Generate builds, ranks and truncates candidates, then fans them through
// the provider.
func (g *Generator) Generate(ctx context.Context, in Input) (*Result, error) {
	enrich := newEnricher(in.Devices, in.Areas, g.capabilities)

	candidates, buildErrs := g.buildCandidates(ctx, in, enrich)
	result := &Result{Errors: buildErrs}

	// Rank: confidence desc, priority score desc, then ref for stability.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].confidence != candidates[j].confidence {
			return candidates[i].confidence > candidates[j].confidence
		}
		if candidates[i].priorityScore != candidates[j].priorityScore {
			return candidates[i].priorityScore > candidates[j].priorityScore
		}
		return candidates[i].ref < candidates[j].ref
	})
	if len(candidates) > MaxSuggestions {
		candidates = candidates[:MaxSuggestions]
	}

	var mu sync.Mutex
	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(g.concurrency)

	suggestions := make([]*models.Suggestion, len(candidates))
	for i, cand := range candidates {
		i, cand := i, cand
		grp.Go(func() error {
			suggestion, err := g.describe(grpCtx, cand)
			if err != nil {
				if grpCtx.Err() != nil {
					return grpCtx.Err()
				}
				g.logger.Warn("suggestion generation failed, skipping candidate",
					zap.String("source", string(cand.source)), zap.String("ref", cand.ref), zap.Error(err))
				mu.Lock()
				result.Errors = append(result.Errors, GenerationError{
					Source: cand.source, Ref: cand.ref, Reason: err.Error(),
				})
				mu.Unlock()
				return nil
			}
			suggestions[i] = suggestion
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		// Cancellation: keep what completed; the pipeline persists partial
		// results and marks the run cancelled.
		for _, s := range suggestions {
			if s != nil {
				result.Suggestions = append(result.Suggestions, *s)
			}
		}
		return result, err
	}

	for _, s := range suggestions {
		if s != nil {
			result.Suggestions = append(result.Suggestions, *s)
		}
	}
	return result, nil
}

// buildCandidates assembles the deterministic pre-LLM inputs, deduplicating
// by ref.
func (g *Generator) buildCandidates(ctx context.Context, in Input, enrich *enricher) ([]candidate, []GenerationError) {
	var candidates []candidate
	var errs []GenerationError
	seen := make(map[string]struct{})

	add := func(c candidate, err error) {
		if err != nil {
			errs = append(errs, GenerationError{Source: c.source, Ref: c.ref, Reason: err.Error()})
			return
		}
		if _, dup := seen[c.ref]; dup {
			return
		}
		seen[c.ref] = struct{}{}
		candidates = append(candidates, c)
	}

	for _, p := range in.Patterns {
		entities := patternEntities(p)
		contexts := make([]llm.DeviceContext, 0, len(entities))
		for _, id := range entities {
			contexts = append(contexts, enrich.entityContext(ctx, id))
		}
		prompt, err := g.prompts.Pattern(llm.PatternPromptInput{Pattern: p, Devices: contexts})
		add(candidate{
			source:        models.SourcePattern,
			ref:           p.PatternID,
			confidence:    p.Confidence,
			priorityScore: float64(p.Occurrences),
			entities:      entities,
			userPrompt:    prompt,
		}, err)
	}

	for _, opp := range in.Opportunities {
		dc, ok := enrich.deviceByID(ctx, opp.DeviceID)
		if !ok {
			continue
		}
		prompt, err := g.prompts.Feature(llm.FeaturePromptInput{Opportunity: opp, Device: dc})
		add(candidate{
			source:        models.SourceFeature,
			ref:           "feature-" + opp.DeviceID + "-" + opp.FeatureName,
			confidence:    opp.Confidence,
			priorityScore: float64(opp.PriorityScore),
			entities:      enrich.entitiesOf(opp.DeviceID),
			userPrompt:    prompt,
		}, err)
	}

	for _, syn := range in.Synergies {
		var contexts []llm.DeviceContext
		var entities []string
		for _, deviceID := range syn.Devices {
			if dc, ok := enrich.deviceByID(ctx, deviceID); ok {
				contexts = append(contexts, dc)
			}
			entities = append(entities, enrich.entitiesOf(deviceID)...)
		}
		prompt, err := g.prompts.Synergy(llm.SynergyPromptInput{Synergy: syn, Devices: contexts})
		add(candidate{
			source:        models.SourceSynergy,
			ref:           syn.SynergyID,
			confidence:    syn.Confidence,
			priorityScore: syn.ImpactScore * 10,
			entities:      entities,
			userPrompt:    prompt,
		}, err)
	}

	return candidates, errs
}

// describe runs the cheap description mode for one candidate, with one
// schema re-prompt on parse failure.
func (g *Generator) describe(ctx context.Context, cand candidate) (*models.Suggestion, error) {
	resp, err := g.provider.Complete(ctx, llm.CompletionRequest{
		System:    g.prompts.System(),
		User:      cand.userPrompt,
		MaxTokens: descriptionMaxTokens,
	})
	if err != nil {
		return nil, err
	}

	reply, parseErr := parseDescription(resp.Content)
	if parseErr != nil {
		retry, err := g.provider.Complete(ctx, llm.CompletionRequest{
			System:    g.prompts.System(),
			User:      g.prompts.SchemaRetry(cand.userPrompt, resp.Content),
			MaxTokens: descriptionMaxTokens,
		})
		if err != nil {
			return nil, err
		}
		if reply, parseErr = parseDescription(retry.Content); parseErr != nil {
			return nil, fmt.Errorf("reply did not match schema after retry: %w", parseErr)
		}
	}

	now := g.now()
	suggestion := &models.Suggestion{
		ID:                uuid.NewString(),
		Source:            cand.source,
		Title:             reply.Title,
		Description:       reply.Description,
		Rationale:         reply.Rationale,
		Confidence:        cand.confidence,
		Category:          models.SuggestionCategory(reply.Category),
		Priority:          models.Priority(reply.Priority),
		Status:            models.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
		ValidatedEntities: cand.entities,
	}
	switch cand.source {
	case models.SourcePattern:
		suggestion.PatternRef = cand.ref
	case models.SourceSynergy:
		suggestion.SynergyRef = cand.ref
	}
	return suggestion, nil
}

// Materialize runs the automation output mode for an approved suggestion.
// The generated specification may reference only the suggestion's validated
// entities.
func (g *Generator) Materialize(ctx context.Context, suggestion models.Suggestion, devices []models.DeviceRecord, areas []models.Area) (*models.AutomationSpec, error) {
	enrich := newEnricher(devices, areas, g.capabilities)
	contexts := make([]llm.DeviceContext, 0, len(suggestion.ValidatedEntities))
	for _, id := range suggestion.ValidatedEntities {
		contexts = append(contexts, enrich.entityContext(ctx, id))
	}

	prompt, err := g.prompts.Automation(llm.AutomationPromptInput{
		Suggestion:        suggestion,
		Devices:           contexts,
		ValidatedEntities: suggestion.ValidatedEntities,
	})
	if err != nil {
		return nil, err
	}

	resp, err := g.provider.Complete(ctx, llm.CompletionRequest{
		System:    g.prompts.System(),
		User:      prompt,
		MaxTokens: automationMaxTokens,
	})
	if err != nil {
		return nil, err
	}

	spec, parseErr := parseAutomation(resp.Content, suggestion.ValidatedEntities)
	if parseErr != nil {
		retry, err := g.provider.Complete(ctx, llm.CompletionRequest{
			System:    g.prompts.System(),
			User:      g.prompts.SchemaRetry(prompt, resp.Content),
			MaxTokens: automationMaxTokens,
		})
		if err != nil {
			return nil, err
		}
		if spec, parseErr = parseAutomation(retry.Content, suggestion.ValidatedEntities); parseErr != nil {
			return nil, fmt.Errorf("automation reply did not match schema after retry: %w", parseErr)
		}
	}
	return spec, nil
}

func patternEntities(p models.Pattern) []string {
	switch p.Type {
	case models.PatternTimeOfDay:
		if p.TimeOfDay != nil {
			return []string{p.TimeOfDay.EntityID}
		}
	case models.PatternCoOccurrence:
		if p.CoOccurrence != nil {
			return []string{p.CoOccurrence.EntityA, p.CoOccurrence.EntityB}
		}
	}
	return nil
}
