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

package suggest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/ha-ai/insightd/pkg/llm"
	"github.com/ha-ai/insightd/pkg/models"
)

const validDescription = `{"title":"Morning kitchen light","description":"Turn the kitchen light on at 07:05.","rationale":"You do this by hand every day.","category":"convenience","priority":"medium"}`

// scriptedProvider returns canned replies in call order, or a fixed reply
// when the script is exhausted.
type scriptedProvider struct {
	mu      sync.Mutex
	script  []func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
	fallbck string
	calls   int
}

func (p *scriptedProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	idx := p.calls
	p.calls++
	var step func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error)
	if idx < len(p.script) {
		step = p.script[idx]
	}
	p.mu.Unlock()

	if step != nil {
		return step(ctx, req)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return &llm.CompletionResponse{Content: p.fallbck, InputTokens: 10, OutputTokens: 20}, nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func patternFor(id string, confidence float64, occurrences int) models.Pattern {
	return models.Pattern{
		PatternID:   id,
		Type:        models.PatternTimeOfDay,
		Confidence:  confidence,
		Occurrences: occurrences,
		TimeOfDay:   &models.TimeOfDayPayload{EntityID: "light.kitchen", Hour: 7, Minute: 5, TotalEvents: occurrences},
	}
}

var _ = Describe("Generator", func() {
	var (
		provider *scriptedProvider
		g        *Generator
		ctx      context.Context
	)

	newGenerator := func(concurrency int) *Generator {
		gen, err := NewGenerator(provider, llm.NewPromptBuilder(), nil, concurrency, zap.NewNop())
		Expect(err).ToNot(HaveOccurred())
		return gen.WithClock(func() time.Time {
			return time.Date(2026, 8, 26, 3, 0, 0, 0, time.UTC)
		})
	}

	BeforeEach(func() {
		ctx = context.Background()
		provider = &scriptedProvider{fallbck: validDescription}
		g = newGenerator(4)
	})

	It("turns a pattern into a pending suggestion", func() {
		result, err := g.Generate(ctx, Input{Patterns: []models.Pattern{patternFor("timeofday-light.kitchen-0705", 0.9, 7)}})
		Expect(err).ToNot(HaveOccurred())
		Expect(result.Errors).To(BeEmpty())
		Expect(result.Suggestions).To(HaveLen(1))

		s := result.Suggestions[0]
		Expect(s.ID).ToNot(BeEmpty())
		Expect(s.Source).To(Equal(models.SourcePattern))
		Expect(s.PatternRef).To(Equal("timeofday-light.kitchen-0705"))
		Expect(s.Status).To(Equal(models.StatusPending))
		Expect(s.Confidence).To(Equal(0.9))
		Expect(s.Category).To(Equal(models.CategoryConvenience))
		Expect(s.Priority).To(Equal(models.PriorityMedium))
		Expect(s.ValidatedEntities).To(ConsistOf("light.kitchen"))
	})

	It("truncates to the cap after ranking by confidence", func() {
		var patterns []models.Pattern
		for i := 0; i < 15; i++ {
			patterns = append(patterns, patternFor(fmt.Sprintf("p-%02d", i), float64(i)/20.0, 5))
		}
		result, err := g.Generate(ctx, Input{Patterns: patterns})
		Expect(err).ToNot(HaveOccurred())
		Expect(result.Suggestions).To(HaveLen(MaxSuggestions))

		// The five lowest-confidence candidates never reach the provider.
		refs := make([]string, 0, len(result.Suggestions))
		for _, s := range result.Suggestions {
			refs = append(refs, s.PatternRef)
		}
		Expect(refs).ToNot(ContainElements("p-00", "p-01", "p-02", "p-03", "p-04"))
		Expect(provider.callCount()).To(Equal(MaxSuggestions))
	})

	It("deduplicates candidates sharing a ref", func() {
		p := patternFor("timeofday-light.kitchen-0705", 0.9, 7)
		result, err := g.Generate(ctx, Input{Patterns: []models.Pattern{p, p}})
		Expect(err).ToNot(HaveOccurred())
		Expect(result.Suggestions).To(HaveLen(1))
	})

	It("re-prompts once when the reply breaks the schema", func() {
		provider.script = []func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error){
			func(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
				return &llm.CompletionResponse{Content: "Sure! Here is my plan in prose."}, nil
			},
			func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
				Expect(req.User).To(ContainSubstring("did not match the required schema"))
				return &llm.CompletionResponse{Content: validDescription}, nil
			},
		}
		result, err := g.Generate(ctx, Input{Patterns: []models.Pattern{patternFor("p-1", 0.8, 6)}})
		Expect(err).ToNot(HaveOccurred())
		Expect(result.Suggestions).To(HaveLen(1))
		Expect(provider.callCount()).To(Equal(2))
	})

	It("records a per-candidate error when the retry fails too", func() {
		garbage := func(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Content: "still prose"}, nil
		}
		provider.script = []func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error){garbage, garbage}

		result, err := g.Generate(ctx, Input{Patterns: []models.Pattern{patternFor("p-1", 0.8, 6)}})
		Expect(err).ToNot(HaveOccurred())
		Expect(result.Suggestions).To(BeEmpty())
		Expect(result.Errors).To(HaveLen(1))
		Expect(result.Errors[0].Ref).To(Equal("p-1"))
	})

	It("skips a candidate whose provider call fails without failing the run", func() {
		provider.script = []func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error){
			func(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
				return nil, errors.New("rate limited")
			},
		}
		result, err := g.Generate(ctx, Input{Patterns: []models.Pattern{
			patternFor("p-1", 0.9, 7),
			patternFor("p-2", 0.8, 6),
		}})
		Expect(err).ToNot(HaveOccurred())
		Expect(result.Suggestions).To(HaveLen(1))
		Expect(result.Errors).To(HaveLen(1))
		Expect(result.Errors[0].Reason).To(ContainSubstring("rate limited"))
	})

	It("keeps completed suggestions when the run is cancelled midway", func() {
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		provider.script = []func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error){
			func(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
				return &llm.CompletionResponse{Content: validDescription}, nil
			},
			func(c context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
				cancel()
				<-c.Done()
				return nil, c.Err()
			},
		}
		serial := newGenerator(1)
		result, err := serial.Generate(runCtx, Input{Patterns: []models.Pattern{
			patternFor("p-1", 0.9, 7),
			patternFor("p-2", 0.8, 6),
			patternFor("p-3", 0.7, 5),
		}})
		Expect(err).To(MatchError(context.Canceled))
		Expect(result.Suggestions).To(HaveLen(1))
		Expect(result.Suggestions[0].PatternRef).To(Equal("p-1"))
	})

	It("builds synergy suggestions with the synergy reference set", func() {
		devices := []models.DeviceRecord{
			{DeviceID: "dev-1", Name: "Hall motion", Model: "SNZB-03", Entities: []models.EntityRef{{EntityID: "binary_sensor.hall_motion"}}},
			{DeviceID: "dev-2", Name: "Hall light", Model: "TRADFRI-E27", Entities: []models.EntityRef{{EntityID: "light.hall"}}},
		}
		syn := models.SynergyOpportunity{
			SynergyID:   "synergy-dev-1+dev-2",
			Type:        models.SynergyDevicePair,
			Devices:     []string{"dev-1", "dev-2"},
			ImpactScore: 0.8,
			Confidence:  0.75,
		}
		result, err := g.Generate(ctx, Input{Synergies: []models.SynergyOpportunity{syn}, Devices: devices})
		Expect(err).ToNot(HaveOccurred())
		Expect(result.Suggestions).To(HaveLen(1))
		Expect(result.Suggestions[0].Source).To(Equal(models.SourceSynergy))
		Expect(result.Suggestions[0].SynergyRef).To(Equal("synergy-dev-1+dev-2"))
		Expect(result.Suggestions[0].ValidatedEntities).To(ConsistOf("binary_sensor.hall_motion", "light.hall"))
	})
})

var _ = Describe("Materialize", func() {
	var (
		provider *scriptedProvider
		g        *Generator
	)

	suggestion := models.Suggestion{
		ID:                "s-1",
		Title:             "Hall motion light",
		Status:            models.StatusApproved,
		ValidatedEntities: []string{"binary_sensor.hall_motion", "light.hall"},
	}

	automationReply := `{"alias":"Hall motion light","trigger":[{"platform":"state","entity_id":"binary_sensor.hall_motion","to":"on"}],"action":[{"service":"light.turn_on","entity_id":"light.hall"}]}`

	BeforeEach(func() {
		provider = &scriptedProvider{fallbck: automationReply}
		gen, err := NewGenerator(provider, llm.NewPromptBuilder(), nil, 1, zap.NewNop())
		Expect(err).ToNot(HaveOccurred())
		g = gen
	})

	It("produces a specification restricted to validated entities", func() {
		spec, err := g.Materialize(context.Background(), suggestion, nil, nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(spec.Alias).To(Equal("Hall motion light"))
		Expect(spec.Triggers).To(HaveLen(1))
		Expect(spec.Actions).To(HaveLen(1))
	})

	It("rejects replies that smuggle in unvalidated entities", func() {
		rogue := strings.Replace(automationReply, "light.hall", "lock.front_door", 1)
		bad := func(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Content: rogue}, nil
		}
		provider.script = []func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error){bad, bad}

		_, err := g.Materialize(context.Background(), suggestion, nil, nil)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("unvalidated entity"))
	})
})
