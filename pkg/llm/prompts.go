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
	"fmt"
	"strings"
	"text/template"

	"github.com/ha-ai/insightd/pkg/models"
)

// DeviceContext is the enriched device view every prompt template receives.
// Templates never see raw entity identifiers alone.
type DeviceContext struct {
	EntityID     string
	FriendlyName string
	Area         string
	Manufacturer string
	Model        string
	HealthScore  string // "unknown" when absent
	Capabilities []string
}

// PatternPromptInput feeds the pattern template.
type PatternPromptInput struct {
	Pattern models.Pattern
	Devices []DeviceContext
}

// FeaturePromptInput feeds the unused-feature template.
type FeaturePromptInput struct {
	Opportunity models.FeatureOpportunity
	Device      DeviceContext
}

// SynergyPromptInput feeds the synergy template.
type SynergyPromptInput struct {
	Synergy models.SynergyOpportunity
	Devices []DeviceContext
}

// AutomationPromptInput feeds the automation-spec template. Only the
// entities listed here may appear in the generated specification.
type AutomationPromptInput struct {
	Suggestion        models.Suggestion
	Devices           []DeviceContext
	ValidatedEntities []string
}

// SystemPrompt is fixed for every call; per-source templates only shape the
// user message.
const SystemPrompt = `You are a smart-home automation advisor. You analyse usage patterns
and device capabilities, then propose practical, safe automations.
Reply with JSON only, no markdown fences, matching exactly the schema
given in the user message. Never invent entity identifiers.`

const descriptionSchema = `{"title": string, "description": string, "rationale": string,
"category": "energy"|"comfort"|"security"|"convenience", "priority": "high"|"medium"|"low"}`

var patternPrompt = template.Must(template.New("pattern_prompt").Parse(`A recurring usage pattern was detected.

Pattern type: {{.Pattern.Type}}
{{- if .Pattern.TimeOfDay}}
Entity: {{.Pattern.TimeOfDay.EntityID}} fires around {{printf "%02d:%02d" .Pattern.TimeOfDay.Hour .Pattern.TimeOfDay.Minute}} ({{.Pattern.Occurrences}} of {{.Pattern.TimeOfDay.TotalEvents}} events, std {{printf "%.0f" .Pattern.TimeOfDay.StdMinutes}} min)
{{- end}}
{{- if .Pattern.CoOccurrence}}
Entities {{.Pattern.CoOccurrence.EntityA}} and {{.Pattern.CoOccurrence.EntityB}} fire together within {{.Pattern.CoOccurrence.WindowSeconds}}s (support {{printf "%.2f" .Pattern.CoOccurrence.Support}}, avg delta {{printf "%.0f" .Pattern.CoOccurrence.AvgDeltaSeconds}}s)
{{- end}}
Confidence: {{printf "%.2f" .Pattern.Confidence}}

Devices involved:
{{range .Devices}}- {{.FriendlyName}} ({{.EntityID}}) in {{.Area}}; {{.Manufacturer}} {{.Model}}; health {{.HealthScore}}; capabilities: {{range $i, $c := .Capabilities}}{{if $i}}, {{end}}{{$c}}{{end}}
{{end}}
Propose one automation based on this pattern. Reply in exactly this schema:
` + descriptionSchema))

var featurePrompt = template.Must(template.New("feature_prompt").Parse(`A device capability is going unused.

Device: {{.Device.FriendlyName}} ({{.Device.EntityID}}) in {{.Device.Area}}; {{.Device.Manufacturer}} {{.Device.Model}}; health {{.Device.HealthScore}}
Unused feature: {{.Opportunity.FeatureName}} ({{.Opportunity.FeatureKind}}, complexity {{.Opportunity.Complexity}}, impact {{.Opportunity.Impact}})
{{- if .Opportunity.Description}}
Feature description: {{.Opportunity.Description}}
{{- end}}

Propose one way the user could benefit from this feature. Reply in exactly this schema:
` + descriptionSchema))

var synergyPrompt = template.Must(template.New("synergy_prompt").Parse(`Two or more devices could work together but no automation connects them.

Relationship: {{.Synergy.Relationship}} ({{.Synergy.Type}}){{if .Synergy.Area}} in area {{.Synergy.Area}}{{end}}
Impact score: {{printf "%.2f" .Synergy.ImpactScore}}; complexity {{.Synergy.Complexity}}

Devices:
{{range .Devices}}- {{.FriendlyName}} ({{.EntityID}}) in {{.Area}}; {{.Manufacturer}} {{.Model}}; health {{.HealthScore}}; capabilities: {{range $i, $c := .Capabilities}}{{if $i}}, {{end}}{{$c}}{{end}}
{{end}}
Propose one automation connecting these devices. Reply in exactly this schema:
` + descriptionSchema))

var yamlGenerationPrompt = template.Must(template.New("yaml_generation_prompt").Parse(`Materialise this approved suggestion into an executable automation.

Title: {{.Suggestion.Title}}
Description: {{.Suggestion.Description}}
Rationale: {{.Suggestion.Rationale}}

Devices:
{{range .Devices}}- {{.FriendlyName}} ({{.EntityID}}) in {{.Area}}; capabilities: {{range $i, $c := .Capabilities}}{{if $i}}, {{end}}{{$c}}{{end}}
{{end}}
You may reference ONLY these entity identifiers:
{{range .ValidatedEntities}}- {{.}}
{{end}}
Reply in exactly this schema:
{"alias": string, "description": string, "mode": "single",
"trigger": [{...}], "condition": [{...}], "action": [{...}]}`))

// PromptBuilder renders the per-source templates around the fixed system
// prompt. Components never concatenate prompt strings themselves.
type PromptBuilder struct{}

// NewPromptBuilder returns the builder.
func NewPromptBuilder() *PromptBuilder { return &PromptBuilder{} }

// System returns the fixed system prompt.
func (b *PromptBuilder) System() string { return SystemPrompt }

// Pattern renders the pattern template.
func (b *PromptBuilder) Pattern(in PatternPromptInput) (string, error) {
	return render(patternPrompt, in)
}

// Feature renders the unused-feature template.
func (b *PromptBuilder) Feature(in FeaturePromptInput) (string, error) {
	return render(featurePrompt, in)
}

// Synergy renders the synergy template.
func (b *PromptBuilder) Synergy(in SynergyPromptInput) (string, error) {
	return render(synergyPrompt, in)
}

// Automation renders the automation-spec template.
func (b *PromptBuilder) Automation(in AutomationPromptInput) (string, error) {
	return render(yamlGenerationPrompt, in)
}

// SchemaRetry wraps a failed completion in an explicit schema re-prompt for
// the single regeneration attempt.
func (b *PromptBuilder) SchemaRetry(original, badReply string) string {
	return fmt.Sprintf(`Your previous reply did not match the required schema.

Previous reply:
%s

Original request:
%s

Reply in exactly the schema requested, JSON only.`, badReply, original)
}

func render(t *template.Template, data interface{}) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return sb.String(), nil
}
