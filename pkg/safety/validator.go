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

// Package safety gates candidate automation specifications before deploy.
// Checks run in a fixed order: parse, entity availability, dangerous
// actions, high-energy actions, time conflicts, conflicts with existing
// automations. Deploys with critical issues are refused unless override is
// both requested and allowed by configuration.
package safety

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ha-ai/insightd/pkg/config"
	"github.com/ha-ai/insightd/pkg/models"
)

// Severity grades one issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Category names which check raised an issue.
type Category string

const (
	CategoryParse        Category = "parse"
	CategoryEntity       Category = "entity"
	CategoryDangerous    Category = "dangerous"
	CategoryHighEnergy   Category = "high_energy"
	CategoryTimeConflict Category = "time_conflict"
	CategoryConflict     Category = "conflict"
)

// Issue is one validation finding.
type Issue struct {
	Severity    Severity `json:"severity"`
	Category    Category `json:"category"`
	Message     string   `json:"message"`
	Entity      string   `json:"entity,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"` // fuzzy entity matches
}

// Report is the validator's verdict.
type Report struct {
	Safe     bool    `json:"safe"`
	Critical []Issue `json:"critical"`
	Warnings []Issue `json:"warnings"`
	Infos    []Issue `json:"infos"`
	Coverage float64 `json:"coverage"` // fraction of checks that could run
}

// Score condenses the report into 0-100 for the deploy threshold. Criticals
// dominate; infos barely move it.
func (r *Report) Score() int {
	score := 100 - 50*len(r.Critical) - 10*len(r.Warnings) - 2*len(r.Infos)
	if score < 0 {
		return 0
	}
	return score
}

// EntityLister supplies the known entity universe; the orchestrator client
// implements it.
type EntityLister interface {
	ListEntityIDs(ctx context.Context) ([]string, error)
}

// AutomationLister supplies existing automations for conflict detection.
type AutomationLister interface {
	ListAutomations(ctx context.Context) ([]models.Automation, error)
}

// Validator runs the ordered safety checks.
type Validator struct {
	entities    EntityLister
	automations AutomationLister
	level       config.SafetyLevel
	logger      *zap.Logger
}

// NewValidator builds a Validator.
func NewValidator(entities EntityLister, automations AutomationLister, level config.SafetyLevel, logger *zap.Logger) (*Validator, error) {
	if entities == nil {
		return nil, fmt.Errorf("entity lister cannot be nil")
	}
	if automations == nil {
		return nil, fmt.Errorf("automation lister cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &Validator{entities: entities, automations: automations, level: level, logger: logger}, nil
}

const totalChecks = 6

// Validate runs every check it can and reports. A check that cannot run
// (collaborator outage) lowers coverage instead of failing the validation.
func (v *Validator) Validate(ctx context.Context, spec *models.AutomationSpec, validatedEntities []string) *Report {
	report := &Report{}
	checksRun := 0

	// 1. Parse.
	checksRun++
	if !v.checkParse(spec, report) {
		report.Coverage = float64(checksRun) / totalChecks
		report.Safe = false
		return report
	}

	referenced := referencedEntityIDs(spec)

	// 2. Entity availability.
	known, err := v.entities.ListEntityIDs(ctx)
	if err != nil {
		v.logger.Warn("entity availability check skipped", zap.Error(err))
	} else {
		checksRun++
		v.checkEntities(referenced, known, validatedEntities, report)
	}

	// 3. Dangerous actions.
	checksRun++
	v.checkDangerous(spec, report)

	// 4. High-energy actions.
	checksRun++
	v.checkHighEnergy(spec, report)

	// 5. Time conflicts.
	checksRun++
	v.checkTimeConflicts(spec, report)

	// 6. Conflicts with existing automations.
	existing, err := v.automations.ListAutomations(ctx)
	if err != nil {
		v.logger.Warn("automation conflict check skipped", zap.Error(err))
	} else {
		checksRun++
		v.checkConflicts(spec, existing, report)
	}

	report.Coverage = float64(checksRun) / totalChecks
	report.Safe = len(report.Critical) == 0
	return report
}

func (v *Validator) add(report *Report, issue Issue) {
	issue = v.applyLevel(issue)
	switch issue.Severity {
	case SeverityCritical:
		report.Critical = append(report.Critical, issue)
	case SeverityWarning:
		report.Warnings = append(report.Warnings, issue)
	default:
		report.Infos = append(report.Infos, issue)
	}
}

// applyLevel adjusts non-critical severities by configured strictness:
// strict escalates high-energy warnings, permissive downgrades time
// conflicts to informational.
func (v *Validator) applyLevel(issue Issue) Issue {
	switch v.level {
	case config.SafetyStrict:
		if issue.Category == CategoryHighEnergy && issue.Severity == SeverityWarning {
			issue.Severity = SeverityCritical
		}
	case config.SafetyPermissive:
		if issue.Category == CategoryTimeConflict && issue.Severity == SeverityWarning {
			issue.Severity = SeverityInfo
		}
	}
	return issue
}

func (v *Validator) checkParse(spec *models.AutomationSpec, report *Report) bool {
	if spec == nil {
		v.add(report, Issue{Severity: SeverityCritical, Category: CategoryParse, Message: "automation specification is empty"})
		return false
	}
	if len(spec.Triggers) == 0 {
		v.add(report, Issue{Severity: SeverityCritical, Category: CategoryParse, Message: "automation has no triggers"})
		return false
	}
	if len(spec.Actions) == 0 {
		v.add(report, Issue{Severity: SeverityCritical, Category: CategoryParse, Message: "automation has no actions"})
		return false
	}
	// Round-trip through YAML: the orchestrator consumes YAML, so a spec
	// that cannot serialise is unparseable by definition.
	raw, err := yaml.Marshal(spec)
	if err == nil {
		var back models.AutomationSpec
		err = yaml.Unmarshal(raw, &back)
	}
	if err != nil {
		v.add(report, Issue{Severity: SeverityCritical, Category: CategoryParse,
			Message: fmt.Sprintf("specification does not serialise: %v", err)})
		return false
	}
	return true
}

func (v *Validator) checkEntities(referenced, known, validated []string, report *Report) {
	knownSet := make(map[string]struct{}, len(known))
	for _, id := range known {
		knownSet[id] = struct{}{}
	}
	validatedSet := make(map[string]struct{}, len(validated))
	for _, id := range validated {
		validatedSet[id] = struct{}{}
	}

	for _, id := range referenced {
		if _, ok := knownSet[id]; ok {
			continue
		}
		severity := SeverityWarning
		if _, wasValidated := validatedSet[id]; wasValidated {
			severity = SeverityCritical
		}
		v.add(report, Issue{
			Severity:    severity,
			Category:    CategoryEntity,
			Message:     fmt.Sprintf("entity %q does not exist", id),
			Entity:      id,
			Suggestions: FuzzyMatches(id, known, 5),
		})
	}
}

func (v *Validator) checkDangerous(spec *models.AutomationSpec, report *Report) {
	for _, action := range spec.Actions {
		service := serviceOf(action)
		domain, name := splitService(service)
		if (domain == "lock" && name == "unlock") ||
			(domain == "alarm_control_panel" && strings.HasPrefix(name, "alarm_disarm")) ||
			(domain == "alarm_control_panel" && name == "disarm") {
			v.add(report, Issue{
				Severity: SeverityCritical,
				Category: CategoryDangerous,
				Message:  fmt.Sprintf("action %q can compromise home security", service),
			})
		}
	}
}

var highEnergyDomains = map[string]struct{}{
	"climate":      {},
	"water_heater": {},
	"fan":          {},
}

func (v *Validator) checkHighEnergy(spec *models.AutomationSpec, report *Report) {
	for _, action := range spec.Actions {
		domain, _ := splitService(serviceOf(action))
		if domain == "" {
			for _, id := range entityIDsOf(action) {
				if i := strings.IndexByte(id, '.'); i > 0 {
					domain = id[:i]
					break
				}
			}
		}
		if _, ok := highEnergyDomains[domain]; ok {
			v.add(report, Issue{
				Severity: SeverityWarning,
				Category: CategoryHighEnergy,
				Message:  fmt.Sprintf("action targets high-energy domain %q", domain),
			})
		}
	}
}

var timeConflictNeedles = []string{"always", "continuously", "every 0", "every second"}

func (v *Validator) checkTimeConflicts(spec *models.AutomationSpec, report *Report) {
	var texts []string
	texts = append(texts, spec.Description)
	for _, section := range append(append([]map[string]interface{}{}, spec.Triggers...), spec.Conditions...) {
		for _, value := range section {
			if s, ok := value.(string); ok {
				texts = append(texts, s)
			}
		}
	}
	for _, text := range texts {
		lower := strings.ToLower(text)
		for _, needle := range timeConflictNeedles {
			if strings.Contains(lower, needle) {
				v.add(report, Issue{
					Severity: SeverityWarning,
					Category: CategoryTimeConflict,
					Message:  fmt.Sprintf("condition suggests permanent activation (%q)", needle),
				})
				return
			}
		}
	}
}

func (v *Validator) checkConflicts(spec *models.AutomationSpec, existing []models.Automation, report *Report) {
	var triggers, actions []string
	for _, t := range spec.Triggers {
		triggers = append(triggers, entityIDsOf(t)...)
	}
	for _, a := range spec.Actions {
		actions = append(actions, entityIDsOf(a)...)
	}

	for _, automation := range existing {
		for _, t := range automation.TriggerEntities {
			for _, a := range automation.ActionEntities {
				if contains(triggers, t) && contains(actions, a) {
					v.add(report, Issue{
						Severity: SeverityWarning,
						Category: CategoryConflict,
						Message:  fmt.Sprintf("automation %q already connects %s to %s", automation.Alias, t, a),
					})
				}
			}
		}
	}
}

func referencedEntityIDs(spec *models.AutomationSpec) []string {
	seen := make(map[string]struct{})
	var out []string
	collect := func(sections []map[string]interface{}) {
		for _, section := range sections {
			for _, id := range entityIDsOf(section) {
				if _, dup := seen[id]; !dup {
					seen[id] = struct{}{}
					out = append(out, id)
				}
			}
		}
	}
	collect(spec.Triggers)
	collect(spec.Conditions)
	collect(spec.Actions)
	return out
}

func entityIDsOf(m map[string]interface{}) []string {
	var ids []string
	for key, value := range m {
		switch v := value.(type) {
		case string:
			if key == "entity_id" || key == "entity" {
				ids = append(ids, v)
			}
		case []interface{}:
			if key == "entity_id" || key == "entity" {
				for _, item := range v {
					if s, ok := item.(string); ok {
						ids = append(ids, s)
					}
				}
			}
		case map[string]interface{}:
			ids = append(ids, entityIDsOf(v)...)
		}
	}
	return ids
}

func serviceOf(action map[string]interface{}) string {
	for _, key := range []string{"service", "action"} {
		if s, ok := action[key].(string); ok {
			return s
		}
	}
	return ""
}

func splitService(service string) (string, string) {
	if i := strings.IndexByte(service, '.'); i > 0 {
		return service[:i], service[i+1:]
	}
	return "", service
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
