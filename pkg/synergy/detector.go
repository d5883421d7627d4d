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

// Package synergy finds plausible but unimplemented cross-device
// automations: productive device pairs sharing an area, and contextual
// signals (weather, energy, calendar) no automation consumes yet.
package synergy

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ha-ai/insightd/pkg/models"
)

// role is a coarse functional classification of a device inside a pairing
// rule.
type role string

const (
	roleMotion      role = "motion"
	roleLight       role = "light"
	roleDoor        role = "door"
	roleLock        role = "lock"
	roleTemperature role = "temperature"
	roleClimate     role = "climate"
)

// pairRule describes one productive role combination.
type pairRule struct {
	trigger      role
	action       role
	relationship string
	affinity     float64
	complexity   models.Complexity
}

// pairRules is the known productive set. Order matters only for stable
// output.
var pairRules = []pairRule{
	{roleMotion, roleLight, "motion activates lighting", 0.9, models.ComplexityEasy},
	{roleDoor, roleLock, "door state drives lock", 0.85, models.ComplexityMedium},
	{roleTemperature, roleClimate, "temperature feeds climate control", 0.8, models.ComplexityMedium},
	{roleDoor, roleLight, "entry turns on lighting", 0.7, models.ComplexityEasy},
	{roleMotion, roleClimate, "presence adjusts climate", 0.6, models.ComplexityAdvanced},
}

const healthThreshold = 70

// Detector finds synergy opportunities. It consumes read-only snapshots:
// a device list, the orchestrator's automation listing and the analysis
// window's events.
type Detector struct {
	logger *zap.Logger
}

// NewDetector builds a Detector.
func NewDetector(logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{logger: logger}
}

// Input bundles the read-only snapshots a detection run consumes.
type Input struct {
	Devices     []models.DeviceRecord
	Automations []models.Automation
	Events      []models.Event
	Now         time.Time
}

// Detect returns synergy opportunities ordered by descending impact score.
// Pairs whose implied automation already exists are suppressed.
func (d *Detector) Detect(in Input) []models.SynergyOpportunity {
	connected := connectedPairs(in.Automations)
	referenced := referencedEntities(in.Automations)

	var out []models.SynergyOpportunity
	out = append(out, d.devicePairs(in, connected)...)
	out = append(out, d.contextual(in, referenced)...)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ImpactScore != out[j].ImpactScore {
			return out[i].ImpactScore > out[j].ImpactScore
		}
		return out[i].SynergyID < out[j].SynergyID
	})
	return out
}

func (d *Detector) devicePairs(in Input, connected map[string]struct{}) []models.SynergyOpportunity {
	byArea := make(map[string][]models.DeviceRecord)
	for _, device := range in.Devices {
		if device.AreaID == "" {
			continue
		}
		byArea[device.AreaID] = append(byArea[device.AreaID], device)
	}

	areas := make([]string, 0, len(byArea))
	for area := range byArea {
		areas = append(areas, area)
	}
	sort.Strings(areas)

	var out []models.SynergyOpportunity
	for _, area := range areas {
		devices := byArea[area]
		sort.Slice(devices, func(i, j int) bool { return devices[i].DeviceID < devices[j].DeviceID })

		for i := 0; i < len(devices); i++ {
			for j := 0; j < len(devices); j++ {
				if i == j {
					continue
				}
				trigger, action := devices[i], devices[j]
				for _, rule := range pairRules {
					if !hasRole(trigger, rule.trigger) || !hasRole(action, rule.action) {
						continue
					}
					if d.automationExists(trigger, action, connected) {
						continue
					}
					impact := rule.affinity * healthFactor(trigger) * healthFactor(action)
					out = append(out, models.SynergyOpportunity{
						SynergyID:    fmt.Sprintf("pair-%s-%s-%s", rule.trigger, trigger.DeviceID, action.DeviceID),
						Type:         models.SynergyDevicePair,
						Devices:      []string{trigger.DeviceID, action.DeviceID},
						Relationship: rule.relationship,
						Area:         area,
						ImpactScore:  impact,
						Complexity:   rule.complexity,
						Confidence:   rule.affinity,
						Metadata: map[string]interface{}{
							"trigger_role": string(rule.trigger),
							"action_role":  string(rule.action),
						},
						CreatedAt: in.Now.UTC(),
					})
				}
			}
		}
	}
	return out
}

// automationExists reports whether any (trigger entity, action entity)
// tuple implied by the pair is already covered by an automation.
func (d *Detector) automationExists(trigger, action models.DeviceRecord, connected map[string]struct{}) bool {
	for _, te := range trigger.Entities {
		for _, ae := range action.Entities {
			if _, ok := connected[te.EntityID+"\x00"+ae.EntityID]; ok {
				return true
			}
		}
	}
	return false
}

// contextual emits opportunities for ambient signals present in the event
// stream but absent from every automation.
func (d *Detector) contextual(in Input, referenced map[string]struct{}) []models.SynergyOpportunity {
	type signal struct {
		synergyType  models.SynergyType
		relationship string
		impact       float64
	}
	found := make(map[models.SynergyType]*models.SynergyOpportunity)

	classify := func(e models.Event) *signal {
		domain := e.EntityDomain()
		lower := strings.ToLower(e.EntityID)
		switch {
		case domain == "weather" || domain == "sun":
			return &signal{models.SynergyWeatherContext, "weather-aware automation", 0.65}
		case strings.Contains(lower, "power") || strings.Contains(lower, "energy"):
			return &signal{models.SynergyEnergyContext, "energy-aware automation", 0.7}
		case domain == "calendar" || domain == "event":
			return &signal{models.SynergyEventContext, "event-driven automation", 0.55}
		}
		return nil
	}

	for _, e := range in.Events {
		sig := classify(e)
		if sig == nil {
			continue
		}
		if _, used := referenced[e.EntityID]; used {
			continue
		}
		opp, ok := found[sig.synergyType]
		if !ok {
			opp = &models.SynergyOpportunity{
				SynergyID:    fmt.Sprintf("context-%s", sig.synergyType),
				Type:         sig.synergyType,
				Relationship: sig.relationship,
				ImpactScore:  sig.impact,
				Complexity:   models.ComplexityMedium,
				Confidence:   0.6,
				Metadata:     map[string]interface{}{"entities": []string{}},
				CreatedAt:    in.Now.UTC(),
			}
			found[sig.synergyType] = opp
		}
		entities := opp.Metadata["entities"].([]string)
		if !contains(entities, e.EntityID) {
			opp.Metadata["entities"] = append(entities, e.EntityID)
		}
	}

	types := make([]models.SynergyType, 0, len(found))
	for t := range found {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	out := make([]models.SynergyOpportunity, 0, len(found))
	for _, t := range types {
		out = append(out, *found[t])
	}
	return out
}

func hasRole(device models.DeviceRecord, r role) bool {
	for _, entity := range device.Entities {
		domain := entity.Domain
		if domain == "" {
			if i := strings.IndexByte(entity.EntityID, '.'); i > 0 {
				domain = entity.EntityID[:i]
			}
		}
		lower := strings.ToLower(entity.Name + " " + entity.EntityID)
		switch r {
		case roleMotion:
			if domain == "binary_sensor" && (strings.Contains(lower, "motion") || strings.Contains(lower, "occupancy")) {
				return true
			}
		case roleLight:
			if domain == "light" {
				return true
			}
		case roleDoor:
			if domain == "binary_sensor" && (strings.Contains(lower, "door") || strings.Contains(lower, "contact")) {
				return true
			}
		case roleLock:
			if domain == "lock" {
				return true
			}
		case roleTemperature:
			if domain == "sensor" && strings.Contains(lower, "temperature") {
				return true
			}
		case roleClimate:
			if domain == "climate" {
				return true
			}
		}
	}
	return false
}

// healthFactor discounts devices below the preferred health score. Unknown
// health is not penalised.
func healthFactor(device models.DeviceRecord) float64 {
	if device.HealthScore == nil {
		return 1.0
	}
	if *device.HealthScore >= healthThreshold {
		return 1.0
	}
	return 0.75
}

func connectedPairs(automations []models.Automation) map[string]struct{} {
	pairs := make(map[string]struct{})
	for _, a := range automations {
		for _, t := range a.TriggerEntities {
			for _, act := range a.ActionEntities {
				pairs[t+"\x00"+act] = struct{}{}
			}
		}
	}
	return pairs
}

func referencedEntities(automations []models.Automation) map[string]struct{} {
	refs := make(map[string]struct{})
	for _, a := range automations {
		for _, t := range a.TriggerEntities {
			refs[t] = struct{}{}
		}
		for _, act := range a.ActionEntities {
			refs[act] = struct{}{}
		}
	}
	return refs
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
