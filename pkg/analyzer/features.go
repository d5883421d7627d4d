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

// Package analyzer joins device instances to capability records and ranks
// the capabilities a device exposes but no entity or automation uses.
package analyzer

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/ha-ai/insightd/pkg/capability"
	"github.com/ha-ai/insightd/pkg/models"
)

var (
	highImpactKeyword   = regexp.MustCompile(`led|notification|alert|automation|energy|power|status|indicator`)
	mediumImpactKeyword = regexp.MustCompile(`timer|mode|preset|schedule|delay|duration|threshold|sensitivity`)
)

// InferImpact classifies a feature's likely value to the user by name.
func InferImpact(featureName string) models.Impact {
	lower := strings.ToLower(featureName)
	switch {
	case highImpactKeyword.MatchString(lower):
		return models.ImpactHigh
	case mediumImpactKeyword.MatchString(lower):
		return models.ImpactMedium
	default:
		return models.ImpactLow
	}
}

// domainFeatures maps an entity domain to the capability features its
// presence implies are already configured.
var domainFeatures = map[string][]string{
	"light":         {"light_control", "power", "brightness", "color_temperature"},
	"switch":        {"switch_control", "power"},
	"climate":       {"climate_control", "temperature", "target_temperature"},
	"cover":         {"cover_control", "position"},
	"lock":          {"lock_control", "lock"},
	"fan":           {"fan_control", "fan_speed"},
	"binary_sensor": {"contact", "occupancy", "motion"},
	"sensor":        {"temperature", "humidity", "illuminance", "link_quality"},
}

// nameFeatures are substrings of entity names that imply a configured
// feature regardless of domain.
var nameFeatures = map[string]string{
	"contact":     "contact",
	"occupancy":   "occupancy",
	"motion":      "occupancy",
	"temperature": "temperature",
	"humidity":    "humidity",
	"illuminance": "illuminance",
	"battery":     "battery",
}

// FeatureAnalyzer finds unused device capabilities. Capability records come
// from the write-through store; devices from the registry snapshot.
type FeatureAnalyzer struct {
	capabilities *capability.CachedStore
	logger       *zap.Logger
}

// NewFeatureAnalyzer builds the analyzer.
func NewFeatureAnalyzer(capabilities *capability.CachedStore, logger *zap.Logger) *FeatureAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeatureAnalyzer{capabilities: capabilities, logger: logger}
}

// Analyze returns feature opportunities ranked by priority score, ties
// broken by higher confidence and then by device id. Devices without a
// known model or capability record are skipped.
func (a *FeatureAnalyzer) Analyze(ctx context.Context, devices []models.DeviceRecord) ([]models.FeatureOpportunity, error) {
	var opportunities []models.FeatureOpportunity

	for _, device := range devices {
		if device.Model == "" {
			continue
		}
		record, err := a.capabilities.Get(ctx, device.Model)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger.Debug("no capability record for device",
				zap.String("device_id", device.DeviceID), zap.String("model", device.Model))
			continue
		}

		configured := configuredFeatures(device)
		for name, desc := range record.Capabilities {
			if _, used := configured[name]; used {
				continue
			}
			impact := InferImpact(name)
			opportunities = append(opportunities, models.FeatureOpportunity{
				DeviceID:      device.DeviceID,
				DeviceName:    device.Name,
				FeatureName:   name,
				FeatureKind:   desc.Kind,
				Complexity:    desc.Complexity,
				Impact:        impact,
				PriorityScore: models.ImpactWeight(impact) * models.ComplexityWeight(desc.Complexity),
				Confidence:    deviceConfidence(device),
				Description:   desc.Description,
			})
		}
	}

	sort.SliceStable(opportunities, func(i, j int) bool {
		if opportunities[i].PriorityScore != opportunities[j].PriorityScore {
			return opportunities[i].PriorityScore > opportunities[j].PriorityScore
		}
		if opportunities[i].Confidence != opportunities[j].Confidence {
			return opportunities[i].Confidence > opportunities[j].Confidence
		}
		return opportunities[i].DeviceID < opportunities[j].DeviceID
	})
	return opportunities, nil
}

// configuredFeatures derives the feature set already in use from the
// device's entity domains and names.
func configuredFeatures(device models.DeviceRecord) map[string]struct{} {
	configured := make(map[string]struct{})
	for _, entity := range device.Entities {
		domain := entity.Domain
		if domain == "" {
			if i := strings.IndexByte(entity.EntityID, '.'); i > 0 {
				domain = entity.EntityID[:i]
			}
		}
		for _, feature := range domainFeatures[domain] {
			configured[feature] = struct{}{}
		}
		lowerName := strings.ToLower(entity.Name + " " + entity.EntityID)
		for needle, feature := range nameFeatures {
			if strings.Contains(lowerName, needle) {
				configured[feature] = struct{}{}
			}
		}
	}
	return configured
}

// deviceConfidence scales with known device health; unknown health gets a
// neutral default.
func deviceConfidence(device models.DeviceRecord) float64 {
	if device.HealthScore == nil {
		return 0.7
	}
	return lo.Clamp(*device.HealthScore/100, 0, 1)
}
