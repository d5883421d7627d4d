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

// Package capability parses vendor-neutral "exposes" declarations into
// typed capability descriptors and maintains the per-model capability store.
package capability

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ha-ai/insightd/pkg/models"
)

// friendlyNames is the explicit vendor-name lookup table. It wins over the
// mechanical normalisation chain.
var friendlyNames = map[string]string{
	"state":              "power",
	"brightness":         "brightness",
	"color_temp":         "color_temperature",
	"occupancy":          "occupancy",
	"contact":            "contact",
	"illuminance_lux":    "illuminance",
	"linkquality":        "link_quality",
	"led_indication":     "led_indicator",
	"power_on_behavior":  "power_on_behavior",
	"occupancy_timeout":  "occupancy_timeout",
	"motion_sensitivity": "motion_sensitivity",
}

var (
	camelBoundary   = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	repeatedUnders  = regexp.MustCompile(`_{2,}`)
	advancedKeyword = regexp.MustCompile(`effect|transition|calibration|sensitivity|scene|advanced`)
	mediumKeyword   = regexp.MustCompile(`timer|delay|threshold|duration|interval|timeout`)
)

// FriendlyName maps a vendor capability name to its friendly form. The
// mapping chain is: explicit table, camelCase to snake_case, hyphen/space
// normalisation, collapse of repeated underscores.
func FriendlyName(vendor string) string {
	if friendly, ok := friendlyNames[vendor]; ok {
		return friendly
	}
	name := camelBoundary.ReplaceAllString(vendor, "${1}_${2}")
	name = strings.ToLower(name)
	name = strings.NewReplacer("-", "_", " ", "_").Replace(name)
	name = repeatedUnders.ReplaceAllString(name, "_")
	return strings.Trim(name, "_")
}

// InferComplexity classifies a capability by keyword in its vendor name.
func InferComplexity(vendorName string) models.Complexity {
	lower := strings.ToLower(vendorName)
	switch {
	case advancedKeyword.MatchString(lower):
		return models.ComplexityAdvanced
	case mediumKeyword.MatchString(lower):
		return models.ComplexityMedium
	default:
		return models.ComplexityEasy
	}
}

// ParseResult carries parsed capabilities plus a count of declarations whose
// shape was not understood. Unknown shapes never fail the parse.
type ParseResult struct {
	Capabilities map[string]models.CapabilityDescriptor
	Skipped      int
}

// Parser turns raw exposes payloads into capability maps.
type Parser struct {
	logger *zap.Logger
}

// NewParser builds a Parser.
func NewParser(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{logger: logger}
}

// exposeDecl is the loose wire shape of one exposes entry. Vendors disagree
// on which of name/property is set and on where features nest.
type exposeDecl struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Property    string          `json:"property"`
	Description string          `json:"description"`
	ValueOn     json.RawMessage `json:"value_on"`
	ValueOff    json.RawMessage `json:"value_off"`
	ValueMin    *float64        `json:"value_min"`
	ValueMax    *float64        `json:"value_max"`
	Unit        string          `json:"unit"`
	Values      []string        `json:"values"`
	Features    []exposeDecl    `json:"features"`
}

// Parse decodes an exposes list and returns the friendly-name capability
// map. Declarations with unknown shapes are skipped and counted.
func (p *Parser) Parse(rawExposes json.RawMessage) (*ParseResult, error) {
	var decls []exposeDecl
	if err := json.Unmarshal(rawExposes, &decls); err != nil {
		return nil, fmt.Errorf("exposes payload is not a list: %w", err)
	}

	result := &ParseResult{Capabilities: make(map[string]models.CapabilityDescriptor)}
	for _, decl := range decls {
		p.parseDecl(decl, result)
	}
	return result, nil
}

func (p *Parser) parseDecl(decl exposeDecl, result *ParseResult) {
	vendor := decl.Property
	if vendor == "" {
		vendor = decl.Name
	}

	desc, ok := p.descriptor(decl, vendor)
	if !ok {
		result.Skipped++
		p.logger.Debug("skipping unknown exposes declaration",
			zap.String("type", decl.Type), zap.String("name", vendor))
		return
	}
	if vendor == "" {
		// Composite group types (light, switch, climate) often carry no
		// name of their own; hoist their features to the top level.
		if desc.Kind == models.CapabilityComposite {
			for _, feature := range desc.Features {
				result.Capabilities[FriendlyName(feature.MQTTName)] = feature
			}
			return
		}
		result.Skipped++
		return
	}
	result.Capabilities[FriendlyName(vendor)] = desc
}

func (p *Parser) descriptor(decl exposeDecl, vendor string) (models.CapabilityDescriptor, bool) {
	base := models.CapabilityDescriptor{
		MQTTName:    vendor,
		Complexity:  InferComplexity(vendor),
		Description: decl.Description,
	}

	switch decl.Type {
	case "binary":
		base.Kind = models.CapabilityBinary
		base.ValueOn = rawToString(decl.ValueOn)
		base.ValueOff = rawToString(decl.ValueOff)
	case "numeric":
		base.Kind = models.CapabilityNumeric
		base.Min = decl.ValueMin
		base.Max = decl.ValueMax
		base.Unit = decl.Unit
	case "enum":
		base.Kind = models.CapabilityEnum
		base.Values = decl.Values
	case "composite", "light", "switch", "climate", "cover", "lock", "fan":
		base.Kind = models.CapabilityComposite
		for _, f := range decl.Features {
			fVendor := f.Property
			if fVendor == "" {
				fVendor = f.Name
			}
			child, ok := p.descriptor(f, fVendor)
			if !ok || fVendor == "" {
				continue
			}
			base.Features = append(base.Features, child)
		}
	default:
		return models.CapabilityDescriptor{}, false
	}
	return base, true
}

func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.Trim(string(raw), `"`)
}
