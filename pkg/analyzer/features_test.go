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

package analyzer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ha-ai/insightd/pkg/capability"
	"github.com/ha-ai/insightd/pkg/models"
)

type fakeCapRepo struct {
	records map[string]*models.CapabilityRecord
}

func (f *fakeCapRepo) GetCapability(_ context.Context, model string) (*models.CapabilityRecord, error) {
	rec, ok := f.records[model]
	if !ok {
		return nil, capability.ErrNotFound
	}
	return rec, nil
}

func (f *fakeCapRepo) UpsertCapability(_ context.Context, rec *models.CapabilityRecord) error {
	f.records[rec.DeviceModel] = rec
	return nil
}

func (f *fakeCapRepo) ListCapabilities(_ context.Context) ([]models.CapabilityRecord, error) {
	var out []models.CapabilityRecord
	for _, rec := range f.records {
		out = append(out, *rec)
	}
	return out, nil
}

func capRecord(model string, caps map[string]models.CapabilityDescriptor) *models.CapabilityRecord {
	return &models.CapabilityRecord{
		DeviceModel:  model,
		Manufacturer: "acme",
		Capabilities: caps,
		Source:       models.SourceBridge,
		LastUpdated:  time.Now().UTC(),
	}
}

func newAnalyzer(t *testing.T, records ...*models.CapabilityRecord) *FeatureAnalyzer {
	t.Helper()
	repo := &fakeCapRepo{records: make(map[string]*models.CapabilityRecord)}
	for _, rec := range records {
		repo.records[rec.DeviceModel] = rec
	}
	caps, err := capability.NewCachedStore(repo, nil, zap.NewNop())
	require.NoError(t, err)
	return NewFeatureAnalyzer(caps, zap.NewNop())
}

func TestInferImpact(t *testing.T) {
	cases := []struct {
		name string
		want models.Impact
	}{
		{"led_indicator", models.ImpactHigh},
		{"power_on_behavior", models.ImpactHigh},
		{"occupancy_timeout_timer", models.ImpactMedium},
		{"motion_sensitivity", models.ImpactMedium},
		{"color_temp_startup", models.ImpactLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, InferImpact(tc.name))
		})
	}
}

func TestAnalyzeReportsUnusedFeatures(t *testing.T) {
	a := newAnalyzer(t, capRecord("LED1623G12", map[string]models.CapabilityDescriptor{
		"brightness":    {Kind: models.CapabilityNumeric, Complexity: models.ComplexityEasy},
		"led_indicator": {Kind: models.CapabilityBinary, Complexity: models.ComplexityEasy, Description: "status LED"},
	}))

	devices := []models.DeviceRecord{{
		DeviceID: "dev-1",
		Name:     "Hall Light",
		Model:    "LED1623G12",
		Entities: []models.EntityRef{{EntityID: "light.hall", Name: "Hall"}},
	}}

	out, err := a.Analyze(context.Background(), devices)
	require.NoError(t, err)
	// brightness is implied by the light entity; only the LED remains.
	require.Len(t, out, 1)
	assert.Equal(t, "led_indicator", out[0].FeatureName)
	assert.Equal(t, models.ImpactHigh, out[0].Impact)
	assert.Equal(t, 9, out[0].PriorityScore)
	assert.Equal(t, "status LED", out[0].Description)
	assert.InDelta(t, 0.7, out[0].Confidence, 1e-9)
}

func TestAnalyzeSkipsUnknownDevices(t *testing.T) {
	a := newAnalyzer(t)

	out, err := a.Analyze(context.Background(), []models.DeviceRecord{
		{DeviceID: "dev-1"}, // no model
		{DeviceID: "dev-2", Model: "UNKNOWN-99"},
	})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestAnalyzeRanking(t *testing.T) {
	a := newAnalyzer(t, capRecord("TRV-7", map[string]models.CapabilityDescriptor{
		"led_indicator":   {Kind: models.CapabilityBinary, Complexity: models.ComplexityEasy},     // 3*3 = 9
		"away_mode_timer": {Kind: models.CapabilityEnum, Complexity: models.ComplexityMedium},     // 2*2 = 4
		"calibration":     {Kind: models.CapabilityNumeric, Complexity: models.ComplexityAdvanced}, // 1*1 = 1
	}))

	health := 90.0
	out, err := a.Analyze(context.Background(), []models.DeviceRecord{{
		DeviceID:    "dev-trv",
		Model:       "TRV-7",
		HealthScore: &health,
		Entities:    []models.EntityRef{{EntityID: "climate.bedroom", Name: "Bedroom"}},
	}})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "led_indicator", out[0].FeatureName)
	assert.Equal(t, "away_mode_timer", out[1].FeatureName)
	assert.Equal(t, "calibration", out[2].FeatureName)
	assert.InDelta(t, 0.9, out[0].Confidence, 1e-9)
}

func TestAnalyzeTieBreaksByConfidenceThenDevice(t *testing.T) {
	rec := capRecord("PLUG-1", map[string]models.CapabilityDescriptor{
		"led_indicator": {Kind: models.CapabilityBinary, Complexity: models.ComplexityEasy},
	})
	a := newAnalyzer(t, rec)

	strong, weak := 95.0, 50.0
	out, err := a.Analyze(context.Background(), []models.DeviceRecord{
		{DeviceID: "dev-b", Model: "PLUG-1", HealthScore: &weak},
		{DeviceID: "dev-a", Model: "PLUG-1", HealthScore: &strong},
		{DeviceID: "dev-c", Model: "PLUG-1", HealthScore: &weak},
	})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "dev-a", out[0].DeviceID)
	assert.Equal(t, "dev-b", out[1].DeviceID)
	assert.Equal(t, "dev-c", out[2].DeviceID)
}

func TestConfiguredFeaturesFromEntityNames(t *testing.T) {
	a := newAnalyzer(t, capRecord("SNZB-02", map[string]models.CapabilityDescriptor{
		"temperature": {Kind: models.CapabilityNumeric, Complexity: models.ComplexityEasy},
		"humidity":    {Kind: models.CapabilityNumeric, Complexity: models.ComplexityEasy},
		"battery":     {Kind: models.CapabilityNumeric, Complexity: models.ComplexityEasy},
	}))

	out, err := a.Analyze(context.Background(), []models.DeviceRecord{{
		DeviceID: "dev-th",
		Model:    "SNZB-02",
		Entities: []models.EntityRef{
			{EntityID: "sensor.bedroom_temperature", Name: "Temperature"},
			{EntityID: "sensor.bedroom_humidity", Name: "Humidity"},
		},
	}})
	require.NoError(t, err)
	// Both measured quantities are wired; only battery reporting is unused.
	require.Len(t, out, 1)
	assert.Equal(t, "battery", out[0].FeatureName)
}
