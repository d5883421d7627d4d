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
	"fmt"
	"sort"

	"github.com/ha-ai/insightd/pkg/capability"
	"github.com/ha-ai/insightd/pkg/llm"
	"github.com/ha-ai/insightd/pkg/models"
)

// enricher resolves entity ids to the device context prompts require:
// friendly names, area, capabilities, health. Prompts never receive a bare
// entity id.
type enricher struct {
	byEntity     map[string]models.DeviceRecord
	byDevice     map[string]models.DeviceRecord
	areaNames    map[string]string
	capabilities *capability.CachedStore
}

func newEnricher(devices []models.DeviceRecord, areas []models.Area, capabilities *capability.CachedStore) *enricher {
	e := &enricher{
		byEntity:     make(map[string]models.DeviceRecord),
		byDevice:     make(map[string]models.DeviceRecord),
		areaNames:    make(map[string]string),
		capabilities: capabilities,
	}
	for _, d := range devices {
		e.byDevice[d.DeviceID] = d
		for _, ent := range d.Entities {
			e.byEntity[ent.EntityID] = d
		}
	}
	for _, a := range areas {
		e.areaNames[a.AreaID] = a.Name
	}
	return e
}

// entityContext builds the prompt context for one entity id. Unknown
// entities still get a context so a stale pattern cannot crash generation.
func (e *enricher) entityContext(ctx context.Context, entityID string) llm.DeviceContext {
	device, ok := e.byEntity[entityID]
	if !ok {
		return llm.DeviceContext{
			EntityID:     entityID,
			FriendlyName: entityID,
			Area:         "unknown",
			HealthScore:  "unknown",
		}
	}
	dc := e.deviceContext(ctx, device)
	dc.EntityID = entityID
	for _, ent := range device.Entities {
		if ent.EntityID == entityID && ent.Name != "" {
			dc.FriendlyName = ent.Name
		}
	}
	return dc
}

func (e *enricher) deviceContext(ctx context.Context, device models.DeviceRecord) llm.DeviceContext {
	area := e.areaNames[device.AreaID]
	if area == "" {
		area = device.AreaID
	}
	if area == "" {
		area = "unknown"
	}
	health := "unknown"
	if device.HealthScore != nil {
		health = fmt.Sprintf("%.0f/100", *device.HealthScore)
	}

	dc := llm.DeviceContext{
		FriendlyName: device.Name,
		Area:         area,
		Manufacturer: device.Manufacturer,
		Model:        device.Model,
		HealthScore:  health,
	}
	if dc.FriendlyName == "" {
		dc.FriendlyName = device.DeviceID
	}
	if len(device.Entities) > 0 {
		dc.EntityID = device.Entities[0].EntityID
	}

	if e.capabilities != nil && device.Model != "" {
		if rec, err := e.capabilities.Get(ctx, device.Model); err == nil {
			names := make([]string, 0, len(rec.Capabilities))
			for name := range rec.Capabilities {
				names = append(names, name)
			}
			sort.Strings(names)
			dc.Capabilities = names
		}
	}
	return dc
}

// deviceByID resolves a device id, for synergy enrichment.
func (e *enricher) deviceByID(ctx context.Context, deviceID string) (llm.DeviceContext, bool) {
	device, ok := e.byDevice[deviceID]
	if !ok {
		return llm.DeviceContext{}, false
	}
	return e.deviceContext(ctx, device), true
}

// entitiesOf lists a device's entity ids.
func (e *enricher) entitiesOf(deviceID string) []string {
	device, ok := e.byDevice[deviceID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(device.Entities))
	for _, ent := range device.Entities {
		ids = append(ids, ent.EntityID)
	}
	return ids
}
