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

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ha-ai/insightd/pkg/models"
)

type capabilityRowDB struct {
	DeviceModel  string    `db:"device_model"`
	Manufacturer string    `db:"manufacturer"`
	Description  string    `db:"description"`
	Capabilities []byte    `db:"capabilities"`
	RawExposes   []byte    `db:"raw_exposes"`
	Source       string    `db:"source"`
	LastUpdated  time.Time `db:"last_updated"`
}

func (r capabilityRowDB) toModel() (*models.CapabilityRecord, error) {
	rec := &models.CapabilityRecord{
		DeviceModel:  r.DeviceModel,
		Manufacturer: r.Manufacturer,
		Description:  r.Description,
		RawExposes:   r.RawExposes,
		Source:       models.CapabilitySource(r.Source),
		LastUpdated:  r.LastUpdated,
	}
	if len(r.Capabilities) > 0 {
		if err := json.Unmarshal(r.Capabilities, &rec.Capabilities); err != nil {
			return nil, fmt.Errorf("decode capabilities for %s: %w", r.DeviceModel, err)
		}
	}
	return rec, nil
}

// GetCapability fetches the capability record for one device model.
func (s *Store) GetCapability(ctx context.Context, deviceModel string) (*models.CapabilityRecord, error) {
	var row capabilityRowDB
	err := s.db.GetContext(ctx, &row, `
		SELECT device_model, manufacturer, description, capabilities, raw_exposes, source, last_updated
		FROM device_capabilities WHERE device_model = $1`, deviceModel)
	if err != nil {
		return nil, classify(fmt.Errorf("get capability %s: %w", deviceModel, err))
	}
	return row.toModel()
}

// UpsertCapability writes a capability record, replacing any previous
// version for the model.
func (s *Store) UpsertCapability(ctx context.Context, rec *models.CapabilityRecord) error {
	caps, err := json.Marshal(rec.Capabilities)
	if err != nil {
		return fmt.Errorf("encode capabilities: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO device_capabilities
			(device_model, manufacturer, description, capabilities, raw_exposes, source, last_updated)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (device_model) DO UPDATE SET
			manufacturer = EXCLUDED.manufacturer,
			description = EXCLUDED.description,
			capabilities = EXCLUDED.capabilities,
			raw_exposes = EXCLUDED.raw_exposes,
			source = EXCLUDED.source,
			last_updated = EXCLUDED.last_updated`,
		rec.DeviceModel, rec.Manufacturer, rec.Description, caps,
		[]byte(rec.RawExposes), string(rec.Source), rec.LastUpdated.UTC())
	if err != nil {
		return classify(fmt.Errorf("upsert capability %s: %w", rec.DeviceModel, err))
	}
	return nil
}

// ListCapabilities returns every capability record.
func (s *Store) ListCapabilities(ctx context.Context) ([]models.CapabilityRecord, error) {
	var rows []capabilityRowDB
	err := s.db.SelectContext(ctx, &rows, `
		SELECT device_model, manufacturer, description, capabilities, raw_exposes, source, last_updated
		FROM device_capabilities ORDER BY device_model`)
	if err != nil {
		return nil, classify(fmt.Errorf("list capabilities: %w", err))
	}

	out := make([]models.CapabilityRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toModel()
		if err != nil {
			s.logger.Warn("skipping corrupt capability row: " + err.Error())
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}
