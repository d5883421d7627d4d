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

type synergyRow struct {
	SynergyID    string    `db:"synergy_id"`
	SynergyType  string    `db:"synergy_type"`
	Devices      []byte    `db:"devices"`
	Relationship string    `db:"relationship"`
	Area         string    `db:"area"`
	ImpactScore  float64   `db:"impact_score"`
	Complexity   string    `db:"complexity"`
	Confidence   float64   `db:"confidence"`
	Metadata     []byte    `db:"metadata"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r synergyRow) toModel() (models.SynergyOpportunity, error) {
	syn := models.SynergyOpportunity{
		SynergyID:    r.SynergyID,
		Type:         models.SynergyType(r.SynergyType),
		Relationship: r.Relationship,
		Area:         r.Area,
		ImpactScore:  r.ImpactScore,
		Complexity:   models.Complexity(r.Complexity),
		Confidence:   r.Confidence,
		CreatedAt:    r.CreatedAt,
	}
	if len(r.Devices) > 0 {
		if err := json.Unmarshal(r.Devices, &syn.Devices); err != nil {
			return syn, fmt.Errorf("decode devices for %s: %w", r.SynergyID, err)
		}
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &syn.Metadata); err != nil {
			return syn, fmt.Errorf("decode metadata for %s: %w", r.SynergyID, err)
		}
	}
	return syn, nil
}

// UpsertSynergies inserts or refreshes detected synergy opportunities.
func (s *Store) UpsertSynergies(ctx context.Context, synergies []models.SynergyOpportunity) error {
	for _, syn := range synergies {
		devices, err := json.Marshal(syn.Devices)
		if err != nil {
			return fmt.Errorf("encode devices: %w", err)
		}
		metadata, err := json.Marshal(syn.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}

		_, err = s.db.ExecContext(ctx, `
			INSERT INTO synergy_opportunities
				(synergy_id, synergy_type, devices, relationship, area, impact_score,
				 complexity, confidence, metadata, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
			ON CONFLICT (synergy_id) DO UPDATE SET
				impact_score = EXCLUDED.impact_score,
				confidence = EXCLUDED.confidence,
				metadata = EXCLUDED.metadata,
				updated_at = EXCLUDED.updated_at`,
			syn.SynergyID, string(syn.Type), devices, syn.Relationship, syn.Area,
			syn.ImpactScore, string(syn.Complexity), syn.Confidence, metadata,
			syn.CreatedAt.UTC())
		if err != nil {
			return classify(fmt.Errorf("upsert synergy %s: %w", syn.SynergyID, err))
		}
	}
	return nil
}

const synergyColumns = `synergy_id, synergy_type, devices, relationship, area, impact_score,
	complexity, confidence, metadata, created_at, updated_at`

// GetSynergy fetches one synergy opportunity.
func (s *Store) GetSynergy(ctx context.Context, id string) (*models.SynergyOpportunity, error) {
	var row synergyRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+synergyColumns+` FROM synergy_opportunities WHERE synergy_id = $1`, id)
	if err != nil {
		return nil, classify(fmt.Errorf("get synergy %s: %w", id, err))
	}
	syn, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &syn, nil
}

// ListSynergies returns synergies ordered by impact score.
func (s *Store) ListSynergies(ctx context.Context, limit int) ([]models.SynergyOpportunity, error) {
	if limit <= 0 {
		limit = 200
	}
	var rows []synergyRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+synergyColumns+` FROM synergy_opportunities
		 ORDER BY impact_score DESC, synergy_id LIMIT $1`, limit)
	if err != nil {
		return nil, classify(fmt.Errorf("list synergies: %w", err))
	}

	out := make([]models.SynergyOpportunity, 0, len(rows))
	for _, row := range rows {
		syn, err := row.toModel()
		if err != nil {
			s.logger.Warn("skipping corrupt synergy row: " + err.Error())
			continue
		}
		out = append(out, syn)
	}
	return out, nil
}

// SynergyStats summarises the synergy table.
type SynergyStats struct {
	Total       int     `db:"total" json:"total"`
	DevicePairs int     `db:"device_pairs" json:"device_pairs"`
	Contextual  int     `db:"contextual" json:"contextual"`
	AvgImpact   float64 `db:"avg_impact" json:"avg_impact"`
	MaxImpact   float64 `db:"max_impact" json:"max_impact"`
}

// GetSynergyStats computes counts and impact aggregates.
func (s *Store) GetSynergyStats(ctx context.Context) (*SynergyStats, error) {
	var stats SynergyStats
	err := s.db.GetContext(ctx, &stats, `
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE synergy_type = 'device_pair') AS device_pairs,
		       COUNT(*) FILTER (WHERE synergy_type <> 'device_pair') AS contextual,
		       COALESCE(AVG(impact_score), 0) AS avg_impact,
		       COALESCE(MAX(impact_score), 0) AS max_impact
		FROM synergy_opportunities`)
	if err != nil {
		return nil, classify(fmt.Errorf("synergy stats: %w", err))
	}
	return &stats, nil
}
