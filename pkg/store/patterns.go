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

// patternRow is the table shape; the type-specific payload is stored as
// JSONB.
type patternRow struct {
	PatternID   string    `db:"pattern_id"`
	PatternType string    `db:"pattern_type"`
	Confidence  float64   `db:"confidence"`
	Occurrences int       `db:"occurrences"`
	Payload     []byte    `db:"payload"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r patternRow) toModel() (models.Pattern, error) {
	p := models.Pattern{
		PatternID:   r.PatternID,
		Type:        models.PatternType(r.PatternType),
		Confidence:  r.Confidence,
		Occurrences: r.Occurrences,
		CreatedAt:   r.CreatedAt,
	}
	switch p.Type {
	case models.PatternTimeOfDay:
		p.TimeOfDay = &models.TimeOfDayPayload{}
		if err := json.Unmarshal(r.Payload, p.TimeOfDay); err != nil {
			return p, fmt.Errorf("decode time_of_day payload for %s: %w", r.PatternID, err)
		}
	case models.PatternCoOccurrence:
		p.CoOccurrence = &models.CoOccurrencePayload{}
		if err := json.Unmarshal(r.Payload, p.CoOccurrence); err != nil {
			return p, fmt.Errorf("decode co_occurrence payload for %s: %w", r.PatternID, err)
		}
	}
	return p, nil
}

// UpsertPatterns inserts or refreshes detected patterns. Re-detection of an
// existing pattern updates its stats in place.
func (s *Store) UpsertPatterns(ctx context.Context, patterns []models.Pattern) error {
	for _, p := range patterns {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("invalid pattern: %w", err)
		}
		var payload interface{}
		switch p.Type {
		case models.PatternTimeOfDay:
			payload = p.TimeOfDay
		case models.PatternCoOccurrence:
			payload = p.CoOccurrence
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode pattern payload: %w", err)
		}

		_, err = s.db.ExecContext(ctx, `
			INSERT INTO patterns (pattern_id, pattern_type, confidence, occurrences, payload, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			ON CONFLICT (pattern_id) DO UPDATE SET
				confidence = EXCLUDED.confidence,
				occurrences = EXCLUDED.occurrences,
				payload = EXCLUDED.payload,
				updated_at = EXCLUDED.updated_at`,
			p.PatternID, string(p.Type), p.Confidence, p.Occurrences, raw, p.CreatedAt.UTC())
		if err != nil {
			return classify(fmt.Errorf("upsert pattern %s: %w", p.PatternID, err))
		}
	}
	return nil
}

// ListPatterns returns patterns, optionally filtered by type, newest first.
func (s *Store) ListPatterns(ctx context.Context, patternType models.PatternType, limit int) ([]models.Pattern, error) {
	if limit <= 0 {
		limit = 500
	}
	var rows []patternRow
	var err error
	if patternType == "" {
		err = s.db.SelectContext(ctx, &rows, `
			SELECT pattern_id, pattern_type, confidence, occurrences, payload, created_at, updated_at
			FROM patterns ORDER BY created_at DESC, pattern_id LIMIT $1`, limit)
	} else {
		err = s.db.SelectContext(ctx, &rows, `
			SELECT pattern_id, pattern_type, confidence, occurrences, payload, created_at, updated_at
			FROM patterns WHERE pattern_type = $1 ORDER BY created_at DESC, pattern_id LIMIT $2`,
			string(patternType), limit)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("list patterns: %w", err))
	}

	patterns := make([]models.Pattern, 0, len(rows))
	for _, row := range rows {
		p, err := row.toModel()
		if err != nil {
			s.logger.Warn("skipping corrupt pattern row: " + err.Error())
			continue
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

// PatternStats summarises the pattern table for the stats route.
type PatternStats struct {
	Total         int     `db:"total" json:"total"`
	TimeOfDay     int     `db:"time_of_day" json:"time_of_day"`
	CoOccurrence  int     `db:"co_occurrence" json:"co_occurrence"`
	AvgConfidence float64 `db:"avg_confidence" json:"avg_confidence"`
}

// GetPatternStats computes counts per type and average confidence.
func (s *Store) GetPatternStats(ctx context.Context) (*PatternStats, error) {
	var stats PatternStats
	err := s.db.GetContext(ctx, &stats, `
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE pattern_type = 'time_of_day') AS time_of_day,
		       COUNT(*) FILTER (WHERE pattern_type = 'co_occurrence') AS co_occurrence,
		       COALESCE(AVG(confidence), 0) AS avg_confidence
		FROM patterns`)
	if err != nil {
		return nil, classify(fmt.Errorf("pattern stats: %w", err))
	}
	return &stats, nil
}

// CleanupPatterns deletes patterns created before the cutoff and returns
// the deleted count.
func (s *Store) CleanupPatterns(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM patterns WHERE created_at < $1`, olderThan.UTC())
	if err != nil {
		return 0, classify(fmt.Errorf("cleanup patterns: %w", err))
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}
