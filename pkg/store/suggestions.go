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
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ha-ai/insightd/pkg/models"
)

type suggestionRow struct {
	ID                string    `db:"id"`
	Source            string    `db:"source"`
	Title             string    `db:"title"`
	Description       string    `db:"description"`
	Rationale         string    `db:"rationale"`
	AutomationSpec    []byte    `db:"automation_spec"`
	Confidence        float64   `db:"confidence"`
	Category          string    `db:"category"`
	Priority          string    `db:"priority"`
	Status            string    `db:"status"`
	PatternRef        string    `db:"pattern_ref"`
	SynergyRef        string    `db:"synergy_ref"`
	ValidatedEntities []byte    `db:"validated_entities"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func (r suggestionRow) toModel() (models.Suggestion, error) {
	s := models.Suggestion{
		ID:          r.ID,
		Source:      models.SuggestionSource(r.Source),
		Title:       r.Title,
		Description: r.Description,
		Rationale:   r.Rationale,
		Confidence:  r.Confidence,
		Category:    models.SuggestionCategory(r.Category),
		Priority:    models.Priority(r.Priority),
		Status:      models.SuggestionStatus(r.Status),
		PatternRef:  r.PatternRef,
		SynergyRef:  r.SynergyRef,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if len(r.AutomationSpec) > 0 {
		s.AutomationSpec = &models.AutomationSpec{}
		if err := json.Unmarshal(r.AutomationSpec, s.AutomationSpec); err != nil {
			return s, fmt.Errorf("decode automation spec for %s: %w", r.ID, err)
		}
	}
	if len(r.ValidatedEntities) > 0 {
		if err := json.Unmarshal(r.ValidatedEntities, &s.ValidatedEntities); err != nil {
			return s, fmt.Errorf("decode validated entities for %s: %w", r.ID, err)
		}
	}
	return s, nil
}

// InsertSuggestions persists freshly generated suggestions.
func (s *Store) InsertSuggestions(ctx context.Context, suggestions []models.Suggestion) error {
	for _, sg := range suggestions {
		if err := sg.Validate(); err != nil {
			return fmt.Errorf("invalid suggestion: %w", err)
		}
		entities, err := json.Marshal(sg.ValidatedEntities)
		if err != nil {
			return fmt.Errorf("encode validated entities: %w", err)
		}
		var spec []byte
		if sg.AutomationSpec != nil {
			if spec, err = json.Marshal(sg.AutomationSpec); err != nil {
				return fmt.Errorf("encode automation spec: %w", err)
			}
		}

		_, err = s.db.ExecContext(ctx, `
			INSERT INTO suggestions
				(id, source, title, description, rationale, automation_spec, confidence,
				 category, priority, status, pattern_ref, synergy_ref, validated_entities,
				 created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
			sg.ID, string(sg.Source), sg.Title, sg.Description, sg.Rationale,
			nullableBytes(spec), sg.Confidence, string(sg.Category), string(sg.Priority),
			string(sg.Status), sg.PatternRef, sg.SynergyRef, entities,
			sg.CreatedAt.UTC(), sg.UpdatedAt.UTC())
		if err != nil {
			return classify(fmt.Errorf("insert suggestion %s: %w", sg.ID, err))
		}
	}
	return nil
}

const suggestionColumns = `id, source, title, description, rationale, automation_spec, confidence,
	category, priority, status, pattern_ref, synergy_ref, validated_entities, created_at, updated_at`

// GetSuggestion fetches one suggestion by id.
func (s *Store) GetSuggestion(ctx context.Context, id string) (*models.Suggestion, error) {
	var row suggestionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+suggestionColumns+` FROM suggestions WHERE id = $1`, id)
	if err != nil {
		return nil, classify(fmt.Errorf("get suggestion %s: %w", id, err))
	}
	suggestion, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &suggestion, nil
}

// ListSuggestions returns suggestions, optionally filtered by status,
// newest first.
func (s *Store) ListSuggestions(ctx context.Context, status models.SuggestionStatus, limit int) ([]models.Suggestion, error) {
	if limit <= 0 {
		limit = 200
	}
	var rows []suggestionRow
	var err error
	if status == "" {
		err = s.db.SelectContext(ctx, &rows,
			`SELECT `+suggestionColumns+` FROM suggestions ORDER BY created_at DESC, id LIMIT $1`, limit)
	} else {
		err = s.db.SelectContext(ctx, &rows,
			`SELECT `+suggestionColumns+` FROM suggestions WHERE status = $1 ORDER BY created_at DESC, id LIMIT $2`,
			string(status), limit)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("list suggestions: %w", err))
	}

	out := make([]models.Suggestion, 0, len(rows))
	for _, row := range rows {
		suggestion, err := row.toModel()
		if err != nil {
			s.logger.Warn("skipping corrupt suggestion row: " + err.Error())
			continue
		}
		out = append(out, suggestion)
	}
	return out, nil
}

// UpdateSuggestionStatus transitions a suggestion's lifecycle state,
// enforcing the state machine.
func (s *Store) UpdateSuggestionStatus(ctx context.Context, id string, to models.SuggestionStatus, now time.Time) (*models.Suggestion, error) {
	current, err := s.GetSuggestion(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransition(to) {
		return nil, fmt.Errorf("cannot transition suggestion %s from %s to %s", id, current.Status, to)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE suggestions SET status = $1, updated_at = $2 WHERE id = $3`,
		string(to), now.UTC(), id)
	if err != nil {
		return nil, classify(fmt.Errorf("update suggestion status: %w", err))
	}
	current.Status = to
	current.UpdatedAt = now.UTC()
	return current, nil
}

// SuggestionEdit carries user edits. Nil fields are untouched.
type SuggestionEdit struct {
	Title       *string
	Description *string
	Rationale   *string
	Priority    *models.Priority
}

// EditSuggestion applies user edits and moves the suggestion to modified.
func (s *Store) EditSuggestion(ctx context.Context, id string, edit SuggestionEdit, now time.Time) (*models.Suggestion, error) {
	current, err := s.GetSuggestion(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != models.StatusPending && current.Status != models.StatusModified {
		return nil, fmt.Errorf("cannot edit suggestion %s in status %s", id, current.Status)
	}

	if edit.Title != nil {
		current.Title = *edit.Title
	}
	if edit.Description != nil {
		current.Description = *edit.Description
	}
	if edit.Rationale != nil {
		current.Rationale = *edit.Rationale
	}
	if edit.Priority != nil {
		current.Priority = *edit.Priority
	}
	current.Status = models.StatusModified
	current.UpdatedAt = now.UTC()

	_, err = s.db.ExecContext(ctx, `
		UPDATE suggestions SET title = $1, description = $2, rationale = $3,
			priority = $4, status = $5, updated_at = $6 WHERE id = $7`,
		current.Title, current.Description, current.Rationale,
		string(current.Priority), string(current.Status), current.UpdatedAt, id)
	if err != nil {
		return nil, classify(fmt.Errorf("edit suggestion: %w", err))
	}
	return current, nil
}

// SetAutomationSpec stores the materialised specification after approval.
func (s *Store) SetAutomationSpec(ctx context.Context, id string, spec *models.AutomationSpec, now time.Time) error {
	raw, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("encode automation spec: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE suggestions SET automation_spec = $1, updated_at = $2 WHERE id = $3`,
		raw, now.UTC(), id)
	if err != nil {
		return classify(fmt.Errorf("set automation spec: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSuggestion removes a suggestion (and its feedback via cascade).
func (s *Store) DeleteSuggestion(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM suggestions WHERE id = $1`, id)
	if err != nil {
		return classify(fmt.Errorf("delete suggestion: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableBytes(b []byte) interface{} {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return b
}
