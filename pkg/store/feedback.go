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
	"fmt"

	"github.com/ha-ai/insightd/pkg/models"
)

// InsertFeedback records one user action on a suggestion.
func (s *Store) InsertFeedback(ctx context.Context, fb models.Feedback) error {
	if fb.ID == "" || fb.SuggestionID == "" {
		return fmt.Errorf("feedback id and suggestion_id are required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_feedback (id, suggestion_id, action, free_text, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		fb.ID, fb.SuggestionID, string(fb.Action), fb.FreeText, fb.CreatedAt.UTC())
	if err != nil {
		return classify(fmt.Errorf("insert feedback: %w", err))
	}
	return nil
}

// ListFeedback returns feedback for one suggestion, oldest first.
func (s *Store) ListFeedback(ctx context.Context, suggestionID string) ([]models.Feedback, error) {
	var out []models.Feedback
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, suggestion_id, action, free_text, created_at
		FROM user_feedback WHERE suggestion_id = $1 ORDER BY created_at`, suggestionID)
	if err != nil {
		return nil, classify(fmt.Errorf("list feedback: %w", err))
	}
	return out, nil
}
