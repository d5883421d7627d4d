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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ha-ai/insightd/pkg/models"
)

func timeOfDayPattern() models.Pattern {
	return models.Pattern{
		PatternID:   "timeofday-light.kitchen-0705",
		Type:        models.PatternTimeOfDay,
		Confidence:  0.9,
		Occurrences: 7,
		CreatedAt:   time.Date(2026, 8, 26, 3, 0, 0, 0, time.UTC),
		TimeOfDay: &models.TimeOfDayPayload{
			EntityID: "light.kitchen", Hour: 7, Minute: 5, TotalEvents: 7,
		},
	}
}

func TestUpsertPatterns(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO patterns .+ ON CONFLICT \(pattern_id\) DO UPDATE`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.UpsertPatterns(context.Background(), []models.Pattern{timeOfDayPattern()}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPatternsValidates(t *testing.T) {
	s, _ := newMockStore(t)
	err := s.UpsertPatterns(context.Background(), []models.Pattern{{PatternID: "p-1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid pattern")
}

func TestListPatternsDecodesPayload(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 8, 26, 3, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"pattern_id", "pattern_type", "confidence", "occurrences", "payload", "created_at", "updated_at",
	}).AddRow(
		"timeofday-light.kitchen-0705", "time_of_day", 0.9, 7,
		[]byte(`{"entity_id":"light.kitchen","hour":7,"minute":5,"std_minutes":2.1,"total_events":7}`),
		now, now)

	mock.ExpectQuery(`SELECT .+ FROM patterns WHERE pattern_type = \$1`).
		WithArgs("time_of_day", 100).
		WillReturnRows(rows)

	patterns, err := s.ListPatterns(context.Background(), models.PatternTimeOfDay, 100)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	require.NotNil(t, patterns[0].TimeOfDay)
	assert.Equal(t, 7, patterns[0].TimeOfDay.Hour)
	assert.Equal(t, "light.kitchen", patterns[0].TimeOfDay.EntityID)
}

func TestListPatternsSkipsCorruptRows(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 8, 26, 3, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"pattern_id", "pattern_type", "confidence", "occurrences", "payload", "created_at", "updated_at",
	}).
		AddRow("p-bad", "time_of_day", 0.8, 5, []byte(`{broken`), now, now).
		AddRow("timeofday-light.kitchen-0705", "time_of_day", 0.9, 7,
			[]byte(`{"entity_id":"light.kitchen","hour":7,"minute":5,"total_events":7}`), now, now)

	mock.ExpectQuery(`SELECT .+ FROM patterns ORDER BY`).
		WithArgs(500).
		WillReturnRows(rows)

	patterns, err := s.ListPatterns(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "timeofday-light.kitchen-0705", patterns[0].PatternID)
}

func TestCleanupPatterns(t *testing.T) {
	s, mock := newMockStore(t)
	cutoff := time.Date(2026, 5, 28, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`DELETE FROM patterns WHERE created_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 42))

	deleted, err := s.CleanupPatterns(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(42), deleted)
}

func TestAddUsageTruncatesToDay(t *testing.T) {
	s, mock := newMockStore(t)
	day := time.Date(2026, 8, 26, 14, 30, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO llm_usage .+ ON CONFLICT \(date\) DO UPDATE`).
		WithArgs(time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC),
			int64(1200), int64(800), 0.00066, int64(10), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.AddUsage(context.Background(), day, 1200, 800, 10, 1, 0.00066))
	assert.NoError(t, mock.ExpectationsWereMet())
}
