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

// UpsertTimeOfDayAggregates writes daily per-entity rollups. Re-running a
// day replaces that day's rows.
func (s *Store) UpsertTimeOfDayAggregates(ctx context.Context, aggregates []models.TimeOfDayAggregate, now time.Time) error {
	for _, agg := range aggregates {
		hourly, err := json.Marshal(agg.HourlyCount)
		if err != nil {
			return fmt.Errorf("encode hourly counts: %w", err)
		}
		peaks, err := json.Marshal(agg.PeakHours)
		if err != nil {
			return fmt.Errorf("encode peak hours: %w", err)
		}

		_, err = s.db.ExecContext(ctx, `
			INSERT INTO timeofday_aggregates
				(date, entity_id, domain, hourly_count, peak_hours, frequency, confidence,
				 occurrences, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
			ON CONFLICT (date, entity_id) DO UPDATE SET
				hourly_count = EXCLUDED.hourly_count,
				peak_hours = EXCLUDED.peak_hours,
				frequency = EXCLUDED.frequency,
				confidence = EXCLUDED.confidence,
				occurrences = EXCLUDED.occurrences,
				updated_at = EXCLUDED.updated_at`,
			agg.Date, agg.EntityID, agg.Domain, hourly, peaks,
			agg.Frequency, agg.Confidence, agg.Occurrences, now.UTC())
		if err != nil {
			return classify(fmt.Errorf("upsert time-of-day aggregate %s/%s: %w",
				agg.Date.Format("2006-01-02"), agg.EntityID, err))
		}
	}
	return nil
}

// UpsertCoOccurrenceAggregates writes daily pair rollups.
func (s *Store) UpsertCoOccurrenceAggregates(ctx context.Context, aggregates []models.CoOccurrenceAggregate, now time.Time) error {
	for _, agg := range aggregates {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO cooccurrence_aggregates
				(date, combined_id, device1, device2, occurrences, confidence, support,
				 avg_delta_seconds, window_seconds, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
			ON CONFLICT (date, combined_id) DO UPDATE SET
				occurrences = EXCLUDED.occurrences,
				confidence = EXCLUDED.confidence,
				support = EXCLUDED.support,
				avg_delta_seconds = EXCLUDED.avg_delta_seconds,
				updated_at = EXCLUDED.updated_at`,
			agg.Date, agg.CombinedID, agg.Device1, agg.Device2, agg.Occurrences,
			agg.Confidence, agg.Support, agg.AvgDeltaSeconds, agg.WindowSeconds, now.UTC())
		if err != nil {
			return classify(fmt.Errorf("upsert co-occurrence aggregate %s/%s: %w",
				agg.Date.Format("2006-01-02"), agg.CombinedID, err))
		}
	}
	return nil
}

// AddUsage accumulates one run's token and cost totals into the day's row.
func (s *Store) AddUsage(ctx context.Context, day time.Time, inputTokens, outputTokens, calls, failures int64, estCostUSD float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO llm_usage (date, input_tokens, output_tokens, est_cost_usd, calls, failures)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (date) DO UPDATE SET
			input_tokens = llm_usage.input_tokens + EXCLUDED.input_tokens,
			output_tokens = llm_usage.output_tokens + EXCLUDED.output_tokens,
			est_cost_usd = llm_usage.est_cost_usd + EXCLUDED.est_cost_usd,
			calls = llm_usage.calls + EXCLUDED.calls,
			failures = llm_usage.failures + EXCLUDED.failures`,
		day.UTC().Truncate(24*time.Hour), inputTokens, outputTokens, estCostUSD, calls, failures)
	if err != nil {
		return classify(fmt.Errorf("add usage: %w", err))
	}
	return nil
}

// ListUsage returns per-day usage rollups, newest first.
func (s *Store) ListUsage(ctx context.Context, days int) ([]models.UsageRecord, error) {
	if days <= 0 {
		days = 30
	}
	var out []models.UsageRecord
	err := s.db.SelectContext(ctx, &out, `
		SELECT date, input_tokens, output_tokens, est_cost_usd, calls, failures
		FROM llm_usage ORDER BY date DESC LIMIT $1`, days)
	if err != nil {
		return nil, classify(fmt.Errorf("list usage: %w", err))
	}
	return out, nil
}
