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

package detector

import (
	"fmt"
	"sort"
	"time"

	"github.com/ha-ai/insightd/pkg/models"
)

// CoOccurrenceResult carries detected pair patterns and per-day aggregates.
type CoOccurrenceResult struct {
	Patterns   []models.Pattern
	Aggregates []models.CoOccurrenceAggregate
}

// CoOccurrenceDetector mines entity pairs that fire within a short window of
// each other. The scan is a forward-window two-pointer pass over the
// timestamp-sorted slice, so it stays linear in practice.
type CoOccurrenceDetector struct {
	params Params
}

// NewCoOccurrenceDetector builds the detector.
func NewCoOccurrenceDetector(params Params) *CoOccurrenceDetector {
	return &CoOccurrenceDetector{params: params.withDefaults()}
}

type pairKey struct {
	a, b string // a < b lexicographically
}

func makePair(x, y string) pairKey {
	if x < y {
		return pairKey{a: x, b: y}
	}
	return pairKey{a: y, b: x}
}

type pairStats struct {
	count    int
	deltaSum float64 // seconds
}

// Detect scans sampled events for co-occurring entity pairs. Events must be
// sorted by ascending timestamp.
func (d *CoOccurrenceDetector) Detect(events []models.Event, now time.Time) (*CoOccurrenceResult, error) {
	events = Sample(events)

	entityCount := make(map[string]int)
	for _, e := range events {
		entityCount[e.EntityID]++
	}

	pairs := d.scan(events)

	keys := make([]pairKey, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].a != keys[j].a {
			return keys[i].a < keys[j].a
		}
		return keys[i].b < keys[j].b
	})

	total := len(events)
	result := &CoOccurrenceResult{}
	for _, k := range keys {
		stats := pairs[k]
		if stats.count < d.params.MinSupport {
			continue
		}

		minCount := entityCount[k.a]
		if c := entityCount[k.b]; c < minCount {
			minCount = c
		}
		confidence := 1.0
		if minCount > 0 {
			confidence = float64(stats.count) / float64(minCount)
			if confidence > 1.0 {
				confidence = 1.0
			}
		}
		if confidence < d.params.MinConfidence {
			continue
		}

		result.Patterns = append(result.Patterns, models.Pattern{
			PatternID:   fmt.Sprintf("cooccur-%s+%s", k.a, k.b),
			Type:        models.PatternCoOccurrence,
			Confidence:  confidence,
			Occurrences: stats.count,
			CreatedAt:   now.UTC(),
			CoOccurrence: &models.CoOccurrencePayload{
				EntityA:         k.a,
				EntityB:         k.b,
				WindowSeconds:   int(d.params.Window.Seconds()),
				Support:         float64(stats.count) / float64(total),
				AvgDeltaSeconds: stats.deltaSum / float64(stats.count),
			},
		})
	}

	result.Aggregates = d.aggregate(events)
	return result, nil
}

// scan counts pair witnesses: for each event, every later event of a
// distinct entity within (t, t+W] increments the unordered pair once.
func (d *CoOccurrenceDetector) scan(events []models.Event) map[pairKey]*pairStats {
	pairs := make(map[pairKey]*pairStats)
	for i, ea := range events {
		deadline := ea.Timestamp.Add(d.params.Window)
		for j := i + 1; j < len(events); j++ {
			eb := events[j]
			if eb.Timestamp.After(deadline) {
				break
			}
			if eb.EntityID == ea.EntityID || !eb.Timestamp.After(ea.Timestamp) {
				continue
			}
			k := makePair(ea.EntityID, eb.EntityID)
			stats, ok := pairs[k]
			if !ok {
				stats = &pairStats{}
				pairs[k] = stats
			}
			stats.count++
			stats.deltaSum += eb.Timestamp.Sub(ea.Timestamp).Seconds()
		}
	}
	return pairs
}

// aggregate rolls scanned events into per-day pair summaries relative to
// that day's event volume.
func (d *CoOccurrenceDetector) aggregate(events []models.Event) []models.CoOccurrenceAggregate {
	type dayKey struct {
		date string
		pair pairKey
	}

	dayTotals := make(map[string]int)
	for _, e := range events {
		dayTotals[e.Timestamp.UTC().Format("2006-01-02")]++
	}

	buckets := make(map[dayKey]*pairStats)
	for i, ea := range events {
		deadline := ea.Timestamp.Add(d.params.Window)
		date := ea.Timestamp.UTC().Format("2006-01-02")
		for j := i + 1; j < len(events); j++ {
			eb := events[j]
			if eb.Timestamp.After(deadline) {
				break
			}
			if eb.EntityID == ea.EntityID || !eb.Timestamp.After(ea.Timestamp) {
				continue
			}
			k := dayKey{date: date, pair: makePair(ea.EntityID, eb.EntityID)}
			stats, ok := buckets[k]
			if !ok {
				stats = &pairStats{}
				buckets[k] = stats
			}
			stats.count++
			stats.deltaSum += eb.Timestamp.Sub(ea.Timestamp).Seconds()
		}
	}

	keys := make([]dayKey, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].date != keys[j].date {
			return keys[i].date < keys[j].date
		}
		if keys[i].pair.a != keys[j].pair.a {
			return keys[i].pair.a < keys[j].pair.a
		}
		return keys[i].pair.b < keys[j].pair.b
	})

	out := make([]models.CoOccurrenceAggregate, 0, len(keys))
	for _, k := range keys {
		stats := buckets[k]
		date, _ := time.Parse("2006-01-02", k.date)
		total := dayTotals[k.date]
		support := 0.0
		if total > 0 {
			support = float64(stats.count) / float64(total)
		}
		confidence := support
		if confidence > 1 {
			confidence = 1
		}
		out = append(out, models.CoOccurrenceAggregate{
			Date:            date,
			CombinedID:      k.pair.a + "+" + k.pair.b,
			Device1:         k.pair.a,
			Device2:         k.pair.b,
			Occurrences:     stats.count,
			Confidence:      confidence,
			Support:         support,
			AvgDeltaSeconds: stats.deltaSum / float64(stats.count),
			WindowSeconds:   int(d.params.Window.Seconds()),
		})
	}
	return out
}
