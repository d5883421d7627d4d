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
	"math"
	"sort"

	"time"

	"github.com/ha-ai/insightd/pkg/models"
)

// TimeOfDayResult carries the detected patterns plus the per-day aggregates
// the run emits for incremental reuse.
type TimeOfDayResult struct {
	Patterns   []models.Pattern
	Aggregates []models.TimeOfDayAggregate
	// FailedEntities counts entities whose detection failed and was skipped.
	FailedEntities int
}

// TimeOfDayDetector clusters each entity's event timestamps into recurring
// times of day. It is a pure function of (events, params).
type TimeOfDayDetector struct {
	params Params
}

// NewTimeOfDayDetector builds the detector with the given parameters.
func NewTimeOfDayDetector(params Params) *TimeOfDayDetector {
	return &TimeOfDayDetector{params: params.withDefaults()}
}

// Detect runs the clustering over sampled events. now stamps CreatedAt on
// emitted patterns; it does not influence detection.
func (d *TimeOfDayDetector) Detect(events []models.Event, now time.Time) (*TimeOfDayResult, error) {
	events = Sample(events)

	byEntity := make(map[string][]models.Event)
	for _, e := range events {
		byEntity[e.EntityID] = append(byEntity[e.EntityID], e)
	}

	// Deterministic entity iteration order.
	entities := make([]string, 0, len(byEntity))
	for id := range byEntity {
		entities = append(entities, id)
	}
	sort.Strings(entities)

	result := &TimeOfDayResult{}
	for _, entityID := range entities {
		entityEvents := byEntity[entityID]
		if len(entityEvents) < d.params.MinOccurrences {
			continue
		}
		patterns := d.detectEntity(entityID, entityEvents, now)
		result.Patterns = append(result.Patterns, patterns...)
	}

	result.Aggregates = d.aggregate(events)
	return result, nil
}

func (d *TimeOfDayDetector) detectEntity(entityID string, events []models.Event, now time.Time) []models.Pattern {
	hours := make([]float64, len(events))
	for i, e := range events {
		t := e.Timestamp.UTC()
		hours[i] = float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
	}

	k := 3
	switch {
	case len(hours) <= 10:
		k = 1
	case len(hours) <= 20:
		k = 2
	}

	clusters := kmeans1D(hours, k)

	total := len(events)
	var patterns []models.Pattern
	for _, c := range clusters {
		size := len(c.members)
		confidence := float64(size) / float64(total)
		if size < d.params.MinOccurrences || confidence < d.params.MinConfidence {
			continue
		}

		hour, minute := splitDecimalHour(c.center)
		patterns = append(patterns, models.Pattern{
			PatternID:   fmt.Sprintf("timeofday-%s-%02d%02d", entityID, hour, minute),
			Type:        models.PatternTimeOfDay,
			Confidence:  confidence,
			Occurrences: size,
			CreatedAt:   now.UTC(),
			TimeOfDay: &models.TimeOfDayPayload{
				EntityID:    entityID,
				Hour:        hour,
				Minute:      minute,
				StdMinutes:  stdevMinutes(c.members, c.center),
				TotalEvents: total,
			},
		})
	}
	return patterns
}

// splitDecimalHour converts a decimal hour to (hour, minute), carrying a
// rounded-up minute into the next hour and wrapping midnight.
func splitDecimalHour(h float64) (int, int) {
	hour := int(h)
	minute := int(math.Round((h - float64(hour)) * 60))
	if minute == 60 {
		hour, minute = hour+1, 0
	}
	if hour >= 24 {
		hour -= 24
	}
	return hour, minute
}

func stdevMinutes(members []float64, center float64) float64 {
	if len(members) < 2 {
		return 0
	}
	var sum float64
	for _, m := range members {
		d := (m - center) * 60
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(members)-1))
}

type cluster struct {
	center  float64
	members []float64
}

// kmeans1D partitions values into k clusters over the decimal-hour line.
// Centres are initialised from evenly spaced quantiles of the sorted input,
// which makes the whole procedure deterministic without an RNG. Ties on
// assignment go to the cluster with the closer centre, then to the lower
// cluster index.
func kmeans1D(values []float64, k int) []cluster {
	if k <= 1 || len(values) <= k {
		return []cluster{singleCluster(values)}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	centers := make([]float64, k)
	for i := 0; i < k; i++ {
		idx := (len(sorted) - 1) * (2*i + 1) / (2 * k)
		centers[i] = sorted[idx]
	}

	assign := make([]int, len(values))
	for iter := 0; iter < 50; iter++ {
		changed := false
		for i, v := range values {
			best, bestDist := 0, math.Abs(v-centers[0])
			for c := 1; c < k; c++ {
				if d := math.Abs(v - centers[c]); d < bestDist {
					best, bestDist = c, d
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}

		sums := make([]float64, k)
		counts := make([]int, k)
		for i, v := range values {
			sums[assign[i]] += v
			counts[assign[i]]++
		}
		for c := 0; c < k; c++ {
			if counts[c] > 0 {
				centers[c] = sums[c] / float64(counts[c])
			}
		}
		if !changed {
			break
		}
	}

	clusters := make([]cluster, k)
	for c := 0; c < k; c++ {
		clusters[c].center = centers[c]
	}
	for i, v := range values {
		clusters[assign[i]].members = append(clusters[assign[i]].members, v)
	}

	// Drop empty clusters.
	out := clusters[:0]
	for _, c := range clusters {
		if len(c.members) > 0 {
			out = append(out, c)
		}
	}
	return out
}

func singleCluster(values []float64) cluster {
	var sum float64
	for _, v := range values {
		sum += v
	}
	center := 0.0
	if len(values) > 0 {
		center = sum / float64(len(values))
	}
	return cluster{center: center, members: append([]float64(nil), values...)}
}

// aggregate rolls the scanned events into per-day, per-entity hourly
// summaries.
func (d *TimeOfDayDetector) aggregate(events []models.Event) []models.TimeOfDayAggregate {
	type key struct {
		date     string
		entityID string
	}
	buckets := make(map[key]*models.TimeOfDayAggregate)

	for _, e := range events {
		t := e.Timestamp.UTC()
		k := key{date: t.Format("2006-01-02"), entityID: e.EntityID}
		agg, ok := buckets[k]
		if !ok {
			agg = &models.TimeOfDayAggregate{
				Date:     t.Truncate(24 * time.Hour),
				EntityID: e.EntityID,
				Domain:   e.EntityDomain(),
			}
			buckets[k] = agg
		}
		agg.HourlyCount[t.Hour()]++
		agg.Occurrences++
	}

	keys := make([]key, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].date != keys[j].date {
			return keys[i].date < keys[j].date
		}
		return keys[i].entityID < keys[j].entityID
	})

	out := make([]models.TimeOfDayAggregate, 0, len(keys))
	for _, k := range keys {
		agg := buckets[k]
		maxCount := 0
		for _, c := range agg.HourlyCount {
			if c > maxCount {
				maxCount = c
			}
		}
		for hour, c := range agg.HourlyCount {
			if c == maxCount && maxCount > 0 {
				agg.PeakHours = append(agg.PeakHours, hour)
			}
		}
		agg.Frequency = float64(agg.Occurrences) / 24
		if agg.Occurrences > 0 {
			agg.Confidence = float64(maxCount) / float64(agg.Occurrences)
		}
		out = append(out, *agg)
	}
	return out
}
