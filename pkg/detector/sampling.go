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
	"math/rand"
	"sort"

	"github.com/ha-ai/insightd/pkg/models"
)

// Sample reduces a large event slice before scanning. Events within the
// recent verbatim window (relative to the newest event) are always kept;
// older events are uniformly sampled down to SampleTarget using the fixed
// seed so identical inputs always reduce identically.
//
// Events below the threshold pass through untouched. Input must be sorted
// by ascending timestamp; output preserves that order.
func Sample(events []models.Event) []models.Event {
	if len(events) <= SampleThreshold {
		return events
	}

	newest := events[len(events)-1].Timestamp
	cutoff := newest.Add(-RecentVerbatim)

	// First index inside the verbatim window.
	split := sort.Search(len(events), func(i int) bool {
		return events[i].Timestamp.After(cutoff)
	})
	older, recent := events[:split], events[split:]
	if len(older) <= SampleTarget {
		return events
	}

	rng := rand.New(rand.NewSource(SampleSeed))
	picked := rng.Perm(len(older))[:SampleTarget]
	sort.Ints(picked)

	sampled := make([]models.Event, 0, SampleTarget+len(recent))
	for _, idx := range picked {
		sampled = append(sampled, older[idx])
	}
	return append(sampled, recent...)
}
