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
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ha-ai/insightd/pkg/models"
)

var _ = Describe("Sample", func() {
	It("passes small inputs through untouched", func() {
		events := make([]models.Event, 100)
		Expect(Sample(events)).To(HaveLen(100))
	})

	Context("above the threshold", func() {
		var events []models.Event

		BeforeEach(func() {
			// 60k events spread over 30 days, newest last.
			events = make([]models.Event, 0, 60_000)
			start := time.Date(2026, 7, 27, 0, 0, 0, 0, time.UTC)
			step := 30 * 24 * time.Hour / 60_000
			for i := 0; i < 60_000; i++ {
				events = append(events, models.Event{
					Timestamp: start.Add(time.Duration(i) * step),
					EntityID:  "sensor.any",
				})
			}
		})

		It("keeps the recent window verbatim and samples the rest", func() {
			sampled := Sample(events)
			Expect(len(sampled)).To(BeNumerically("<", len(events)))

			newest := events[len(events)-1].Timestamp
			cutoff := newest.Add(-RecentVerbatim)
			recent := 0
			for _, e := range events {
				if e.Timestamp.After(cutoff) {
					recent++
				}
			}
			Expect(sampled).To(HaveLen(SampleTarget + recent))
		})

		It("preserves ascending order", func() {
			sampled := Sample(events)
			for i := 1; i < len(sampled); i++ {
				Expect(sampled[i].Timestamp.Before(sampled[i-1].Timestamp)).To(BeFalse())
			}
		})

		It("reduces identically on every run", func() {
			first := Sample(events)
			second := Sample(events)
			Expect(second).To(Equal(first))
		})
	})
})
