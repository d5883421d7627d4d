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
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ha-ai/insightd/pkg/models"
)

func eventAt(entityID string, t time.Time) models.Event {
	return models.Event{
		Timestamp: t,
		EntityID:  entityID,
		Domain:    "light",
		State:     "on",
	}
}

var _ = Describe("TimeOfDayDetector", func() {
	var (
		d   *TimeOfDayDetector
		now time.Time
	)

	BeforeEach(func() {
		d = NewTimeOfDayDetector(DefaultParams())
		now = time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	})

	Context("with an entity toggled around the same time every morning", func() {
		var events []models.Event

		BeforeEach(func() {
			events = nil
			// Seven days of "light on" within a few minutes of 07:05.
			base := time.Date(2026, 8, 10, 7, 5, 0, 0, time.UTC)
			offsets := []time.Duration{0, 2 * time.Minute, -3 * time.Minute, time.Minute, 0, -time.Minute, 2 * time.Minute}
			for day, off := range offsets {
				events = append(events, eventAt("light.kitchen", base.AddDate(0, 0, day).Add(off)))
			}
		})

		It("detects a single pattern near 07:05", func() {
			result, err := d.Detect(events, now)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Patterns).To(HaveLen(1))

			p := result.Patterns[0]
			Expect(p.Type).To(Equal(models.PatternTimeOfDay))
			Expect(p.TimeOfDay.EntityID).To(Equal("light.kitchen"))
			Expect(p.TimeOfDay.Hour).To(Equal(7))
			Expect(p.TimeOfDay.Minute).To(BeNumerically("~", 5, 2))
			Expect(p.Confidence).To(Equal(1.0))
			Expect(p.Occurrences).To(Equal(7))
			Expect(p.TimeOfDay.TotalEvents).To(Equal(7))
			Expect(p.Validate()).To(Succeed())
		})

		It("is deterministic across runs", func() {
			first, err := d.Detect(events, now)
			Expect(err).ToNot(HaveOccurred())
			second, err := d.Detect(events, now)
			Expect(err).ToNot(HaveOccurred())
			Expect(second.Patterns).To(Equal(first.Patterns))
			Expect(second.Aggregates).To(Equal(first.Aggregates))
		})

		It("emits one aggregate row per day with the peak hour", func() {
			result, err := d.Detect(events, now)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Aggregates).To(HaveLen(7))

			agg := result.Aggregates[0]
			Expect(agg.EntityID).To(Equal("light.kitchen"))
			Expect(agg.Domain).To(Equal("light"))
			Expect(agg.Occurrences).To(Equal(1))
			Expect(agg.PeakHours).To(ConsistOf(7))
		})
	})

	Context("with too few events per entity", func() {
		It("emits no patterns", func() {
			events := []models.Event{
				eventAt("light.hall", now.Add(-time.Hour)),
				eventAt("light.hall", now.Add(-2*time.Hour)),
			}
			result, err := d.Detect(events, now)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Patterns).To(BeEmpty())
		})
	})

	Context("with two distinct daily habits for one entity", func() {
		It("finds both clusters under a relaxed confidence gate", func() {
			// Each habit owns half the events, so per-cluster confidence is
			// 0.5 and the default 0.7 gate would drop both.
			relaxed := NewTimeOfDayDetector(Params{MinConfidence: 0.4})

			var events []models.Event
			for day := 0; day < 12; day++ {
				d0 := time.Date(2026, 8, 1+day, 7, 0, 0, 0, time.UTC)
				d1 := time.Date(2026, 8, 1+day, 22, 30, 0, 0, time.UTC)
				events = append(events, eventAt("switch.coffee", d0), eventAt("switch.coffee", d1))
			}
			result, err := relaxed.Detect(events, now)
			Expect(err).ToNot(HaveOccurred())

			hours := map[int]bool{}
			for _, p := range result.Patterns {
				hours[p.TimeOfDay.Hour] = true
				Expect(p.Validate()).To(Succeed())
			}
			Expect(hours).To(HaveKey(7))
			Expect(hours).To(HaveKey(22))
		})
	})

	Context("pattern identifiers", func() {
		It("encodes entity and clock time", func() {
			var events []models.Event
			base := time.Date(2026, 8, 10, 18, 30, 0, 0, time.UTC)
			for day := 0; day < 6; day++ {
				events = append(events, eventAt("lock.front", base.AddDate(0, 0, day)))
			}
			result, err := d.Detect(events, now)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Patterns).To(HaveLen(1))
			Expect(result.Patterns[0].PatternID).To(Equal(fmt.Sprintf("timeofday-%s-1830", "lock.front")))
		})
	})
})

var _ = Describe("splitDecimalHour", func() {
	It("carries a rounded-up minute into the next hour", func() {
		h, m := splitDecimalHour(7.9999)
		Expect(h).To(Equal(8))
		Expect(m).To(Equal(0))
	})

	It("wraps midnight", func() {
		h, m := splitDecimalHour(23.9999)
		Expect(h).To(Equal(0))
		Expect(m).To(Equal(0))
	})

	It("splits a plain decimal hour", func() {
		h, m := splitDecimalHour(7.25)
		Expect(h).To(Equal(7))
		Expect(m).To(Equal(15))
	})
})
