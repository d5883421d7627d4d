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

var _ = Describe("CoOccurrenceDetector", func() {
	var (
		d   *CoOccurrenceDetector
		now time.Time
	)

	BeforeEach(func() {
		d = NewCoOccurrenceDetector(DefaultParams())
		now = time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	})

	Context("with a motion sensor that usually precedes a light", func() {
		var events []models.Event

		BeforeEach(func() {
			events = nil
			// Ten motion triggers across ten days; the light follows 30s
			// later on eight of them.
			base := time.Date(2026, 8, 10, 19, 0, 0, 0, time.UTC)
			for day := 0; day < 10; day++ {
				motion := base.AddDate(0, 0, day)
				events = append(events, eventAt("binary_sensor.hall_motion", motion))
				if day < 8 {
					events = append(events, eventAt("light.hall", motion.Add(30*time.Second)))
				} else {
					// Light still fires, but hours away.
					events = append(events, eventAt("light.hall", motion.Add(3*time.Hour)))
				}
			}
		})

		It("reports the sorted pair with confidence over the rarer entity", func() {
			result, err := d.Detect(events, now)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Patterns).To(HaveLen(1))

			p := result.Patterns[0]
			Expect(p.Type).To(Equal(models.PatternCoOccurrence))
			Expect(p.CoOccurrence.EntityA).To(Equal("binary_sensor.hall_motion"))
			Expect(p.CoOccurrence.EntityB).To(Equal("light.hall"))
			Expect(p.CoOccurrence.EntityA < p.CoOccurrence.EntityB).To(BeTrue())

			// 8 witnessed pairs over min(10, 10) = 10 firings.
			Expect(p.Occurrences).To(Equal(8))
			Expect(p.Confidence).To(BeNumerically("~", 0.8, 1e-9))
			Expect(p.CoOccurrence.AvgDeltaSeconds).To(BeNumerically("~", 30, 1e-9))
			Expect(p.CoOccurrence.Support).To(BeNumerically("~", 8.0/20.0, 1e-9))
			Expect(p.Validate()).To(Succeed())
		})

		It("emits per-day aggregates with day-relative support", func() {
			result, err := d.Detect(events, now)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Aggregates).To(HaveLen(8))

			agg := result.Aggregates[0]
			Expect(agg.CombinedID).To(Equal("binary_sensor.hall_motion+light.hall"))
			Expect(agg.Occurrences).To(Equal(1))
			Expect(agg.Support).To(BeNumerically("~", 0.5, 1e-9)) // 1 pair / 2 events that day
		})
	})

	Context("with pairs below the occurrence floor", func() {
		It("stays silent", func() {
			base := time.Date(2026, 8, 10, 19, 0, 0, 0, time.UTC)
			var events []models.Event
			for day := 0; day < 3; day++ {
				t := base.AddDate(0, 0, day)
				events = append(events, eventAt("switch.fan", t), eventAt("light.bed", t.Add(10*time.Second)))
			}
			result, err := d.Detect(events, now)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Patterns).To(BeEmpty())
		})
	})

	Context("window edges", func() {
		It("counts an event exactly at the window boundary and ignores later ones", func() {
			relaxed := NewCoOccurrenceDetector(Params{MinSupport: 1, MinConfidence: 0.1})
			t0 := time.Date(2026, 8, 10, 19, 0, 0, 0, time.UTC)
			events := []models.Event{
				eventAt("a.one", t0),
				eventAt("b.two", t0.Add(5 * time.Minute)),  // exactly W
				eventAt("c.three", t0.Add(6 * time.Minute)), // past W from a.one
			}
			result, err := relaxed.Detect(events, now)
			Expect(err).ToNot(HaveOccurred())

			ids := make([]string, 0, len(result.Patterns))
			for _, p := range result.Patterns {
				ids = append(ids, p.PatternID)
			}
			Expect(ids).To(ContainElement("cooccur-a.one+b.two"))
			Expect(ids).ToNot(ContainElement("cooccur-a.one+c.three"))
		})

		It("never pairs simultaneous events of the same entity", func() {
			relaxed := NewCoOccurrenceDetector(Params{MinSupport: 1, MinConfidence: 0.1})
			t0 := time.Date(2026, 8, 10, 19, 0, 0, 0, time.UTC)
			events := []models.Event{
				eventAt("a.one", t0),
				eventAt("b.two", t0), // same instant as a.one
				eventAt("a.one", t0.Add(time.Second)),
			}
			result, err := relaxed.Detect(events, now)
			Expect(err).ToNot(HaveOccurred())
			for _, p := range result.Patterns {
				Expect(p.CoOccurrence.EntityA).ToNot(Equal(p.CoOccurrence.EntityB))
			}
		})
	})
})
