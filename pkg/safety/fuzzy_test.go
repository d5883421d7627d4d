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

package safety

import (
	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = ginkgo.Describe("FuzzyMatches", func() {
	known := []string{
		"light.kitchen_ceiling",
		"light.kitchen_counter",
		"light.hall",
		"switch.kitchen_kettle",
		"sensor.kitchen_temperature",
	}

	ginkgo.It("ranks same-domain candidates before cross-domain ones", func() {
		matches := FuzzyMatches("light.kitchen", known, 5)
		Expect(matches[0]).To(HavePrefix("light."))
		Expect(matches).To(ContainElement("switch.kitchen_kettle"))
		Expect(matches).ToNot(ContainElement("light.hall"))
	})

	ginkgo.It("falls back to word permutations of a multi-word name", func() {
		matches := FuzzyMatches("light.kitchen_ceiling_main", known, 5)
		// "kitchen_ceiling" survives the drop-last-word permutation.
		Expect(matches).To(ContainElement("light.kitchen_ceiling"))
	})

	ginkgo.It("never proposes the missing entity itself", func() {
		matches := FuzzyMatches("light.kitchen_ceiling", append(known, "light.kitchen_ceiling"), 5)
		Expect(matches).ToNot(ContainElement("light.kitchen_ceiling"))
	})

	ginkgo.It("honours the limit", func() {
		matches := FuzzyMatches("light.kitchen", known, 2)
		Expect(matches).To(HaveLen(2))
	})

	ginkgo.It("returns nothing when nothing relates", func() {
		Expect(FuzzyMatches("cover.garage", known, 5)).To(BeEmpty())
	})
})
