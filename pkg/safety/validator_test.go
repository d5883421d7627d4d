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
	"context"
	"errors"

	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/ha-ai/insightd/pkg/config"
	"github.com/ha-ai/insightd/pkg/models"
)

type fakeEntityLister struct {
	ids []string
	err error
}

func (f *fakeEntityLister) ListEntityIDs(context.Context) ([]string, error) {
	return f.ids, f.err
}

type fakeAutomationLister struct {
	automations []models.Automation
	err         error
}

func (f *fakeAutomationLister) ListAutomations(context.Context) ([]models.Automation, error) {
	return f.automations, f.err
}

func specWith(trigger, action map[string]interface{}) *models.AutomationSpec {
	return &models.AutomationSpec{
		Alias:    "test automation",
		Triggers: []map[string]interface{}{trigger},
		Actions:  []map[string]interface{}{action},
	}
}

var _ = ginkgo.Describe("Validator", func() {
	var (
		entities    *fakeEntityLister
		automations *fakeAutomationLister
		v           *Validator
		ctx         context.Context
	)

	newValidator := func(level config.SafetyLevel) *Validator {
		val, err := NewValidator(entities, automations, level, zap.NewNop())
		Expect(err).ToNot(HaveOccurred())
		return val
	}

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		entities = &fakeEntityLister{ids: []string{
			"binary_sensor.hall_motion", "light.hall", "lock.front_door",
			"climate.living_room", "light.kitchen_ceiling",
		}}
		automations = &fakeAutomationLister{}
		v = newValidator(config.SafetyModerate)
	})

	ginkgo.Describe("parse check", func() {
		ginkgo.It("rejects a nil specification outright", func() {
			report := v.Validate(ctx, nil, nil)
			Expect(report.Safe).To(BeFalse())
			Expect(report.Critical).To(HaveLen(1))
			Expect(report.Critical[0].Category).To(Equal(CategoryParse))
			Expect(report.Coverage).To(BeNumerically("~", 1.0/6, 1e-9))
		})

		ginkgo.It("rejects a specification without actions", func() {
			spec := &models.AutomationSpec{
				Triggers: []map[string]interface{}{{"platform": "state"}},
			}
			report := v.Validate(ctx, spec, nil)
			Expect(report.Safe).To(BeFalse())
			Expect(report.Critical[0].Message).To(ContainSubstring("no actions"))
		})
	})

	ginkgo.Describe("dangerous actions", func() {
		ginkgo.It("flags lock.unlock as critical", func() {
			spec := specWith(
				map[string]interface{}{"platform": "state", "entity_id": "binary_sensor.hall_motion"},
				map[string]interface{}{"service": "lock.unlock", "entity_id": "lock.front_door"},
			)
			report := v.Validate(ctx, spec, nil)
			Expect(report.Safe).To(BeFalse())
			Expect(report.Critical).To(ContainElement(HaveField("Category", CategoryDangerous)))
		})

		ginkgo.It("flags alarm disarm as critical", func() {
			spec := specWith(
				map[string]interface{}{"platform": "state", "entity_id": "binary_sensor.hall_motion"},
				map[string]interface{}{"service": "alarm_control_panel.alarm_disarm"},
			)
			report := v.Validate(ctx, spec, nil)
			Expect(report.Critical).To(ContainElement(HaveField("Category", CategoryDangerous)))
		})
	})

	ginkgo.Describe("high-energy actions", func() {
		ginkgo.It("warns on climate targets under the moderate level", func() {
			spec := specWith(
				map[string]interface{}{"platform": "state", "entity_id": "binary_sensor.hall_motion"},
				map[string]interface{}{"service": "climate.set_temperature", "entity_id": "climate.living_room"},
			)
			report := v.Validate(ctx, spec, nil)
			Expect(report.Safe).To(BeTrue())
			Expect(report.Warnings).To(ContainElement(HaveField("Category", CategoryHighEnergy)))
		})

		ginkgo.It("escalates to critical under the strict level", func() {
			strict := newValidator(config.SafetyStrict)
			spec := specWith(
				map[string]interface{}{"platform": "state", "entity_id": "binary_sensor.hall_motion"},
				map[string]interface{}{"service": "climate.set_temperature", "entity_id": "climate.living_room"},
			)
			report := strict.Validate(ctx, spec, nil)
			Expect(report.Safe).To(BeFalse())
			Expect(report.Critical).To(ContainElement(HaveField("Category", CategoryHighEnergy)))
		})
	})

	ginkgo.Describe("time conflicts", func() {
		ginkgo.It("warns when a trigger implies permanent activation", func() {
			spec := specWith(
				map[string]interface{}{"platform": "time_pattern", "seconds": "every second"},
				map[string]interface{}{"service": "light.turn_on", "entity_id": "light.hall"},
			)
			report := v.Validate(ctx, spec, nil)
			Expect(report.Warnings).To(ContainElement(HaveField("Category", CategoryTimeConflict)))
		})

		ginkgo.It("downgrades to informational under the permissive level", func() {
			permissive := newValidator(config.SafetyPermissive)
			spec := specWith(
				map[string]interface{}{"platform": "time_pattern", "seconds": "every second"},
				map[string]interface{}{"service": "light.turn_on", "entity_id": "light.hall"},
			)
			report := permissive.Validate(ctx, spec, nil)
			Expect(report.Warnings).ToNot(ContainElement(HaveField("Category", CategoryTimeConflict)))
			Expect(report.Infos).To(ContainElement(HaveField("Category", CategoryTimeConflict)))
		})
	})

	ginkgo.Describe("entity availability", func() {
		ginkgo.It("warns on an unknown entity with fuzzy suggestions", func() {
			spec := specWith(
				map[string]interface{}{"platform": "state", "entity_id": "light.kitchen"},
				map[string]interface{}{"service": "light.turn_on", "entity_id": "light.hall"},
			)
			report := v.Validate(ctx, spec, nil)
			Expect(report.Warnings).To(HaveLen(1))
			issue := report.Warnings[0]
			Expect(issue.Entity).To(Equal("light.kitchen"))
			Expect(issue.Suggestions).To(ContainElement("light.kitchen_ceiling"))
		})

		ginkgo.It("escalates to critical when the entity was supposedly validated", func() {
			spec := specWith(
				map[string]interface{}{"platform": "state", "entity_id": "light.phantom"},
				map[string]interface{}{"service": "light.turn_on", "entity_id": "light.hall"},
			)
			report := v.Validate(ctx, spec, []string{"light.phantom"})
			Expect(report.Safe).To(BeFalse())
			Expect(report.Critical).To(ContainElement(HaveField("Entity", "light.phantom")))
		})

		ginkgo.It("lowers coverage instead of failing when the lister is down", func() {
			entities.err = errors.New("orchestrator unreachable")
			spec := specWith(
				map[string]interface{}{"platform": "state", "entity_id": "light.phantom"},
				map[string]interface{}{"service": "light.turn_on", "entity_id": "light.hall"},
			)
			report := v.Validate(ctx, spec, nil)
			Expect(report.Safe).To(BeTrue())
			Expect(report.Coverage).To(BeNumerically("~", 5.0/6, 1e-9))
		})
	})

	ginkgo.Describe("conflicts with existing automations", func() {
		ginkgo.It("warns when an automation already connects the same pair", func() {
			automations.automations = []models.Automation{{
				ID:              "auto-1",
				Alias:           "hall motion light",
				TriggerEntities: []string{"binary_sensor.hall_motion"},
				ActionEntities:  []string{"light.hall"},
				Enabled:         true,
			}}
			spec := specWith(
				map[string]interface{}{"platform": "state", "entity_id": "binary_sensor.hall_motion"},
				map[string]interface{}{"service": "light.turn_on", "entity_id": "light.hall"},
			)
			report := v.Validate(ctx, spec, nil)
			Expect(report.Warnings).To(ContainElement(HaveField("Category", CategoryConflict)))
		})
	})

	ginkgo.Describe("a clean specification", func() {
		ginkgo.It("passes with full coverage", func() {
			spec := specWith(
				map[string]interface{}{"platform": "state", "entity_id": "binary_sensor.hall_motion"},
				map[string]interface{}{"service": "light.turn_on", "entity_id": "light.hall"},
			)
			report := v.Validate(ctx, spec, nil)
			Expect(report.Safe).To(BeTrue())
			Expect(report.Critical).To(BeEmpty())
			Expect(report.Warnings).To(BeEmpty())
			Expect(report.Coverage).To(Equal(1.0))
			Expect(report.Score()).To(Equal(100))
		})
	})
})

var _ = ginkgo.Describe("Report", func() {
	ginkgo.It("scores criticals far heavier than warnings and infos", func() {
		r := &Report{
			Critical: []Issue{{}},
			Warnings: []Issue{{}, {}},
			Infos:    []Issue{{}},
		}
		Expect(r.Score()).To(Equal(100 - 50 - 20 - 2))
	})

	ginkgo.It("floors the score at zero", func() {
		r := &Report{Critical: []Issue{{}, {}, {}}}
		Expect(r.Score()).To(Equal(0))
	})
})
