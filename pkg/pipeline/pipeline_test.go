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

package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/ha-ai/insightd/pkg/analyzer"
	"github.com/ha-ai/insightd/pkg/capability"
	"github.com/ha-ai/insightd/pkg/detector"
	"github.com/ha-ai/insightd/pkg/httpx"
	"github.com/ha-ai/insightd/pkg/llm"
	"github.com/ha-ai/insightd/pkg/metrics"
	"github.com/ha-ai/insightd/pkg/models"
	"github.com/ha-ai/insightd/pkg/notify"
	"github.com/ha-ai/insightd/pkg/store"
	"github.com/ha-ai/insightd/pkg/suggest"
	"github.com/ha-ai/insightd/pkg/synergy"
)

type fakeEvents struct {
	events  []models.Event
	err     error
	blockOn chan struct{} // when non-nil, FetchEvents waits for close or ctx
}

func (f *fakeEvents) FetchEvents(ctx context.Context, _, _ time.Time, _ models.EventFilter, _ int) ([]models.Event, error) {
	if f.blockOn != nil {
		select {
		case <-f.blockOn:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.events, f.err
}

func (f *fakeEvents) Health(context.Context) httpx.HealthState { return httpx.HealthOK }

type fakeRegistry struct {
	devices []models.DeviceRecord
	areas   []models.Area
	blockOn chan struct{}
}

func (f *fakeRegistry) ListDevices(ctx context.Context) ([]models.DeviceRecord, error) {
	if f.blockOn != nil {
		select {
		case <-f.blockOn:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.devices, nil
}

func (f *fakeRegistry) GetDevice(_ context.Context, id string) (*models.DeviceRecord, error) {
	for _, d := range f.devices {
		if d.DeviceID == id {
			return &d, nil
		}
	}
	return nil, httpx.ErrStoreUnavailable
}

func (f *fakeRegistry) ListAreas(context.Context) ([]models.Area, error) { return f.areas, nil }

func (f *fakeRegistry) Health(context.Context) httpx.HealthState { return httpx.HealthOK }

type emptyCapRepo struct{}

func (emptyCapRepo) GetCapability(context.Context, string) (*models.CapabilityRecord, error) {
	return nil, capability.ErrNotFound
}
func (emptyCapRepo) UpsertCapability(context.Context, *models.CapabilityRecord) error { return nil }
func (emptyCapRepo) ListCapabilities(context.Context) ([]models.CapabilityRecord, error) {
	return nil, nil
}

type cannedProvider struct{ content string }

func (p cannedProvider) Complete(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return &llm.CompletionResponse{Content: p.content, InputTokens: 10, OutputTokens: 20}, nil
}

const cannedReply = `{"title":"Morning kitchen light","description":"Automate it.","rationale":"Daily habit.","category":"convenience","priority":"medium"}`

// busSink records published notifications for assertions.
type busSink struct {
	mu        sync.Mutex
	completes []notify.AnalysisComplete
}

func (s *busSink) PublishAnalysisComplete(_ context.Context, msg notify.AnalysisComplete) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completes = append(s.completes, msg)
	return nil
}

func (s *busSink) PublishNewSuggestions(context.Context, notify.NewSuggestions) error { return nil }

func (s *busSink) Close() {}

func (s *busSink) lastComplete() notify.AnalysisComplete {
	s.mu.Lock()
	defer s.mu.Unlock()
	Expect(s.completes).ToNot(BeEmpty())
	return s.completes[len(s.completes)-1]
}

// fixture bundles one orchestrator wiring and its collaborator fakes.
type fixture struct {
	orch     *Orchestrator
	events   *fakeEvents
	registry *fakeRegistry
	bus      *busSink
	mock     sqlmock.Sqlmock
}

func newFixture(timeout time.Duration) *fixture {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	Expect(err).ToNot(HaveOccurred())
	mock.MatchExpectationsInOrder(false)
	DeferCleanup(func() { db.Close() })

	logger := zap.NewNop()
	st := store.NewWithDB(sqlx.NewDb(db, "sqlmock"), logger)
	caps, err := capability.NewCachedStore(emptyCapRepo{}, nil, logger)
	Expect(err).ToNot(HaveOccurred())
	gen, err := suggest.NewGenerator(cannedProvider{content: cannedReply}, llm.NewPromptBuilder(), caps, 2, logger)
	Expect(err).ToNot(HaveOccurred())

	f := &fixture{
		events:   &fakeEvents{},
		registry: &fakeRegistry{},
		bus:      &busSink{},
		mock:     mock,
	}
	orch, err := New(Deps{
		Events:       f.events,
		Registry:     f.registry,
		Parser:       capability.NewParser(logger),
		Capabilities: caps,
		Analyzer:     analyzer.NewFeatureAnalyzer(caps, logger),
		Synergies:    synergy.NewDetector(logger),
		Generator:    gen,
		Store:        st,
		Usage:        llm.NewUsageTracker(0.15, 0.60),
		Notifier:     notify.NewNotifier(logger, f.bus),
		Metrics:      metrics.New(),
		Logger:       logger,
	}, Options{WindowDays: 30, Timeout: timeout, DetectorParams: detector.DefaultParams()})
	Expect(err).ToNot(HaveOccurred())
	f.orch = orch
	return f
}

func habitEvents(n int) []models.Event {
	events := make([]models.Event, 0, n)
	base := time.Date(2026, 8, 15, 7, 5, 0, 0, time.UTC)
	for day := 0; day < n; day++ {
		events = append(events, models.Event{
			Timestamp: base.AddDate(0, 0, day),
			EntityID:  "light.kitchen",
			Domain:    "light",
			State:     "on",
		})
	}
	return events
}

var _ = Describe("Orchestrator", func() {
	It("reports no_data when the window holds no events", func() {
		f := newFixture(time.Minute)

		rec, err := f.orch.Run(context.Background(), 0)
		Expect(err).ToNot(HaveOccurred())
		Expect(rec.Outcome).To(Equal(OutcomeNoData))
		Expect(rec.EventsAnalyzed).To(BeZero())

		// The run still closed with a notify phase.
		phases := make([]Phase, 0, len(rec.Phases))
		for _, p := range rec.Phases {
			phases = append(phases, p.Phase)
		}
		Expect(phases).To(ContainElements(PhaseCapabilityRefresh, PhaseEventFetch, PhaseNotify))

		// Bus consumers see the run as unsuccessful with a publish time.
		published := f.bus.lastComplete()
		Expect(published.Success).To(BeFalse())
		Expect(published.Outcome).To(Equal(string(OutcomeNoData)))
		Expect(published.Timestamp.IsZero()).To(BeFalse())
	})

	It("fails the run when the event fetch fails", func() {
		f := newFixture(time.Minute)
		f.events.err = errors.New("event store down")

		rec, err := f.orch.Run(context.Background(), 0)
		Expect(err).ToNot(HaveOccurred())
		Expect(rec.Outcome).To(Equal(OutcomeFailed))
		Expect(rec.Error).To(ContainSubstring("event fetch"))
	})

	It("completes a run end to end with counters filled", func() {
		f := newFixture(time.Minute)
		f.events.events = habitEvents(5)

		f.mock.ExpectExec(`INSERT INTO patterns`).WillReturnResult(sqlmock.NewResult(0, 1))
		for i := 0; i < 5; i++ {
			f.mock.ExpectExec(`INSERT INTO timeofday_aggregates`).WillReturnResult(sqlmock.NewResult(0, 1))
		}
		f.mock.ExpectExec(`INSERT INTO suggestions`).WillReturnResult(sqlmock.NewResult(0, 1))

		rec, err := f.orch.Run(context.Background(), 0)
		Expect(err).ToNot(HaveOccurred())
		Expect(rec.Outcome).To(Equal(OutcomeCompleted))
		Expect(rec.EventsAnalyzed).To(Equal(5))
		Expect(rec.PatternsDetected).To(Equal(1))
		Expect(rec.Suggestions).To(Equal(1))
		Expect(f.mock.ExpectationsWereMet()).To(Succeed())

		published := f.bus.lastComplete()
		Expect(published.Success).To(BeTrue())
		Expect(published.Suggestions).To(Equal(1))
	})

	It("rejects a second trigger while a run is active", func() {
		f := newFixture(time.Minute)
		release := make(chan struct{})
		f.events.blockOn = release

		runID, err := f.orch.Start(0)
		Expect(err).ToNot(HaveOccurred())
		Expect(runID).ToNot(BeEmpty())
		Eventually(func() bool { return f.orch.Status().Running }).Should(BeTrue())

		_, err = f.orch.Run(context.Background(), 0)
		Expect(err).To(MatchError(ErrAlreadyRunning))
		_, err = f.orch.Start(0)
		Expect(err).To(MatchError(ErrAlreadyRunning))

		close(release)
		Eventually(func() bool { return f.orch.Status().Running }).Should(BeFalse())
	})

	It("marks a stopped run cancelled", func() {
		f := newFixture(time.Minute)
		f.registry.blockOn = make(chan struct{}) // park the run in phase 1

		runID, err := f.orch.Start(0)
		Expect(err).ToNot(HaveOccurred())
		Eventually(func() bool { return f.orch.Status().Running }).Should(BeTrue())

		Expect(f.orch.Stop()).To(BeTrue())
		Eventually(func() bool { return f.orch.Status().Running }).Should(BeFalse())

		st := f.orch.Status()
		Expect(st.LastRun).ToNot(BeNil())
		Expect(st.LastRun.RunID).To(Equal(runID))
		Expect(st.LastRun.Outcome).To(Equal(OutcomeCancelled))
	})

	It("marks a timed-out run failed", func() {
		f := newFixture(20 * time.Millisecond)
		f.registry.blockOn = make(chan struct{})

		rec, err := f.orch.Run(context.Background(), 0)
		Expect(err).ToNot(HaveOccurred())
		Expect(rec.Outcome).To(Equal(OutcomeFailed))
		Expect(rec.Error).To(ContainSubstring("timeout"))
	})

	It("returns false from Stop when idle", func() {
		f := newFixture(time.Minute)
		Expect(f.orch.Stop()).To(BeFalse())
	})

	It("bounds the job history and orders it newest first", func() {
		f := newFixture(time.Minute)
		for i := 0; i < 35; i++ {
			_, err := f.orch.Run(context.Background(), 0)
			Expect(err).ToNot(HaveOccurred())
		}

		st := f.orch.Status()
		Expect(st.History).To(HaveLen(30))
		Expect(st.LastRun.RunID).To(Equal(st.History[0].RunID))
		for i := 1; i < len(st.History); i++ {
			Expect(st.History[i].StartedAt.After(st.History[i-1].StartedAt)).To(BeFalse())
		}
	})
})
