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

// Package pipeline orchestrates the daily analysis run: capability refresh,
// event fetch, pattern detection, feature and synergy analysis, suggestion
// generation, and notification.
//
// Phases run sequentially; at most one run is active at a time. Everything
// upstream of the LLM is deterministic for a fixed event window and
// configuration.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ha-ai/insightd/pkg/analyzer"
	"github.com/ha-ai/insightd/pkg/capability"
	"github.com/ha-ai/insightd/pkg/community"
	"github.com/ha-ai/insightd/pkg/detector"
	"github.com/ha-ai/insightd/pkg/eventstore"
	"github.com/ha-ai/insightd/pkg/llm"
	"github.com/ha-ai/insightd/pkg/metrics"
	"github.com/ha-ai/insightd/pkg/models"
	"github.com/ha-ai/insightd/pkg/notify"
	"github.com/ha-ai/insightd/pkg/orchestrator"
	"github.com/ha-ai/insightd/pkg/registry"
	"github.com/ha-ai/insightd/pkg/store"
	"github.com/ha-ai/insightd/pkg/suggest"
	"github.com/ha-ai/insightd/pkg/synergy"
)

// ErrAlreadyRunning is returned when a trigger arrives while a run is
// active. The HTTP layer maps it to 409.
var ErrAlreadyRunning = errors.New("analysis already running")

// Phase names one pipeline stage.
type Phase string

const (
	PhaseCapabilityRefresh Phase = "capability_refresh"
	PhaseEventFetch        Phase = "event_fetch"
	PhasePatternDetection  Phase = "pattern_detection"
	PhaseAnalysis          Phase = "feature_synergy_analysis"
	PhaseGeneration        Phase = "suggestion_generation"
	PhaseNotify            Phase = "notify"
)

// Outcome classifies how a run ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeNoData    Outcome = "no_data"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// PhaseTiming records one phase's wall time.
type PhaseTiming struct {
	Phase    Phase         `json:"phase"`
	Duration time.Duration `json:"duration"`
}

// RunRecord is one entry in the bounded job history.
type RunRecord struct {
	RunID            string        `json:"run_id"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       time.Time     `json:"finished_at"`
	Outcome          Outcome       `json:"outcome"`
	Error            string        `json:"error,omitempty"`
	EventsAnalyzed   int           `json:"events_analyzed"`
	PatternsDetected int           `json:"patterns_detected"`
	SynergiesFound   int           `json:"synergies_found"`
	Suggestions      int           `json:"suggestions"`
	Phases           []PhaseTiming `json:"phases"`
}

// historyLimit bounds the in-memory job history.
const historyLimit = 30

// Deps wires the pipeline's collaborators. All fields are required except
// Orchestrator, Community and Metrics, which degrade to skipped work when
// nil.
type Deps struct {
	Events       eventstore.Fetcher
	Registry     registry.Reader
	Orchestrator orchestrator.API
	Community    community.Fetcher
	Parser       *capability.Parser
	Capabilities *capability.CachedStore
	Analyzer     *analyzer.FeatureAnalyzer
	Synergies    *synergy.Detector
	Generator    *suggest.Generator
	Store        *store.Store
	Usage        *llm.UsageTracker
	Notifier     *notify.Notifier
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
}

// Options holds the per-daemon analysis settings.
type Options struct {
	WindowDays     int
	Timeout        time.Duration
	DetectorParams detector.Params
	// RetentionDays prunes patterns older than this after each completed
	// run; zero disables the pruning.
	RetentionDays int
}

// Orchestrator runs the six-phase pipeline and keeps the job history.
type Orchestrator struct {
	deps      Deps
	window    time.Duration
	params    detector.Params
	retention time.Duration

	// DefaultTimeout caps a run when the trigger supplies none.
	DefaultTimeout time.Duration

	mu           sync.Mutex
	running      bool
	currentRunID string
	cancelRun    context.CancelFunc
	history      []RunRecord
	phaseTimes   map[Phase][]time.Duration

	now func() time.Time
}

// New builds a pipeline Orchestrator.
func New(deps Deps, opts Options) (*Orchestrator, error) {
	if deps.Events == nil || deps.Registry == nil || deps.Parser == nil ||
		deps.Capabilities == nil || deps.Analyzer == nil || deps.Synergies == nil ||
		deps.Generator == nil || deps.Store == nil || deps.Usage == nil ||
		deps.Notifier == nil || deps.Logger == nil {
		return nil, fmt.Errorf("pipeline: missing required dependency")
	}
	if opts.WindowDays < 1 || opts.WindowDays > 90 {
		return nil, fmt.Errorf("pipeline: window must be 1-90 days, got %d", opts.WindowDays)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	return &Orchestrator{
		deps:           deps,
		window:         time.Duration(opts.WindowDays) * 24 * time.Hour,
		params:         opts.DetectorParams,
		retention:      time.Duration(opts.RetentionDays) * 24 * time.Hour,
		DefaultTimeout: opts.Timeout,
		phaseTimes:     make(map[Phase][]time.Duration),
		now:            func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock overrides the orchestrator's clock, for tests.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Status is the scheduler/status surface snapshot.
type Status struct {
	Running      bool        `json:"running"`
	CurrentRunID string      `json:"current_run_id,omitempty"`
	LastRun      *RunRecord  `json:"last_run,omitempty"`
	History      []RunRecord `json:"history"`
}

// Status returns the current run state and bounded history, newest first.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := Status{Running: o.running, CurrentRunID: o.currentRunID}
	st.History = make([]RunRecord, len(o.history))
	for i, rec := range o.history {
		st.History[len(o.history)-1-i] = rec
	}
	if len(st.History) > 0 {
		st.LastRun = &st.History[0]
	}
	return st
}

// Stop requests cancellation of the active run at its next suspension
// point. In-flight LLM calls complete. Returns false when no run is active.
func (o *Orchestrator) Stop() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running || o.cancelRun == nil {
		return false
	}
	o.cancelRun()
	return true
}

// Run executes the full pipeline synchronously. A second concurrent call
// fails with ErrAlreadyRunning. timeout <= 0 takes the default.
func (o *Orchestrator) Run(ctx context.Context, timeout time.Duration) (*RunRecord, error) {
	if timeout <= 0 {
		timeout = o.DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rec, err := o.begin(cancel)
	if err != nil {
		return nil, err
	}
	o.execute(runCtx, rec)
	o.finish(rec)
	return rec, nil
}

// Start kicks off a run in the background; used by the scheduler and the
// async trigger route.
func (o *Orchestrator) Start(timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = o.DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(context.Background(), timeout)

	rec, err := o.begin(cancel)
	if err != nil {
		cancel()
		return "", err
	}
	go func() {
		defer cancel()
		o.execute(runCtx, rec)
		o.finish(rec)
	}()
	return rec.RunID, nil
}

func (o *Orchestrator) begin(cancel context.CancelFunc) (*RunRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return nil, ErrAlreadyRunning
	}
	rec := &RunRecord{RunID: uuid.NewString(), StartedAt: o.now()}
	o.running = true
	o.currentRunID = rec.RunID
	o.cancelRun = cancel
	return rec, nil
}

func (o *Orchestrator) finish(rec *RunRecord) {
	rec.FinishedAt = o.now()

	o.mu.Lock()
	o.running = false
	o.currentRunID = ""
	o.cancelRun = nil
	o.history = append(o.history, *rec)
	if len(o.history) > historyLimit {
		o.history = o.history[len(o.history)-historyLimit:]
	}
	o.mu.Unlock()

	if m := o.deps.Metrics; m != nil {
		m.AnalysisRuns.WithLabelValues(string(rec.Outcome)).Inc()
		m.AnalysisDuration.Observe(rec.FinishedAt.Sub(rec.StartedAt).Seconds())
	}
	o.deps.Logger.Info("analysis run finished",
		zap.String("run_id", rec.RunID),
		zap.String("outcome", string(rec.Outcome)),
		zap.Int("events", rec.EventsAnalyzed),
		zap.Int("patterns", rec.PatternsDetected),
		zap.Int("suggestions", rec.Suggestions))
}

// execute walks the six phases, recording wall time per phase and degrading
// optional phases to skips.
func (o *Orchestrator) execute(ctx context.Context, rec *RunRecord) {
	var (
		devices     []models.DeviceRecord
		events      []models.Event
		patterns    []models.Pattern
		synergies   []models.SynergyOpportunity
		suggestions []models.Suggestion
	)

	// Phase 1: capability refresh. Optional; errors never abort the run.
	o.phase(ctx, rec, PhaseCapabilityRefresh, func(ctx context.Context) error {
		var err error
		devices, err = o.refreshCapabilities(ctx)
		if err != nil {
			o.deps.Logger.Warn("capability refresh degraded", zap.Error(err))
		}
		return nil
	})
	if o.aborted(ctx, rec, suggestions) {
		return
	}

	// Phase 2: event fetch. A failure here aborts the run.
	var fetchErr error
	o.phase(ctx, rec, PhaseEventFetch, func(ctx context.Context) error {
		to := o.now()
		from := to.Add(-o.window)
		events, fetchErr = o.deps.Events.FetchEvents(ctx, from, to, models.EventFilter{}, 0)
		return fetchErr
	})
	if fetchErr != nil {
		o.fail(rec, fmt.Errorf("event fetch: %w", fetchErr))
		o.notifyAndRecord(rec, suggestions)
		return
	}
	if o.aborted(ctx, rec, suggestions) {
		return
	}
	rec.EventsAnalyzed = len(events)
	if m := o.deps.Metrics; m != nil {
		m.EventsAnalyzed.Set(float64(len(events)))
	}
	if len(events) == 0 {
		rec.Outcome = OutcomeNoData
		o.notifyAndRecord(rec, suggestions)
		return
	}
	events = detector.Sample(events)

	// Phase 3: pattern detection, both detectors over the same window.
	var todResult *detector.TimeOfDayResult
	var coResult *detector.CoOccurrenceResult
	var detectErr error
	o.phase(ctx, rec, PhasePatternDetection, func(ctx context.Context) error {
		now := o.now()
		grp, _ := errgroup.WithContext(ctx)
		grp.Go(func() error {
			var err error
			todResult, err = detector.NewTimeOfDayDetector(o.params).Detect(events, now)
			return err
		})
		grp.Go(func() error {
			var err error
			coResult, err = detector.NewCoOccurrenceDetector(o.params).Detect(events, now)
			return err
		})
		if err := grp.Wait(); err != nil {
			detectErr = err
			return err
		}

		patterns = append(patterns, todResult.Patterns...)
		patterns = append(patterns, coResult.Patterns...)
		if err := o.deps.Store.UpsertPatterns(ctx, patterns); err != nil {
			detectErr = err
			return err
		}
		// Aggregates are best effort; a write failure costs incremental
		// reuse, not correctness.
		if err := o.deps.Store.UpsertTimeOfDayAggregates(ctx, todResult.Aggregates, now); err != nil {
			o.deps.Logger.Warn("time-of-day aggregate write failed", zap.Error(err))
		}
		if err := o.deps.Store.UpsertCoOccurrenceAggregates(ctx, coResult.Aggregates, now); err != nil {
			o.deps.Logger.Warn("co-occurrence aggregate write failed", zap.Error(err))
		}
		return nil
	})
	if detectErr != nil {
		o.fail(rec, fmt.Errorf("pattern detection: %w", detectErr))
		o.notifyAndRecord(rec, suggestions)
		return
	}
	if o.aborted(ctx, rec, suggestions) {
		return
	}
	rec.PatternsDetected = len(patterns)
	if m := o.deps.Metrics; m != nil {
		m.PatternsDetected.WithLabelValues(string(models.PatternTimeOfDay)).Set(float64(len(todResult.Patterns)))
		m.PatternsDetected.WithLabelValues(string(models.PatternCoOccurrence)).Set(float64(len(coResult.Patterns)))
	}

	// Phase 4: feature and synergy analysis. Optional; degrades to empty.
	var opportunities []models.FeatureOpportunity
	var areas []models.Area
	o.phase(ctx, rec, PhaseAnalysis, func(ctx context.Context) error {
		if devices == nil {
			var err error
			if devices, err = o.deps.Registry.ListDevices(ctx); err != nil {
				o.deps.Logger.Warn("device listing failed, skipping analysis", zap.Error(err))
				return nil
			}
		}
		if listed, err := o.deps.Registry.ListAreas(ctx); err == nil {
			areas = listed
		}

		var err error
		if opportunities, err = o.deps.Analyzer.Analyze(ctx, devices); err != nil {
			o.deps.Logger.Warn("feature analysis degraded", zap.Error(err))
		}

		var automations []models.Automation
		if o.deps.Orchestrator != nil {
			if automations, err = o.deps.Orchestrator.ListAutomations(ctx); err != nil {
				o.deps.Logger.Warn("automation listing failed, synergy suppression disabled", zap.Error(err))
			}
		}
		synergies = o.deps.Synergies.Detect(synergy.Input{
			Devices:     devices,
			Automations: automations,
			Events:      events,
			Now:         o.now(),
		})
		if err := o.deps.Store.UpsertSynergies(ctx, synergies); err != nil {
			o.deps.Logger.Warn("synergy persistence failed", zap.Error(err))
		}
		return nil
	})
	if o.aborted(ctx, rec, suggestions) {
		return
	}
	rec.SynergiesFound = len(synergies)

	// Phase 5: suggestion generation. Persistence failure aborts; LLM
	// failures degrade to fewer suggestions.
	var genErr error
	o.phase(ctx, rec, PhaseGeneration, func(ctx context.Context) error {
		suggestions = append(suggestions, o.communitySuggestions(ctx, devices)...)
		result, err := o.deps.Generator.Generate(ctx, suggest.Input{
			Patterns:      patterns,
			Opportunities: opportunities,
			Synergies:     synergies,
			Devices:       devices,
			Areas:         areas,
		})
		if result != nil {
			suggestions = append(suggestions, result.Suggestions...)
			for _, genFail := range result.Errors {
				o.deps.Logger.Warn("candidate skipped",
					zap.String("source", string(genFail.Source)),
					zap.String("ref", genFail.Ref),
					zap.String("reason", genFail.Reason))
			}
		}
		// A cancelled generation still persists what completed.
		if len(suggestions) > 0 {
			if persistErr := o.persistSuggestions(ctx, suggestions); persistErr != nil {
				genErr = persistErr
				return persistErr
			}
		}
		o.persistUsage()
		if err != nil && ctx.Err() == nil {
			genErr = err
			return err
		}
		return nil
	})
	if genErr != nil {
		o.fail(rec, fmt.Errorf("suggestion generation: %w", genErr))
		o.notifyAndRecord(rec, suggestions)
		return
	}
	if o.aborted(ctx, rec, suggestions) {
		return
	}

	rec.Outcome = OutcomeCompleted
	o.prunePatterns()
	o.notifyAndRecord(rec, suggestions)
}

// prunePatterns drops patterns past the retention horizon after a completed
// run. Best effort: a failed prune never fails the run.
func (o *Orchestrator) prunePatterns() {
	if o.retention <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	deleted, err := o.deps.Store.CleanupPatterns(ctx, o.now().Add(-o.retention))
	if err != nil {
		o.deps.Logger.Warn("pattern pruning failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		o.deps.Logger.Info("pruned stale patterns", zap.Int64("deleted", deleted))
	}
}

// persistSuggestions writes suggestions with a store-detached context so a
// cancelled run still lands its partial results.
func (o *Orchestrator) persistSuggestions(ctx context.Context, suggestions []models.Suggestion) error {
	writeCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
	}
	if err := o.deps.Store.InsertSuggestions(writeCtx, suggestions); err != nil {
		return err
	}
	if m := o.deps.Metrics; m != nil {
		for _, s := range suggestions {
			m.SuggestionsTotal.WithLabelValues(string(s.Source)).Inc()
		}
	}
	return nil
}

// persistUsage folds the run's token counters into the per-day rollup and
// resets them.
func (o *Orchestrator) persistUsage() {
	snap := o.deps.Usage.Snapshot()
	if snap.Calls == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := o.deps.Store.AddUsage(ctx, o.now(), snap.InputTokens, snap.OutputTokens,
		snap.Calls, snap.Failures, snap.EstCostUSD)
	if err != nil {
		o.deps.Logger.Warn("usage persistence failed", zap.Error(err))
		return
	}
	o.deps.Usage.Reset()
	if m := o.deps.Metrics; m != nil {
		m.LLMTokens.WithLabelValues("input").Add(float64(snap.InputTokens))
		m.LLMTokens.WithLabelValues("output").Add(float64(snap.OutputTokens))
		m.LLMCalls.WithLabelValues("ok").Add(float64(snap.Calls - snap.Failures))
		m.LLMCalls.WithLabelValues("error").Add(float64(snap.Failures))
	}
}

// refreshCapabilities parses declarations for models whose records are
// missing or stale. Returns the device inventory for reuse by later phases.
func (o *Orchestrator) refreshCapabilities(ctx context.Context) ([]models.DeviceRecord, error) {
	devices, err := o.deps.Registry.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	now := o.now()
	seen := make(map[string]struct{})
	refreshed, failed := 0, 0
	for _, device := range devices {
		if device.Model == "" {
			continue
		}
		if _, done := seen[device.Model]; done {
			continue
		}
		seen[device.Model] = struct{}{}

		current, err := o.deps.Capabilities.Get(ctx, device.Model)
		if err == nil && !current.Stale(now) {
			continue
		}
		if err != nil && !errors.Is(err, capability.ErrNotFound) && !errors.Is(err, store.ErrNotFound) {
			o.deps.Logger.Warn("capability lookup failed",
				zap.String("model", device.Model), zap.Error(err))
			failed++
			continue
		}
		if len(device.Exposes) == 0 {
			continue
		}

		parsed, err := o.deps.Parser.Parse(device.Exposes)
		if err != nil {
			o.deps.Logger.Warn("exposes parse failed",
				zap.String("model", device.Model), zap.Error(err))
			failed++
			continue
		}
		rec := &models.CapabilityRecord{
			DeviceModel:  device.Model,
			Manufacturer: device.Manufacturer,
			Description:  device.Name,
			Capabilities: parsed.Capabilities,
			RawExposes:   device.Exposes,
			Source:       models.SourceBridge,
			LastUpdated:  now,
		}
		if err := o.deps.Capabilities.Upsert(ctx, rec); err != nil {
			o.deps.Logger.Warn("capability upsert failed",
				zap.String("model", device.Model), zap.Error(err))
			failed++
			continue
		}
		refreshed++
	}

	if m := o.deps.Metrics; m != nil {
		m.CapabilityRefresh.WithLabelValues("refreshed").Add(float64(refreshed))
		m.CapabilityRefresh.WithLabelValues("failed").Add(float64(failed))
	}
	o.deps.Logger.Debug("capability refresh done",
		zap.Int("refreshed", refreshed), zap.Int("failed", failed))
	return devices, nil
}

// phase times one stage, feeds the phase-duration history and warns when a
// stage runs 3x over its historical median.
func (o *Orchestrator) phase(ctx context.Context, rec *RunRecord, name Phase, fn func(context.Context) error) {
	start := time.Now()
	_ = fn(ctx)
	elapsed := time.Since(start)

	rec.Phases = append(rec.Phases, PhaseTiming{Phase: name, Duration: elapsed})
	if m := o.deps.Metrics; m != nil {
		m.PhaseDuration.WithLabelValues(string(name)).Observe(elapsed.Seconds())
	}

	o.mu.Lock()
	median := medianDuration(o.phaseTimes[name])
	o.phaseTimes[name] = append(o.phaseTimes[name], elapsed)
	o.mu.Unlock()

	if median > 0 && elapsed > 3*median {
		o.deps.Logger.Warn("slow_phase",
			zap.String("phase", string(name)),
			zap.Duration("elapsed", elapsed),
			zap.Duration("median", median))
	}
}

// aborted checks for cancellation or timeout between phases and, when hit,
// records the outcome and emits the final notification.
func (o *Orchestrator) aborted(ctx context.Context, rec *RunRecord, suggestions []models.Suggestion) bool {
	if ctx.Err() == nil {
		return false
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		rec.Outcome = OutcomeFailed
		rec.Error = "pipeline timeout exceeded"
	} else {
		rec.Outcome = OutcomeCancelled
	}
	o.notifyAndRecord(rec, suggestions)
	return true
}

func (o *Orchestrator) fail(rec *RunRecord, err error) {
	rec.Outcome = OutcomeFailed
	rec.Error = err.Error()
	o.deps.Logger.Error("analysis run failed", zap.String("run_id", rec.RunID), zap.Error(err))
}

// notifyAndRecord is phase 6: publish the summary and the new-suggestion
// announcement. Publication uses a detached context so a cancelled run
// still reports itself.
func (o *Orchestrator) notifyAndRecord(rec *RunRecord, suggestions []models.Suggestion) {
	rec.Suggestions = len(suggestions)
	o.phase(context.Background(), rec, PhaseNotify, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()

		o.deps.Notifier.AnalysisComplete(ctx, notify.AnalysisComplete{
			Timestamp:        o.now(),
			Success:          rec.Outcome == OutcomeCompleted,
			RunID:            rec.RunID,
			Outcome:          string(rec.Outcome),
			StartedAt:        rec.StartedAt,
			FinishedAt:       o.now(),
			EventsAnalyzed:   rec.EventsAnalyzed,
			PatternsDetected: rec.PatternsDetected,
			SynergiesFound:   rec.SynergiesFound,
			Suggestions:      len(suggestions),
			Error:            rec.Error,
		})

		msg := notify.NewSuggestions{RunID: rec.RunID, Count: len(suggestions)}
		for _, s := range suggestions {
			msg.IDs = append(msg.IDs, s.ID)
			msg.Titles = append(msg.Titles, s.Title)
		}
		o.deps.Notifier.NewSuggestions(ctx, msg)
		return nil
	})
}

// communitySuggestions turns crowd-sourced recommendations into pending
// suggestions without an LLM call. The community service is optional and a
// failure costs nothing but the extra ideas.
func (o *Orchestrator) communitySuggestions(ctx context.Context, devices []models.DeviceRecord) []models.Suggestion {
	if o.deps.Community == nil {
		return nil
	}

	const maxModels = 10
	now := o.now()
	seen := make(map[string]struct{})
	var out []models.Suggestion
	for _, device := range devices {
		if device.Model == "" {
			continue
		}
		if _, done := seen[device.Model]; done {
			continue
		}
		if len(seen) >= maxModels {
			break
		}
		seen[device.Model] = struct{}{}

		recs, err := o.deps.Community.Recommendations(ctx, device.Model)
		if err != nil {
			o.deps.Logger.Debug("community lookup failed",
				zap.String("model", device.Model), zap.Error(err))
			continue
		}
		if len(recs) == 0 {
			continue
		}
		best := recs[0]
		for _, rec := range recs[1:] {
			if rec.Popularity > best.Popularity {
				best = rec
			}
		}

		category := models.SuggestionCategory(best.Category)
		switch category {
		case models.CategoryEnergy, models.CategoryComfort, models.CategorySecurity, models.CategoryConvenience:
		default:
			category = models.CategoryConvenience
		}
		confidence := best.Popularity
		if confidence > 1 {
			confidence = 1
		} else if confidence < 0 {
			confidence = 0
		}
		priority := models.PriorityLow
		if confidence >= 0.7 {
			priority = models.PriorityMedium
		}
		var entities []string
		for _, ref := range device.Entities {
			entities = append(entities, ref.EntityID)
		}

		out = append(out, models.Suggestion{
			ID:                uuid.NewString(),
			Source:            models.SourceCommunity,
			Title:             best.Title,
			Description:       best.Description,
			Rationale:         "Popular automation among owners of " + device.Model,
			Confidence:        confidence,
			Category:          category,
			Priority:          priority,
			Status:            models.StatusPending,
			CreatedAt:         now,
			UpdatedAt:         now,
			ValidatedEntities: entities,
		})
	}
	return out
}

func medianDuration(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
