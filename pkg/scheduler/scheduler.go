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

// Package scheduler drives the daily analysis run off a cron expression and
// exposes manual trigger and stop controls.
package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ha-ai/insightd/pkg/pipeline"
)

// Runner is the pipeline surface the scheduler drives.
type Runner interface {
	Start(timeout time.Duration) (string, error)
	Stop() bool
	Status() pipeline.Status
}

// Scheduler wraps a single cron entry around the pipeline.
type Scheduler struct {
	cron    *cron.Cron
	entryID cron.EntryID
	spec    string
	runner  Runner
	logger  *zap.Logger
}

// New builds a scheduler for the given standard 5-field cron expression.
func New(spec string, runner Runner, logger *zap.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	c := cron.New()
	s := &Scheduler{cron: c, spec: spec, runner: runner, logger: logger}
	entryID, err := c.AddFunc(spec, s.fire)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	s.entryID = entryID
	return s, nil
}

func (s *Scheduler) fire() {
	runID, err := s.runner.Start(0)
	if err != nil {
		if errors.Is(err, pipeline.ErrAlreadyRunning) {
			s.logger.Warn("scheduled run skipped, previous run still active")
			return
		}
		s.logger.Error("scheduled run failed to start", zap.Error(err))
		return
	}
	s.logger.Info("scheduled analysis started", zap.String("run_id", runID))
}

// Start begins the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("cron", s.spec), zap.Time("next_run", s.NextRun()))
}

// Shutdown stops the cron loop and requests cancellation of any active run.
func (s *Scheduler) Shutdown() {
	ctx := s.cron.Stop()
	s.runner.Stop()
	<-ctx.Done()
}

// Trigger starts a run immediately, outside the schedule.
func (s *Scheduler) Trigger(timeout time.Duration) (string, error) {
	return s.runner.Start(timeout)
}

// StopRun requests cancellation of the active run. Returns false when idle.
func (s *Scheduler) StopRun() bool {
	return s.runner.Stop()
}

// NextRun returns the next scheduled fire time.
func (s *Scheduler) NextRun() time.Time {
	return s.cron.Entry(s.entryID).Next
}

// Schedule describes the configured cadence for the status route.
type Schedule struct {
	Cron    string    `json:"cron"`
	NextRun time.Time `json:"next_run"`
}

// Describe returns the schedule snapshot.
func (s *Scheduler) Describe() Schedule {
	return Schedule{Cron: s.spec, NextRun: s.NextRun()}
}
