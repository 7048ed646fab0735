// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package scheduler drives a single run's DAG to completion: it admits
// steps whose dependencies are satisfied, dispatches up to a bounded
// number of them concurrently through a step runner, propagates skips
// on failure, and persists every transition through the state
// repository. One Scheduler value drives exactly one run.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/lewislovelock/bioinfoflow/internal/metrics"
	"github.com/lewislovelock/bioinfoflow/internal/rundir"
	"github.com/lewislovelock/bioinfoflow/internal/runner"
	"github.com/lewislovelock/bioinfoflow/internal/store"
	"github.com/lewislovelock/bioinfoflow/internal/tracing"
	"github.com/lewislovelock/bioinfoflow/pkg/workflow"
)

// StepRunner executes a single StepExecution to completion. *runner.Runner
// satisfies this; tests substitute a fake to control timing precisely.
type StepRunner interface {
	Run(ctx context.Context, req runner.Request) *store.StepExecution
}

// Scheduler coordinates dispatch of one run's steps.
type Scheduler struct {
	repo     store.Repository
	runner   StepRunner
	parallel int
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger overrides the default slog.Logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithTracer overrides the default (global) tracer used for per-step spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Scheduler) { s.tracer = t }
}

// New returns a Scheduler bound to repo and runner, dispatching at most
// parallel steps concurrently. parallel below 1 is treated as 1.
func New(repo store.Repository, stepRunner StepRunner, parallel int, opts ...Option) *Scheduler {
	if parallel < 1 {
		parallel = 1
	}
	s := &Scheduler{
		repo:     repo,
		runner:   stepRunner,
		parallel: parallel,
		logger:   slog.Default(),
		tracer:   otel.Tracer("bioinfoflow/scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Override replaces a step's command and/or resources for a resumed
// attempt without mutating the workflow definition itself.
type Override struct {
	Command   string
	Resources *workflow.ResourceRequest
}

// stepState is the scheduler's in-memory view of one step for the
// duration of a single Execute call.
type stepState struct {
	def       workflow.StepDefinition
	status    store.Status
	execution *store.StepExecution
}

func isTerminal(s store.Status) bool {
	return store.IsTerminal(s)
}

// completion carries one step runner's result back to the control loop.
type completion struct {
	name   string
	result *store.StepExecution
}

// Execute drives def's steps against run to a terminal run status,
// persisting every StepExecution transition through the repository.
// prior holds the latest known StepExecution per step name from an
// earlier attempt (nil or empty for a fresh run); steps already
// COMPLETED are treated as satisfied, everything else is re-scheduled.
// overrides replaces the command/resources of named steps for this
// attempt only.
func (s *Scheduler) Execute(ctx context.Context, run *store.Run, def *workflow.Definition, dir rundir.Dir, prior map[string]*store.StepExecution, overrides map[string]Override) (store.Status, error) {
	states := make(map[string]*stepState, len(def.Steps))

	for _, step := range def.Steps {
		if ov, ok := overrides[step.Name]; ok {
			if ov.Command != "" {
				step.Command = ov.Command
			}
			if ov.Resources != nil {
				step.Resources = *ov.Resources
			}
		}
		status := store.StatusPending
		if p, ok := prior[step.Name]; ok && p.Status == store.StatusCompleted {
			status = store.StatusCompleted
		}
		states[step.Name] = &stepState{def: step, status: status}
	}

	if allSatisfied(states) {
		final := store.StatusCompleted
		if err := s.repo.UpdateRunStatus(ctx, run.ID, final, run.EndedAt); err != nil {
			return final, fmt.Errorf("scheduler: persist no-op resume status: %w", err)
		}
		return final, nil
	}

	stepOutputs := make(map[string]map[string]string)
	done := make(chan completion)
	sem := make(chan struct{}, s.parallel)
	inFlight := 0

	for {
		s.propagateSkips(ctx, run.ID, states)

		for _, name := range readyOrder(def, states) {
			select {
			case sem <- struct{}{}:
			default:
				goto waitForCompletion
			}
			st := states[name]
			st.status = store.StatusRunning
			exec := &store.StepExecution{RunID: run.ID, StepName: name, Status: store.StatusRunning}
			if err := s.repo.AddStepExecution(ctx, exec); err != nil {
				<-sem
				return store.StatusFailed, fmt.Errorf("scheduler: record step start for %q: %w", name, err)
			}
			st.execution = exec
			inFlight++
			metrics.StepStarted()

			stepCtx, span := tracing.StartStep(ctx, s.tracer, run.ID, name, st.def.Container)

			go func(name string, step workflow.StepDefinition) {
				defer func() { <-sem }()
				defer metrics.StepFinished()
				result := s.runner.Run(stepCtx, runner.Request{
					Run:         run,
					Def:         def,
					Step:        step,
					RunDir:      dir,
					StepOutputs: stepOutputs,
				})
				tracing.EndWithStatus(span, result.Status, result.Error)
				done <- completion{name: name, result: result}
			}(name, st.def)
		}

	waitForCompletion:
		if inFlight == 0 {
			if allTerminal(states) {
				break
			}
			s.logger.Warn("scheduler stalled with no ready steps and none in flight", "run_id", run.ID)
			break
		}

		c := <-done
		inFlight--
		st := states[c.name]
		started := st.execution
		st.status = c.result.Status
		st.execution = c.result

		outputs := make(map[string]string, len(c.result.Outputs))
		for _, f := range c.result.Outputs {
			outputs[f] = f
		}
		stepOutputs[c.name] = outputs

		c.result.RunID = run.ID
		c.result.StepName = c.name
		if c.result.ID == 0 && started != nil {
			c.result.ID = started.ID
		}
		if err := s.repo.UpdateStepExecution(ctx, c.result); err != nil {
			s.logger.Error("failed to persist step completion", "run_id", run.ID, "step", c.name, "error", err)
			metrics.RecordRepositoryError("UpdateStepExecution")
		}
	}

	final := store.StatusCompleted
	for _, st := range states {
		switch st.status {
		case store.StatusFailed, store.StatusError, store.StatusTerminatedTimeLimit:
			final = store.StatusFailed
		}
	}
	end := time.Now()
	if err := s.repo.UpdateRunStatus(ctx, run.ID, final, &end); err != nil {
		return final, fmt.Errorf("scheduler: persist final run status: %w", err)
	}
	return final, nil
}

// propagateSkips marks every PENDING step SKIPPED whose after list
// names a step in a terminal non-COMPLETED state, persists the skip,
// and repeats until no more skips follow (the skip fans out
// transitively to dependants of a dependant). Cancellation reuses this
// same path: a caller cancels the context passed to Execute, which
// drives in-flight runners to a terminal non-COMPLETED state through
// the step runner's stop-then-kill escalation, and the next loop
// iteration's propagateSkips call marks everything downstream SKIPPED.
func (s *Scheduler) propagateSkips(ctx context.Context, runID string, states map[string]*stepState) {
	changed := true
	for changed {
		changed = false
		for name, st := range states {
			if st.status != store.StatusPending {
				continue
			}
			for _, dep := range st.def.After {
				depState, ok := states[dep]
				if !ok {
					continue
				}
				if isTerminal(depState.status) && depState.status != store.StatusCompleted {
					st.status = store.StatusSkipped
					exec := &store.StepExecution{RunID: runID, StepName: name, Status: store.StatusSkipped}
					if err := s.repo.AddStepExecution(ctx, exec); err != nil {
						s.logger.Error("failed to record skipped step", "run_id", runID, "step", name, "error", err)
					}
					st.execution = exec
					changed = true
					break
				}
			}
		}
	}
}

// readyOrder returns the names of PENDING steps whose dependencies are
// all COMPLETED, in the workflow's declaration order, per the tie-break
// rule.
func readyOrder(def *workflow.Definition, states map[string]*stepState) []string {
	var ready []string
	for _, step := range def.Steps {
		st := states[step.Name]
		if st.status != store.StatusPending {
			continue
		}
		if stepReady(step, states) {
			ready = append(ready, step.Name)
		}
	}
	return ready
}

func stepReady(step workflow.StepDefinition, states map[string]*stepState) bool {
	for _, dep := range step.After {
		depState, ok := states[dep]
		if !ok || depState.status != store.StatusCompleted {
			return false
		}
	}
	return true
}

func allSatisfied(states map[string]*stepState) bool {
	for _, st := range states {
		if st.status != store.StatusCompleted {
			return false
		}
	}
	return true
}

func allTerminal(states map[string]*stepState) bool {
	for _, st := range states {
		if !isTerminal(st.status) {
			return false
		}
	}
	return true
}

