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

// Package engine is the single entry point the CLI and the HTTP API
// invoke to run, resume, cancel, inspect, and list workflow runs. It
// owns the lifetime of a scheduler instance per run, translating that
// narrow DAG-execution API into the façade operations described in the
// external interface.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/lewislovelock/bioinfoflow/internal/config"
	"github.com/lewislovelock/bioinfoflow/internal/container"
	"github.com/lewislovelock/bioinfoflow/internal/metrics"
	"github.com/lewislovelock/bioinfoflow/internal/rundir"
	"github.com/lewislovelock/bioinfoflow/internal/runner"
	"github.com/lewislovelock/bioinfoflow/internal/scheduler"
	"github.com/lewislovelock/bioinfoflow/internal/store"
	"github.com/lewislovelock/bioinfoflow/internal/tracing"
	bioerrors "github.com/lewislovelock/bioinfoflow/pkg/errors"
	"github.com/lewislovelock/bioinfoflow/pkg/workflow"
)

// Override replaces a step's command and/or resources for a resumed
// attempt. It is an alias of scheduler.Override so callers outside this
// package never need to import internal/scheduler directly.
type Override = scheduler.Override

// TimeLimitPolicy selects how step time budgets are resolved for a run.
type TimeLimitPolicy string

const (
	// TimeLimitDefault applies each step's declared time_limit, falling
	// back to the engine-wide default for steps that declare none.
	TimeLimitDefault TimeLimitPolicy = ""
	// TimeLimitDisabled disables the timer for every step regardless of
	// what it declares, corresponding to the CLI's --disable-time-limits.
	TimeLimitDisabled TimeLimitPolicy = "disabled"
)

// Engine coordinates workflow runs against a state repository and a
// container driver.
type Engine struct {
	repo   store.Repository
	driver container.Driver
	cfg    *config.Config
	logger *slog.Logger
	tracer trace.Tracer

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	done    map[string]chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger overrides the default slog.Logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTracer overrides the default (global) tracer used for per-run spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// New returns an Engine bound to repo and driver, using cfg for
// defaults (run directory root, parallelism, time budgets).
func New(cfg *config.Config, repo store.Repository, driver container.Driver, opts ...Option) *Engine {
	e := &Engine{
		repo:    repo,
		driver:  driver,
		cfg:     cfg,
		logger:  slog.Default(),
		tracer:  otel.Tracer("bioinfoflow/engine"),
		cancels: make(map[string]context.CancelFunc),
		done:    make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run loads and validates the workflow at workflowPath, stages its
// inputs, and drives it to a terminal run status. inputOverrides
// replaces the glob pattern declared for the named input in the
// workflow document (or supplies one the document omits); paths are
// resolved relative to the process's current working directory. parallel
// below 1 falls back to the engine's configured default.
func (e *Engine) Run(ctx context.Context, workflowPath string, inputOverrides map[string]string, parallel int, policy TimeLimitPolicy) (*store.Run, error) {
	def, err := workflow.Load(workflowPath)
	if err != nil {
		return nil, err
	}

	source, err := os.ReadFile(workflowPath)
	if err != nil {
		return nil, &bioerrors.InvalidWorkflowError{Workflow: workflowPath, Reason: "cannot re-read validated file", Cause: err}
	}
	if err := e.repo.CreateWorkflow(ctx, &store.Workflow{
		Name:        def.Name,
		Version:     def.Version,
		Description: def.Description,
		Source:      string(source),
	}); err != nil {
		return nil, err
	}

	runID := newRunID()
	dir, err := rundir.Create(e.cfg.RunDir, def.Name, def.Version, runID, def)
	if err != nil {
		return nil, err
	}

	effectiveInputs := make(map[string]workflow.InputDeclaration, len(def.Inputs)+len(inputOverrides))
	for name, decl := range def.Inputs {
		effectiveInputs[name] = decl
	}
	for name, pattern := range inputOverrides {
		effectiveInputs[name] = workflow.InputDeclaration{Path: pattern}
	}

	run := &store.Run{
		ID:              runID,
		WorkflowName:    def.Name,
		WorkflowVersion: def.Version,
		Status:          store.StatusRunning,
		RunDir:          dir.Root,
		StartedAt:       time.Now(),
	}

	if len(effectiveInputs) > 0 {
		workDir, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("engine: resolve working directory: %w", err)
		}
		if err := dir.StageInputs(workDir, effectiveInputs); err != nil {
			run.Status = store.StatusError
			if createErr := e.repo.CreateRun(ctx, run); createErr != nil {
				e.logger.Error("failed to record run after input staging error", "run_id", run.ID, "error", createErr)
			}
			end := time.Now()
			_ = e.repo.UpdateRunStatus(ctx, run.ID, store.StatusError, &end)
			return run, err
		}
	}

	resolvedInputs := make(map[string]string, len(effectiveInputs))
	for name := range effectiveInputs {
		resolvedInputs[name] = filepath.Join(dir.Inputs(), name)
	}
	run.Inputs = resolvedInputs

	if err := e.repo.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	status, err := e.execute(ctx, run, def, dir, parallel, policy, nil, nil)
	run.Status = status
	return run, err
}

// Resume re-schedules a run's non-COMPLETED steps. Resuming a run that
// is already fully COMPLETED is a no-op that returns the existing
// terminal snapshot. overrides replaces the command or resources of
// named steps for this attempt only; the workflow definition on disk is
// never mutated.
func (e *Engine) Resume(ctx context.Context, runID string, overrides map[string]Override) (*store.Run, error) {
	run, steps, err := e.repo.GetRunWithSteps(ctx, runID)
	if err != nil {
		return nil, err
	}

	dir := rundir.Dir{Root: run.RunDir}
	def, err := workflow.Load(dir.WorkflowCopyPath())
	if err != nil {
		return nil, err
	}

	prior := latestByStep(steps)

	if run.Status != store.StatusCompleted {
		run.Status = store.StatusRunning
		run.EndedAt = nil
		if err := e.repo.UpdateRunStatus(ctx, run.ID, store.StatusRunning, nil); err != nil {
			return nil, err
		}
	}

	status, err := e.execute(ctx, run, def, dir, 0, TimeLimitDefault, prior, overrides)
	run.Status = status
	return run, err
}

// Cancel marks a run's pending steps SKIPPED and sends stop to every
// in-flight step runner, blocking until the run has reported a terminal
// status. It is a no-op error if runID names no currently-executing run.
func (e *Engine) Cancel(ctx context.Context, runID string) error {
	e.mu.Lock()
	cancel, ok := e.cancels[runID]
	done := e.done[runID]
	e.mu.Unlock()
	if !ok {
		return &bioerrors.NotFoundError{Resource: "active run", ID: runID}
	}

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a run and the current state of each of its steps.
func (e *Engine) Status(ctx context.Context, runID string) (*store.Run, []*store.StepExecution, error) {
	return e.repo.GetRunWithSteps(ctx, runID)
}

// List returns runs matching filter.
func (e *Engine) List(ctx context.Context, filter store.RunFilter) ([]*store.Run, error) {
	return e.repo.ListRuns(ctx, filter)
}

// Delete removes a terminal run's record and run directory tree. It
// refuses to delete a run that is still active, surfacing the
// repository's own refusal of a non-terminal DeleteRun call.
func (e *Engine) Delete(ctx context.Context, runID string) error {
	run, _, err := e.repo.GetRunWithSteps(ctx, runID)
	if err != nil {
		return err
	}
	if err := e.repo.DeleteRun(ctx, runID); err != nil {
		return err
	}
	if run.RunDir != "" {
		if err := os.RemoveAll(run.RunDir); err != nil {
			e.logger.Warn("failed to remove run directory after delete", "run_id", runID, "dir", run.RunDir, "error", err)
		}
	}
	return nil
}

// execute builds a scheduler for run and drives it to completion,
// tracking the run's cancel func and completion signal for the
// duration of the call so a concurrent Cancel can reach it.
func (e *Engine) execute(ctx context.Context, run *store.Run, def *workflow.Definition, dir rundir.Dir, parallel int, policy TimeLimitPolicy, prior map[string]*store.StepExecution, overrides map[string]Override) (store.Status, error) {
	if parallel < 1 {
		parallel = e.cfg.DefaultParallelism
	}
	defaultTimeLimit := e.cfg.DefaultTimeLimit
	if policy == TimeLimitDisabled {
		defaultTimeLimit = 0
		unlimited := *def
		unlimited.Steps = append([]workflow.StepDefinition(nil), def.Steps...)
		for i := range unlimited.Steps {
			unlimited.Steps[i].Resources.TimeLimit = "0s"
		}
		def = &unlimited
	}

	stepRunner := runner.New(e.driver, defaultTimeLimit, e.cfg.GracePeriod, runner.WithLogger(e.logger))
	sched := scheduler.New(e.repo, stepRunner, parallel, scheduler.WithLogger(e.logger))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	e.mu.Lock()
	e.cancels[run.ID] = cancel
	e.done[run.ID] = done
	e.mu.Unlock()

	defer func() {
		cancel()
		close(done)
		e.mu.Lock()
		delete(e.cancels, run.ID)
		delete(e.done, run.ID)
		e.mu.Unlock()
	}()

	runCtx, span := tracing.StartRun(runCtx, e.tracer, run.ID, run.WorkflowName, run.WorkflowVersion)

	started := time.Now()
	status, err := sched.Execute(runCtx, run, def, dir, prior, overrides)
	metrics.ObserveRunDuration(run.WorkflowName, string(status), time.Since(started).Seconds())
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	tracing.EndWithStatus(span, status, errMsg)
	return status, err
}

// latestByStep keeps, for each step name, the most recently created
// StepExecution row — the one resume semantics treat as authoritative.
func latestByStep(steps []*store.StepExecution) map[string]*store.StepExecution {
	latest := make(map[string]*store.StepExecution, len(steps))
	for _, step := range steps {
		existing, ok := latest[step.StepName]
		if !ok || step.CreatedAt.After(existing.CreatedAt) {
			latest[step.StepName] = step
		}
	}
	return latest
}

// newRunID returns an opaque run identifier of the form
// YYYYMMDD_HHMMSS_<8-hex>.
func newRunID() string {
	return fmt.Sprintf("%s_%s", time.Now().Format("20060102_150405"), uuid.New().String()[:8])
}
