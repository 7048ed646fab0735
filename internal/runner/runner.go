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

// Package runner executes exactly one StepExecution: it composes
// variable bindings, invokes the container driver, enforces the step's
// time budget, and records the resulting state. The DAG scheduler owns
// bounded parallelism and dependency ordering; this package only knows
// about a single step.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lewislovelock/bioinfoflow/internal/container"
	"github.com/lewislovelock/bioinfoflow/internal/duration"
	"github.com/lewislovelock/bioinfoflow/internal/rundir"
	"github.com/lewislovelock/bioinfoflow/internal/store"
	"github.com/lewislovelock/bioinfoflow/internal/substitute"
	bioerrors "github.com/lewislovelock/bioinfoflow/pkg/errors"
	"github.com/lewislovelock/bioinfoflow/pkg/workflow"
)

// Runner executes individual steps against a container driver.
type Runner struct {
	driver           container.Driver
	defaultTimeLimit time.Duration
	gracePeriod      time.Duration
	logger           *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger overrides the default slog.Logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// New returns a Runner bound to driver. defaultTimeLimit applies to
// steps that declare no time_limit; gracePeriod bounds the wait between
// a soft stop and a hard kill.
func New(driver container.Driver, defaultTimeLimit, gracePeriod time.Duration, opts ...Option) *Runner {
	r := &Runner{
		driver:           driver,
		defaultTimeLimit: defaultTimeLimit,
		gracePeriod:      gracePeriod,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Request bundles everything Run needs to execute a single step.
type Request struct {
	Run    *store.Run
	Def    *workflow.Definition
	Step   workflow.StepDefinition
	RunDir rundir.Dir
	// StepOutputs holds the recorded outputs of previously completed
	// steps, keyed by step name then output file name, for
	// steps.<step>.outputs.<name> substitution.
	StepOutputs map[string]map[string]string
}

// Run executes step to completion (or time-limit termination) and
// returns the filled-in StepExecution. It has no error return: a
// malformed time limit, a launch failure, a non-zero exit, a time-limit
// termination and a cancellation are all reported through the returned
// record's Status and Error.
func (r *Runner) Run(ctx context.Context, req Request) *store.StepExecution {
	step := &store.StepExecution{
		RunID:    req.Run.ID,
		StepName: req.Step.Name,
		Status:   store.StatusRunning,
	}
	start := time.Now()
	step.StartedAt = &start

	bindings := substitute.Bindings{
		Config:      req.Def.Config,
		Inputs:      inputBindings(req.Run.Inputs),
		Resources:   resourceBindings(req.Step.Resources),
		StepOutputs: req.StepOutputs,
		RunDir:      req.RunDir.Root,
	}
	command := substitute.Expand(req.Step.Command, bindings)

	limit, err := timeLimit(req.Step.Resources.TimeLimit, r.defaultTimeLimit)
	if err != nil {
		return r.errorResult(step, &bioerrors.InvalidWorkflowError{Workflow: req.Def.Name, Reason: err.Error(), Cause: err})
	}

	before, err := req.RunDir.ExistingOutputs()
	if err != nil {
		r.logger.Warn("failed to snapshot outputs directory before step", "step", step.StepName, "error", err)
		before = map[string]struct{}{}
	}

	logPath := req.RunDir.LogPath(req.Step.Name)
	if err := r.driver.Pull(ctx, req.Step.Container); err != nil {
		return r.errorResult(step, &bioerrors.ContainerLaunchError{Step: req.Step.Name, Image: req.Step.Container, Cause: err})
	}

	handle, err := r.driver.Run(ctx, container.RunSpec{
		Image:   req.Step.Container,
		Command: command,
		Mounts:  []container.Mount{{HostPath: req.RunDir.Root}},
		CPU:     req.Step.Resources.CPU,
		Memory:  req.Step.Resources.Memory,
		LogFile: logPath,
	})
	if err != nil {
		return r.errorResult(step, &bioerrors.ContainerLaunchError{Step: req.Step.Name, Image: req.Step.Container, Cause: err})
	}
	step.LogPath = logPath

	exitCode, terminatedByLimit, canceled := r.waitWithLimit(ctx, handle, limit)
	end := time.Now()
	step.EndedAt = &end

	produced, err := req.RunDir.NewOutputsSince(before)
	if err != nil {
		r.logger.Warn("failed to enumerate produced outputs", "step", step.StepName, "error", err)
	}
	step.Outputs = produced

	switch {
	case canceled:
		step.Status = store.StatusError
		step.Error = fmt.Sprintf("step %s: canceled: %v", req.Step.Name, ctx.Err())
	case terminatedByLimit:
		step.Status = store.StatusTerminatedTimeLimit
		step.Error = (&bioerrors.DeadlineExceededError{Step: req.Step.Name, Limit: limit}).Error()
	case exitCode == 0:
		step.Status = store.StatusCompleted
	default:
		step.Status = store.StatusFailed
		step.Error = fmt.Sprintf("exit code %d", exitCode)
	}
	code := exitCode
	step.ExitCode = &code

	return step
}

// waitWithLimit waits for handle to exit, for limit to expire, or for
// ctx to be canceled, whichever comes first. A limit of 0 disables the
// timer. On expiry or cancellation it sends a soft stop, waits up to
// the configured grace period, then escalates to a hard kill; the two
// cases are reported separately so the caller can tell a scheduler-
// driven cancel apart from the step's own deadline.
func (r *Runner) waitWithLimit(ctx context.Context, handle container.Handle, limit time.Duration) (exitCode int, terminatedByLimit, canceled bool) {
	done := make(chan struct{})
	var code int
	go func() {
		c, err := r.driver.Wait(ctx, handle)
		if err == nil {
			code = c
		}
		close(done)
	}()

	var timerC <-chan time.Time
	if limit > 0 {
		timer := time.NewTimer(limit)
		defer timer.Stop()
		timerC = timer.C
	}

	select {
	case <-done:
		return code, false, false
	case <-ctx.Done():
		r.stopThenKill(handle, done)
		return code, false, true
	case <-timerC:
		r.stopThenKill(handle, done)
		return code, true, false
	}
}

// stopThenKill sends a soft stop and waits up to the grace period for
// done to close; if it hasn't, it escalates to a hard kill and blocks
// until the process has actually exited. ctx may already be canceled
// by the time this runs, so teardown calls use a fresh context.
func (r *Runner) stopThenKill(handle container.Handle, done <-chan struct{}) {
	teardown := context.Background()
	_ = r.driver.Stop(teardown, handle, r.gracePeriod)
	select {
	case <-done:
	case <-time.After(r.gracePeriod):
		_ = r.driver.Kill(teardown, handle)
		<-done
	}
}

func (r *Runner) errorResult(step *store.StepExecution, cause error) *store.StepExecution {
	now := time.Now()
	step.EndedAt = &now
	step.Status = store.StatusError
	step.Error = cause.Error()
	return step
}

// timeLimit resolves the step's effective time budget: the step's own
// time_limit if declared, otherwise fallback. "0s" disables the timer.
func timeLimit(declared string, fallback time.Duration) (time.Duration, error) {
	if declared == "" {
		return fallback, nil
	}
	return duration.Parse(declared)
}

func inputBindings(inputs map[string]string) map[string]any {
	bound := make(map[string]any, len(inputs))
	for k, v := range inputs {
		bound[k] = v
	}
	return bound
}

func resourceBindings(res workflow.ResourceRequest) map[string]any {
	return map[string]any{
		"cpu":        res.CPU,
		"memory":     res.Memory,
		"time_limit": res.TimeLimit,
	}
}
