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

package scheduler_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lewislovelock/bioinfoflow/internal/container"
	"github.com/lewislovelock/bioinfoflow/internal/rundir"
	"github.com/lewislovelock/bioinfoflow/internal/runner"
	"github.com/lewislovelock/bioinfoflow/internal/scheduler"
	"github.com/lewislovelock/bioinfoflow/internal/store"
	"github.com/lewislovelock/bioinfoflow/internal/store/memory"
	"github.com/lewislovelock/bioinfoflow/pkg/workflow"
	"github.com/stretchr/testify/require"
)

// scriptedDriver writes a fixed file into outputs/ whenever a step
// using the matching image is run, simulating a container process that
// produces an artefact. It otherwise delegates entirely to FakeDriver.
type scriptedDriver struct {
	*container.FakeDriver
	outputsDir  string
	fileByImage map[string]string
}

func (d *scriptedDriver) Run(ctx context.Context, spec container.RunSpec) (container.Handle, error) {
	h, err := d.FakeDriver.Run(ctx, spec)
	if err != nil {
		return h, err
	}
	if f, ok := d.fileByImage[spec.Image]; ok {
		_ = os.WriteFile(filepath.Join(d.outputsDir, f), []byte("data"), 0o644)
	}
	return h, nil
}

func newRun(t *testing.T, def *workflow.Definition) (rundir.Dir, *store.Run) {
	t.Helper()
	base := t.TempDir()
	d, err := rundir.Create(base, def.Name, def.Version, "run-1", def)
	require.NoError(t, err)
	return d, &store.Run{
		ID:              "run-1",
		WorkflowName:    def.Name,
		WorkflowVersion: def.Version,
		RunDir:          d.Root,
		Status:          store.StatusRunning,
		StartedAt:       time.Now(),
	}
}

func TestExecute_LinearSuccess(t *testing.T) {
	def := &workflow.Definition{
		Name:    "linear",
		Version: "1.0.0",
		Steps: []workflow.StepDefinition{
			{Name: "a", Container: "step-a", Command: "echo hi"},
			{Name: "b", Container: "step-b", Command: "echo hi", After: []string{"a"}},
		},
	}
	dir, run := newRun(t, def)

	repo := memory.New()
	require.NoError(t, repo.CreateRun(context.Background(), run))

	fake := container.NewFakeDriver()
	driver := &scriptedDriver{
		FakeDriver: fake,
		outputsDir: dir.Outputs(),
		fileByImage: map[string]string{
			"step-a": "a.txt",
			"step-b": "b.txt",
		},
	}
	r := runner.New(driver, time.Hour, time.Second)
	sched := scheduler.New(repo, r, 4)

	status, err := sched.Execute(context.Background(), run, def, dir, nil, nil)
	require.NoError(t, err)
	require.Equal(t, store.StatusCompleted, status)

	_, steps, err := repo.GetRunWithSteps(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)

	byName := map[string]*store.StepExecution{}
	for _, s := range steps {
		byName[s.StepName] = s
	}
	require.Equal(t, store.StatusCompleted, byName["a"].Status)
	require.Equal(t, store.StatusCompleted, byName["b"].Status)
	require.NotNil(t, byName["b"].StartedAt)
	require.NotNil(t, byName["a"].EndedAt)
	require.True(t, byName["b"].StartedAt.After(*byName["a"].EndedAt) || byName["b"].StartedAt.Equal(*byName["a"].EndedAt))

	require.FileExists(t, filepath.Join(dir.Outputs(), "a.txt"))
	require.FileExists(t, filepath.Join(dir.Outputs(), "b.txt"))
}

func TestExecute_FanOutFanIn(t *testing.T) {
	def := &workflow.Definition{
		Name:    "fanout",
		Version: "1.0.0",
		Steps: []workflow.StepDefinition{
			{Name: "generate", Container: "gen", Command: "generate"},
			{Name: "count_words", Container: "mid", Command: "count", After: []string{"generate"}},
			{Name: "calc_sum", Container: "mid", Command: "sum", After: []string{"generate"}},
			{Name: "sort_fruits", Container: "mid", Command: "sort", After: []string{"generate"}},
			{Name: "final", Container: "fin", Command: "final", After: []string{"count_words", "calc_sum", "sort_fruits"}},
		},
	}
	dir, run := newRun(t, def)

	repo := memory.New()
	require.NoError(t, repo.CreateRun(context.Background(), run))

	fake := container.NewFakeDriver()
	fake.RunFor["mid"] = 30 * time.Millisecond
	r := runner.New(fake, time.Hour, time.Second)
	sched := scheduler.New(repo, r, 4)

	status, err := sched.Execute(context.Background(), run, def, dir, nil, nil)
	require.NoError(t, err)
	require.Equal(t, store.StatusCompleted, status)

	_, steps, err := repo.GetRunWithSteps(context.Background(), run.ID)
	require.NoError(t, err)
	byName := map[string]*store.StepExecution{}
	for _, s := range steps {
		byName[s.StepName] = s
	}

	maxMiddleStart := byName["count_words"].StartedAt
	for _, name := range []string{"calc_sum", "sort_fruits"} {
		if byName[name].StartedAt.After(*maxMiddleStart) {
			maxMiddleStart = byName[name].StartedAt
		}
	}
	minMiddleEnd := byName["count_words"].EndedAt
	for _, name := range []string{"calc_sum", "sort_fruits"} {
		if byName[name].EndedAt.Before(*minMiddleEnd) {
			minMiddleEnd = byName[name].EndedAt
		}
	}
	require.True(t, maxMiddleStart.Before(*minMiddleEnd), "middle steps should overlap under P=4")

	for _, name := range []string{"count_words", "calc_sum", "sort_fruits"} {
		require.True(t, !byName["final"].StartedAt.Before(*byName[name].EndedAt),
			"final must start only after %s completes", name)
	}
}

func TestExecute_FailurePropagatesSkip(t *testing.T) {
	def := &workflow.Definition{
		Name:    "propagate",
		Version: "1.0.0",
		Steps: []workflow.StepDefinition{
			{Name: "a", Container: "broken", Command: "exit 1"},
			{Name: "b", Container: "mid", Command: "echo", After: []string{"a"}},
			{Name: "c", Container: "mid", Command: "echo", After: []string{"b"}},
		},
	}
	dir, run := newRun(t, def)

	repo := memory.New()
	require.NoError(t, repo.CreateRun(context.Background(), run))

	fake := container.NewFakeDriver()
	fake.ExitCode["broken"] = 1
	r := runner.New(fake, time.Hour, time.Second)
	sched := scheduler.New(repo, r, 4)

	status, err := sched.Execute(context.Background(), run, def, dir, nil, nil)
	require.NoError(t, err)
	require.Equal(t, store.StatusFailed, status)

	_, steps, err := repo.GetRunWithSteps(context.Background(), run.ID)
	require.NoError(t, err)
	byName := map[string]*store.StepExecution{}
	for _, s := range steps {
		byName[s.StepName] = s
	}
	require.Equal(t, store.StatusFailed, byName["a"].Status)
	require.Equal(t, store.StatusSkipped, byName["b"].Status)
	require.Equal(t, store.StatusSkipped, byName["c"].Status)
}

func TestExecute_ResumeIsIdempotentWhenAlreadyCompleted(t *testing.T) {
	def := &workflow.Definition{
		Name:    "resume-noop",
		Version: "1.0.0",
		Steps: []workflow.StepDefinition{
			{Name: "a", Container: "step-a", Command: "echo"},
		},
	}
	dir, run := newRun(t, def)
	end := time.Now()
	run.Status = store.StatusCompleted
	run.EndedAt = &end

	repo := memory.New()
	require.NoError(t, repo.CreateRun(context.Background(), run))

	fake := container.NewFakeDriver()
	r := runner.New(fake, time.Hour, time.Second)
	sched := scheduler.New(repo, r, 4)

	prior := map[string]*store.StepExecution{"a": {StepName: "a", Status: store.StatusCompleted}}
	status, err := sched.Execute(context.Background(), run, def, dir, prior, nil)
	require.NoError(t, err)
	require.Equal(t, store.StatusCompleted, status)

	_, steps, err := repo.GetRunWithSteps(context.Background(), run.ID)
	require.NoError(t, err)
	require.Empty(t, steps, "resuming an already-completed run must not create new step executions")
}

func TestExecute_ResumeReschedulesFailedStepsWithOverride(t *testing.T) {
	def := &workflow.Definition{
		Name:    "resume",
		Version: "1.0.0",
		Steps: []workflow.StepDefinition{
			{Name: "a", Container: "step-a", Command: "exit 1"},
			{Name: "b", Container: "step-b", Command: "echo", After: []string{"a"}},
		},
	}
	dir, run := newRun(t, def)

	repo := memory.New()
	require.NoError(t, repo.CreateRun(context.Background(), run))

	fake := container.NewFakeDriver()
	r := runner.New(fake, time.Hour, time.Second)
	sched := scheduler.New(repo, r, 4)

	prior := map[string]*store.StepExecution{
		"a": {StepName: "a", Status: store.StatusFailed},
		"b": {StepName: "b", Status: store.StatusSkipped},
	}
	overrides := map[string]scheduler.Override{"a": {Command: "exit 0"}}

	status, err := sched.Execute(context.Background(), run, def, dir, prior, overrides)
	require.NoError(t, err)
	require.Equal(t, store.StatusCompleted, status)

	_, steps, err := repo.GetRunWithSteps(context.Background(), run.ID)
	require.NoError(t, err)
	byName := map[string]*store.StepExecution{}
	for _, s := range steps {
		byName[s.StepName] = s
	}
	require.Equal(t, store.StatusCompleted, byName["a"].Status)
	require.Equal(t, store.StatusCompleted, byName["b"].Status)
}
