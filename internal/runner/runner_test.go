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

package runner_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lewislovelock/bioinfoflow/internal/container"
	"github.com/lewislovelock/bioinfoflow/internal/rundir"
	"github.com/lewislovelock/bioinfoflow/internal/runner"
	"github.com/lewislovelock/bioinfoflow/internal/store"
	"github.com/lewislovelock/bioinfoflow/pkg/workflow"
	"github.com/stretchr/testify/require"
)

// outputWritingDriver wraps a FakeDriver and additionally writes a file
// into the run directory's outputs/ on Run, simulating a container
// process that produces an artefact.
type outputWritingDriver struct {
	*container.FakeDriver
	outputsDir string
	fileName   string
}

func (d *outputWritingDriver) Run(ctx context.Context, spec container.RunSpec) (container.Handle, error) {
	h, err := d.FakeDriver.Run(ctx, spec)
	if err != nil {
		return h, err
	}
	if d.fileName != "" {
		_ = os.WriteFile(filepath.Join(d.outputsDir, d.fileName), []byte("data"), 0o644)
	}
	return h, nil
}

func setup(t *testing.T) (rundir.Dir, *workflow.Definition, *store.Run) {
	t.Helper()
	base := t.TempDir()
	def := &workflow.Definition{
		Name:    "align",
		Version: "1.0.0",
		Config:  map[string]any{"ref": "/ref/genome.fa"},
	}
	d, err := rundir.Create(base, def.Name, def.Version, "run-1", def)
	require.NoError(t, err)

	run := &store.Run{
		ID:              "run-1",
		WorkflowName:    def.Name,
		WorkflowVersion: def.Version,
		RunDir:          d.Root,
		Inputs:          map[string]string{"sample": "NA12878"},
	}
	return d, def, run
}

func TestRun_Success(t *testing.T) {
	d, def, run := setup(t)
	fake := container.NewFakeDriver()
	fake.ExitCode["alpine"] = 0
	driver := &outputWritingDriver{FakeDriver: fake, outputsDir: d.Outputs(), fileName: "a.txt"}

	r := runner.New(driver, time.Hour, time.Second)
	step := workflow.StepDefinition{
		Name:      "a",
		Container: "alpine",
		Command:   "echo ${inputs.sample} > ${run_dir}/outputs/a.txt",
	}

	result := r.Run(context.Background(), runner.Request{Run: run, Def: def, Step: step, RunDir: d})

	require.Equal(t, store.StatusCompleted, result.Status)
	require.NotNil(t, result.ExitCode)
	require.Equal(t, 0, *result.ExitCode)
	require.Equal(t, []string{"a.txt"}, result.Outputs)
	require.NotNil(t, result.StartedAt)
	require.NotNil(t, result.EndedAt)

	content, err := os.ReadFile(d.LogPath("a"))
	require.NoError(t, err)
	require.True(t, strings.Contains(string(content), "NA12878"))
	require.True(t, strings.Contains(string(content), d.Root))
}

func TestRun_NonZeroExitIsFailed(t *testing.T) {
	d, def, run := setup(t)
	fake := container.NewFakeDriver()
	fake.ExitCode["alpine"] = 1

	r := runner.New(fake, time.Hour, time.Second)
	step := workflow.StepDefinition{Name: "a", Container: "alpine", Command: "false"}

	result := r.Run(context.Background(), runner.Request{Run: run, Def: def, Step: step, RunDir: d})

	require.Equal(t, store.StatusFailed, result.Status)
	require.NotEmpty(t, result.Error)
}

func TestRun_LaunchErrorIsError(t *testing.T) {
	d, def, run := setup(t)
	fake := container.NewFakeDriver()
	fake.LaunchErr["broken"] = context.DeadlineExceeded

	r := runner.New(fake, time.Hour, time.Second)
	step := workflow.StepDefinition{Name: "a", Container: "broken", Command: "echo hi"}

	result := r.Run(context.Background(), runner.Request{Run: run, Def: def, Step: step, RunDir: d})

	require.Equal(t, store.StatusError, result.Status)
	require.NotEmpty(t, result.Error)
}

func TestRun_TimeLimitExceeded(t *testing.T) {
	d, def, run := setup(t)
	fake := container.NewFakeDriver()
	fake.RunFor["alpine"] = time.Hour

	r := runner.New(fake, time.Hour, 50*time.Millisecond)
	step := workflow.StepDefinition{
		Name:      "a",
		Container: "alpine",
		Command:   "sleep 3600",
		Resources: workflow.ResourceRequest{TimeLimit: "1s"},
	}

	started := time.Now()
	result := r.Run(context.Background(), runner.Request{Run: run, Def: def, Step: step, RunDir: d})
	elapsed := time.Since(started)

	require.Equal(t, store.StatusTerminatedTimeLimit, result.Status)
	require.Less(t, elapsed, 2*time.Second)
	require.Contains(t, result.Error, "time limit")
}
