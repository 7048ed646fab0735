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

package filewatcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lewislovelock/bioinfoflow/internal/config"
	"github.com/lewislovelock/bioinfoflow/internal/container"
	"github.com/lewislovelock/bioinfoflow/internal/engine"
	"github.com/lewislovelock/bioinfoflow/internal/store"
	"github.com/lewislovelock/bioinfoflow/internal/store/memory"
	"github.com/stretchr/testify/require"
)

const ingestYAML = `
name: ingest
version: "1.0.0"
inputs:
  sample:
    path: "*.txt"
steps:
  a:
    container: step-a
    command: echo hi
`

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cfg := config.Default()
	cfg.RunDir = t.TempDir()
	cfg.DefaultParallelism = 2
	cfg.DefaultTimeLimit = time.Hour
	cfg.GracePeriod = 50 * time.Millisecond
	return engine.New(cfg, memory.New(), container.NewFakeDriver())
}

func writeTestWorkflow(t *testing.T, contents string) (dir, path string) {
	t.Helper()
	dir = t.TempDir()
	path = filepath.Join(dir, "workflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return dir, path
}

func TestService_AddWatcher_TriggersRunOnFileCreation(t *testing.T) {
	eng := newTestEngine(t)
	workflowDir, workflowPath := writeTestWorkflow(t, ingestYAML)
	watchDir := t.TempDir()

	svc := NewService(workflowDir, eng)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Start(ctx))
	defer svc.Stop()

	require.NoError(t, svc.AddWatcher(WatchConfig{
		Name:      "ingest",
		Workflow:  filepath.Base(workflowPath),
		Paths:     []string{watchDir},
		Events:    []string{"created"},
		InputName: "sample",
	}))

	require.NoError(t, os.WriteFile(filepath.Join(watchDir, "sample.txt"), []byte("data"), 0o644))

	require.Eventually(t, func() bool {
		runs, err := eng.List(context.Background(), store.RunFilter{})
		return err == nil && len(runs) == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestService_AddWatcher_RejectsDuplicateName(t *testing.T) {
	eng := newTestEngine(t)
	workflowDir, workflowPath := writeTestWorkflow(t, ingestYAML)
	watchDir := t.TempDir()

	svc := NewService(workflowDir, eng)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Start(ctx))
	defer svc.Stop()

	cfg := WatchConfig{Name: "dup", Workflow: filepath.Base(workflowPath), Paths: []string{watchDir}}
	require.NoError(t, svc.AddWatcher(cfg))
	require.Error(t, svc.AddWatcher(cfg))
}

func TestService_RemoveWatcher_StopsDeliveringEvents(t *testing.T) {
	eng := newTestEngine(t)
	workflowDir, workflowPath := writeTestWorkflow(t, ingestYAML)
	watchDir := t.TempDir()

	svc := NewService(workflowDir, eng)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Start(ctx))
	defer svc.Stop()

	require.NoError(t, svc.AddWatcher(WatchConfig{
		Name:     "ingest",
		Workflow: filepath.Base(workflowPath),
		Paths:    []string{watchDir},
	}))
	require.Len(t, svc.ListWatchers(), 1)

	require.NoError(t, svc.RemoveWatcher("ingest"))
	require.Empty(t, svc.ListWatchers())
	require.Error(t, svc.RemoveWatcher("ingest"))
}
