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

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/lewislovelock/bioinfoflow/internal/store"
	bioerrors "github.com/lewislovelock/bioinfoflow/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestCreateWorkflow_DuplicateIsNoOp(t *testing.T) {
	b := New()
	ctx := context.Background()

	require.NoError(t, b.CreateWorkflow(ctx, &store.Workflow{Name: "align", Version: "1.0.0", Description: "first"}))
	require.NoError(t, b.CreateWorkflow(ctx, &store.Workflow{Name: "align", Version: "1.0.0", Description: "second"}))

	got, err := b.GetWorkflowByNameVersion(ctx, "align", "1.0.0")
	require.NoError(t, err)
	require.Equal(t, "first", got.Description)
}

func TestRunLifecycle(t *testing.T) {
	b := New()
	ctx := context.Background()

	run := &store.Run{ID: "run-1", WorkflowName: "align", WorkflowVersion: "1.0.0", Status: store.StatusRunning, StartedAt: time.Now()}
	require.NoError(t, b.CreateRun(ctx, run))

	step := &store.StepExecution{RunID: run.ID, StepName: "a", Status: store.StatusRunning}
	require.NoError(t, b.AddStepExecution(ctx, step))

	step.Status = store.StatusCompleted
	require.NoError(t, b.UpdateStepExecution(ctx, step))

	gotRun, gotSteps, err := b.GetRunWithSteps(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, store.StatusRunning, gotRun.Status)
	require.Len(t, gotSteps, 1)
	require.Equal(t, store.StatusCompleted, gotSteps[0].Status)

	now := time.Now()
	require.NoError(t, b.UpdateRunStatus(ctx, run.ID, store.StatusCompleted, &now))

	gotRun, _, err = b.GetRunWithSteps(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, store.StatusCompleted, gotRun.Status)
}

func TestDeleteRun_RefusesNonTerminal(t *testing.T) {
	b := New()
	ctx := context.Background()

	require.NoError(t, b.CreateRun(ctx, &store.Run{ID: "run-1", Status: store.StatusRunning, StartedAt: time.Now()}))

	err := b.DeleteRun(ctx, "run-1")
	require.Error(t, err)
	var validationErr *bioerrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestListRuns_LimitAndOffset(t *testing.T) {
	b := New()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, b.CreateRun(ctx, &store.Run{
			ID:        string(rune('a' + i)),
			Status:    store.StatusCompleted,
			StartedAt: time.Now(),
		}))
	}

	runs, err := b.ListRuns(ctx, store.RunFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, runs, 2)
}
