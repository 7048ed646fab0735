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

// Package memory provides an in-memory Repository implementation, used
// by tests and by short-lived invocations that do not need durable
// history.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lewislovelock/bioinfoflow/internal/store"
	bioerrors "github.com/lewislovelock/bioinfoflow/pkg/errors"
)

var (
	_ store.WorkflowStore      = (*Backend)(nil)
	_ store.RunStore           = (*Backend)(nil)
	_ store.StepExecutionStore = (*Backend)(nil)
	_ store.Repository         = (*Backend)(nil)
)

type workflowKey struct {
	name    string
	version string
}

// Backend is an in-memory storage backend.
type Backend struct {
	mu        sync.RWMutex
	workflows map[workflowKey]*store.Workflow
	runs      map[string]*store.Run
	steps     map[string][]*store.StepExecution // keyed by run ID
	nextStep  int64
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{
		workflows: make(map[workflowKey]*store.Workflow),
		runs:      make(map[string]*store.Run),
		steps:     make(map[string][]*store.StepExecution),
	}
}

// CreateWorkflow registers wf, leaving an existing (name, version) row
// untouched.
func (b *Backend) CreateWorkflow(ctx context.Context, wf *store.Workflow) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := workflowKey{wf.Name, wf.Version}
	if _, exists := b.workflows[key]; exists {
		return nil
	}
	wf.CreatedAt = time.Now()
	stored := *wf
	b.workflows[key] = &stored
	return nil
}

// GetWorkflowByNameVersion retrieves a workflow by its natural key.
func (b *Backend) GetWorkflowByNameVersion(ctx context.Context, name, version string) (*store.Workflow, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	wf, ok := b.workflows[workflowKey{name, version}]
	if !ok {
		return nil, &bioerrors.NotFoundError{Resource: "workflow", ID: fmt.Sprintf("%s@%s", name, version)}
	}
	copied := *wf
	return &copied, nil
}

// ListWorkflows returns every registered workflow, newest first.
func (b *Backend) ListWorkflows(ctx context.Context) ([]*store.Workflow, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]*store.Workflow, 0, len(b.workflows))
	for _, wf := range b.workflows {
		copied := *wf
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

// CreateRun inserts a new run row.
func (b *Backend) CreateRun(ctx context.Context, run *store.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.runs[run.ID]; exists {
		return &bioerrors.RepositoryError{Op: "create_run", Cause: fmt.Errorf("run already exists: %s", run.ID)}
	}
	now := time.Now()
	run.CreatedAt = now
	run.UpdatedAt = now
	stored := *run
	b.runs[run.ID] = &stored
	return nil
}

// UpdateRunStatus transitions a run's status and, if endedAt is set,
// records its end time.
func (b *Backend) UpdateRunStatus(ctx context.Context, runID string, status store.Status, endedAt *time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	run, ok := b.runs[runID]
	if !ok {
		return &bioerrors.NotFoundError{Resource: "run", ID: runID}
	}
	run.Status = status
	run.EndedAt = endedAt
	run.UpdatedAt = time.Now()
	return nil
}

// ListRuns lists runs matching filter, newest first.
func (b *Backend) ListRuns(ctx context.Context, filter store.RunFilter) ([]*store.Run, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []*store.Run
	for _, run := range b.runs {
		if filter.Workflow != "" && run.WorkflowName != filter.Workflow {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		copied := *run
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return nil, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// GetRunWithSteps retrieves a run and all of its step executions.
func (b *Backend) GetRunWithSteps(ctx context.Context, runID string) (*store.Run, []*store.StepExecution, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	run, ok := b.runs[runID]
	if !ok {
		return nil, nil, &bioerrors.NotFoundError{Resource: "run", ID: runID}
	}
	copied := *run

	steps := make([]*store.StepExecution, len(b.steps[runID]))
	for i, s := range b.steps[runID] {
		c := *s
		steps[i] = &c
	}
	return &copied, steps, nil
}

// DeleteRun removes a run and its step executions. It refuses to delete
// a run whose status is not yet terminal.
func (b *Backend) DeleteRun(ctx context.Context, runID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	run, ok := b.runs[runID]
	if !ok {
		return &bioerrors.NotFoundError{Resource: "run", ID: runID}
	}
	if !store.IsTerminal(run.Status) {
		return &bioerrors.ValidationError{Field: "run_id", Message: fmt.Sprintf("run %s is not terminal (status=%s)", runID, run.Status)}
	}
	delete(b.runs, runID)
	delete(b.steps, runID)
	return nil
}

// AddStepExecution inserts a new step execution row and assigns its ID.
func (b *Backend) AddStepExecution(ctx context.Context, step *store.StepExecution) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextStep++
	now := time.Now()
	step.ID = b.nextStep
	step.CreatedAt = now
	step.UpdatedAt = now
	stored := *step
	b.steps[step.RunID] = append(b.steps[step.RunID], &stored)
	return nil
}

// UpdateStepExecution updates an existing step execution row by ID.
func (b *Backend) UpdateStepExecution(ctx context.Context, step *store.StepExecution) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.steps[step.RunID] {
		if s.ID == step.ID {
			s.Status = step.Status
			s.StartedAt = step.StartedAt
			s.EndedAt = step.EndedAt
			s.ExitCode = step.ExitCode
			s.Error = step.Error
			s.LogPath = step.LogPath
			s.Outputs = step.Outputs
			s.UpdatedAt = time.Now()
			step.UpdatedAt = s.UpdatedAt
			return nil
		}
	}
	return &bioerrors.NotFoundError{Resource: "step_execution", ID: fmt.Sprintf("%d", step.ID)}
}

// Close is a no-op; the in-memory backend holds no external resources.
func (b *Backend) Close() error {
	return nil
}
