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

// Package store provides the state repository backends for the engine.
//
// # Interface Hierarchy
//
// The package uses interface segregation to allow minimal implementations:
//
//   - WorkflowStore (core): CreateWorkflow, GetWorkflowByNameVersion, ListWorkflows
//   - RunStore (core): CreateRun, UpdateRunStatus, ListRuns, GetRunWithSteps, DeleteRun
//   - StepExecutionStore (core): AddStepExecution, UpdateStepExecution
//
// Repository composes all three plus io.Closer for lifecycle management.
// Both provided backends (sqlite, memory) implement the full Repository.
package store

import (
	"context"
	"io"
	"time"
)

// Status is a workflow run or step execution state.
type Status string

const (
	StatusPending               Status = "PENDING"
	StatusRunning               Status = "RUNNING"
	StatusCompleted             Status = "COMPLETED"
	StatusFailed                Status = "FAILED"
	StatusError                 Status = "ERROR"
	StatusTerminatedTimeLimit   Status = "TERMINATED_TIME_LIMIT"
	StatusSkipped               Status = "SKIPPED"
)

// IsTerminal reports whether status is one a Run or StepExecution does
// not leave on its own.
func IsTerminal(s Status) bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusError, StatusTerminatedTimeLimit, StatusSkipped:
		return true
	default:
		return false
	}
}

// Workflow is the immutable, versioned workflow document. Content
// changes require a new Version; CreateWorkflow treats a duplicate
// (Name, Version) as already-registered, returns nil and leaves the
// existing row untouched.
type Workflow struct {
	Name        string
	Version     string
	Description string
	Source      string // the validated workflow document, as YAML
	CreatedAt   time.Time
}

// Run is one execution of a Workflow.
type Run struct {
	ID              string
	WorkflowName    string
	WorkflowVersion string
	Status          Status
	Inputs          map[string]string
	RunDir          string
	StartedAt       time.Time
	EndedAt         *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StepExecution is one step's execution record within a Run. Re-running
// the same step name on resume creates a new row rather than reusing
// the old one, so history of a resumed run retains every attempt.
type StepExecution struct {
	ID        int64
	RunID     string
	StepName  string
	Status    Status
	StartedAt *time.Time
	EndedAt   *time.Time
	ExitCode  *int
	Error     string
	LogPath   string
	Outputs   []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RunFilter narrows ListRuns results.
type RunFilter struct {
	Workflow string
	Status   Status
	Limit    int
	Offset   int
}

// WorkflowStore persists workflow definitions.
type WorkflowStore interface {
	// CreateWorkflow registers a workflow. A duplicate (Name, Version)
	// is not an error: the existing row is left untouched.
	CreateWorkflow(ctx context.Context, wf *Workflow) error

	// GetWorkflowByNameVersion retrieves a workflow by its natural key.
	GetWorkflowByNameVersion(ctx context.Context, name, version string) (*Workflow, error)

	// ListWorkflows returns every registered workflow.
	ListWorkflows(ctx context.Context) ([]*Workflow, error)
}

// RunStore persists run records.
type RunStore interface {
	// CreateRun inserts a new run row.
	CreateRun(ctx context.Context, run *Run) error

	// UpdateRunStatus transitions a run's status and, for a terminal
	// status, records its end time.
	UpdateRunStatus(ctx context.Context, runID string, status Status, endedAt *time.Time) error

	// ListRuns lists runs matching filter, newest first.
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)

	// GetRunWithSteps retrieves a run and all of its step executions.
	GetRunWithSteps(ctx context.Context, runID string) (*Run, []*StepExecution, error)

	// DeleteRun removes a run and its step executions. It refuses to
	// delete a run whose status is not terminal.
	DeleteRun(ctx context.Context, runID string) error
}

// StepExecutionStore persists per-step execution records.
type StepExecutionStore interface {
	// AddStepExecution inserts a new step execution row and assigns its ID.
	AddStepExecution(ctx context.Context, step *StepExecution) error

	// UpdateStepExecution updates an existing step execution row by ID.
	UpdateStepExecution(ctx context.Context, step *StepExecution) error
}

// Repository is the full interface for engine storage.
type Repository interface {
	WorkflowStore
	RunStore
	StepExecutionStore
	io.Closer
}
