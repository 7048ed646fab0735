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

// Package sqlite provides a SQLite backend implementation for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lewislovelock/bioinfoflow/internal/store"
	bioerrors "github.com/lewislovelock/bioinfoflow/pkg/errors"
	_ "modernc.org/sqlite"
)

var (
	_ store.WorkflowStore      = (*Backend)(nil)
	_ store.RunStore           = (*Backend)(nil)
	_ store.StepExecutionStore = (*Backend)(nil)
	_ store.Repository         = (*Backend)(nil)
)

// Backend is a SQLite storage backend.
type Backend struct {
	db *sql.DB
}

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path.
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool
}

// New opens (creating if necessary) a SQLite-backed Repository.
func New(cfg Config) (*Backend, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, &bioerrors.RepositoryError{Op: "open", Cause: err}
	}

	// SQLite serializes writes; one connection avoids lock contention
	// between concurrent step executions updating the same run.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &bioerrors.RepositoryError{Op: "open", Cause: err}
	}

	b := &Backend{db: db}

	if err := b.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, &bioerrors.RepositoryError{Op: "configure", Cause: err}
	}
	if err := b.migrate(ctx); err != nil {
		db.Close()
		return nil, &bioerrors.RepositoryError{Op: "migrate", Cause: err}
	}

	return b, nil
}

func (b *Backend) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, pragma := range pragmas {
		if _, err := b.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (b *Backend) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			name TEXT NOT NULL,
			version TEXT NOT NULL,
			description TEXT,
			source TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (name, version)
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			workflow_name TEXT NOT NULL,
			workflow_version TEXT NOT NULL,
			status TEXT NOT NULL,
			inputs TEXT,
			run_dir TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_workflow ON runs(workflow_name)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
		`CREATE TABLE IF NOT EXISTS step_executions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			step_name TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TEXT,
			ended_at TEXT,
			exit_code INTEGER,
			error TEXT,
			log_path TEXT,
			outputs TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_step_executions_run_id ON step_executions(run_id)`,
	}
	for _, migration := range migrations {
		if _, err := b.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// CreateWorkflow registers wf, leaving an existing (name, version) row
// untouched.
func (b *Backend) CreateWorkflow(ctx context.Context, wf *store.Workflow) error {
	now := time.Now()
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO workflows (name, version, description, source, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name, version) DO NOTHING
	`, wf.Name, wf.Version, wf.Description, wf.Source, now.Format(time.RFC3339))
	if err != nil {
		return &bioerrors.RepositoryError{Op: "create_workflow", Cause: err}
	}
	wf.CreatedAt = now
	return nil
}

// GetWorkflowByNameVersion retrieves a workflow by its natural key.
func (b *Backend) GetWorkflowByNameVersion(ctx context.Context, name, version string) (*store.Workflow, error) {
	var wf store.Workflow
	var description sql.NullString
	var createdAt string
	err := b.db.QueryRowContext(ctx, `
		SELECT name, version, description, source, created_at
		FROM workflows WHERE name = ? AND version = ?
	`, name, version).Scan(&wf.Name, &wf.Version, &description, &wf.Source, &createdAt)
	if err == sql.ErrNoRows {
		return nil, &bioerrors.NotFoundError{Resource: "workflow", ID: fmt.Sprintf("%s@%s", name, version)}
	}
	if err != nil {
		return nil, &bioerrors.RepositoryError{Op: "get_workflow_by_name_version", Cause: err}
	}
	wf.Description = description.String
	wf.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &wf, nil
}

// ListWorkflows returns every registered workflow, newest first.
func (b *Backend) ListWorkflows(ctx context.Context) ([]*store.Workflow, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT name, version, description, source, created_at
		FROM workflows ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, &bioerrors.RepositoryError{Op: "list_workflows", Cause: err}
	}
	defer rows.Close()

	var workflows []*store.Workflow
	for rows.Next() {
		var wf store.Workflow
		var description sql.NullString
		var createdAt string
		if err := rows.Scan(&wf.Name, &wf.Version, &description, &wf.Source, &createdAt); err != nil {
			return nil, &bioerrors.RepositoryError{Op: "list_workflows", Cause: err}
		}
		wf.Description = description.String
		wf.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		workflows = append(workflows, &wf)
	}
	return workflows, nil
}

// CreateRun inserts a new run row.
func (b *Backend) CreateRun(ctx context.Context, run *store.Run) error {
	inputsJSON, err := json.Marshal(run.Inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}

	now := time.Now()
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO runs (id, workflow_name, workflow_version, status, inputs, run_dir, started_at, ended_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.WorkflowName, run.WorkflowVersion, string(run.Status), string(inputsJSON),
		run.RunDir, run.StartedAt.Format(time.RFC3339), formatTime(run.EndedAt),
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return &bioerrors.RepositoryError{Op: "create_run", Cause: err}
	}
	run.CreatedAt = now
	run.UpdatedAt = now
	return nil
}

// UpdateRunStatus transitions a run's status and, if endedAt is set,
// records its end time.
func (b *Backend) UpdateRunStatus(ctx context.Context, runID string, status store.Status, endedAt *time.Time) error {
	now := time.Now()
	result, err := b.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, ended_at = ?, updated_at = ? WHERE id = ?
	`, string(status), formatTime(endedAt), now.Format(time.RFC3339), runID)
	if err != nil {
		return &bioerrors.RepositoryError{Op: "update_run_status", Cause: err}
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return &bioerrors.NotFoundError{Resource: "run", ID: runID}
	}
	return nil
}

// ListRuns lists runs matching filter, newest first.
func (b *Backend) ListRuns(ctx context.Context, filter store.RunFilter) ([]*store.Run, error) {
	query := `SELECT id, workflow_name, workflow_version, status, inputs, run_dir, started_at, ended_at, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Workflow != "" {
		query += " AND workflow_name = ?"
		args = append(args, filter.Workflow)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &bioerrors.RepositoryError{Op: "list_runs", Cause: err}
	}
	defer rows.Close()

	var runs []*store.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, &bioerrors.RepositoryError{Op: "list_runs", Cause: err}
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// GetRunWithSteps retrieves a run and all of its step executions,
// ordered by creation (attempt order).
func (b *Backend) GetRunWithSteps(ctx context.Context, runID string) (*store.Run, []*store.StepExecution, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT id, workflow_name, workflow_version, status, inputs, run_dir, started_at, ended_at, created_at, updated_at
		FROM runs WHERE id = ?
	`, runID)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil, &bioerrors.NotFoundError{Resource: "run", ID: runID}
	}
	if err != nil {
		return nil, nil, &bioerrors.RepositoryError{Op: "get_run_with_steps", Cause: err}
	}

	rows, err := b.db.QueryContext(ctx, `
		SELECT id, run_id, step_name, status, started_at, ended_at, exit_code, error, log_path, outputs, created_at, updated_at
		FROM step_executions WHERE run_id = ? ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, nil, &bioerrors.RepositoryError{Op: "get_run_with_steps", Cause: err}
	}
	defer rows.Close()

	var steps []*store.StepExecution
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, nil, &bioerrors.RepositoryError{Op: "get_run_with_steps", Cause: err}
		}
		steps = append(steps, step)
	}

	return run, steps, nil
}

// DeleteRun removes a run and its step executions. It refuses to delete
// a run whose status is not yet terminal.
func (b *Backend) DeleteRun(ctx context.Context, runID string) error {
	var status string
	err := b.db.QueryRowContext(ctx, `SELECT status FROM runs WHERE id = ?`, runID).Scan(&status)
	if err == sql.ErrNoRows {
		return &bioerrors.NotFoundError{Resource: "run", ID: runID}
	}
	if err != nil {
		return &bioerrors.RepositoryError{Op: "delete_run", Cause: err}
	}
	if !store.IsTerminal(store.Status(status)) {
		return &bioerrors.ValidationError{Field: "run_id", Message: fmt.Sprintf("run %s is not terminal (status=%s)", runID, status)}
	}

	if _, err := b.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID); err != nil {
		return &bioerrors.RepositoryError{Op: "delete_run", Cause: err}
	}
	return nil
}

// AddStepExecution inserts a new step execution row and assigns its ID.
func (b *Backend) AddStepExecution(ctx context.Context, step *store.StepExecution) error {
	outputsJSON, err := json.Marshal(step.Outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}

	now := time.Now()
	result, err := b.db.ExecContext(ctx, `
		INSERT INTO step_executions (run_id, step_name, status, started_at, ended_at, exit_code, error, log_path, outputs, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, step.RunID, step.StepName, string(step.Status), formatTime(step.StartedAt), formatTime(step.EndedAt),
		nullInt(step.ExitCode), nullString(step.Error), step.LogPath, string(outputsJSON),
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return &bioerrors.RepositoryError{Op: "add_step_execution", Cause: err}
	}
	id, err := result.LastInsertId()
	if err != nil {
		return &bioerrors.RepositoryError{Op: "add_step_execution", Cause: err}
	}
	step.ID = id
	step.CreatedAt = now
	step.UpdatedAt = now
	return nil
}

// UpdateStepExecution updates an existing step execution row by ID.
func (b *Backend) UpdateStepExecution(ctx context.Context, step *store.StepExecution) error {
	outputsJSON, err := json.Marshal(step.Outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}

	now := time.Now()
	result, err := b.db.ExecContext(ctx, `
		UPDATE step_executions SET
			status = ?, started_at = ?, ended_at = ?, exit_code = ?, error = ?, log_path = ?, outputs = ?, updated_at = ?
		WHERE id = ?
	`, string(step.Status), formatTime(step.StartedAt), formatTime(step.EndedAt),
		nullInt(step.ExitCode), nullString(step.Error), step.LogPath, string(outputsJSON),
		now.Format(time.RFC3339), step.ID)
	if err != nil {
		return &bioerrors.RepositoryError{Op: "update_step_execution", Cause: err}
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return &bioerrors.NotFoundError{Resource: "step_execution", ID: fmt.Sprintf("%d", step.ID)}
	}
	step.UpdatedAt = now
	return nil
}

// Close closes the database connection.
func (b *Backend) Close() error {
	return b.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*store.Run, error) {
	var run store.Run
	var inputsJSON sql.NullString
	var startedAt, createdAt, updatedAt string
	var endedAt sql.NullString

	if err := s.Scan(&run.ID, &run.WorkflowName, &run.WorkflowVersion, &run.Status,
		&inputsJSON, &run.RunDir, &startedAt, &endedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if inputsJSON.Valid && inputsJSON.String != "" {
		if err := json.Unmarshal([]byte(inputsJSON.String), &run.Inputs); err != nil {
			return nil, fmt.Errorf("unmarshal inputs: %w", err)
		}
	}
	run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	run.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if endedAt.Valid {
		t, _ := time.Parse(time.RFC3339, endedAt.String)
		run.EndedAt = &t
	}
	return &run, nil
}

func scanStep(s scanner) (*store.StepExecution, error) {
	var step store.StepExecution
	var startedAt, endedAt, errStr sql.NullString
	var exitCode sql.NullInt64
	var outputsJSON sql.NullString
	var createdAt, updatedAt string

	if err := s.Scan(&step.ID, &step.RunID, &step.StepName, &step.Status,
		&startedAt, &endedAt, &exitCode, &errStr, &step.LogPath, &outputsJSON,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if startedAt.Valid {
		t, _ := time.Parse(time.RFC3339, startedAt.String)
		step.StartedAt = &t
	}
	if endedAt.Valid {
		t, _ := time.Parse(time.RFC3339, endedAt.String)
		step.EndedAt = &t
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		step.ExitCode = &code
	}
	step.Error = errStr.String
	if outputsJSON.Valid && outputsJSON.String != "" {
		if err := json.Unmarshal([]byte(outputsJSON.String), &step.Outputs); err != nil {
			return nil, fmt.Errorf("unmarshal outputs: %w", err)
		}
	}
	step.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	step.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &step, nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}
