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

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lewislovelock/bioinfoflow/cmd/bioinfoflow/cli/format"
	"github.com/lewislovelock/bioinfoflow/internal/duration"
	"github.com/lewislovelock/bioinfoflow/internal/engine"
	"github.com/lewislovelock/bioinfoflow/internal/filewatcher"
	"github.com/lewislovelock/bioinfoflow/internal/store"
	bioerrors "github.com/lewislovelock/bioinfoflow/pkg/errors"
	"github.com/lewislovelock/bioinfoflow/pkg/workflow"
)

type runOptions struct {
	inputs            []string
	parallel          int
	defaultTimeLimit  string
	disableTimeLimits bool
	outputDir         string
	dryRun            bool
	watch             bool
}

func newRunCommand(flags *globalFlags) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Run a workflow document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, flags, opts, args[0])
		},
	}

	cmd.Flags().StringArrayVar(&opts.inputs, "input", nil, "override an input path, as name=glob (repeatable)")
	cmd.Flags().IntVar(&opts.parallel, "parallel", 0, "maximum concurrently running steps (0: engine default)")
	cmd.Flags().StringVar(&opts.defaultTimeLimit, "default-time-limit", "", "time limit applied to steps that declare none")
	cmd.Flags().BoolVar(&opts.disableTimeLimits, "disable-time-limits", false, "run every step without a wall-clock deadline")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "root directory for this run's run directory (default: configured run_dir)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "validate the workflow and print the planned step order without running it")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "re-run the workflow whenever the file changes on disk")

	return cmd
}

func parseInputOverrides(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	overrides := make(map[string]string, len(raw))
	for _, kv := range raw {
		name, pattern, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --input %q: want name=glob", kv)
		}
		overrides[name] = pattern
	}
	return overrides, nil
}

func runRun(cmd *cobra.Command, flags *globalFlags, opts *runOptions, workflowPath string) error {
	if opts.dryRun {
		return runDryRun(cmd, workflowPath)
	}

	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	if opts.outputDir != "" {
		cfg.RunDir = opts.outputDir
	}
	if opts.defaultTimeLimit != "" {
		d, err := duration.Parse(opts.defaultTimeLimit)
		if err != nil {
			return &ExitError{Code: 2, Err: err}
		}
		cfg.DefaultTimeLimit = d
	}

	eng, repo, err := buildEngine(cfg)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	defer repo.Close()

	inputOverrides, err := parseInputOverrides(opts.inputs)
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	policy := engine.TimeLimitDefault
	if opts.disableTimeLimits {
		policy = engine.TimeLimitDisabled
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run, runErr := eng.Run(ctx, workflowPath, inputOverrides, opts.parallel, policy)

	if opts.watch {
		return watchAndRerun(ctx, cmd, eng, workflowPath, inputOverrides, opts, policy, run, runErr)
	}

	return reportRunOutcome(cmd, ctx, run, runErr)
}

// runDryRun loads and validates workflowPath, printing the step
// dispatch order without staging inputs or launching any container.
func runDryRun(cmd *cobra.Command, workflowPath string) error {
	def, err := workflow.Load(workflowPath)
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	cmd.Printf("workflow %s (version %s) is valid: %d steps\n", def.Name, def.Version, len(def.Steps))
	for _, step := range def.Steps {
		after := "none"
		if len(step.After) > 0 {
			after = strings.Join(step.After, ", ")
		}
		cmd.Printf("  %-20s container=%-20s after=%s\n", step.Name, step.Container, after)
	}
	return nil
}

// reportRunOutcome prints a one-line summary of run and translates its
// terminal status (or a non-nil runErr) into the exit code spec.md's
// run command contract requires: 0 COMPLETED, 1 FAILED/ERROR/ERROR-class
// failure, 2 invalid workflow, 130 cancellation.
func reportRunOutcome(cmd *cobra.Command, ctx context.Context, run *store.Run, runErr error) error {
	isTTY := format.IsTTY()

	if run != nil {
		cmd.Printf("run %s: %s\n", run.ID, format.Status(string(run.Status), isTTY))
	}

	if ctx.Err() != nil {
		return &ExitError{Code: 130, Err: ctx.Err()}
	}
	if runErr != nil {
		var invalid *bioerrors.InvalidWorkflowError
		if errors.As(runErr, &invalid) {
			return &ExitError{Code: 2, Err: runErr}
		}
		return &ExitError{Code: 1, Err: runErr}
	}

	if run == nil {
		return &ExitError{Code: 1, Err: fmt.Errorf("run produced no result")}
	}

	switch run.Status {
	case store.StatusCompleted:
		return nil
	case store.StatusSkipped:
		return nil
	default:
		return &ExitError{Code: 1, Err: fmt.Errorf("run %s ended in status %s", run.ID, run.Status)}
	}
}

// watchAndRerun re-triggers eng.Run every time workflowPath changes on
// disk, reporting each run's outcome, until ctx is cancelled.
func watchAndRerun(ctx context.Context, cmd *cobra.Command, eng *engine.Engine, workflowPath string, inputOverrides map[string]string, opts *runOptions, policy engine.TimeLimitPolicy, firstRun *store.Run, firstErr error) error {
	if err := reportRunOutcome(cmd, ctx, firstRun, firstErr); err != nil {
		cmd.PrintErrf("run failed: %v\n", err)
	}

	watcher, err := filewatcher.NewWatcher(workflowPath, []string{"modified"})
	if err != nil {
		return &ExitError{Code: 1, Err: fmt.Errorf("start file watcher: %w", err)}
	}
	if err := watcher.Start(ctx); err != nil {
		return &ExitError{Code: 1, Err: fmt.Errorf("start file watcher: %w", err)}
	}
	defer watcher.Stop()

	cmd.Printf("watching %s for changes (ctrl-c to stop)\n", workflowPath)
	for {
		select {
		case <-ctx.Done():
			return &ExitError{Code: 130, Err: ctx.Err()}
		case _, ok := <-watcher.Events():
			if !ok {
				return nil
			}
			cmd.Printf("change detected, re-running %s\n", workflowPath)
			run, err := eng.Run(ctx, workflowPath, inputOverrides, opts.parallel, policy)
			if outcomeErr := reportRunOutcome(cmd, ctx, run, err); outcomeErr != nil {
				cmd.PrintErrf("run failed: %v\n", outcomeErr)
			}
		}
	}
}
