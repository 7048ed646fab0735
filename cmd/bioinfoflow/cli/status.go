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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lewislovelock/bioinfoflow/cmd/bioinfoflow/cli/format"
)

func newStatusCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status <run_id>",
		Short: "Show a run and its per-step state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, flags, args[0])
		},
	}
}

func runStatus(cmd *cobra.Command, flags *globalFlags, runID string) error {
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	eng, repo, err := buildEngine(cfg)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	defer repo.Close()

	run, steps, err := eng.Status(cmd.Context(), runID)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	isTTY := format.IsTTY()
	cmd.Printf("run:      %s\n", run.ID)
	cmd.Printf("workflow: %s@%s\n", run.WorkflowName, run.WorkflowVersion)
	cmd.Printf("status:   %s\n", format.Status(string(run.Status), isTTY))
	cmd.Printf("started:  %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
	if run.EndedAt != nil {
		cmd.Printf("ended:    %s\n", run.EndedAt.Local().Format("2006-01-02 15:04:05"))
	}
	cmd.Printf("run dir:  %s\n", run.RunDir)

	if len(steps) == 0 {
		return nil
	}

	cmd.Println()
	headers := []string{"STEP", "STATUS", "EXIT", "ERROR"}
	rows := make([][]string, len(steps))
	for i, step := range steps {
		exit := "-"
		if step.ExitCode != nil {
			exit = fmt.Sprintf("%d", *step.ExitCode)
		}
		rows[i] = []string{step.StepName, string(step.Status), exit, step.Error}
	}
	cmd.Print(format.Table(headers, rows, 1, isTTY))
	return nil
}
