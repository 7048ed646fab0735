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
	"github.com/spf13/cobra"

	"github.com/lewislovelock/bioinfoflow/cmd/bioinfoflow/cli/format"
	"github.com/lewislovelock/bioinfoflow/internal/store"
)

type listOptions struct {
	workflow string
	limit    int
}

func newListCommand(flags *globalFlags) *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, flags, opts)
		},
	}

	cmd.Flags().StringVar(&opts.workflow, "workflow", "", "restrict to runs of this workflow name")
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "maximum number of runs to show")

	return cmd
}

func runList(cmd *cobra.Command, flags *globalFlags, opts *listOptions) error {
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	eng, repo, err := buildEngine(cfg)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	defer repo.Close()

	filter := store.RunFilter{Workflow: opts.workflow, Limit: opts.limit}
	runs, err := eng.List(cmd.Context(), filter)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	if len(runs) == 0 {
		cmd.Println("no runs recorded")
		return nil
	}

	isTTY := format.IsTTY()
	headers := []string{"RUN ID", "WORKFLOW", "STATUS", "STARTED"}
	rows := make([][]string, len(runs))
	for i, run := range runs {
		rows[i] = []string{
			run.ID,
			run.WorkflowName + "@" + run.WorkflowVersion,
			string(run.Status),
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
		}
	}
	cmd.Print(format.Table(headers, rows, 2, isTTY))
	return nil
}
