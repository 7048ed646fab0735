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
)

// globalFlags holds the persistent flag values and build metadata shared
// by every command.
type globalFlags struct {
	configPath string
	build      buildInfo
}

// buildInfo carries version metadata stamped at build time via
// -ldflags, surfaced by the version command and GET /v1/version.
type buildInfo struct {
	version   string
	commit    string
	buildDate string
}

// NewRootCommand builds the bioinfoflow command tree.
func NewRootCommand(version, commit, buildDate string) *cobra.Command {
	flags := &globalFlags{build: buildInfo{version: version, commit: commit, buildDate: buildDate}}

	cmd := &cobra.Command{
		Use:   "bioinfoflow",
		Short: "Container-native DAG workflow engine for reproducible data pipelines",
		Long: `bioinfoflow runs a workflow document as a DAG of containerised steps,
enforcing per-step CPU, memory, and wall-clock bounds, and recording
every run to a canonical run directory and a durable state repository.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to config file (default: XDG config dir)")

	cmd.AddCommand(
		newRunCommand(flags),
		newListCommand(flags),
		newStatusCommand(flags),
		newInitCommand(),
		newServeCommand(flags),
		newVersionCommand(version, commit, buildDate),
	)

	return cmd
}

func newVersionCommand(version, commit, buildDate string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Printf("bioinfoflow %s (commit %s, built %s)\n", version, commit, buildDate)
			return nil
		},
	}
}
