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
	"embed"
	"fmt"
	"os"
	"text/template"

	"github.com/spf13/cobra"
)

//go:embed templates/workflow.yaml.tmpl
var templateFS embed.FS

var workflowTemplate = template.Must(template.ParseFS(templateFS, "templates/workflow.yaml.tmpl"))

type initOptions struct {
	output string
}

func newInitCommand() *cobra.Command {
	opts := &initOptions{}

	cmd := &cobra.Command{
		Use:   "init <name>",
		Short: "Write a template workflow document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.output, "output", "", "path to write the generated document (default: <name>.yaml)")

	return cmd
}

func runInit(cmd *cobra.Command, opts *initOptions, name string) error {
	outputPath := opts.output
	if outputPath == "" {
		outputPath = name + ".yaml"
	}

	if _, err := os.Stat(outputPath); err == nil {
		return &ExitError{Code: 1, Err: fmt.Errorf("%s already exists", outputPath)}
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return &ExitError{Code: 1, Err: fmt.Errorf("create %s: %w", outputPath, err)}
	}
	defer f.Close()

	if err := workflowTemplate.Execute(f, struct{ Name string }{Name: name}); err != nil {
		return &ExitError{Code: 1, Err: fmt.Errorf("render template: %w", err)}
	}

	cmd.Printf("wrote %s\n", outputPath)
	return nil
}
