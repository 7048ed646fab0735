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

/*
Package cli provides the root command and subcommands of the
bioinfoflow binary.

# Command Tree

	bioinfoflow
	├── run      Run a workflow document
	├── list     List recorded runs
	├── status   Show a run and its per-step state
	├── init     Write a template workflow document
	└── serve    Start the HTTP API server

# Usage

From main.go:

	rootCmd := cli.NewRootCommand(version, commit, buildDate)
	if err := rootCmd.Execute(); err != nil {
	    os.Exit(cli.ExitCode(err))
	}

# Exit Codes

	0    COMPLETED
	1    FAILED or ERROR
	2    invalid workflow
	130  cancelled (SIGINT)
*/
package cli
