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
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lewislovelock/bioinfoflow/internal/api"
	"github.com/lewislovelock/bioinfoflow/internal/lifecycle"
	"github.com/lewislovelock/bioinfoflow/internal/log"
	"github.com/lewislovelock/bioinfoflow/internal/tracing"
)

type serveOptions struct {
	addr         string
	workflowsDir string
	pidFile      string
}

func newServeCommand(flags *globalFlags) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, flags, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "address to listen on (default: configured server.addr)")
	cmd.Flags().StringVar(&opts.workflowsDir, "workflows-dir", ".", "directory of workflow documents served under GET /api/v1/workflows")
	cmd.Flags().StringVar(&opts.pidFile, "pid-file", "", "write the server's PID to this path while running")

	return cmd
}

func runServe(cmd *cobra.Command, flags *globalFlags, opts *serveOptions) error {
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}

	workflowsDir, err := filepath.Abs(opts.workflowsDir)
	if err != nil {
		return &ExitError{Code: 1, Err: fmt.Errorf("resolve workflows dir: %w", err)}
	}

	eng, repo, err := buildEngine(cfg)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	defer repo.Close()

	logger := log.WithComponent(log.New(log.FromEnv()), "serve")

	tracingCfg := tracing.DefaultConfig()
	tracingCfg.Enabled = cfg.MetricsEnabled
	provider, err := tracing.New(tracingCfg)
	if err != nil {
		return &ExitError{Code: 1, Err: fmt.Errorf("start tracing: %w", err)}
	}
	defer provider.Shutdown(cmd.Context())

	var metricsHandler = provider.MetricsHandler()
	if !cfg.MetricsEnabled {
		metricsHandler = nil
	}

	build := api.BuildInfo{Version: flags.build.version, Commit: flags.build.commit, BuildDate: flags.build.buildDate}
	router := api.NewRouter(eng, workflowsDir, build, metricsHandler, logger)
	server := api.New(cfg.Server, router, logger)

	if opts.pidFile != "" {
		pidMgr := lifecycle.NewPIDFileManager(opts.pidFile)
		if err := pidMgr.Create(os.Getpid()); err != nil {
			return &ExitError{Code: 1, Err: fmt.Errorf("create pid file: %w", err)}
		}
		defer pidMgr.Remove()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErrCh := make(chan error, 1)
	go func() {
		serveErrCh <- server.Start(ctx)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErrCh:
		if err != nil {
			return &ExitError{Code: 1, Err: err}
		}
	}

	if err := server.Shutdown(cmd.Context()); err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	return nil
}
