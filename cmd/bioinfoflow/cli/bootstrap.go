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
	"log/slog"

	"github.com/lewislovelock/bioinfoflow/internal/config"
	"github.com/lewislovelock/bioinfoflow/internal/container"
	"github.com/lewislovelock/bioinfoflow/internal/engine"
	"github.com/lewislovelock/bioinfoflow/internal/log"
	"github.com/lewislovelock/bioinfoflow/internal/store"
	"github.com/lewislovelock/bioinfoflow/internal/store/sqlite"
)

// loadConfig loads configuration from configPath (empty for the
// default search path) and validates it.
func loadConfig(configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// buildEngine wires an Engine against cfg, the sqlite repository, and
// the docker/podman CLI container driver. Callers must close the
// returned repository when done.
func buildEngine(cfg *config.Config) (*engine.Engine, store.Repository, error) {
	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	repo, err := sqlite.New(sqlite.Config{Path: cfg.DBPath, WAL: true})
	if err != nil {
		return nil, nil, fmt.Errorf("open state repository: %w", err)
	}

	driver := container.NewCLIDriver(cfg.ContainerRuntime)
	eng := engine.New(cfg, repo, driver, engine.WithLogger(log.WithComponent(logger, "engine")))
	return eng, repo, nil
}
