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

package config

import (
	"os"
	"path/filepath"
)

// ConfigDir returns the XDG config directory for bioinfoflow.
// Respects XDG_CONFIG_HOME; falls back to ~/.config/bioinfoflow.
func ConfigDir() (string, error) {
	var base string

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		base = xdg
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}

	dir := filepath.Join(base, "bioinfoflow")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}

// ConfigPath returns the full path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// defaultRunDir returns the default root directory under which per-run
// directories (runs/<workflow>/<version>/<run_id>/) are created.
// Respects XDG_DATA_HOME; falls back to ~/.bioinfoflow/runs.
func defaultRunDir() string {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "bioinfoflow", "runs")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/bioinfoflow/runs"
	}
	return filepath.Join(homeDir, ".bioinfoflow", "runs")
}

// defaultDBPath returns the default sqlite database path for the state
// repository.
func defaultDBPath() string {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "bioinfoflow", "bioinfoflow.db")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/bioinfoflow/bioinfoflow.db"
	}
	return filepath.Join(homeDir, ".bioinfoflow", "bioinfoflow.db")
}
