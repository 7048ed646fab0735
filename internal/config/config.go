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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	bioerrors "github.com/lewislovelock/bioinfoflow/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// LogConfig configures logging behavior.
type LogConfig struct {
	// Level sets the minimum log level (debug, info, warn, error).
	// Environment: LOG_LEVEL
	Level string `yaml:"level"`

	// Format sets the output format (json, text).
	// Environment: LOG_FORMAT
	Format string `yaml:"format"`

	// AddSource adds source file and line information to logs.
	// Environment: LOG_SOURCE
	AddSource bool `yaml:"add_source"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	// Addr is the TCP address the API server listens on (e.g. ":8080").
	// Environment: BIOINFOFLOW_LISTEN_ADDR
	Addr string `yaml:"addr,omitempty"`

	// ShutdownTimeout bounds how long graceful shutdown waits for
	// in-flight requests before forcing the listener closed.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// Config is the complete BioinfoFlow engine configuration.
type Config struct {
	Log LogConfig `yaml:"log"`

	// RunDir is the root directory under which per-run directories
	// (runs/<workflow>/<version>/<run_id>/) are created.
	// Environment: BIOINFOFLOW_RUN_DIR
	RunDir string `yaml:"run_dir,omitempty"`

	// DBPath is the sqlite database file backing the state repository.
	// Environment: BIOINFOFLOW_DB_PATH
	DBPath string `yaml:"db_path,omitempty"`

	// ContainerRuntime selects the CLI used by the container driver
	// ("docker" or "podman").
	// Environment: BIOINFOFLOW_CONTAINER_RUNTIME
	ContainerRuntime string `yaml:"container_runtime,omitempty"`

	// DefaultTimeLimit is the step time budget applied when a step
	// declares none.
	// Environment: BIOINFOFLOW_DEFAULT_TIME_LIMIT
	DefaultTimeLimit time.Duration `yaml:"default_time_limit,omitempty"`

	// GracePeriod is how long the container driver waits after a
	// graceful stop before escalating to a forceful kill.
	// Environment: BIOINFOFLOW_GRACE_PERIOD
	GracePeriod time.Duration `yaml:"grace_period,omitempty"`

	// DefaultParallelism bounds how many steps run concurrently when a
	// run does not override it.
	// Environment: BIOINFOFLOW_PARALLELISM
	DefaultParallelism int `yaml:"default_parallelism,omitempty"`

	// Server configures the HTTP API server.
	Server ServerConfig `yaml:"server,omitempty"`

	// MetricsEnabled toggles the Prometheus /metrics endpoint and the
	// OpenTelemetry tracer provider.
	// Environment: BIOINFOFLOW_METRICS_ENABLED
	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		RunDir:             defaultRunDir(),
		DBPath:             defaultDBPath(),
		ContainerRuntime:   "docker",
		DefaultTimeLimit:   time.Hour,
		GracePeriod:        10 * time.Second,
		DefaultParallelism: 4,
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 30 * time.Second,
		},
		MetricsEnabled: true,
	}
}

// Load loads configuration from environment variables and, optionally, a
// YAML file. Environment variables take precedence over file contents.
// If configPath is empty, the default config path is used when present.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		if defaultPath, err := ConfigPath(); err == nil {
			if _, statErr := os.Stat(defaultPath); statErr == nil {
				configPath = defaultPath
			}
		}
	}

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &bioerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &bioerrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

// applyDefaults fills in zero values with sensible defaults, so a minimal
// or partially-specified YAML document still produces a usable config.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
	if c.RunDir == "" {
		c.RunDir = defaults.RunDir
	}
	if c.DBPath == "" {
		c.DBPath = defaults.DBPath
	}
	if c.ContainerRuntime == "" {
		c.ContainerRuntime = defaults.ContainerRuntime
	}
	if c.DefaultTimeLimit == 0 {
		c.DefaultTimeLimit = defaults.DefaultTimeLimit
	}
	if c.GracePeriod == 0 {
		c.GracePeriod = defaults.GracePeriod
	}
	if c.DefaultParallelism == 0 {
		c.DefaultParallelism = defaults.DefaultParallelism
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaults.Server.Addr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = defaults.Server.ShutdownTimeout
	}
}

// loadFromFile loads configuration from a YAML file, expanding a leading
// "~/" to the user's home directory.
func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv overrides configuration fields from environment variables.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "1" || strings.ToLower(val) == "true"
	}

	if val := os.Getenv("BIOINFOFLOW_RUN_DIR"); val != "" {
		c.RunDir = val
	}
	if val := os.Getenv("BIOINFOFLOW_DB_PATH"); val != "" {
		c.DBPath = val
	}
	if val := os.Getenv("BIOINFOFLOW_CONTAINER_RUNTIME"); val != "" {
		c.ContainerRuntime = val
	}
	if val := os.Getenv("BIOINFOFLOW_DEFAULT_TIME_LIMIT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.DefaultTimeLimit = d
		}
	}
	if val := os.Getenv("BIOINFOFLOW_GRACE_PERIOD"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.GracePeriod = d
		}
	}
	if val := os.Getenv("BIOINFOFLOW_PARALLELISM"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.DefaultParallelism = n
		}
	}
	if val := os.Getenv("BIOINFOFLOW_LISTEN_ADDR"); val != "" {
		c.Server.Addr = val
	}
	if val := os.Getenv("BIOINFOFLOW_METRICS_ENABLED"); val != "" {
		c.MetricsEnabled = val == "1" || strings.ToLower(val) == "true"
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	var errs []string

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [debug, info, warn, warning, error], got %q", c.Log.Level))
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	validRuntimes := map[string]bool{"docker": true, "podman": true}
	if !validRuntimes[c.ContainerRuntime] {
		errs = append(errs, fmt.Sprintf("container_runtime must be one of [docker, podman], got %q", c.ContainerRuntime))
	}

	if c.DefaultTimeLimit <= 0 {
		errs = append(errs, fmt.Sprintf("default_time_limit must be positive, got %v", c.DefaultTimeLimit))
	}

	if c.GracePeriod <= 0 {
		errs = append(errs, fmt.Sprintf("grace_period must be positive, got %v", c.GracePeriod))
	}

	if c.DefaultParallelism <= 0 {
		errs = append(errs, fmt.Sprintf("default_parallelism must be positive, got %d", c.DefaultParallelism))
	}

	if !filepath.IsAbs(c.RunDir) {
		errs = append(errs, fmt.Sprintf("run_dir must be an absolute path, got %q", c.RunDir))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}

	return nil
}
