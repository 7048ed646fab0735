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

// Package api implements the HTTP surface the CLI and external callers
// use to run, resume, cancel, inspect, and list workflow runs against
// an Engine. It is a thin translation layer: every handler defers to
// Engine for anything beyond request parsing and status-code mapping.
package api

import (
	"log/slog"
	"net/http"

	"github.com/lewislovelock/bioinfoflow/internal/engine"
	internallog "github.com/lewislovelock/bioinfoflow/internal/log"
)

// Router builds the HTTP surface for an Engine.
type Router struct {
	engine *engine.Engine
	build  BuildInfo
}

// NewRouter returns an http.Handler exposing every route in the
// external interface: workflow discovery and run start, run lifecycle
// (list, status, steps, logs, resume, cancel, delete), health, version,
// and, when metricsHandler is non-nil, /metrics.
func NewRouter(eng *engine.Engine, workflowsDir string, build BuildInfo, metricsHandler http.Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	rt := &Router{engine: eng, build: build}
	mux.HandleFunc("GET /v1/health", rt.handleHealth)
	mux.HandleFunc("GET /v1/version", rt.handleVersion)

	NewWorkflowsHandler(eng, workflowsDir).RegisterRoutes(mux)
	NewRunsHandler(eng).RegisterRoutes(mux)

	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	middleware := internallog.NewMiddleware(logger)
	return middleware.Wrap(mux)
}
