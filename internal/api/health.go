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

package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/lewislovelock/bioinfoflow/internal/store"
)

// HealthResponse is the response format for GET /v1/health.
type HealthResponse struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime"`
	Checks map[string]string `json:"checks"`
}

var startTime = time.Now()

// handleHealth handles GET /v1/health. It probes the repository with a
// one-row List: on success it reports healthy with 200, on error it
// reports degraded with 503 and the error under checks["repository"].
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"runtime": runtime.Version()}

	status := "healthy"
	if _, err := rt.engine.List(r.Context(), store.RunFilter{Limit: 1}); err != nil {
		status = "degraded"
		checks["repository"] = err.Error()
	} else {
		checks["repository"] = "ok"
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, HealthResponse{
		Status: status,
		Uptime: time.Since(startTime).Round(time.Second).String(),
		Checks: checks,
	})
}
