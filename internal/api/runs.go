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
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/lewislovelock/bioinfoflow/internal/engine"
	"github.com/lewislovelock/bioinfoflow/internal/rundir"
	"github.com/lewislovelock/bioinfoflow/internal/store"
	bioerrors "github.com/lewislovelock/bioinfoflow/pkg/errors"
	"github.com/lewislovelock/bioinfoflow/pkg/workflow"
)

// RunsHandler serves every /api/v1/runs route against an Engine.
type RunsHandler struct {
	engine *engine.Engine
}

// NewRunsHandler returns a RunsHandler bound to eng.
func NewRunsHandler(eng *engine.Engine) *RunsHandler {
	return &RunsHandler{engine: eng}
}

// RegisterRoutes registers the run-lifecycle routes on mux.
func (h *RunsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/runs", h.handleList)
	mux.HandleFunc("GET /api/v1/runs/{id}", h.handleGet)
	mux.HandleFunc("GET /api/v1/runs/{id}/steps", h.handleListSteps)
	mux.HandleFunc("GET /api/v1/runs/{id}/logs/{step}", h.handleStepLog)
	mux.HandleFunc("POST /api/v1/runs/{id}/resume", h.handleResume)
	mux.HandleFunc("POST /api/v1/runs/{id}/cancel", h.handleCancel)
	mux.HandleFunc("DELETE /api/v1/runs/{id}", h.handleDelete)
}

// handleList handles GET /api/v1/runs, filtered by the optional workflow,
// status, limit, and offset query parameters.
func (h *RunsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{
		Workflow: q.Get("workflow"),
		Status:   store.Status(q.Get("status")),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	runs, err := h.engine.List(r.Context(), filter)
	if err != nil {
		status, msg := statusForError(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// handleGet handles GET /api/v1/runs/{id}.
func (h *RunsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	run, steps, err := h.engine.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		status, msg := statusForError(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run, "steps": steps})
}

// handleListSteps handles GET /api/v1/runs/{id}/steps.
func (h *RunsHandler) handleListSteps(w http.ResponseWriter, r *http.Request) {
	_, steps, err := h.engine.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		status, msg := statusForError(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"steps": steps, "count": len(steps)})
}

// handleStepLog handles GET /api/v1/runs/{id}/logs/{step}, streaming the
// step's container log file from its run directory.
func (h *RunsHandler) handleStepLog(w http.ResponseWriter, r *http.Request) {
	run, _, err := h.engine.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		status, msg := statusForError(err)
		writeError(w, status, msg)
		return
	}

	dir := rundir.Dir{Root: run.RunDir}
	logPath := dir.LogPath(r.PathValue("step"))
	f, err := os.Open(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "step log not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, f)
}

// stepOverride is one entry of the optional JSON body for POST
// /api/v1/runs/{id}/resume, replacing a step's command or resources for
// this attempt only.
type stepOverride struct {
	Command   string `json:"command,omitempty"`
	CPU       int    `json:"cpu,omitempty"`
	Memory    string `json:"memory,omitempty"`
	TimeLimit string `json:"time_limit,omitempty"`
}

// resumeRequest is the optional JSON body for POST /api/v1/runs/{id}/resume.
type resumeRequest struct {
	Overrides map[string]stepOverride `json:"overrides,omitempty"`
}

// handleResume handles POST /api/v1/runs/{id}/resume.
func (h *RunsHandler) handleResume(w http.ResponseWriter, r *http.Request) {
	var body resumeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
	}

	var overrides map[string]engine.Override
	if len(body.Overrides) > 0 {
		overrides = make(map[string]engine.Override, len(body.Overrides))
		for name, ov := range body.Overrides {
			o := engine.Override{Command: ov.Command}
			if ov.CPU != 0 || ov.Memory != "" || ov.TimeLimit != "" {
				o.Resources = &workflow.ResourceRequest{CPU: ov.CPU, Memory: ov.Memory, TimeLimit: ov.TimeLimit}
			}
			overrides[name] = o
		}
	}

	run, err := h.engine.Resume(r.Context(), r.PathValue("id"), overrides)
	if err != nil {
		status, msg := statusForError(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleCancel handles POST /api/v1/runs/{id}/cancel.
func (h *RunsHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Cancel(r.Context(), r.PathValue("id")); err != nil {
		status, msg := statusForError(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// handleDelete handles DELETE /api/v1/runs/{id}. A run that has not reached
// a terminal status is rejected with 409 Conflict.
func (h *RunsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	err := h.engine.Delete(r.Context(), r.PathValue("id"))
	if err == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var validation *bioerrors.ValidationError
	if errors.As(err, &validation) && validation.Field == "run_id" {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	status, msg := statusForError(err)
	writeError(w, status, msg)
}
