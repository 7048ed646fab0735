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
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/lewislovelock/bioinfoflow/internal/engine"
	"github.com/lewislovelock/bioinfoflow/pkg/workflow"
)

const (
	maxRunRequestBodySize   = 1 * 1024 * 1024 // 1MB
	maxWorkflowDocumentSize = 1 * 1024 * 1024 // 1MB
)

// WorkflowsHandler serves /api/v1/workflows routes: discovering workflow
// documents under workflowsDir and starting runs against them.
type WorkflowsHandler struct {
	engine       *engine.Engine
	workflowsDir string
}

// NewWorkflowsHandler returns a WorkflowsHandler rooted at workflowsDir.
func NewWorkflowsHandler(eng *engine.Engine, workflowsDir string) *WorkflowsHandler {
	return &WorkflowsHandler{engine: eng, workflowsDir: workflowsDir}
}

// RegisterRoutes registers the workflow discovery and run-start routes.
func (h *WorkflowsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/workflows", h.handleList)
	mux.HandleFunc("GET /api/v1/workflows/{name}", h.handleGet)
	mux.HandleFunc("POST /api/v1/workflows", h.handleCreate)
	mux.HandleFunc("POST /api/v1/workflows/{name}/run", h.handleRun)
}

// handleList handles GET /api/v1/workflows, returning the names of every
// .yaml/.yml file directly under workflowsDir.
func (h *WorkflowsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(h.workflowsDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list workflows directory: %v", err))
		return
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, strings.TrimSuffix(e.Name(), ext))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": names, "count": len(names)})
}

// handleGet handles GET /api/v1/workflows/{name}, parsing and returning
// the workflow document resolved by name.
func (h *WorkflowsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if strings.Contains(name, "..") {
		writeError(w, http.StatusBadRequest, "invalid workflow name")
		return
	}

	path, err := h.resolve(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "workflow not found")
		return
	}

	def, err := workflow.Load(path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load workflow: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// handleCreate handles POST /api/v1/workflows: the request body is a
// workflow document as YAML, validated and written to workflowsDir as
// "<name>.yaml". A document whose name is already registered under
// that file name is rejected, since workflows are immutable once
// stored; a content change requires a new version under a new name or
// a manual overwrite outside this API.
func (h *WorkflowsHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > maxWorkflowDocumentSize {
		writeError(w, http.StatusRequestEntityTooLarge, "workflow document too large (max 1MB)")
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxWorkflowDocumentSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body: "+err.Error())
		return
	}
	if len(data) > maxWorkflowDocumentSize {
		writeError(w, http.StatusRequestEntityTooLarge, "workflow document too large (max 1MB)")
		return
	}

	def, err := workflow.ParseDefinition("request body", data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	path := filepath.Join(h.workflowsDir, def.Name+".yaml")
	if _, err := os.Stat(path); err == nil {
		writeError(w, http.StatusConflict, fmt.Sprintf("workflow %q already registered", def.Name))
		return
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to write workflow document: %v", err))
		return
	}

	writeJSON(w, http.StatusCreated, def)
}

// runRequest is the optional JSON body for POST /api/v1/workflows/{name}/run.
type runRequest struct {
	Inputs   map[string]string `json:"inputs,omitempty"`
	Parallel int                `json:"parallel,omitempty"`
}

// handleRun handles POST /api/v1/workflows/{name}/run, resolving name
// against workflowsDir and starting a new run.
func (h *WorkflowsHandler) handleRun(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if strings.Contains(name, "..") {
		writeError(w, http.StatusBadRequest, "invalid workflow name")
		return
	}

	path, err := h.resolve(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "workflow not found")
		return
	}

	var body runRequest
	if r.ContentLength > 0 {
		if r.ContentLength > maxRunRequestBodySize {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large (max 1MB)")
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
	}

	run, err := h.engine.Run(r.Context(), path, body.Inputs, body.Parallel, engine.TimeLimitDefault)
	if err != nil {
		status, msg := statusForError(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

// resolve locates a workflow document by name under workflowsDir,
// trying the .yaml and .yml extensions and then the bare name, in turn.
func (h *WorkflowsHandler) resolve(name string) (string, error) {
	for _, ext := range []string{".yaml", ".yml", ""} {
		candidate := filepath.Join(h.workflowsDir, name+ext)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("workflow %q not found under %s", name, h.workflowsDir)
}
