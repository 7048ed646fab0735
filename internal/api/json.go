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
	"net/http"

	bioerrors "github.com/lewislovelock/bioinfoflow/pkg/errors"
)

// errorResponse is the JSON body returned for any non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusForError maps a domain error to the HTTP status SPEC_FULL.md
// assigns it: NotFoundError -> 404, ValidationError/InvalidWorkflowError/
// InputStagingError -> 400, everything else -> 500.
func statusForError(err error) (int, string) {
	var notFound *bioerrors.NotFoundError
	if errors.As(err, &notFound) {
		return http.StatusNotFound, err.Error()
	}
	var validation *bioerrors.ValidationError
	if errors.As(err, &validation) {
		return http.StatusBadRequest, err.Error()
	}
	var invalidWorkflow *bioerrors.InvalidWorkflowError
	if errors.As(err, &invalidWorkflow) {
		return http.StatusBadRequest, err.Error()
	}
	var inputStaging *bioerrors.InputStagingError
	if errors.As(err, &inputStaging) {
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusInternalServerError, err.Error()
}
