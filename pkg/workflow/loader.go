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

package workflow

import (
	"fmt"
	"os"

	bioerrors "github.com/lewislovelock/bioinfoflow/pkg/errors"
)

// Load reads and validates a workflow document from a file on disk.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &bioerrors.InvalidWorkflowError{Workflow: path, Reason: fmt.Sprintf("cannot read file: %v", err), Cause: err}
	}
	return ParseDefinition(path, data)
}
