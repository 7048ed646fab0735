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
	"strings"

	"github.com/lewislovelock/bioinfoflow/internal/duration"
	bioerrors "github.com/lewislovelock/bioinfoflow/pkg/errors"
)

// dagState marks a step's colour during depth-first cycle detection.
type dagState int

const (
	dagUnvisited dagState = iota
	dagVisiting
	dagDone
)

// ValidateDAG checks that the graph induced by every step's After list
// is acyclic, and that every declared resource time_limit parses under
// the engine's duration grammar. Both violations are schema-level: the
// loader must reject the document and no run is ever created.
func ValidateDAG(d *Definition) error {
	for _, step := range d.Steps {
		if step.Resources.TimeLimit != "" {
			if _, err := duration.Parse(step.Resources.TimeLimit); err != nil {
				return &bioerrors.ValidationError{
					Field:      fmt.Sprintf("steps.%s.resources.time_limit", step.Name),
					Message:    fmt.Sprintf("malformed duration %q", step.Resources.TimeLimit),
					Suggestion: `use a duration like "1h30m", "45s", or a bare integer number of seconds`,
				}
			}
		}
	}

	deps := make(map[string][]string, len(d.Steps))
	for _, step := range d.Steps {
		deps[step.Name] = step.After
	}

	state := make(map[string]dagState, len(d.Steps))
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case dagDone:
			return nil
		case dagVisiting:
			cycle := append(append([]string{}, path...), name)
			return &bioerrors.ValidationError{
				Field:      "after",
				Message:    fmt.Sprintf("cyclic dependency: %s", strings.Join(cycle, " -> ")),
				Suggestion: "break the cycle by removing one of the `after` edges shown above",
			}
		}

		state[name] = dagVisiting
		path = append(path, name)
		for _, dep := range deps[name] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[name] = dagDone
		return nil
	}

	for _, step := range d.Steps {
		if err := visit(step.Name); err != nil {
			return err
		}
	}

	return nil
}
