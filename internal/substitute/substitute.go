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

// Package substitute expands `${...}` references in step command templates
// against a scoped binding tree, mirroring the `${VAR_NAME}` substitution
// idiom used elsewhere in the codebase for environment-style interpolation.
package substitute

import (
	"fmt"
	"regexp"
	"strings"
)

// refPattern matches a single ${...} reference. Reference bodies are
// restricted to dotted identifiers so the substitution stays a single
// left-to-right scan with no nested-brace handling.
var refPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_.\-]+)\}`)

// Bindings is the scoped lookup tree available to a substitution pass.
type Bindings struct {
	// Config holds the workflow's config map.
	Config map[string]any

	// Inputs holds the run's input bindings.
	Inputs map[string]any

	// Resources holds the current step's resolved resource request
	// (cpu as an int, memory and time_limit as strings); values are
	// stringified on lookup.
	Resources map[string]any

	// StepOutputs maps a previously completed step's name to its
	// recorded output name->path bindings.
	StepOutputs map[string]map[string]string

	// RunDir is the absolute path of the current run directory.
	RunDir string
}

// Expand performs a single, non-recursive, left-to-right scan of tmpl,
// replacing every resolvable ${...} reference with its bound value.
// References that cannot be resolved (unknown prefix, missing key) are
// left untouched verbatim, rather than raising an error — a command
// template that mentions a future or optional binding is not invalid in
// itself. Expansion never recurses into the substituted text, so a
// replacement value that itself contains "${...}" is never expanded.
func Expand(tmpl string, b Bindings) string {
	return refPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		ref := match[2 : len(match)-1] // strip "${" and "}"
		val, ok := resolve(ref, b)
		if !ok {
			return match
		}
		return val
	})
}

func resolve(ref string, b Bindings) (string, bool) {
	if ref == "run_dir" {
		if b.RunDir == "" {
			return "", false
		}
		return b.RunDir, true
	}

	parts := strings.SplitN(ref, ".", 2)
	if len(parts) != 2 {
		return "", false
	}
	prefix, rest := parts[0], parts[1]

	switch prefix {
	case "config":
		return lookupScalar(b.Config, rest)
	case "inputs":
		return lookupScalar(b.Inputs, rest)
	case "resources":
		return lookupScalar(b.Resources, rest)
	case "steps":
		return resolveStepOutput(rest, b.StepOutputs)
	default:
		return "", false
	}
}

func resolveStepOutput(rest string, stepOutputs map[string]map[string]string) (string, bool) {
	// rest is "<step>.outputs.<name>"
	parts := strings.SplitN(rest, ".", 3)
	if len(parts) != 3 || parts[1] != "outputs" {
		return "", false
	}
	step, name := parts[0], parts[2]

	outputs, ok := stepOutputs[step]
	if !ok {
		return "", false
	}
	val, ok := outputs[name]
	return val, ok
}

func lookupScalar(m map[string]any, key string) (string, bool) {
	val, ok := m[key]
	if !ok {
		return "", false
	}
	return stringify(val), true
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
