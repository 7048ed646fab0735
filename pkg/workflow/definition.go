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

// Package workflow defines the workflow document: a named, versioned DAG
// of container steps, parsed from YAML and validated before a run is
// ever created from it.
package workflow

import (
	"fmt"

	bioerrors "github.com/lewislovelock/bioinfoflow/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Definition is a workflow document, identified by (Name, Version).
// It is immutable once registered in the repository; any change of
// contents requires a new Version.
type Definition struct {
	Name        string                      `yaml:"name" json:"name"`
	Version     string                      `yaml:"version" json:"version"`
	Description string                      `yaml:"description,omitempty" json:"description,omitempty"`
	Config      map[string]any              `yaml:"config,omitempty" json:"config,omitempty"`
	Inputs      map[string]InputDeclaration `yaml:"inputs,omitempty" json:"inputs,omitempty"`

	// Steps preserves the declaration order of the `steps:` mapping in
	// the source document. Dispatch order among simultaneously-ready
	// steps follows this order, so it cannot be allowed to collapse to
	// Go's unordered map iteration.
	Steps []StepDefinition `yaml:"-" json:"steps"`
}

// InputDeclaration describes one entry of the workflow's `inputs:` map.
// The source grammar binds each input name directly to a glob pattern
// string (see run-directory input staging); there is no separate
// type/required/default schema for inputs in this format.
type InputDeclaration struct {
	Path string `yaml:"-" json:"path"`
}

// ResourceRequest is a step's declared resource envelope.
type ResourceRequest struct {
	CPU       int    `yaml:"cpu,omitempty" json:"cpu,omitempty"`
	Memory    string `yaml:"memory,omitempty" json:"memory,omitempty"`
	TimeLimit string `yaml:"time_limit,omitempty" json:"time_limit,omitempty"`
}

// StepDefinition is one node of the workflow DAG.
//
// Invariant: every name in After must refer to another step in the
// same workflow, and the induced graph must be acyclic (references are
// checked by Definition.Validate, acyclicity by ValidateDAG; neither is
// checked here).
type StepDefinition struct {
	// Name is unique within the workflow; it is the map key in the
	// source document's `steps:` mapping.
	Name string `yaml:"-" json:"name"`

	Container string          `yaml:"container" json:"container"`
	Command   string          `yaml:"command" json:"command"`
	Resources ResourceRequest `yaml:"resources,omitempty" json:"resources,omitempty"`

	// After lists the names of steps that must reach COMPLETED before
	// this one becomes ready. Defaults to empty (no dependencies).
	After []string `yaml:"after,omitempty" json:"after,omitempty"`
}

// rawDefinition mirrors Definition's YAML shape before step ordering is
// resolved. Steps is decoded as a yaml.Node so the mapping's key order
// survives into the Steps slice; a plain map[string]StepDefinition
// would discard it.
type rawDefinition struct {
	Name        string         `yaml:"name"`
	Version     string         `yaml:"version"`
	Description string         `yaml:"description"`
	Config      map[string]any `yaml:"config"`
	Inputs      map[string]string `yaml:"inputs"`
	Steps       yaml.Node      `yaml:"steps"`
}

type rawStepBody struct {
	Container string          `yaml:"container"`
	Command   string          `yaml:"command"`
	Resources ResourceRequest `yaml:"resources"`
	After     []string        `yaml:"after"`
}

// UnmarshalYAML decodes the document, then walks the `steps:` mapping
// node pair-by-pair to preserve declaration order.
func (d *Definition) UnmarshalYAML(value *yaml.Node) error {
	var raw rawDefinition
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode workflow document: %w", err)
	}

	d.Name = raw.Name
	d.Version = raw.Version
	d.Description = raw.Description
	d.Config = raw.Config

	if raw.Inputs != nil {
		d.Inputs = make(map[string]InputDeclaration, len(raw.Inputs))
		for name, pattern := range raw.Inputs {
			d.Inputs[name] = InputDeclaration{Path: pattern}
		}
	}

	if raw.Steps.Kind != 0 && raw.Steps.Kind != yaml.MappingNode {
		return fmt.Errorf("steps: must be a mapping of step name to step definition")
	}

	d.Steps = nil
	for i := 0; i+1 < len(raw.Steps.Content); i += 2 {
		nameNode := raw.Steps.Content[i]
		bodyNode := raw.Steps.Content[i+1]

		var body rawStepBody
		if err := bodyNode.Decode(&body); err != nil {
			return fmt.Errorf("steps.%s: %w", nameNode.Value, err)
		}

		d.Steps = append(d.Steps, StepDefinition{
			Name:      nameNode.Value,
			Container: body.Container,
			Command:   body.Command,
			Resources: body.Resources,
			After:     body.After,
		})
	}

	return nil
}

// MarshalYAML re-encodes Steps as an ordered mapping so a round-tripped
// definition (e.g. the copy written to workflow.yaml in the run
// directory) preserves declaration order.
func (d Definition) MarshalYAML() (any, error) {
	stepsNode := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, step := range d.Steps {
		var nameNode yaml.Node
		if err := nameNode.Encode(step.Name); err != nil {
			return nil, err
		}
		var bodyNode yaml.Node
		if err := bodyNode.Encode(rawStepBody{
			Container: step.Container,
			Command:   step.Command,
			Resources: step.Resources,
			After:     step.After,
		}); err != nil {
			return nil, err
		}
		stepsNode.Content = append(stepsNode.Content, &nameNode, &bodyNode)
	}

	inputs := make(map[string]string, len(d.Inputs))
	for name, decl := range d.Inputs {
		inputs[name] = decl.Path
	}

	out := struct {
		Name        string            `yaml:"name"`
		Version     string            `yaml:"version"`
		Description string            `yaml:"description,omitempty"`
		Config      map[string]any    `yaml:"config,omitempty"`
		Inputs      map[string]string `yaml:"inputs,omitempty"`
		Steps       *yaml.Node        `yaml:"steps"`
	}{
		Name:        d.Name,
		Version:     d.Version,
		Description: d.Description,
		Config:      d.Config,
		Inputs:      inputs,
		Steps:       stepsNode,
	}
	return out, nil
}

// ParseDefinition parses and validates a workflow document from YAML
// bytes. No run can ever be created from a Definition that fails to
// parse or validate. source identifies the document (file path or
// name) for error messages.
func ParseDefinition(source string, data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, &bioerrors.InvalidWorkflowError{Workflow: source, Reason: "malformed YAML", Cause: err}
	}

	if err := def.Validate(); err != nil {
		return nil, &bioerrors.InvalidWorkflowError{Workflow: source, Reason: err.Error(), Cause: err}
	}

	if err := ValidateDAG(&def); err != nil {
		return nil, &bioerrors.InvalidWorkflowError{Workflow: source, Reason: err.Error(), Cause: err}
	}

	return &def, nil
}

// Validate checks the required-key schema described in the external
// interface: name, version, at least one step; each step requires a
// container and a command. It does not check DAG well-formedness; see
// ValidateDAG for that.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return &bioerrors.ValidationError{
			Field:      "name",
			Message:    "workflow name is required",
			Suggestion: "add a `name:` key to the workflow document",
		}
	}
	if d.Version == "" {
		return &bioerrors.ValidationError{
			Field:      "version",
			Message:    "workflow version is required",
			Suggestion: "add a `version:` key to the workflow document",
		}
	}
	if len(d.Steps) == 0 {
		return &bioerrors.ValidationError{
			Field:      "steps",
			Message:    "workflow must declare at least one step",
			Suggestion: "add at least one entry under `steps:`",
		}
	}

	seen := make(map[string]bool, len(d.Steps))
	for _, step := range d.Steps {
		if step.Name == "" {
			return &bioerrors.ValidationError{
				Field:      "steps",
				Message:    "step name cannot be empty",
				Suggestion: "every entry under `steps:` must have a non-empty key",
			}
		}
		if seen[step.Name] {
			return &bioerrors.ValidationError{
				Field:      "steps",
				Message:    fmt.Sprintf("duplicate step name: %s", step.Name),
				Suggestion: "step names must be unique within a workflow",
			}
		}
		seen[step.Name] = true

		if err := step.Validate(); err != nil {
			return fmt.Errorf("step %s: %w", step.Name, err)
		}
	}

	for _, step := range d.Steps {
		for _, dep := range step.After {
			if !seen[dep] {
				return &bioerrors.ValidationError{
					Field:      "after",
					Message:    fmt.Sprintf("step %s: after references undefined step %s", step.Name, dep),
					Suggestion: "after entries must name another step declared in the same workflow",
				}
			}
		}
	}

	return nil
}

// Validate checks the per-step required-key schema.
func (s *StepDefinition) Validate() error {
	if s.Container == "" {
		return &bioerrors.ValidationError{
			Field:      "container",
			Message:    "container is required",
			Suggestion: "add a `container:` image reference to the step",
		}
	}
	if s.Command == "" {
		return &bioerrors.ValidationError{
			Field:      "command",
			Message:    "command is required",
			Suggestion: "add a `command:` template to the step",
		}
	}
	return nil
}

// StepByName returns the step with the given name, if present.
func (d *Definition) StepByName(name string) (StepDefinition, bool) {
	for _, step := range d.Steps {
		if step.Name == name {
			return step, true
		}
	}
	return StepDefinition{}, false
}
