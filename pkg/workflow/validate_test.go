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

package workflow_test

import (
	"testing"

	"github.com/lewislovelock/bioinfoflow/pkg/workflow"
	"github.com/stretchr/testify/require"
)

func TestValidateDAG_Acyclic(t *testing.T) {
	def := &workflow.Definition{
		Name:    "fan",
		Version: "1.0",
		Steps: []workflow.StepDefinition{
			{Name: "generate", Container: "alpine", Command: "echo hi"},
			{Name: "count_words", Container: "alpine", Command: "echo hi", After: []string{"generate"}},
			{Name: "final", Container: "alpine", Command: "echo hi", After: []string{"count_words"}},
		},
	}
	require.NoError(t, workflow.ValidateDAG(def))
}

func TestValidateDAG_DirectCycle(t *testing.T) {
	// a.after=[b], b.after=[a] — scenario S5.
	def := &workflow.Definition{
		Name:    "cycle",
		Version: "1.0",
		Steps: []workflow.StepDefinition{
			{Name: "a", Container: "alpine", Command: "echo hi", After: []string{"b"}},
			{Name: "b", Container: "alpine", Command: "echo hi", After: []string{"a"}},
		},
	}
	err := workflow.ValidateDAG(def)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cyclic")
}

func TestValidateDAG_SelfCycle(t *testing.T) {
	def := &workflow.Definition{
		Name:    "self",
		Version: "1.0",
		Steps: []workflow.StepDefinition{
			{Name: "a", Container: "alpine", Command: "echo hi", After: []string{"a"}},
		},
	}
	err := workflow.ValidateDAG(def)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cyclic")
}

func TestValidateDAG_LongerCycle(t *testing.T) {
	def := &workflow.Definition{
		Name:    "triangle",
		Version: "1.0",
		Steps: []workflow.StepDefinition{
			{Name: "a", Container: "alpine", Command: "echo hi", After: []string{"c"}},
			{Name: "b", Container: "alpine", Command: "echo hi", After: []string{"a"}},
			{Name: "c", Container: "alpine", Command: "echo hi", After: []string{"b"}},
		},
	}
	err := workflow.ValidateDAG(def)
	require.Error(t, err)
}

func TestValidateDAG_MalformedTimeLimit(t *testing.T) {
	def := &workflow.Definition{
		Name:    "bad-duration",
		Version: "1.0",
		Steps: []workflow.StepDefinition{
			{
				Name:      "a",
				Container: "alpine",
				Command:   "echo hi",
				Resources: workflow.ResourceRequest{TimeLimit: "1d"},
			},
		},
	}
	err := workflow.ValidateDAG(def)
	require.Error(t, err)
	require.Contains(t, err.Error(), "time_limit")
}

func TestValidateDAG_ValidTimeLimit(t *testing.T) {
	def := &workflow.Definition{
		Name:    "good-duration",
		Version: "1.0",
		Steps: []workflow.StepDefinition{
			{
				Name:      "a",
				Container: "alpine",
				Command:   "echo hi",
				Resources: workflow.ResourceRequest{TimeLimit: "10s"},
			},
		},
	}
	require.NoError(t, workflow.ValidateDAG(def))
}
