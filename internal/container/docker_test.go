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

package container

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildRunArgs_Minimal(t *testing.T) {
	args := buildRunArgs(RunSpec{
		Image:   "alpine:latest",
		Command: "echo hi",
	})
	require.Equal(t, []string{"run", "--detach", "alpine:latest", "sh", "-c", "echo hi"}, args)
}

func TestBuildRunArgs_ResourcesAndMounts(t *testing.T) {
	args := buildRunArgs(RunSpec{
		Image:   "biocontainers/samtools:1.17",
		Command: "samtools sort in.bam",
		CPU:     4,
		Memory:  "8g",
		Mounts: []Mount{
			{HostPath: "/data/runs/demo", ReadOnly: false},
			{HostPath: "/data/ref", ReadOnly: true},
		},
	})
	require.Equal(t, []string{
		"run", "--detach",
		"--cpus", "4",
		"--memory", "8g",
		"--volume", "/data/runs/demo:/data/runs/demo",
		"--volume", "/data/ref:/data/ref:ro",
		"biocontainers/samtools:1.17", "sh", "-c", "samtools sort in.bam",
	}, args)
}

func TestNewCLIDriver_ExplicitRuntime(t *testing.T) {
	d := NewCLIDriver("podman")
	require.Equal(t, "podman", d.runtime)
}
