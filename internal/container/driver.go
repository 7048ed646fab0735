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

// Package container is the step runner's container driver: a narrow
// capability set {pull, run, stop, kill, wait} that the runner treats
// as opaque. The engine never talks to a container daemon directly.
package container

import (
	"context"
	"time"
)

// Mount binds a host path into the container at the same path, so
// ${run_dir} expansions resolve identically on both sides of the
// boundary.
type Mount struct {
	HostPath string
	ReadOnly bool
}

// RunSpec describes a single container invocation.
type RunSpec struct {
	Image   string
	Command string // shell command string, already variable-substituted
	Mounts  []Mount
	CPU     int    // CPU share; 0 means unconstrained
	Memory  string // e.g. "8g"; empty means unconstrained
	LogFile string // opened in append mode; stdout+stderr are teed into it
}

// Handle is an opaque reference to a running or exited container.
type Handle struct {
	ID string
}

// Driver is the capability set described in spec §4.5. Implementations
// may wrap a local daemon or a remote runtime; callers never reach
// past this interface.
type Driver interface {
	// Pull fetches the image, if the runtime does not already have it.
	Pull(ctx context.Context, image string) error

	// Run starts a detached container and returns a handle to it. The
	// container's stdout+stderr are teed into spec.LogFile.
	Run(ctx context.Context, spec RunSpec) (Handle, error)

	// Stop sends a soft signal and waits up to grace for the container
	// to exit.
	Stop(ctx context.Context, handle Handle, grace time.Duration) error

	// Kill escalates to a hard signal.
	Kill(ctx context.Context, handle Handle) error

	// Wait blocks until the container exits and returns its exit code.
	Wait(ctx context.Context, handle Handle) (int, error)
}
