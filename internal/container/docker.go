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
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	bioerrors "github.com/lewislovelock/bioinfoflow/pkg/errors"
)

// CLIDriver implements Driver by shelling out to the docker or podman
// CLI. No container SDK client is introduced; this mirrors the
// teacher's own low-dependency approach to talking to a container
// runtime.
type CLIDriver struct {
	runtime string
}

// NewCLIDriver returns a driver bound to the given runtime ("docker"
// or "podman"). An empty runtime triggers auto-detection.
func NewCLIDriver(runtime string) *CLIDriver {
	if runtime == "" {
		runtime = detectRuntime()
	}
	return &CLIDriver{runtime: runtime}
}

// detectRuntime probes for a working docker daemon, falling back to
// podman if docker is absent or unreachable.
func detectRuntime() string {
	if _, err := exec.LookPath("docker"); err == nil {
		if err := exec.Command("docker", "info").Run(); err == nil {
			return "docker"
		}
	}
	if _, err := exec.LookPath("podman"); err == nil {
		return "podman"
	}
	return ""
}

// Pull fetches an image via `<runtime> pull <image>`.
func (d *CLIDriver) Pull(ctx context.Context, image string) error {
	if d.runtime == "" {
		return &bioerrors.ContainerLaunchError{Image: image, Cause: fmt.Errorf("no container runtime available (tried docker, podman)")}
	}
	cmd := exec.CommandContext(ctx, d.runtime, "pull", image)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &bioerrors.ContainerLaunchError{Image: image, Cause: fmt.Errorf("pull failed: %s: %w", strings.TrimSpace(string(out)), err)}
	}
	return nil
}

// Run starts a detached container per spec and begins teeing its
// combined stdout/stderr into spec.LogFile.
func (d *CLIDriver) Run(ctx context.Context, spec RunSpec) (Handle, error) {
	if d.runtime == "" {
		return Handle{}, &bioerrors.ContainerLaunchError{Image: spec.Image, Cause: fmt.Errorf("no container runtime available (tried docker, podman)")}
	}

	args := buildRunArgs(spec)
	cmd := exec.CommandContext(ctx, d.runtime, args...)
	out, err := cmd.Output()
	if err != nil {
		stderr := ""
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr = strings.TrimSpace(string(exitErr.Stderr))
		}
		return Handle{}, &bioerrors.ContainerLaunchError{Image: spec.Image, Cause: fmt.Errorf("run failed: %s: %w", stderr, err)}
	}

	handle := Handle{ID: strings.TrimSpace(string(out))}

	if spec.LogFile != "" {
		go d.streamLogs(handle, spec.LogFile)
	}

	return handle, nil
}

// streamLogs tees the container's output into logFile for the
// lifetime of the container. Best-effort: a failure to open the log
// file is not surfaced, since log capture is a convenience on top of
// the step's recorded exit status, not a correctness requirement.
func (d *CLIDriver) streamLogs(handle Handle, logFile string) {
	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	cmd := exec.Command(d.runtime, "logs", "--follow", handle.ID)
	cmd.Stdout = f
	cmd.Stderr = f
	_ = cmd.Run()
}

// Stop sends a soft signal and waits up to grace for the container to
// exit cleanly.
func (d *CLIDriver) Stop(ctx context.Context, handle Handle, grace time.Duration) error {
	seconds := int(grace.Round(time.Second).Seconds())
	if seconds < 0 {
		seconds = 0
	}
	cmd := exec.CommandContext(ctx, d.runtime, "stop", "--time", strconv.Itoa(seconds), handle.ID)
	return cmd.Run()
}

// Kill escalates to SIGKILL via the runtime.
func (d *CLIDriver) Kill(ctx context.Context, handle Handle) error {
	cmd := exec.CommandContext(ctx, d.runtime, "kill", handle.ID)
	return cmd.Run()
}

// Wait blocks until the container exits and reports its exit code.
func (d *CLIDriver) Wait(ctx context.Context, handle Handle) (int, error) {
	cmd := exec.CommandContext(ctx, d.runtime, "wait", handle.ID)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("wait %s: %w", handle.ID, err)
	}
	code, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, fmt.Errorf("wait %s: unparseable exit code %q: %w", handle.ID, out, err)
	}
	return code, nil
}

// buildRunArgs composes the `<runtime> run` argument list for spec.
func buildRunArgs(spec RunSpec) []string {
	args := []string{"run", "--detach"}

	if spec.CPU > 0 {
		args = append(args, "--cpus", strconv.Itoa(spec.CPU))
	}
	if spec.Memory != "" {
		args = append(args, "--memory", spec.Memory)
	}
	for _, m := range spec.Mounts {
		vol := fmt.Sprintf("%s:%s", m.HostPath, m.HostPath)
		if m.ReadOnly {
			vol += ":ro"
		}
		args = append(args, "--volume", vol)
	}

	args = append(args, spec.Image, "sh", "-c", spec.Command)
	return args
}

var _ Driver = (*CLIDriver)(nil)
