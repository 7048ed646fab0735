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

package container_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lewislovelock/bioinfoflow/internal/container"
	"github.com/stretchr/testify/require"
)

func TestFakeDriver_ExitCode(t *testing.T) {
	d := container.NewFakeDriver()
	d.ExitCode["alpine"] = 7

	h, err := d.Run(context.Background(), container.RunSpec{Image: "alpine", Command: "false"})
	require.NoError(t, err)

	code, err := d.Wait(context.Background(), h)
	require.NoError(t, err)
	require.Equal(t, 7, code)
}

func TestFakeDriver_LaunchError(t *testing.T) {
	d := container.NewFakeDriver()
	d.LaunchErr["broken"] = context.DeadlineExceeded

	_, err := d.Run(context.Background(), container.RunSpec{Image: "broken", Command: "echo hi"})
	require.Error(t, err)
}

func TestFakeDriver_StopWakesWait(t *testing.T) {
	d := container.NewFakeDriver()
	d.RunFor["sleeper"] = time.Hour

	h, err := d.Run(context.Background(), container.RunSpec{Image: "sleeper", Command: "sleep 3600"})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_, _ = d.Wait(context.Background(), h)
		close(done)
	}()

	require.NoError(t, d.Stop(context.Background(), h, 10*time.Second))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Stop")
	}
}

func TestFakeDriver_WritesCommandToLogFile(t *testing.T) {
	d := container.NewFakeDriver()
	logPath := filepath.Join(t.TempDir(), "step.log")

	_, err := d.Run(context.Background(), container.RunSpec{
		Image:   "alpine",
		Command: "echo hi",
		LogFile: logPath,
	})
	require.NoError(t, err)

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Contains(t, string(content), "echo hi")
}
