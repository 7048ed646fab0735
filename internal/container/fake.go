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
	"sync"
	"time"
)

// FakeDriver is an in-memory Driver test double. It never shells out;
// callers script behaviour per image via ExitCode/LaunchErr/RunFor so
// the step runner's time-limit and launch-error paths can be exercised
// deterministically.
type FakeDriver struct {
	mu sync.Mutex

	// ExitCode maps image -> exit code returned by Wait, default 0.
	ExitCode map[string]int

	// LaunchErr maps image -> error returned by Run, if any.
	LaunchErr map[string]error

	// RunFor maps image -> how long Wait blocks before returning,
	// simulating the underlying process's runtime. Zero returns
	// immediately.
	RunFor map[string]time.Duration

	handles map[string]fakeContainer
	next    int
}

type fakeContainer struct {
	image  string
	stopCh chan struct{}
	closed bool
}

// NewFakeDriver returns an empty FakeDriver ready for use.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		ExitCode:  make(map[string]int),
		LaunchErr: make(map[string]error),
		RunFor:    make(map[string]time.Duration),
		handles:   make(map[string]fakeContainer),
	}
}

// Pull is a no-op; the fake never needs an image present.
func (d *FakeDriver) Pull(ctx context.Context, image string) error {
	return nil
}

// Run registers a handle and writes spec.Command verbatim into
// spec.LogFile so tests can assert on what was dispatched.
func (d *FakeDriver) Run(ctx context.Context, spec RunSpec) (Handle, error) {
	d.mu.Lock()
	if err := d.LaunchErr[spec.Image]; err != nil {
		d.mu.Unlock()
		return Handle{}, err
	}
	d.next++
	id := fmt.Sprintf("fake-%d", d.next)
	d.handles[id] = fakeContainer{image: spec.Image, stopCh: make(chan struct{})}
	d.mu.Unlock()

	if spec.LogFile != "" {
		_ = os.WriteFile(spec.LogFile, []byte(spec.Command+"\n"), 0o644)
	}

	return Handle{ID: id}, nil
}

// Stop closes the handle's stop channel, waking any in-progress Wait
// immediately — matching a real container, which exits soon after a
// soft stop signal.
func (d *FakeDriver) Stop(ctx context.Context, handle Handle, grace time.Duration) error {
	d.closeStopCh(handle)
	return nil
}

// Kill closes the handle's stop channel, same as Stop; the fake does
// not distinguish signal severity.
func (d *FakeDriver) Kill(ctx context.Context, handle Handle) error {
	d.closeStopCh(handle)
	return nil
}

func (d *FakeDriver) closeStopCh(handle Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.handles[handle.ID]
	if !ok || c.closed {
		return
	}
	c.closed = true
	close(c.stopCh)
	d.handles[handle.ID] = c
}

// Wait blocks for the configured RunFor duration, or until the handle
// is stopped/killed, or until ctx is done — whichever comes first. The
// first two return the configured ExitCode; a done ctx returns
// ctx.Err().
func (d *FakeDriver) Wait(ctx context.Context, handle Handle) (int, error) {
	d.mu.Lock()
	c, ok := d.handles[handle.ID]
	wait := d.RunFor[c.image]
	code := d.ExitCode[c.image]
	d.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("unknown handle %s", handle.ID)
	}

	if wait <= 0 {
		return code, nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return code, nil
	case <-c.stopCh:
		return code, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

var _ Driver = (*FakeDriver)(nil)
