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

package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExitCode_Nil(t *testing.T) {
	require.Equal(t, 0, ExitCode(nil))
}

func TestExitCode_ExitError(t *testing.T) {
	err := &ExitError{Code: 130, Err: errors.New("cancelled")}
	require.Equal(t, 130, ExitCode(err))
}

func TestExitCode_WrappedExitError(t *testing.T) {
	err := fmt.Errorf("run failed: %w", &ExitError{Code: 2, Err: errors.New("invalid workflow")})
	require.Equal(t, 2, ExitCode(err))
}

func TestExitCode_PlainError(t *testing.T) {
	require.Equal(t, 1, ExitCode(errors.New("boom")))
}

func TestExitError_ErrorString(t *testing.T) {
	err := &ExitError{Code: 1, Err: errors.New("boom")}
	require.Equal(t, "boom", err.Error())

	require.Empty(t, (&ExitError{Code: 1}).Error())
}
