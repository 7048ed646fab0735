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

// Package duration parses the compact time-budget strings used in step
// resource requests ("1h30m15s", "45s", "0s") into time.Duration values.
package duration

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	bioerrors "github.com/lewislovelock/bioinfoflow/pkg/errors"
)

// componentPattern matches an optional hour/minute/second triple; at least
// one component must be present for a match to count as well-formed.
var componentPattern = regexp.MustCompile(`^(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s)?$`)

var bareSecondsPattern = regexp.MustCompile(`^\d+$`)

// Parse converts a duration string into a time.Duration. It accepts
// strings matching `(\d+h)?(\d+m)?(\d+s)?` with at least one component
// present, and bare non-negative integers interpreted as seconds. "0s"
// and "0" are valid and mean no wait. Anything else, including negative
// values, returns an InvalidDurationError.
func Parse(s string) (time.Duration, error) {
	if bareSecondsPattern.MatchString(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, &InvalidDurationError{Input: s, Reason: "integer overflow"}
		}
		return time.Duration(n) * time.Second, nil
	}

	match := componentPattern.FindStringSubmatch(s)
	if match == nil || (match[1] == "" && match[2] == "" && match[3] == "") {
		return 0, &InvalidDurationError{Input: s, Reason: `must match (\d+h)?(\d+m)?(\d+s)? with at least one component, or be a bare integer`}
	}

	var total time.Duration
	for i, unit := range []time.Duration{time.Hour, time.Minute, time.Second} {
		part := match[i+1]
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return 0, &InvalidDurationError{Input: s, Reason: "integer overflow"}
		}
		total += time.Duration(n) * unit
	}

	return total, nil
}

// InvalidDurationError reports a duration string that does not match the
// accepted grammar.
type InvalidDurationError struct {
	Input  string
	Reason string
}

// Error implements the error interface.
func (e *InvalidDurationError) Error() string {
	return fmt.Sprintf("invalid duration %q: %s", e.Input, e.Reason)
}

// AsValidationError converts the InvalidDurationError into the package-wide
// ValidationError shape used at the workflow-loading boundary.
func (e *InvalidDurationError) AsValidationError(field string) *bioerrors.ValidationError {
	return &bioerrors.ValidationError{
		Field:      field,
		Message:    e.Error(),
		Suggestion: `use a duration like "1h30m", "45s", or a bare integer number of seconds`,
	}
}
