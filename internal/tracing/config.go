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

package tracing

// Config holds tracing configuration.
type Config struct {
	// Enabled controls sampling: when true spans are sampled at
	// SampleRatio, when false at 0. New wires up no exporter itself in
	// either case. Disabled configurations still return a working
	// provider so callers never need a nil check.
	Enabled bool

	// ServiceName identifies this service in traces.
	ServiceName string

	// ServiceVersion is the application version.
	ServiceVersion string

	// SampleRatio is the fraction of traces recorded when Enabled,
	// applied on top of the parent's sampling decision (0.0-1.0).
	// 1.0 samples every run and step.
	SampleRatio float64
}

// DefaultConfig returns configuration with tracing off and full
// sampling, so enabling it later is a one-field change.
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "bioinfoflow",
		ServiceVersion: "unknown",
		SampleRatio:    1.0,
	}
}
