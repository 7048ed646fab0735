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

/*
Package tracing provides OpenTelemetry spans for workflow runs and step
executions.

Create a provider once at startup:

	provider, err := tracing.New(tracing.Config{
	    Enabled:     true,
	    ServiceName: "bioinfoflow",
	    SampleRatio: 0.25,
	})

The engine façade opens one run span per Run/Resume call with StartRun,
and the scheduler opens one step span per dispatched step with
StartStep, as a child of the run span already on ctx. Both are closed
with EndWithStatus once their store.Status is known, which maps
FAILED/ERROR/TERMINATED_TIME_LIMIT to an error span status and
everything else to OK.

Provider.MetricsHandler serves the combined Prometheus registry
(otel-backed metrics registered here, plus the direct
prometheus/client_golang instruments in internal/metrics, since both
write to the default registry) on the API server's /metrics route.
*/
package tracing
