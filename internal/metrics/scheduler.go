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

// Package metrics exposes the engine's Prometheus instruments. It is
// exercised by the scheduler and the engine façade, and registered on
// the HTTP API's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runningSteps = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bioinfoflow_running_steps",
			Help: "Number of step executions currently RUNNING across all runs",
		},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bioinfoflow_run_duration_seconds",
			Help:    "Wall-clock duration of a workflow run from start to terminal status",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16), // 1s .. ~9h
		},
		[]string{"workflow", "status"},
	)

	repositoryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bioinfoflow_repository_errors_total",
			Help: "Total state repository errors by operation",
		},
		[]string{"operation"},
	)
)

// StepStarted increments the running-step gauge. Call once per step
// dispatch, paired with a StepFinished call when it reaches a terminal
// state.
func StepStarted() {
	runningSteps.Inc()
}

// StepFinished decrements the running-step gauge.
func StepFinished() {
	runningSteps.Dec()
}

// ObserveRunDuration records how long a run took to reach status,
// labeled by workflow name.
func ObserveRunDuration(workflow, status string, seconds float64) {
	runDuration.WithLabelValues(workflow, status).Observe(seconds)
}

// RecordRepositoryError increments the repository error counter for op.
func RecordRepositoryError(op string) {
	repositoryErrors.WithLabelValues(op).Inc()
}
