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

import (
	"context"
	"fmt"

	"github.com/lewislovelock/bioinfoflow/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartRun opens a root span for one workflow run. The engine façade
// calls this once per Run/Resume and ends it once the run reaches a
// terminal status.
func StartRun(ctx context.Context, tracer trace.Tracer, runID, workflowName, version string) (context.Context, trace.Span) {
	return tracer.Start(ctx, fmt.Sprintf("run: %s", workflowName),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("bioinfoflow.run_id", runID),
			attribute.String("bioinfoflow.workflow_name", workflowName),
			attribute.String("bioinfoflow.workflow_version", version),
		),
	)
}

// StartStep opens a span for one step execution, as a child of the run
// span carried on ctx. The scheduler calls this immediately before
// dispatching a step and ends it when the step runner returns.
func StartStep(ctx context.Context, tracer trace.Tracer, runID, stepName, container string) (context.Context, trace.Span) {
	return tracer.Start(ctx, fmt.Sprintf("step: %s", stepName),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("bioinfoflow.run_id", runID),
			attribute.String("bioinfoflow.step_name", stepName),
			attribute.String("bioinfoflow.container", container),
		),
	)
}

// EndWithStatus sets span's final status from a terminal store.Status
// and ends it. FAILED, ERROR, and TERMINATED_TIME_LIMIT mark the span
// an error; everything else (COMPLETED, SKIPPED) is recorded OK.
func EndWithStatus(span trace.Span, status store.Status, stepErr string) {
	switch status {
	case store.StatusFailed, store.StatusError, store.StatusTerminatedTimeLimit:
		span.SetStatus(codes.Error, stepErr)
	default:
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(attribute.String("bioinfoflow.status", string(status)))
	span.End()
}
