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

package tracing_test

import (
	"context"
	"testing"

	"github.com/lewislovelock/bioinfoflow/internal/store"
	"github.com/lewislovelock/bioinfoflow/internal/tracing"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNew_DisabledStillBuildsAProvider(t *testing.T) {
	cfg := tracing.DefaultConfig()
	require.False(t, cfg.Enabled)

	provider, err := tracing.New(cfg)
	require.NoError(t, err)
	require.NotNil(t, provider)
	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestStartRunAndStep_RecordStatus(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := tp.Tracer("test")

	ctx, runSpan := tracing.StartRun(context.Background(), tracer, "run-1", "align-pipeline", "1.0.0")
	_, stepSpan := tracing.StartStep(ctx, tracer, "run-1", "a", "alpine")

	tracing.EndWithStatus(stepSpan, store.StatusFailed, "exit code 1")
	tracing.EndWithStatus(runSpan, store.StatusFailed, "")

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	byName := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range spans {
		byName[s.Name()] = s
	}
	require.Contains(t, byName, "run: align-pipeline")
	require.Contains(t, byName, "step: a")

	for _, s := range spans {
		require.Equal(t, codesErrorString, s.Status().Code.String())
	}
}

const codesErrorString = "Error"

func TestEndWithStatus_CompletedIsOK(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := tp.Tracer("test")

	_, span := tracing.StartStep(context.Background(), tracer, "run-1", "a", "alpine")
	tracing.EndWithStatus(span, store.StatusCompleted, "")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "Ok", spans[0].Status().Code.String())
}
