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

package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, "info", cfg.Level)
	require.Equal(t, FormatJSON, cfg.Format)
	require.Equal(t, os.Stderr, cfg.Output)
	require.False(t, cfg.AddSource)
}

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		expected *Config
	}{
		{
			name:    "defaults when no env vars",
			envVars: map[string]string{},
			expected: &Config{
				Level: "info", Format: FormatJSON, Output: os.Stderr, AddSource: false,
			},
		},
		{
			name:    "LOG_LEVEL=debug",
			envVars: map[string]string{"LOG_LEVEL": "debug"},
			expected: &Config{
				Level: "debug", Format: FormatJSON, Output: os.Stderr, AddSource: false,
			},
		},
		{
			name:    "LOG_LEVEL=DEBUG (case insensitive)",
			envVars: map[string]string{"LOG_LEVEL": "DEBUG"},
			expected: &Config{
				Level: "debug", Format: FormatJSON, Output: os.Stderr, AddSource: false,
			},
		},
		{
			name:    "LOG_FORMAT=text",
			envVars: map[string]string{"LOG_FORMAT": "text"},
			expected: &Config{
				Level: "info", Format: FormatText, Output: os.Stderr, AddSource: false,
			},
		},
		{
			name:    "LOG_SOURCE=1",
			envVars: map[string]string{"LOG_SOURCE": "1"},
			expected: &Config{
				Level: "info", Format: FormatJSON, Output: os.Stderr, AddSource: true,
			},
		},
		{
			name: "BIOINFOFLOW_DEBUG enables debug and source",
			envVars: map[string]string{
				"BIOINFOFLOW_DEBUG": "1",
			},
			expected: &Config{
				Level: "debug", Format: FormatJSON, Output: os.Stderr, AddSource: true,
			},
		},
		{
			name: "BIOINFOFLOW_LOG_LEVEL takes precedence over LOG_LEVEL",
			envVars: map[string]string{
				"BIOINFOFLOW_LOG_LEVEL": "warn",
				"LOG_LEVEL":             "error",
			},
			expected: &Config{
				Level: "warn", Format: FormatJSON, Output: os.Stderr, AddSource: false,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := FromEnv()

			require.Equal(t, tt.expected.Level, cfg.Level)
			require.Equal(t, tt.expected.Format, cfg.Format)
			require.Equal(t, tt.expected.AddSource, cfg.AddSource)
		})
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := New(&Config{Level: "debug", Format: FormatJSON, Output: &buf})
	logger.Info("test message", "key", "value")

	output := buf.String()
	require.Contains(t, output, "test message")

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(output), &logEntry))
	require.Equal(t, "test message", logEntry["msg"])
	require.Equal(t, "value", logEntry["key"])
	require.Equal(t, "INFO", logEntry["level"])
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := New(&Config{Level: "info", Format: FormatText, Output: &buf})
	logger.Info("test message", "key", "value")

	output := buf.String()
	require.Contains(t, output, "test message")
	require.Contains(t, output, "key=value")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"trace", LevelTrace},
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			require.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}

func TestLogLevel_Filtering(t *testing.T) {
	tests := []struct {
		name          string
		configLevel   string
		logFunc       func(*slog.Logger)
		shouldContain bool
	}{
		{"debug log at debug level", "debug", func(l *slog.Logger) { l.Debug("debug message") }, true},
		{"debug log at info level", "info", func(l *slog.Logger) { l.Debug("debug message") }, false},
		{"info log at info level", "info", func(l *slog.Logger) { l.Info("info message") }, true},
		{"info log at warn level", "warn", func(l *slog.Logger) { l.Info("info message") }, false},
		{"error log at error level", "error", func(l *slog.Logger) { l.Error("error message") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New(&Config{Level: tt.configLevel, Format: FormatJSON, Output: &buf})
			tt.logFunc(logger)

			require.Equal(t, tt.shouldContain, buf.Len() > 0)
		})
	}
}

func TestWithCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})
	WithCorrelationID(logger, "test-correlation-id").Info("test message")

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	require.Equal(t, "test-correlation-id", logEntry["correlation_id"])
}

func TestWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})
	WithRequestID(logger, "test-request-id").Info("test message")

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	require.Equal(t, "test-request-id", logEntry["request_id"])
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})
	WithComponent(logger, "scheduler").Info("test message")

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	require.Equal(t, "scheduler", logEntry["component"])
}

func TestAddSource(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf, AddSource: true})
	logger.Info("test message")

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))

	source, ok := logEntry["source"].(map[string]interface{})
	require.True(t, ok, "expected source field to be a map")
	require.Contains(t, source, "file")
	require.Contains(t, source, "line")
}

func TestAttrHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})
	logger.Info("test message",
		String("string_key", "string_value"),
		Int("int_key", 42),
		Int64("int64_key", int64(123)),
		Bool("bool_key", true),
		Duration("duration_key", 1500),
	)

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	require.Equal(t, "string_value", logEntry["string_key"])
	require.Equal(t, float64(42), logEntry["int_key"])
	require.Equal(t, float64(123), logEntry["int64_key"])
	require.Equal(t, true, logEntry["bool_key"])
	require.Equal(t, float64(1500), logEntry["duration_key_ms"])
}

func TestErrorAttr(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "error", Format: FormatJSON, Output: &buf})
	testErr := errors.New("test error")
	logger.Error("test error message", Error(testErr))

	require.Contains(t, buf.String(), testErr.Error())
}

func TestNilConfig(t *testing.T) {
	logger := New(nil)
	require.NotNil(t, logger)
}

func TestWithRunContext(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})
	WithRunContext(logger, "20260730_120000_abcd1234", "align-reads").Info("test message")

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	require.Equal(t, "20260730_120000_abcd1234", logEntry[RunIDKey])
	require.Equal(t, "align-reads", logEntry[WorkflowKey])
}

func TestWithStepContext(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})
	WithStepContext(logger, "20260730_120000_abcd1234", "trim").Info("test message")

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	require.Equal(t, "20260730_120000_abcd1234", logEntry[RunIDKey])
	require.Equal(t, "trim", logEntry[StepIDKey])
}

func TestTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "trace", Format: FormatJSON, Output: &buf})
	Trace(logger, "container exec invoked", String("image", "samtools:1.9"))

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	require.Equal(t, "samtools:1.9", logEntry["image"])
}

func TestTrace_FilteredAtHigherLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "debug", Format: FormatJSON, Output: &buf})
	Trace(logger, "should not appear")

	require.Equal(t, 0, buf.Len())
}

func BenchmarkLogger_JSON(b *testing.B) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("benchmark message", "iteration", i, "key1", "value1", "key2", "value2")
	}
}

func BenchmarkLogger_Text(b *testing.B) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatText, Output: &buf})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("benchmark message", "iteration", i, "key1", "value1", "key2", "value2")
	}
}
