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
	"log/slog"
	"net/http"
	"time"
)

// RequestLog describes an inbound HTTP request for logging purposes.
type RequestLog struct {
	Method     string
	Path       string
	RemoteAddr string
}

// ResponseLog describes the outcome of a handled HTTP request.
type ResponseLog struct {
	StatusCode int
	DurationMs int64
	Error      string
}

// LogRequest logs an incoming HTTP request.
func LogRequest(logger *slog.Logger, req *RequestLog) {
	logger.Info("http request received",
		EventKey, "http_request",
		"method", req.Method,
		"path", req.Path,
		"remote", req.RemoteAddr,
	)
}

// LogResponse logs the outcome of a handled HTTP request.
func LogResponse(logger *slog.Logger, req *RequestLog, resp *ResponseLog) {
	attrs := []any{
		EventKey, "http_response",
		"method", req.Method,
		"path", req.Path,
		"status", resp.StatusCode,
		DurationKey, resp.DurationMs,
		"remote", req.RemoteAddr,
	}

	if resp.Error != "" {
		attrs = append(attrs, "error", resp.Error)
	}

	level := slog.LevelInfo
	message := "http request completed"
	if resp.StatusCode >= 500 {
		level = slog.LevelError
		message = "http request failed"
	}

	logger.Log(nil, level, message, attrs...)
}

// responseRecorder captures the status code written by a downstream handler.
type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Middleware wraps an http.Handler, logging each request and response.
type Middleware struct {
	logger *slog.Logger
}

// NewMiddleware creates a new HTTP logging middleware.
func NewMiddleware(logger *slog.Logger) *Middleware {
	return &Middleware{logger: logger}
}

// Wrap returns an http.Handler that logs req/resp around the given handler.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		reqLog := &RequestLog{
			Method:     r.Method,
			Path:       r.URL.Path,
			RemoteAddr: r.RemoteAddr,
		}
		LogRequest(m.logger, reqLog)

		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		LogResponse(m.logger, reqLog, &ResponseLog{
			StatusCode: rec.status,
			DurationMs: time.Since(start).Milliseconds(),
		})
	})
}
