// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by both gateway/ and monitoring/ packages.
// Defined here ONCE to avoid duplication and circular imports.
//
// TYPES:
//   - RequestEvent:  Telemetry data for each stream request
//   - InitEvent:     Relay startup configuration
//   - Config types:  TelemetryConfig, LogConfig
package monitoring

import "time"

// =============================================================================
// EVENT TYPES - Structured data for telemetry recording
// =============================================================================

// RequestEvent captures one request through the relay.
type RequestEvent struct {
	RequestID          string    `json:"request_id"`
	Timestamp          time.Time `json:"timestamp"`
	Method             string    `json:"method"`
	Path               string    `json:"path"`
	ClientIP           string    `json:"client_ip"`
	Mode               string    `json:"mode"`
	AssistantID        string    `json:"assistant_id,omitempty"`
	HasProject         bool      `json:"has_project"`
	PromptLength       int       `json:"prompt_length"`
	Preflight          bool      `json:"preflight"`
	Outcome            string    `json:"outcome"` // completed, read_error, client_closed, rejected
	ErrorKind          string    `json:"error_kind,omitempty"`
	UpstreamStatus     int       `json:"upstream_status,omitempty"`
	Error              string    `json:"error,omitempty"`
	BytesRelayed       int64     `json:"bytes_relayed"`
	ChunksRelayed      int       `json:"chunks_relayed"`
	Success            bool      `json:"success"`
	PreflightLatencyMs int64     `json:"preflight_latency_ms,omitempty"`
	DispatchLatencyMs  int64     `json:"dispatch_latency_ms,omitempty"`
	TotalLatencyMs     int64     `json:"total_latency_ms"`
}

// InitEvent captures relay startup configuration.
type InitEvent struct {
	Timestamp            time.Time `json:"timestamp"`
	Event                string    `json:"event"`
	Version              string    `json:"version"`
	ServerPort           int       `json:"server_port"`
	StreamPath           string    `json:"stream_path"`
	ServerReadTimeoutMs  int64     `json:"server_read_timeout_ms"`
	ServerWriteTimeoutMs int64     `json:"server_write_timeout_ms"`
	UpstreamBaseURL      string    `json:"upstream_base_url"`
	Mode                 string    `json:"mode"`
	Preflight            bool      `json:"preflight"`
	RequireProject       bool      `json:"require_project"`
	Model                string    `json:"model,omitempty"`
	HasInstructions      bool      `json:"has_instructions"`
	TelemetryPath        string    `json:"telemetry_path,omitempty"`
}

// =============================================================================
// CONFIG TYPES
// =============================================================================

// TelemetryConfig controls JSONL telemetry.
type TelemetryConfig struct {
	Enabled     bool
	LogPath     string // request events; init events go to init.jsonl alongside
	LogToStdout bool   // also log a one-line summary per request
}

// LogConfig controls the global zerolog logger.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // auto, json, console
	Output string // stdout, stderr, or a file path
}
