// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined here.
// This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// SERVER DEFAULTS
// =============================================================================

// DefaultPort is the listen port when neither config nor RELAY_PORT set one.
const DefaultPort = 8888

// DefaultStreamPath is the inbound path that serves the relayed event stream.
const DefaultStreamPath = "/stream"

// DefaultReadTimeout bounds reading the inbound request (headers + empty body).
const DefaultReadTimeout = 30 * time.Second

// DefaultServerWriteTimeout is zero: the relay inherits whatever deadline the
// hosting platform enforces and never cuts a stream itself.
const DefaultServerWriteTimeout time.Duration = 0

// DefaultShutdownTimeout is how long in-flight streams get to finish on SIGTERM.
const DefaultShutdownTimeout = 15 * time.Second

// =============================================================================
// UPSTREAM DEFAULTS
// =============================================================================

// DefaultUpstreamBaseURL is the OpenAI API origin.
const DefaultUpstreamBaseURL = "https://api.openai.com"

// DefaultModel is used in direct-model mode when no model is configured.
const DefaultModel = "gpt-4o-mini"

// DefaultDialTimeout is the TCP dial timeout for upstream connections.
const DefaultDialTimeout = 30 * time.Second

// =============================================================================
// HTTP AND NETWORKING
// =============================================================================

// DefaultBufferSize is the read buffer used when relaying upstream chunks.
const DefaultBufferSize = 4096

// MaxErrorBodySize caps how much of an upstream error body is read for diagnostics.
const MaxErrorBodySize = 64 * 1024

// MaxErrorBodyLogLen limits error response body in logs to prevent bloat.
const MaxErrorBodyLogLen = 500

// =============================================================================
// LOGGING
// =============================================================================

// DefaultLogLevel is the zerolog level used when none is configured.
const DefaultLogLevel = "info"

// DefaultLogFormat selects console output on a terminal and JSON otherwise.
const DefaultLogFormat = "auto"

// DefaultLogOutput is where logs go when no output is configured.
const DefaultLogOutput = "stdout"
