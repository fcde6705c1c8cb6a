// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for operational metrics:
//   - requests:  every request that reached the stream handler
//   - outcomes:  completed streams, client disconnects
//   - failures:  one counter per relay error kind
//   - stream:    bytes and chunks forwarded from upstream
//
// For production, export these to Prometheus or similar.
package monitoring

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Failure kinds accepted by RecordFailure. They mirror relay.ErrorKind values.
const (
	FailureConfiguration    = "configuration"
	FailureScopeMismatch    = "scope_mismatch"
	FailureNetwork          = "network"
	FailureUpstreamProtocol = "upstream_protocol"
	FailureStreamRead       = "stream_read"
)

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	startedAt time.Time

	requests     atomic.Int64
	completed    atomic.Int64
	clientClosed atomic.Int64

	configurationErrors    atomic.Int64
	scopeMismatchErrors    atomic.Int64
	networkErrors          atomic.Int64
	upstreamProtocolErrors atomic.Int64
	streamReadErrors       atomic.Int64
	otherErrors            atomic.Int64

	bytesRelayed  atomic.Int64
	chunksRelayed atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		startedAt: time.Now(),
	}
}

// RecordRequest records an inbound stream request.
func (mc *MetricsCollector) RecordRequest() { mc.requests.Add(1) }

// RecordCompleted records a stream that reached upstream EOF.
func (mc *MetricsCollector) RecordCompleted() { mc.completed.Add(1) }

// RecordClientClosed records a stream abandoned by the caller.
func (mc *MetricsCollector) RecordClientClosed() { mc.clientClosed.Add(1) }

// RecordFailure records a failure of the given kind.
func (mc *MetricsCollector) RecordFailure(kind string) {
	switch kind {
	case FailureConfiguration:
		mc.configurationErrors.Add(1)
	case FailureScopeMismatch:
		mc.scopeMismatchErrors.Add(1)
	case FailureNetwork:
		mc.networkErrors.Add(1)
	case FailureUpstreamProtocol:
		mc.upstreamProtocolErrors.Add(1)
	case FailureStreamRead:
		mc.streamReadErrors.Add(1)
	default:
		mc.otherErrors.Add(1)
	}
}

// RecordRelayed records bytes and chunks forwarded from upstream.
func (mc *MetricsCollector) RecordRelayed(bytes int64, chunks int) {
	mc.bytesRelayed.Add(bytes)
	mc.chunksRelayed.Add(int64(chunks))
}

// StartedAt returns when the metrics collector was created.
func (mc *MetricsCollector) StartedAt() time.Time { return mc.startedAt }

// Stats returns current metrics as a flat map.
func (mc *MetricsCollector) Stats() map[string]int64 {
	return map[string]int64{
		"requests":      mc.requests.Load(),
		"completed":     mc.completed.Load(),
		"client_closed": mc.clientClosed.Load(),
		"failed":        mc.failures(),
		"bytes_relayed": mc.bytesRelayed.Load(),
	}
}

func (mc *MetricsCollector) failures() int64 {
	return mc.configurationErrors.Load() +
		mc.scopeMismatchErrors.Load() +
		mc.networkErrors.Load() +
		mc.upstreamProtocolErrors.Load() +
		mc.streamReadErrors.Load() +
		mc.otherErrors.Load()
}

// FullStats returns all metrics in a structured format for the /stats endpoint.
func (mc *MetricsCollector) FullStats() StatsResponse {
	uptime := time.Since(mc.startedAt)

	return StatsResponse{
		Uptime:        formatDuration(uptime),
		UptimeSeconds: int64(uptime.Seconds()),
		StartedAt:     mc.startedAt.Format(time.RFC3339),
		Requests: RequestStats{
			Total:        mc.requests.Load(),
			Completed:    mc.completed.Load(),
			Failed:       mc.failures(),
			ClientClosed: mc.clientClosed.Load(),
		},
		Failures: FailureStats{
			Configuration:    mc.configurationErrors.Load(),
			ScopeMismatch:    mc.scopeMismatchErrors.Load(),
			Network:          mc.networkErrors.Load(),
			UpstreamProtocol: mc.upstreamProtocolErrors.Load(),
			StreamRead:       mc.streamReadErrors.Load(),
			Other:            mc.otherErrors.Load(),
		},
		Stream: StreamStats{
			BytesRelayed:  mc.bytesRelayed.Load(),
			ChunksRelayed: mc.chunksRelayed.Load(),
		},
	}
}

// StatsResponse is the structured response for the /stats endpoint.
type StatsResponse struct {
	Uptime        string       `json:"uptime"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartedAt     string       `json:"started_at"`
	Requests      RequestStats `json:"requests"`
	Failures      FailureStats `json:"failures"`
	Stream        StreamStats  `json:"stream"`
}

// RequestStats holds request count metrics.
type RequestStats struct {
	Total        int64 `json:"total"`
	Completed    int64 `json:"completed"`
	Failed       int64 `json:"failed"`
	ClientClosed int64 `json:"client_closed"`
}

// FailureStats breaks failures down by kind.
type FailureStats struct {
	Configuration    int64 `json:"configuration"`
	ScopeMismatch    int64 `json:"scope_mismatch"`
	Network          int64 `json:"network"`
	UpstreamProtocol int64 `json:"upstream_protocol"`
	StreamRead       int64 `json:"stream_read"`
	Other            int64 `json:"other"`
}

// StreamStats holds relayed volume.
type StreamStats struct {
	BytesRelayed  int64 `json:"bytes_relayed"`
	ChunksRelayed int64 `json:"chunks_relayed"`
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
