// Package gateway types - per-request state for the relay handler.
//
// DESIGN: streamContext is created when a request arrives and carries the
// telemetry event through every stage so each exit path records one event.
package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/compresr/stream-relay/internal/monitoring"
	"github.com/compresr/stream-relay/internal/relay"
)

// Version is reported by /health and the init event.
const Version = "1.0.0"

// HeaderRequestID carries the request ID in both directions.
const HeaderRequestID = "X-Request-ID"

// outcomeRejected marks requests answered with an error stream before any
// upstream bytes were relayed.
const outcomeRejected = "rejected"

// streamContext carries state through one stream request.
type streamContext struct {
	requestID string
	start     time.Time
	event     *monitoring.RequestEvent
}

func (g *Gateway) newStreamContext(r *http.Request) *streamContext {
	requestID := getRequestID(r)
	now := time.Now()
	return &streamContext{
		requestID: requestID,
		start:     now,
		event: &monitoring.RequestEvent{
			RequestID: requestID,
			Timestamp: now,
			Method:    r.Method,
			Path:      r.URL.Path,
			ClientIP:  clientIP(r),
			Mode:      string(g.config.Upstream.Mode),
			Preflight: g.config.Upstream.Preflight,
		},
	}
}

// observe copies the non-secret parts of the resolved config into the event.
func (sc *streamContext) observe(cfg relay.RequestConfig) {
	sc.event.AssistantID = cfg.AssistantID
	sc.event.HasProject = cfg.ProjectID != ""
	sc.event.PromptLength = len(cfg.Prompt)
}

func (sc *streamContext) recordError(err error) {
	if err == nil {
		return
	}
	var relayErr *relay.Error
	if errors.As(err, &relayErr) {
		sc.event.ErrorKind = string(relayErr.Kind)
		sc.event.UpstreamStatus = relayErr.Status
		sc.event.Error = relayErr.Message
		return
	}
	sc.event.Error = err.Error()
}
