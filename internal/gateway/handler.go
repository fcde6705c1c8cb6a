// HTTP request handling for the streaming relay.
//
// DESIGN: Main request flow (handleStream):
//   - ResolveRequestConfig: env + query, read fresh per request
//   - GuardChain:           reject missing credentials before any network call
//   - Preflight:            optional assistant visibility lookup
//   - Dispatch:             POST /v1/responses with stream=true
//   - Pipe:                 forward upstream bytes, then [DONE]
//
// Every failure becomes an error frame plus [DONE] on a 200 response.
// Also includes the health check and telemetry helpers.
package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/compresr/stream-relay/internal/monitoring"
	"github.com/compresr/stream-relay/internal/relay"
)

// handleStream relays one prompt to the upstream streaming endpoint.
// Any method is accepted; only the query string is read.
func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	sc := g.newStreamContext(r)
	w.Header().Set(HeaderRequestID, sc.requestID)
	g.metrics.RecordRequest()

	reqCfg := relay.ResolveRequestConfig(r.URL.Query(), g.getenv)
	sc.observe(reqCfg)
	log.Debug().
		Str("request_id", sc.requestID).
		Object("config", reqCfg).
		Msg("stream request")

	if err := g.guards.Check(reqCfg); err != nil {
		g.fail(w, r, sc, err)
		return
	}

	ctx := r.Context()
	headers := relay.BuildHeaders(reqCfg, g.config.Upstream.Mode)

	if g.config.Upstream.Preflight {
		start := time.Now()
		err := g.client.Preflight(ctx, headers, reqCfg.AssistantID, reqCfg.ProjectID)
		sc.event.PreflightLatencyMs = time.Since(start).Milliseconds()
		if err != nil {
			g.fail(w, r, sc, err)
			return
		}
	}

	body, err := relay.BuildRequestBody(reqCfg, relay.DispatchOptions{
		Mode:         g.config.Upstream.Mode,
		Model:        g.config.Upstream.Model,
		Instructions: g.config.Upstream.Instructions,
	})
	if err != nil {
		g.fail(w, r, sc, err)
		return
	}

	start := time.Now()
	result := g.client.Dispatch(ctx, headers, body)
	sc.event.DispatchLatencyMs = time.Since(start).Milliseconds()
	if result.Failure != nil {
		g.fail(w, r, sc, result.Failure)
		return
	}

	relay.SetStreamHeaders(w.Header())
	w.WriteHeader(http.StatusOK)

	summary := relay.Pipe(ctx, w, result.Stream)
	g.metrics.RecordRelayed(summary.Bytes, summary.Chunks)
	sc.event.BytesRelayed = summary.Bytes
	sc.event.ChunksRelayed = summary.Chunks
	sc.event.Outcome = string(summary.Outcome)

	switch summary.Outcome {
	case relay.OutcomeCompleted:
		g.metrics.RecordCompleted()
		sc.event.Success = true
	case relay.OutcomeClientClosed:
		g.metrics.RecordClientClosed()
	case relay.OutcomeReadError:
		g.metrics.RecordFailure(monitoring.FailureStreamRead)
		sc.recordError(summary.Err)
		log.Warn().
			Str("request_id", sc.requestID).
			Err(summary.Err).
			Int64("bytes", summary.Bytes).
			Msg("upstream stream broke")
	}

	log.Info().
		Str("request_id", sc.requestID).
		Str("outcome", string(summary.Outcome)).
		Int64("bytes", summary.Bytes).
		Int("chunks", summary.Chunks).
		Dur("duration", time.Since(sc.start)).
		Msg("stream finished")

	g.recordRequestTelemetry(sc)
}

// fail answers the request with an error frame and the terminal sentinel.
// When the client is already gone nothing is written.
func (g *Gateway) fail(w http.ResponseWriter, r *http.Request, sc *streamContext, err error) {
	if r.Context().Err() != nil {
		g.metrics.RecordClientClosed()
		sc.event.Outcome = string(relay.OutcomeClientClosed)
		log.Debug().Str("request_id", sc.requestID).Err(err).Msg("client left before streaming")
		g.recordRequestTelemetry(sc)
		return
	}

	var relayErr *relay.Error
	if !errors.As(err, &relayErr) {
		relayErr = &relay.Error{Message: err.Error(), Err: err}
	}

	g.metrics.RecordFailure(string(relayErr.Kind))
	sc.event.Outcome = outcomeRejected
	sc.recordError(relayErr)

	log.Warn().
		Str("request_id", sc.requestID).
		Str("kind", string(relayErr.Kind)).
		Int("upstream_status", relayErr.Status).
		Str("error", relayErr.Message).
		Msg("stream request failed")

	if _, writeErr := relay.WriteErrorStream(w, relayErr.Event()); writeErr != nil {
		log.Debug().Err(writeErr).Str("request_id", sc.requestID).Msg("failed to write error stream")
	}
	g.recordRequestTelemetry(sc)
}

// handleHealth returns health status.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":  "ok",
		"time":    time.Now().Format(time.RFC3339),
		"version": Version,
		"mode":    string(g.config.Upstream.Mode),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(health)
}

// =============================================================================
// TELEMETRY HELPERS
// =============================================================================

// recordRequestTelemetry finalizes and records the request event.
func (g *Gateway) recordRequestTelemetry(sc *streamContext) {
	sc.event.TotalLatencyMs = time.Since(sc.start).Milliseconds()
	g.tracker.RecordRequest(sc.event)
}
