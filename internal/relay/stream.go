package relay

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/compresr/stream-relay/internal/config"
)

// StreamOutcome describes how a relayed stream ended.
type StreamOutcome string

const (
	OutcomeCompleted    StreamOutcome = "completed"
	OutcomeReadError    StreamOutcome = "read_error"
	OutcomeClientClosed StreamOutcome = "client_closed"
)

// StreamSummary reports what Pipe forwarded.
type StreamSummary struct {
	Outcome StreamOutcome
	Bytes   int64 // upstream bytes forwarded, excluding the trailer frames
	Chunks  int
	Err     error
}

// Pipe forwards src to w chunk by chunk, unmodified and in order, flushing after
// each write when w is an http.Flusher. The stream always ends in exactly one
// [DONE] frame unless the client went away:
//   - EOF:          [DONE]
//   - read failure: error frame, then [DONE]
//   - ctx done or write failure: nothing more is written
//
// src is closed before Pipe returns.
func Pipe(ctx context.Context, w io.Writer, src io.ReadCloser) StreamSummary {
	defer func() { _ = src.Close() }()

	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	var summary StreamSummary
	buf := make([]byte, config.DefaultBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			summary.Outcome = OutcomeClientClosed
			summary.Err = err
			return summary
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				log.Debug().Err(writeErr).Msg("client disconnected")
				summary.Outcome = OutcomeClientClosed
				summary.Err = writeErr
				return summary
			}
			flush()
			summary.Bytes += int64(n)
			summary.Chunks++
		}
		if readErr == nil {
			continue
		}

		if errors.Is(readErr, io.EOF) {
			_, _ = w.Write(DoneFrame())
			flush()
			summary.Outcome = OutcomeCompleted
			return summary
		}

		// A read cancelled because the caller left is not a stream failure.
		if ctx.Err() != nil {
			summary.Outcome = OutcomeClientClosed
			summary.Err = ctx.Err()
			return summary
		}

		log.Debug().Err(readErr).Msg("error reading stream")
		relayErr := &Error{Kind: KindStreamRead, Message: "Stream read error: " + readErr.Error(), Err: readErr}
		_, _ = w.Write(ErrorStream(relayErr.Event()))
		flush()
		summary.Outcome = OutcomeReadError
		summary.Err = relayErr
		return summary
	}
}
