package relay

// ErrorKind classifies where in the relay a failure happened.
// Every kind is reported in-band as an SSE error frame; none changes the
// transport status of the response.
type ErrorKind string

const (
	// KindConfiguration: a required credential or identifier is missing.
	// Detected before any network call.
	KindConfiguration ErrorKind = "configuration"

	// KindScopeMismatch: the preflight lookup returned a non-success status.
	KindScopeMismatch ErrorKind = "scope_mismatch"

	// KindNetwork: the upstream connection could not be established.
	KindNetwork ErrorKind = "network"

	// KindUpstreamProtocol: upstream answered with a non-success status or no body.
	KindUpstreamProtocol ErrorKind = "upstream_protocol"

	// KindStreamRead: the upstream body failed mid-transfer.
	KindStreamRead ErrorKind = "stream_read"
)

// Error is a relay failure with the data needed to synthesize its error frame.
type Error struct {
	Kind    ErrorKind
	Status  int // upstream HTTP status, 0 when upstream never responded
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Event returns the error payload sent to the caller.
func (e *Error) Event() ErrorEvent {
	return ErrorEvent{UpstreamStatus: e.Status, Error: e.Message}
}
