package relay

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// DoneSentinel is the payload of the terminal frame.
const DoneSentinel = "[DONE]"

// ErrorEvent is the JSON payload of an in-band error frame.
type ErrorEvent struct {
	UpstreamStatus int    `json:"upstream_status,omitempty"`
	Error          string `json:"error"`
}

const (
	framePrefix = "data: "
	frameSuffix = "\n\n"

	unserializablePayload = `{"error":"unserializable event payload"}`
)

// Frame renders a single SSE data frame. Strings and byte slices are written
// raw; anything else is serialized as JSON without HTML escaping, so error
// text like "<b>" reaches the client as written.
func Frame(payload any) []byte {
	var buf bytes.Buffer
	buf.WriteString(framePrefix)

	switch p := payload.(type) {
	case string:
		buf.WriteString(p)
	case []byte:
		buf.Write(p)
	default:
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(p); err != nil {
			buf.Truncate(len(framePrefix))
			buf.WriteString(unserializablePayload)
			break
		}
		// Encode terminates the value with a single newline.
		buf.Truncate(buf.Len() - 1)
	}

	buf.WriteString(frameSuffix)
	return buf.Bytes()
}

// DoneFrame returns the terminal sentinel frame.
func DoneFrame() []byte {
	return Frame(DoneSentinel)
}

// ErrorFrame returns the frame for an error payload.
func ErrorFrame(ev ErrorEvent) []byte {
	return Frame(ev)
}

// ErrorStream returns an error frame followed by the terminal sentinel.
func ErrorStream(ev ErrorEvent) []byte {
	return append(ErrorFrame(ev), DoneFrame()...)
}

// SetStreamHeaders sets the response headers for an event stream.
func SetStreamHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("X-Accel-Buffering", "no")
}

// WriteErrorStream answers a request with a complete two-frame error stream.
// The status is always 200 so browser EventSource clients still parse the body.
func WriteErrorStream(w http.ResponseWriter, ev ErrorEvent) (int, error) {
	SetStreamHeaders(w.Header())
	w.WriteHeader(http.StatusOK)
	return w.Write(ErrorStream(ev))
}
