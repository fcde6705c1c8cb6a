package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/compresr/stream-relay/internal/config"
	"github.com/compresr/stream-relay/internal/utils"
)

// Upstream endpoint paths.
const (
	AssistantsPath = "/v1/assistants"
	ResponsesPath  = "/v1/responses"
)

// =============================================================================
// Client
// =============================================================================

// Client issues the preflight lookup and the streaming dispatch.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	dialTimeout time.Duration
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client. The client is used as given.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithDialTimeout sets the TCP dial timeout of the default transport.
// It is ignored when WithHTTPClient supplies the client.
func WithDialTimeout(timeout time.Duration) ClientOption {
	return func(client *Client) {
		if timeout > 0 {
			client.dialTimeout = timeout
		}
	}
}

// NewClient creates an upstream client for baseURL.
// The client has no overall timeout: streams run as long as the caller stays connected.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     baseURL,
		dialTimeout: config.DefaultDialTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Transport: newTransport(c.dialTimeout)}
	}
	return c
}

// newTransport clones the default transport with its own dialer.
func newTransport(dialTimeout time.Duration) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	return transport
}

// =============================================================================
// Preflight
// =============================================================================

// Preflight confirms the assistant is visible to the credentials in headers.
// It returns nil on a 2xx lookup and a *Error otherwise.
func (c *Client) Preflight(ctx context.Context, headers UpstreamHeaders, assistantID, projectID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+AssistantsPath+"/"+url.PathEscape(assistantID), nil)
	if err != nil {
		return &Error{Kind: KindNetwork, Message: fmt.Sprintf("Network error calling %s: %v", AssistantsPath, err), Err: err}
	}
	headers.Apply(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindNetwork, Message: fmt.Sprintf("Network error calling %s: %v", AssistantsPath, err), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body := readBodyText(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		project := projectID
		if project == "" {
			project = "(none)"
		}
		msg := fmt.Sprintf("Assistant lookup failed (HTTP %d) for %s in project %s", resp.StatusCode, assistantID, project)
		if body != "" {
			msg += ": " + body
		}
		return &Error{Kind: KindScopeMismatch, Status: resp.StatusCode, Message: msg}
	}

	log.Debug().
		Str("assistant_id", assistantID).
		Str("name", gjson.Get(body, "name").String()).
		Str("model", gjson.Get(body, "model").String()).
		Msg("preflight: assistant visible")
	return nil
}

// =============================================================================
// Dispatch
// =============================================================================

// CallResult is the outcome of Dispatch. Exactly one field is set.
type CallResult struct {
	Stream  io.ReadCloser
	Failure *Error
}

// DispatchOptions selects the request body shape.
type DispatchOptions struct {
	Mode         config.Mode
	Model        string
	Instructions string
}

// BuildRequestBody renders the streaming request body:
//
//	{"assistant_id"|"model", ["instructions"], "input":[{"role":"user","content":prompt}], "stream":true}
func BuildRequestBody(cfg RequestConfig, opts DispatchOptions) ([]byte, error) {
	body := []byte(`{}`)
	var err error

	if opts.Mode == config.ModeDirectModel {
		if body, err = sjson.SetBytes(body, "model", opts.Model); err != nil {
			return nil, err
		}
		if opts.Instructions != "" {
			if body, err = sjson.SetBytes(body, "instructions", opts.Instructions); err != nil {
				return nil, err
			}
		}
	} else {
		if body, err = sjson.SetBytes(body, "assistant_id", cfg.AssistantID); err != nil {
			return nil, err
		}
	}

	input := []map[string]string{{"role": "user", "content": cfg.Prompt}}
	if body, err = sjson.SetBytes(body, "input", input); err != nil {
		return nil, err
	}
	return sjson.SetBytes(body, "stream", true)
}

// Dispatch POSTs body to the streaming endpoint. On success the response body is
// returned unconsumed and the caller must close it.
func (c *Client) Dispatch(ctx context.Context, headers UpstreamHeaders, body []byte) CallResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ResponsesPath, bytes.NewReader(body))
	if err != nil {
		return CallResult{Failure: &Error{Kind: KindNetwork, Message: fmt.Sprintf("Network error calling %s: %v", ResponsesPath, err), Err: err}}
	}
	headers.Apply(req)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("url", req.URL.String()).Msg("upstream request failed")
		return CallResult{Failure: &Error{Kind: KindNetwork, Message: fmt.Sprintf("Network error calling %s: %v", ResponsesPath, err), Err: err}}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && resp.Body != nil && resp.Body != http.NoBody {
		return CallResult{Stream: resp.Body}
	}

	text := readBodyText(resp.Body)
	_ = resp.Body.Close()

	logEvt := log.Warn().Int("status", resp.StatusCode)
	if msg := gjson.Get(text, "error.message"); msg.Exists() {
		logEvt = logEvt.Str("upstream_error", msg.String())
	} else {
		logEvt = logEvt.Str("body", utils.Truncate(text, config.MaxErrorBodyLogLen))
	}
	logEvt.Msg("upstream returned error")

	if text == "" {
		text = "Upstream error"
	}
	return CallResult{Failure: &Error{Kind: KindUpstreamProtocol, Status: resp.StatusCode, Message: text}}
}

// readBodyText reads a diagnostic body. Read failures yield "" so they never
// replace the error being reported.
func readBodyText(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(body, config.MaxErrorBodySize))
	if err != nil {
		return ""
	}
	return string(data)
}
