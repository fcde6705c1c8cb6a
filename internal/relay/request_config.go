// Package relay implements the single-request stream relay.
//
// DESIGN: One request flows through these stages, each in its own file:
//   - request_config.go: ResolveRequestConfig() reads env + query once
//   - guard.go:          GuardChain rejects missing credentials
//   - headers.go:        BuildHeaders() assembles upstream auth headers
//   - client.go:         Preflight() and Dispatch() talk to upstream
//   - stream.go:         Pipe() forwards the upstream body byte-for-byte
//   - sse.go:            frame helpers used by every failure path
//
// Every failure ends the response with an error frame and the [DONE] sentinel.
package relay

import (
	"net/url"

	"github.com/rs/zerolog"

	"github.com/compresr/stream-relay/internal/utils"
)

// DefaultPrompt is sent when the caller omits ?prompt.
const DefaultPrompt = "Say hello!"

// Environment variables read at request entry.
const (
	EnvAPIKey      = "OPENAI_API_KEY"
	EnvAssistantID = "ASSISTANT_ID"
	EnvOrgID       = "OPENAI_ORG_ID"
	EnvProject     = "OPENAI_PROJECT"
)

// Query parameters accepted on the stream path.
const (
	QueryPrompt      = "prompt"
	QueryAssistantID = "assistant_id"
)

// RequestConfig is the effective configuration of one request.
// Empty fields mean "not configured".
type RequestConfig struct {
	APIKey         string
	AssistantID    string
	Prompt         string
	OrganizationID string
	ProjectID      string
}

// ResolveRequestConfig derives the request configuration.
//
// Precedence per field:
//   - AssistantID: env ASSISTANT_ID, then ?assistant_id
//   - APIKey, OrganizationID, ProjectID: env only, never the URL
//   - Prompt: ?prompt, or DefaultPrompt when the parameter is absent
func ResolveRequestConfig(query url.Values, getenv func(string) string) RequestConfig {
	assistantID := getenv(EnvAssistantID)
	if assistantID == "" {
		assistantID = query.Get(QueryAssistantID)
	}

	prompt := DefaultPrompt
	if _, ok := query[QueryPrompt]; ok {
		prompt = query.Get(QueryPrompt)
	}

	return RequestConfig{
		APIKey:         getenv(EnvAPIKey),
		AssistantID:    assistantID,
		Prompt:         prompt,
		OrganizationID: getenv(EnvOrgID),
		ProjectID:      getenv(EnvProject),
	}
}

// MarshalZerologObject logs the config with the API key masked.
func (c RequestConfig) MarshalZerologObject(e *zerolog.Event) {
	e.Str("api_key", utils.MaskKey(c.APIKey)).
		Str("assistant_id", c.AssistantID).
		Str("organization_id", c.OrganizationID).
		Str("project_id", c.ProjectID).
		Int("prompt_len", len(c.Prompt))
}
