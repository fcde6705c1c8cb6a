package relay

import (
	"net/http"

	"github.com/compresr/stream-relay/internal/config"
)

// Upstream header names.
const (
	HeaderAuthorization      = "Authorization"
	HeaderContentType        = "Content-Type"
	HeaderOpenAIBeta         = "OpenAI-Beta"
	HeaderOpenAIOrganization = "OpenAI-Organization"
	HeaderOpenAIProject      = "OpenAI-Project"
)

// AssistantsBeta is the protocol marker required for assistant-scoped calls.
const AssistantsBeta = "assistants=v2"

// UpstreamHeaders maps header names to values for upstream calls.
// Built once per request and treated as read-only.
type UpstreamHeaders map[string]string

// BuildHeaders assembles the upstream headers for cfg.
func BuildHeaders(cfg RequestConfig, mode config.Mode) UpstreamHeaders {
	h := UpstreamHeaders{
		HeaderAuthorization: "Bearer " + cfg.APIKey,
		HeaderContentType:   "application/json",
	}
	if mode != config.ModeDirectModel && cfg.AssistantID != "" {
		h[HeaderOpenAIBeta] = AssistantsBeta
	}
	if cfg.OrganizationID != "" {
		h[HeaderOpenAIOrganization] = cfg.OrganizationID
	}
	if cfg.ProjectID != "" {
		h[HeaderOpenAIProject] = cfg.ProjectID
	}
	return h
}

// Apply sets every header on req.
func (h UpstreamHeaders) Apply(req *http.Request) {
	for k, v := range h {
		req.Header.Set(k, v)
	}
}
