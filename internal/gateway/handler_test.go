package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/compresr/stream-relay/internal/config"
	"github.com/compresr/stream-relay/internal/monitoring"
)

// =============================================================================
// HELPERS
// =============================================================================

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func validEnv() map[string]string {
	return map[string]string{
		"OPENAI_API_KEY": "sk-proj-test",
		"ASSISTANT_ID":   "asst_123",
	}
}

// fakeUpstream records calls to the assistants and responses endpoints.
type fakeUpstream struct {
	server          *httptest.Server
	assistantCalls  atomic.Int32
	responsesCalls  atomic.Int32
	lastResponseReq atomic.Pointer[http.Request]
	lastBody        atomic.Pointer[string]
}

func newFakeUpstream(t *testing.T, assistants, responses http.HandlerFunc) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/assistants/", func(w http.ResponseWriter, r *http.Request) {
		f.assistantCalls.Add(1)
		assistants(w, r)
	})
	mux.HandleFunc("/v1/responses", func(w http.ResponseWriter, r *http.Request) {
		f.responsesCalls.Add(1)
		body, _ := io.ReadAll(r.Body)
		s := string(body)
		f.lastBody.Store(&s)
		f.lastResponseReq.Store(r.Clone(r.Context()))
		responses(w, r)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func streamingOK(chunks ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for _, c := range chunks {
			_, _ = io.WriteString(w, c)
			w.(http.Flusher).Flush()
		}
	}
}

func assistantOK(w http.ResponseWriter, r *http.Request) {
	_, _ = io.WriteString(w, `{"id":"asst_123","name":"Helper","model":"gpt-4o"}`)
}

func newTestGateway(t *testing.T, upstreamURL string, env map[string]string, mutate func(*config.Config)) *Gateway {
	t.Helper()
	cfg := config.Default()
	cfg.Upstream.BaseURL = upstreamURL
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())
	return New(cfg, WithEnv(envMap(env)))
}

func doStream(g *Gateway, query url.Values) *httptest.ResponseRecorder {
	target := "/stream"
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)
	return rec
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// frames splits an SSE body into its data payloads.
func frames(t *testing.T, body string) []string {
	t.Helper()
	require.True(t, strings.HasSuffix(body, "\n\n"), "body must end with a frame terminator: %q", body)
	var out []string
	for _, raw := range strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n") {
		require.True(t, strings.HasPrefix(raw, "data: "), "not a data frame: %q", raw)
		out = append(out, strings.TrimPrefix(raw, "data: "))
	}
	return out
}

// =============================================================================
// CONFIGURATION FAILURES
// =============================================================================

func TestHandleStream_MissingAPIKey(t *testing.T) {
	up := newFakeUpstream(t, assistantOK, streamingOK("data: x\n\n"))
	g := newTestGateway(t, up.server.URL, map[string]string{"ASSISTANT_ID": "asst_123"}, nil)

	rec := doStream(g, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t,
		"data: {\"error\":\"Missing OPENAI_API_KEY (use a project key: sk-proj-...)\"}\n\ndata: [DONE]\n\n",
		rec.Body.String())
	assert.Zero(t, up.assistantCalls.Load())
	assert.Zero(t, up.responsesCalls.Load())
}

func TestHandleStream_MissingAssistantID(t *testing.T) {
	up := newFakeUpstream(t, assistantOK, streamingOK("data: x\n\n"))
	g := newTestGateway(t, up.server.URL, map[string]string{"OPENAI_API_KEY": "sk-proj-test"}, nil)

	rec := doStream(g, nil)

	got := frames(t, rec.Body.String())
	require.Len(t, got, 2)
	assert.Contains(t, gjson.Get(got[0], "error").String(), "Missing ASSISTANT_ID")
	assert.False(t, gjson.Get(got[0], "upstream_status").Exists())
	assert.Equal(t, "[DONE]", got[1])
	assert.Zero(t, up.responsesCalls.Load())
}

func TestHandleStream_RequireProject(t *testing.T) {
	up := newFakeUpstream(t, assistantOK, streamingOK("data: x\n\n"))
	g := newTestGateway(t, up.server.URL, validEnv(), func(c *config.Config) {
		c.Upstream.RequireProject = true
	})

	got := frames(t, doStream(g, nil).Body.String())
	require.Len(t, got, 2)
	assert.Contains(t, gjson.Get(got[0], "error").String(), "Missing OPENAI_PROJECT")
	assert.Zero(t, up.responsesCalls.Load())
}

func TestHandleStream_DirectModelNeedsNoAssistant(t *testing.T) {
	up := newFakeUpstream(t, assistantOK, streamingOK("data: hi\n\n"))
	g := newTestGateway(t, up.server.URL, map[string]string{"OPENAI_API_KEY": "sk-proj-test"}, func(c *config.Config) {
		c.Upstream.Mode = config.ModeDirectModel
		c.Upstream.Model = "gpt-4o-mini"
		c.Upstream.Instructions = "Be brief."
	})

	rec := doStream(g, url.Values{"prompt": {"Hi"}})

	assert.Equal(t, "data: hi\n\ndata: [DONE]\n\n", rec.Body.String())
	body := *up.lastBody.Load()
	assert.Equal(t, "gpt-4o-mini", gjson.Get(body, "model").String())
	assert.Equal(t, "Be brief.", gjson.Get(body, "instructions").String())
	assert.False(t, gjson.Get(body, "assistant_id").Exists())
	assert.Empty(t, up.lastResponseReq.Load().Header.Get("OpenAI-Beta"))
}

// =============================================================================
// SUCCESSFUL RELAY
// =============================================================================

func TestHandleStream_RelaysChunksInOrder(t *testing.T) {
	up := newFakeUpstream(t, assistantOK, streamingOK("Hel", "lo"))
	g := newTestGateway(t, up.server.URL, validEnv(), nil)

	rec := doStream(g, url.Values{"prompt": {"Hi"}})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello"+"data: [DONE]\n\n", rec.Body.String())
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache, no-transform", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	stats := g.Metrics().FullStats()
	assert.Equal(t, int64(1), stats.Requests.Total)
	assert.Equal(t, int64(1), stats.Requests.Completed)
	assert.Equal(t, int64(5), stats.Stream.BytesRelayed)
}

func TestHandleStream_UpstreamRequestShape(t *testing.T) {
	up := newFakeUpstream(t, assistantOK, streamingOK("data: x\n\n"))
	env := validEnv()
	env["OPENAI_ORG_ID"] = "org_1"
	env["OPENAI_PROJECT"] = "proj_1"
	g := newTestGateway(t, up.server.URL, env, nil)

	doStream(g, url.Values{"prompt": {"Tell me a joke"}})

	req := up.lastResponseReq.Load()
	require.NotNil(t, req)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "Bearer sk-proj-test", req.Header.Get("Authorization"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "assistants=v2", req.Header.Get("OpenAI-Beta"))
	assert.Equal(t, "org_1", req.Header.Get("OpenAI-Organization"))
	assert.Equal(t, "proj_1", req.Header.Get("OpenAI-Project"))

	body := *up.lastBody.Load()
	assert.Equal(t, "asst_123", gjson.Get(body, "assistant_id").String())
	assert.Equal(t, "user", gjson.Get(body, "input.0.role").String())
	assert.Equal(t, "Tell me a joke", gjson.Get(body, "input.0.content").String())
	assert.True(t, gjson.Get(body, "stream").Bool())
}

func TestHandleStream_DefaultPromptAndQueryAssistant(t *testing.T) {
	up := newFakeUpstream(t, assistantOK, streamingOK("data: x\n\n"))
	g := newTestGateway(t, up.server.URL, map[string]string{"OPENAI_API_KEY": "sk-proj-test"}, nil)

	doStream(g, url.Values{"assistant_id": {"asst_from_query"}})

	body := *up.lastBody.Load()
	assert.Equal(t, "asst_from_query", gjson.Get(body, "assistant_id").String())
	assert.Equal(t, "Say hello!", gjson.Get(body, "input.0.content").String())
}

func TestHandleStream_EnvAssistantOverridesQuery(t *testing.T) {
	up := newFakeUpstream(t, assistantOK, streamingOK("data: x\n\n"))
	g := newTestGateway(t, up.server.URL, validEnv(), nil)

	doStream(g, url.Values{"assistant_id": {"asst_from_query"}})

	assert.Equal(t, "asst_123", gjson.Get(*up.lastBody.Load(), "assistant_id").String())
}

func TestHandleStream_AnyMethodAccepted(t *testing.T) {
	up := newFakeUpstream(t, assistantOK, streamingOK("ok"))
	g := newTestGateway(t, up.server.URL, validEnv(), nil)

	req := httptest.NewRequest(http.MethodPost, "/stream?prompt=x", strings.NewReader("ignored"))
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "okdata: [DONE]\n\n", rec.Body.String())
}

func TestHandleStream_EchoesRequestID(t *testing.T) {
	up := newFakeUpstream(t, assistantOK, streamingOK("ok"))
	g := newTestGateway(t, up.server.URL, validEnv(), nil)

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(HeaderRequestID))
}

// =============================================================================
// PREFLIGHT
// =============================================================================

func TestHandleStream_PreflightSuccessThenDispatch(t *testing.T) {
	up := newFakeUpstream(t, assistantOK, streamingOK("data: x\n\n"))
	g := newTestGateway(t, up.server.URL, validEnv(), func(c *config.Config) {
		c.Upstream.Preflight = true
	})

	rec := doStream(g, nil)

	assert.Equal(t, "data: x\n\ndata: [DONE]\n\n", rec.Body.String())
	assert.Equal(t, int32(1), up.assistantCalls.Load())
	assert.Equal(t, int32(1), up.responsesCalls.Load())
}

func TestHandleStream_PreflightFailureSkipsDispatch(t *testing.T) {
	up := newFakeUpstream(t,
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, "no such assistant")
		},
		streamingOK("data: x\n\n"))
	env := validEnv()
	env["OPENAI_PROJECT"] = "proj_1"
	g := newTestGateway(t, up.server.URL, env, func(c *config.Config) {
		c.Upstream.Preflight = true
	})

	rec := doStream(g, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	got := frames(t, rec.Body.String())
	require.Len(t, got, 2)
	assert.Equal(t, int64(404), gjson.Get(got[0], "upstream_status").Int())
	assert.Equal(t,
		"Assistant lookup failed (HTTP 404) for asst_123 in project proj_1: no such assistant",
		gjson.Get(got[0], "error").String())
	assert.Equal(t, "[DONE]", got[1])
	assert.Zero(t, up.responsesCalls.Load())

	assert.Equal(t, int64(1), g.Metrics().FullStats().Failures.ScopeMismatch)
}

// =============================================================================
// UPSTREAM FAILURES
// =============================================================================

func TestHandleStream_UpstreamNonSuccess(t *testing.T) {
	up := newFakeUpstream(t, assistantOK, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key"}}`)
	})
	g := newTestGateway(t, up.server.URL, validEnv(), nil)

	rec := doStream(g, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	got := frames(t, rec.Body.String())
	require.Len(t, got, 2)
	assert.Equal(t, int64(401), gjson.Get(got[0], "upstream_status").Int())
	assert.Equal(t, `{"error":{"message":"Incorrect API key"}}`, gjson.Get(got[0], "error").String())
	assert.Equal(t, "[DONE]", got[1])
	assert.Equal(t, int64(1), g.Metrics().FullStats().Failures.UpstreamProtocol)
}

func TestHandleStream_UpstreamEmptyErrorBody(t *testing.T) {
	up := newFakeUpstream(t, assistantOK, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	g := newTestGateway(t, up.server.URL, validEnv(), nil)

	got := frames(t, doStream(g, nil).Body.String())
	require.Len(t, got, 2)
	assert.Equal(t, int64(502), gjson.Get(got[0], "upstream_status").Int())
	assert.Equal(t, "Upstream error", gjson.Get(got[0], "error").String())
}

func TestHandleStream_NetworkError(t *testing.T) {
	up := newFakeUpstream(t, assistantOK, streamingOK("x"))
	baseURL := up.server.URL
	up.server.Close()
	g := newTestGateway(t, baseURL, validEnv(), nil)

	rec := doStream(g, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	got := frames(t, rec.Body.String())
	require.Len(t, got, 2)
	assert.True(t, strings.HasPrefix(gjson.Get(got[0], "error").String(), "Network error calling /v1/responses"))
	assert.False(t, gjson.Get(got[0], "upstream_status").Exists())
	assert.Equal(t, int64(1), g.Metrics().FullStats().Failures.Network)
}

func TestHandleStream_MidStreamFailure(t *testing.T) {
	up := newFakeUpstream(t, assistantOK, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "data: partial\n\n")
		w.(http.Flusher).Flush()
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			_ = conn.Close()
		}
	})
	g := newTestGateway(t, up.server.URL, validEnv(), nil)

	rec := doStream(g, nil)

	got := frames(t, rec.Body.String())
	require.Len(t, got, 3)
	assert.Equal(t, "partial", got[0])
	assert.True(t, strings.HasPrefix(gjson.Get(got[1], "error").String(), "Stream read error: "))
	assert.Equal(t, "[DONE]", got[2])
	assert.Equal(t, int64(1), g.Metrics().FullStats().Failures.StreamRead)
}

// =============================================================================
// TELEMETRY
// =============================================================================

func TestHandleStream_RecordsTelemetry(t *testing.T) {
	up := newFakeUpstream(t, assistantOK, streamingOK("abc"))
	path := filepath.Join(t.TempDir(), "requests.jsonl")
	tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{Enabled: true, LogPath: path})
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Upstream.BaseURL = up.server.URL
	g := New(cfg, WithEnv(envMap(validEnv())), WithTracker(tracker))

	doStream(g, url.Values{"prompt": {"hey"}})
	doStream(New(cfg, WithEnv(envMap(nil)), WithTracker(tracker)), nil)

	lines := strings.Split(strings.TrimSpace(readFile(t, path)), "\n")
	require.Len(t, lines, 2)

	var ok, rejected map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ok))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rejected))

	assert.Equal(t, "completed", ok["outcome"])
	assert.Equal(t, true, ok["success"])
	assert.Equal(t, float64(3), ok["bytes_relayed"])
	assert.Equal(t, float64(3), ok["prompt_length"])
	assert.NotContains(t, lines[0], "sk-proj-test")

	assert.Equal(t, "rejected", rejected["outcome"])
	assert.Equal(t, "configuration", rejected["error_kind"])
}
