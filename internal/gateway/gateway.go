// Package gateway serves the streaming relay over HTTP.
//
// DESIGN: One Gateway per process, built from *config.Config:
//   - <stream_path>: relay one prompt to the upstream Responses API as SSE
//   - /health:       liveness JSON
//   - /stats:        aggregated counters (loopback only)
//
// Credentials are read from the environment on every request, so rotating
// OPENAI_API_KEY or ASSISTANT_ID takes effect without a restart.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/compresr/stream-relay/internal/config"
	"github.com/compresr/stream-relay/internal/monitoring"
	"github.com/compresr/stream-relay/internal/relay"
)

// Gateway is the HTTP front of the relay.
type Gateway struct {
	config  *config.Config
	client  *relay.Client
	guards  relay.GuardChain
	metrics *monitoring.MetricsCollector
	tracker *monitoring.Tracker
	getenv  func(string) string

	server *http.Server
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithEnv replaces os.Getenv as the per-request credential source.
func WithEnv(getenv func(string) string) Option {
	return func(g *Gateway) {
		if getenv != nil {
			g.getenv = getenv
		}
	}
}

// WithHTTPClient sets the client used for upstream calls.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) {
		g.client = relay.NewClient(g.config.Upstream.BaseURL, relay.WithHTTPClient(c))
	}
}

// WithTracker attaches a telemetry tracker.
func WithTracker(t *monitoring.Tracker) Option {
	return func(g *Gateway) {
		g.tracker = t
	}
}

// New creates a Gateway. cfg must already be validated.
func New(cfg *config.Config, opts ...Option) *Gateway {
	g := &Gateway{
		config: cfg,
		client: relay.NewClient(cfg.Upstream.BaseURL,
			relay.WithDialTimeout(cfg.Upstream.DialTimeout)),
		guards: relay.NewGuardChain(relay.GuardOptions{
			Mode:           cfg.Upstream.Mode,
			RequireProject: cfg.Upstream.RequireProject,
			Model:          cfg.Upstream.Model,
		}),
		metrics: monitoring.NewMetricsCollector(),
		getenv:  os.Getenv,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.server = &http.Server{
		Handler:           g.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	return g
}

// Metrics returns the gateway's counters.
func (g *Gateway) Metrics() *monitoring.MetricsCollector {
	return g.metrics
}

// Handler returns the gateway's routes.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(g.config.Server.StreamPath, g.handleStream)
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/stats", g.handleStats)
	return mux
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Start listens on the configured port and serves until Shutdown.
// Returns nil after a graceful shutdown.
func (g *Gateway) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", g.config.Server.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", g.config.Server.Port, err)
	}
	return g.Serve(ln)
}

// Serve accepts connections on ln.
func (g *Gateway) Serve(ln net.Listener) error {
	log.Info().
		Str("addr", ln.Addr().String()).
		Str("stream_path", g.config.Server.StreamPath).
		Str("mode", string(g.config.Upstream.Mode)).
		Bool("preflight", g.config.Upstream.Preflight).
		Msg("relay listening")

	if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight streams
// until ctx expires.
func (g *Gateway) Shutdown(ctx context.Context) error {
	log.Info().Msg("relay shutting down")
	return g.server.Shutdown(ctx)
}
