package gateway

import (
	"strings"
	"time"

	"github.com/compresr/stream-relay/internal/config"
	"github.com/compresr/stream-relay/internal/monitoring"
)

// BuildInitEvent describes the relay's startup configuration for init.jsonl.
func BuildInitEvent(cfg *config.Config) *monitoring.InitEvent {
	ev := &monitoring.InitEvent{
		Timestamp:            time.Now(),
		Event:                "relay_init",
		Version:              Version,
		ServerPort:           cfg.Server.Port,
		StreamPath:           cfg.Server.StreamPath,
		ServerReadTimeoutMs:  cfg.Server.ReadTimeout.Milliseconds(),
		ServerWriteTimeoutMs: cfg.Server.WriteTimeout.Milliseconds(),
		UpstreamBaseURL:      cfg.Upstream.BaseURL,
		Mode:                 string(cfg.Upstream.Mode),
		Preflight:            cfg.Upstream.Preflight,
		RequireProject:       cfg.Upstream.RequireProject,
		HasInstructions:      strings.TrimSpace(cfg.Upstream.Instructions) != "",
		TelemetryPath:        cfg.Monitoring.TelemetryPath,
	}

	if cfg.Upstream.Mode == config.ModeDirectModel {
		ev.Model = cfg.Upstream.Model
	}

	return ev
}
