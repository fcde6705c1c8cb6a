package main

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/compresr/stream-relay/internal/config"
	"github.com/compresr/stream-relay/internal/gateway"
	"github.com/compresr/stream-relay/internal/relay"
)

// =============================================================================
// TERMINAL OUTPUT
// =============================================================================

// colorEnabled is false when stdout is redirected, so logs and pipes stay plain.
var colorEnabled = term.IsTerminal(int(os.Stdout.Fd())) // #nosec G115 -- fd fits in int

func colorize(code, s string) string {
	if !colorEnabled {
		return s
	}
	return code + s + "\033[0m"
}

func printHeader(title string) {
	line := "========================================"
	fmt.Println(colorize("\033[1m\033[0;36m", line))
	fmt.Println(colorize("\033[1m\033[0;36m", "       "+title))
	fmt.Println(colorize("\033[1m\033[0;36m", line))
}

func printInfo(msg string) {
	fmt.Printf("%s %s\n", colorize("\033[0;34m", "[INFO]"), msg)
}

func printWarn(msg string) {
	fmt.Printf("%s %s\n", colorize("\033[1;33m", "[WARN]"), msg)
}

func printError(msg string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", colorize("\033[0;31m", "[ERROR]"), msg)
}

// printBanner summarizes the effective config at startup.
func printBanner(cfg *config.Config) {
	printHeader("stream-relay " + gateway.Version)
	printInfo(fmt.Sprintf("listening on :%d%s", cfg.Server.Port, cfg.Server.StreamPath))
	printInfo(fmt.Sprintf("upstream %s (%s mode)", cfg.Upstream.BaseURL, cfg.Upstream.Mode))
	if cfg.Upstream.Mode == config.ModeDirectModel {
		printInfo("model " + cfg.Upstream.Model)
	}
	if cfg.Upstream.Preflight {
		printInfo("assistant preflight enabled")
	}
	if cfg.Upstream.RequireProject {
		printInfo("project scoping enforced")
	}
	fmt.Println()
}

// warnMissingCredentials flags variables that will make every request fail.
// Credentials are re-read per request, so this is advisory only.
func warnMissingCredentials(cfg *config.Config, getenv func(string) string) {
	if getenv(relay.EnvAPIKey) == "" {
		printWarn(relay.EnvAPIKey + " is not set; requests will receive an error stream until it is")
	}
	if cfg.Upstream.RequireProject && getenv(relay.EnvProject) == "" {
		printWarn(relay.EnvProject + " is not set but project scoping is enforced")
	}
}
