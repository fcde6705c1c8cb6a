// Package main is the stream-relay entry point.
//
// DESIGN: Startup order:
//   - parse flags (pflag)
//   - load .env into the process environment (godotenv), if present
//   - build config: defaults, YAML file, RELAY_* env, flags
//   - set up logging and telemetry
//   - serve until SIGINT/SIGTERM, then drain in-flight streams
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"github.com/compresr/stream-relay/internal/config"
	"github.com/compresr/stream-relay/internal/gateway"
	"github.com/compresr/stream-relay/internal/monitoring"
)

// DefaultEnvFile is loaded when --env-file is not given. A missing file is not an error.
const DefaultEnvFile = ".env"

// options holds parsed command-line flags.
type options struct {
	configPath  string
	envFile     string
	envExplicit bool
	port        int
	portSet     bool
	debug       bool
	showVersion bool
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		printError(err.Error())
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Printf("stream-relay %s\n", gateway.Version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		printError(err.Error())
		os.Exit(1)
	}
}

func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options

	flags := flag.NewFlagSet("stream-relay", flag.ContinueOnError)
	flags.SetOutput(output)
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to YAML config file")
	flags.StringVar(&opts.envFile, "env-file", DefaultEnvFile, "dotenv file loaded into the environment at startup")
	flags.IntVarP(&opts.port, "port", "p", config.DefaultPort, "listen port (overrides config and RELAY_PORT)")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flags.BoolVarP(&opts.showVersion, "version", "v", false, "print version and exit")

	if err := flags.Parse(args); err != nil {
		return opts, err
	}
	if flags.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", flags.Args())
	}
	opts.envExplicit = flags.Changed("env-file")
	opts.portSet = flags.Changed("port")
	return opts, nil
}

// loadEnvFile loads path into the process environment. Variables already set
// are not overwritten. A missing default file is ignored.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// buildConfig resolves the effective config. Flags win over everything else.
func buildConfig(opts options, getenv func(string) string) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath, getenv)
	if err != nil {
		return nil, err
	}
	if opts.portSet {
		cfg.Server.Port = opts.port
	}
	if opts.debug {
		cfg.Monitoring.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, opts options) error {
	if err := loadEnvFile(opts.envFile, opts.envExplicit); err != nil {
		return err
	}

	cfg, err := buildConfig(opts, os.Getenv)
	if err != nil {
		return err
	}

	logCloser, err := monitoring.SetupLogging(monitoring.LogConfig{
		Level:  cfg.Monitoring.LogLevel,
		Format: cfg.Monitoring.LogFormat,
		Output: cfg.Monitoring.LogOutput,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logCloser.Close() }()

	tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{
		Enabled: cfg.Monitoring.TelemetryPath != "",
		LogPath: cfg.Monitoring.TelemetryPath,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = tracker.Close() }()
	tracker.RecordInit(gateway.BuildInitEvent(cfg))

	printBanner(cfg)
	warnMissingCredentials(cfg, os.Getenv)

	gw := gateway.New(cfg, gateway.WithTracker(tracker))

	errCh := make(chan error, 1)
	go func() { errCh <- gw.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := gw.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown did not finish cleanly")
	}
	return <-errCh
}
