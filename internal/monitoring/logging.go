package monitoring

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits for file log output.
const (
	logFileMaxSizeMB  = 10
	logFileMaxBackups = 3
)

// SetupLogging configures the global zerolog logger.
// File output is size-rotated; the returned closer releases the file.
func SetupLogging(cfg LogConfig) (io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var (
		out    io.Writer
		closer io.Closer = nopCloser{}
		isTerm bool
	)
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
		isTerm = term.IsTerminal(int(os.Stdout.Fd())) // #nosec G115 -- fd fits in int
	case "stderr":
		out = os.Stderr
		isTerm = term.IsTerminal(int(os.Stderr.Fd())) // #nosec G115
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Output), 0750); err != nil {
			return nil, fmt.Errorf("create log directory for %s: %w", cfg.Output, err)
		}
		rotating := &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    logFileMaxSizeMB,
			MaxBackups: logFileMaxBackups,
		}
		out = rotating
		closer = rotating
	}

	if useConsole(cfg.Format, isTerm) {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return closer, nil
}

func useConsole(format string, isTerm bool) bool {
	switch strings.ToLower(format) {
	case "console", "pretty":
		return true
	case "json":
		return false
	default:
		return isTerm
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
