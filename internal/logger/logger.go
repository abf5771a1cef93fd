package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Options controls logger output.
// If File is set, logs are appended to it as JSON; otherwise they go to stderr.
// Pretty switches stderr output to zerolog's ConsoleWriter.
type Options struct {
	Level  string
	Pretty bool
	File   string
}

// New builds a zerolog.Logger from opts. LOG_LEVEL overrides opts.Level when set.
// Stdout is never used so the MCP stdio transport stays clean.
func New(opts Options) (zerolog.Logger, error) {
	levelName := opts.Level
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		levelName = env
	}
	level := parseLogLevel(levelName)

	var output io.Writer
	switch {
	case opts.File != "":
		//nolint:gosec // G304: log file path comes from operator config
		file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("failed to open log file %s: %w", opts.File, err)
		}
		output = file
	case opts.Pretty:
		output = zerolog.ConsoleWriter{Out: os.Stderr}
	default:
		output = os.Stderr
	}

	log := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	if opts.File != "" {
		log.Info().Str("path", opts.File).Str("level", level.String()).Msg("Logger initialized")
	} else {
		log.Info().Str("output", "stderr").Bool("pretty", opts.Pretty).Str("level", level.String()).Msg("Logger initialized")
	}
	return log, nil
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
