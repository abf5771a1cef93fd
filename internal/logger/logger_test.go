package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"debug":   zerolog.DebugLevel,
		" DEBUG ": zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"trace":   zerolog.TraceLevel,
		"off":     zerolog.Disabled,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWritesToFile(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	path := filepath.Join(t.TempDir(), "meshmem.log")

	log, err := New(Options{Level: "debug", File: path})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	log.Debug().Str("field", "value").Msg("hello")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"field":"value"`) {
		t.Errorf("Expected debug entry in log file, got %s", data)
	}
}

func TestNewEnvOverridesLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	log, err := New(Options{Level: "debug", File: filepath.Join(t.TempDir(), "x.log")})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if log.GetLevel() != zerolog.ErrorLevel {
		t.Errorf("Expected error level, got %v", log.GetLevel())
	}
}

func TestNewBadFile(t *testing.T) {
	if _, err := New(Options{File: filepath.Join(t.TempDir(), "missing", "dir", "x.log")}); err == nil {
		t.Error("Expected error for unwritable log path")
	}
}
