// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got %q", cfg.Level)
	}
	if cfg.Format != FormatJSON {
		t.Errorf("expected default format 'json', got %q", cfg.Format)
	}
	if cfg.Output != os.Stderr {
		t.Errorf("expected default output to be os.Stderr")
	}
	if cfg.AddSource {
		t.Errorf("expected default AddSource to be false")
	}
}

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name      string
		envVars   map[string]string
		level     string
		format    Format
		addSource bool
	}{
		{
			name:   "defaults when no env vars",
			level:  "info",
			format: FormatJSON,
		},
		{
			name:    "LOG_LEVEL is case insensitive",
			envVars: map[string]string{"LOG_LEVEL": "DEBUG"},
			level:   "debug",
			format:  FormatJSON,
		},
		{
			name:    "MCPHUB_LOG_LEVEL wins over LOG_LEVEL",
			envVars: map[string]string{"MCPHUB_LOG_LEVEL": "warn", "LOG_LEVEL": "debug"},
			level:   "warn",
			format:  FormatJSON,
		},
		{
			name:      "MCPHUB_DEBUG wins over levels",
			envVars:   map[string]string{"MCPHUB_DEBUG": "1", "MCPHUB_LOG_LEVEL": "error"},
			level:     "debug",
			format:    FormatJSON,
			addSource: true,
		},
		{
			name:      "text format with source",
			envVars:   map[string]string{"LOG_FORMAT": "TEXT", "LOG_SOURCE": "1"},
			level:     "info",
			format:    FormatText,
			addSource: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := fromLookup(func(key string) string { return tt.envVars[key] })

			if cfg.Level != tt.level {
				t.Errorf("level = %q, want %q", cfg.Level, tt.level)
			}
			if cfg.Format != tt.format {
				t.Errorf("format = %q, want %q", cfg.Format, tt.format)
			}
			if cfg.AddSource != tt.addSource {
				t.Errorf("addSource = %v, want %v", cfg.AddSource, tt.addSource)
			}
		})
	}
}

func TestFromEnv_ProcessEnvironment(t *testing.T) {
	t.Setenv("MCPHUB_DEBUG", "")
	t.Setenv("MCPHUB_LOG_LEVEL", "error")

	if cfg := FromEnv(); cfg.Level != "error" {
		t.Errorf("level = %q, want error", cfg.Level)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"trace":   LevelTrace,
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	WithServer(logger, "filesystem", "project").Info("connected", Error(errors.New("none")))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected valid JSON output: %v", err)
	}
	if entry[ServerKey] != "filesystem" {
		t.Errorf("server = %v", entry[ServerKey])
	}
	if entry[SourceKey] != "project" {
		t.Errorf("source = %v", entry[SourceKey])
	}
	if entry["error"] != "none" {
		t.Errorf("error = %v", entry["error"])
	}
}

func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "warn", Format: FormatText, Output: &buf})

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message should be filtered: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn message missing: %s", out)
	}
}

func TestTrace(t *testing.T) {
	var buf bytes.Buffer

	Trace(New(&Config{Level: "debug", Output: &buf}), "raw frame")
	if buf.Len() != 0 {
		t.Errorf("trace should be filtered at debug level")
	}

	Trace(New(&Config{Level: "trace", Output: &buf}), "raw frame", slog.Int("bytes", 12))
	if !strings.Contains(buf.String(), "raw frame") {
		t.Errorf("trace message missing: %s", buf.String())
	}
}

func TestSanitizeSecret(t *testing.T) {
	tests := map[string]string{
		"":                 "[REDACTED]",
		"abcd":             "[REDACTED]",
		"sk-1234567890abc": "...0abc",
	}
	for in, want := range tests {
		if got := SanitizeSecret(in); got != want {
			t.Errorf("SanitizeSecret(%q) = %q, want %q", in, got, want)
		}
	}

	headers := SanitizeHeaders(map[string]string{"Authorization": "Bearer token-9876"})
	if headers["Authorization"] != "...9876" {
		t.Errorf("header not masked: %v", headers)
	}
}
