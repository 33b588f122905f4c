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

package tracing

import (
	"fmt"
	"strings"
	"time"
)

// Exporter names accepted in Config.Exporter.
const (
	ExporterNone     = "none"
	ExporterConsole  = "console"
	ExporterOTLP     = "otlp"
	ExporterOTLPHTTP = "otlp-http"
)

// Config holds tracing configuration from the tracing section of
// settings.yaml.
type Config struct {
	// Exporter selects where spans go.
	// Default: none
	Exporter string `yaml:"exporter,omitempty"`

	// Endpoint is the OTLP receiver host:port.
	Endpoint string `yaml:"endpoint,omitempty"`

	// URLPath overrides the OTLP HTTP traces path (default: /v1/traces).
	URLPath string `yaml:"url_path,omitempty"`

	// Insecure disables TLS for OTLP exporters.
	Insecure bool `yaml:"insecure,omitempty"`

	// Headers are sent with every export request.
	Headers map[string]string `yaml:"headers,omitempty"`

	// SampleRate is the fraction of root traces recorded (0.0 - 1.0).
	// Default: 1.0
	SampleRate float64 `yaml:"sample_rate,omitempty"`

	// BatchTimeout is how often buffered spans are flushed.
	// Default: 5s
	BatchTimeout time.Duration `yaml:"batch_timeout,omitempty"`
}

// DefaultConfig returns tracing disabled with full sampling once enabled.
func DefaultConfig() Config {
	return Config{
		Exporter:     ExporterNone,
		SampleRate:   1.0,
		BatchTimeout: 5 * time.Second,
	}
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.Exporter == "" {
		c.Exporter = defaults.Exporter
	}
	if c.SampleRate == 0 {
		c.SampleRate = defaults.SampleRate
	}
	if c.BatchTimeout == 0 {
		c.BatchTimeout = defaults.BatchTimeout
	}
}

// Enabled reports whether spans are exported.
func (c Config) Enabled() bool {
	return c.Exporter != "" && c.Exporter != ExporterNone
}

// Validate checks the exporter selection and its settings.
func (c Config) Validate() error {
	var errs []string

	switch c.Exporter {
	case "", ExporterNone, ExporterConsole:
	case ExporterOTLP, ExporterOTLPHTTP:
		if c.Endpoint == "" {
			errs = append(errs, fmt.Sprintf("tracing.endpoint is required for exporter %q", c.Exporter))
		}
	default:
		errs = append(errs, fmt.Sprintf("tracing.exporter %q is not one of none, console, otlp, otlp-http", c.Exporter))
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		errs = append(errs, "tracing.sample_rate must be between 0 and 1")
	}
	if c.BatchTimeout < 0 {
		errs = append(errs, "tracing.batch_timeout must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
