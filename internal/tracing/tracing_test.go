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
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "zero value", cfg: Config{}},
		{name: "console", cfg: Config{Exporter: ExporterConsole, SampleRate: 0.5}},
		{name: "otlp", cfg: Config{Exporter: ExporterOTLP, Endpoint: "localhost:4317"}},
		{name: "otlp without endpoint", cfg: Config{Exporter: ExporterOTLPHTTP}, wantErr: "tracing.endpoint is required"},
		{name: "unknown exporter", cfg: Config{Exporter: "jaeger"}, wantErr: `tracing.exporter "jaeger"`},
		{name: "bad rate", cfg: Config{SampleRate: 1.5}, wantErr: "sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfigApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	assert.Equal(t, DefaultConfig(), cfg)
	assert.False(t, cfg.Enabled())

	cfg = Config{Exporter: ExporterConsole, SampleRate: 0.25}
	cfg.ApplyDefaults()
	assert.Equal(t, 0.25, cfg.SampleRate)
	assert.True(t, cfg.Enabled())
}

func TestNewSampler(t *testing.T) {
	assert.Contains(t, NewSampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, NewSampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, NewSampler(0.5).Description(), "TraceIDRatioBased")
}

func TestNewExporter(t *testing.T) {
	exporter, err := NewExporter(context.Background(), Config{Exporter: ExporterNone}, nil)
	require.NoError(t, err)
	assert.Nil(t, exporter)

	exporter, err = NewExporter(context.Background(), Config{Exporter: ExporterConsole}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.NotNil(t, exporter)

	_, err = NewExporter(context.Background(), Config{Exporter: "zipkin"}, nil)
	assert.Error(t, err)
}

func TestSetup_Console(t *testing.T) {
	prevTP := otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
	})

	var out bytes.Buffer
	shutdown, err := Setup(context.Background(), Config{Exporter: ExporterConsole}, Resource{
		ServiceName:    "mcphub",
		ServiceVersion: "test",
		ConsoleWriter:  &out,
	})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "mcp.call_tool")
	assert.True(t, span.SpanContext().IsSampled())
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, out.String(), "mcp.call_tool")
	assert.Contains(t, out.String(), "mcphub")
}

func TestSetup_NoneDropsSpans(t *testing.T) {
	prevTP := otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
	})

	shutdown, err := Setup(context.Background(), Config{}, Resource{
		ServiceName: "mcphub",
	})
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok)

	_, span := otel.Tracer("test").Start(context.Background(), "dropped")
	defer span.End()
	assert.False(t, span.SpanContext().IsSampled())
}

func TestSetup_InvalidConfig(t *testing.T) {
	_, err := Setup(context.Background(), Config{Exporter: ExporterOTLP}, Resource{ServiceName: "mcphub"})
	assert.ErrorContains(t, err, "endpoint")
}
