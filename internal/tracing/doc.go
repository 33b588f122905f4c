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

/*
Package tracing installs the OpenTelemetry SDK for the hub.

The mcp package records spans through the global otel tracer. Setup
replaces the no-op global provider with an SDK provider that batches spans
to the configured exporter. Metrics are not exported here; they are
registered with Prometheus directly.

Exporters:

	none        spans are dropped (default)
	console     JSON spans written to stderr
	otlp        OTLP over gRPC, e.g. localhost:4317
	otlp-http   OTLP over HTTP, e.g. localhost:4318

Usage:

	shutdown, err := tracing.Setup(ctx, cfg.Tracing, tracing.Resource{
	    ServiceName:    "mcphub",
	    ServiceVersion: version,
	})
	if err != nil {
	    return err
	}
	defer shutdown(context.Background())
*/
package tracing
