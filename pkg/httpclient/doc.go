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

// Package httpclient builds the HTTP client used by remote MCP transports.
//
// The client adds, outermost first:
//   - Retry with exponential backoff for idempotent requests (GET, HEAD,
//     OPTIONS), honouring short Retry-After values
//   - Request logging with sensitive query parameters redacted
//   - A User-Agent header when the request has none
//   - W3C trace context headers from the request context
//
// Create a client:
//
//	cfg := httpclient.DefaultConfig()
//	cfg.UserAgent = "mcphub/1.0.0"
//	client, err := httpclient.New(cfg)
//
// The client sets no overall request timeout. SSE streams stay open for the
// life of a session, so only ResponseHeaderTimeout bounds a request; callers
// bound everything else with a context.
//
// JSON-RPC calls are POSTs and are never retried: a retried tools/call could
// run a tool twice. Opening an SSE stream is a GET and is retried.
package httpclient
