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

package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// retryTransport retries idempotent requests that fail with a transient
// error or a retryable status.
type retryTransport struct {
	base        http.RoundTripper
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

func newRetryTransport(base http.RoundTripper, cfg Config) *retryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &retryTransport{
		base:        base,
		maxAttempts: cfg.RetryAttempts + 1,
		baseBackoff: cfg.RetryBackoff,
		maxBackoff:  cfg.MaxBackoff,
	}
}

// statusError marks a retryable response status.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("retryable status %d", e.code)
}

// RoundTrip implements http.RoundTripper. The last response is returned
// unchanged when every attempt got a retryable status.
func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !isIdempotentMethod(req.Method) || req.Body != nil && req.Body != http.NoBody {
		return t.base.RoundTrip(req)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.baseBackoff
	b.MaxInterval = t.maxBackoff
	b.RandomizationFactor = 0.2

	attempt := 0
	return backoff.Retry(req.Context(), func() (*http.Response, error) {
		attempt++
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			if !isRetryableError(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if !shouldRetryStatus(resp.StatusCode) || attempt >= t.maxAttempts {
			return resp, nil
		}

		wait := parseRetryAfter(resp)
		resp.Body.Close()
		if wait > 0 && wait <= t.maxBackoff {
			return nil, backoff.RetryAfter(int(wait.Round(time.Second) / time.Second))
		}
		return nil, &statusError{code: resp.StatusCode}
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(t.maxAttempts)))
}

func isIdempotentMethod(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

func shouldRetryStatus(code int) bool {
	switch {
	case code >= 500 && code < 600:
		return true
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return isRetryableError(urlErr.Err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, keyword := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"network is unreachable",
		"temporary failure in name resolution",
		"eof",
	} {
		if strings.Contains(msg, keyword) {
			return true
		}
	}
	return false
}

// parseRetryAfter reads Retry-After as seconds or an HTTP date. Returns 0
// when absent or invalid.
func parseRetryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
