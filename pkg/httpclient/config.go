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
	"fmt"
	"log/slog"
	"time"
)

// Config configures the HTTP client.
type Config struct {
	// ResponseHeaderTimeout bounds the wait for response headers.
	// Default: 30s. Must be > 0.
	ResponseHeaderTimeout time.Duration

	// RetryAttempts is the number of retries after the first attempt.
	// Default: 2. Must be >= 0.
	RetryAttempts int

	// RetryBackoff is the delay before the first retry.
	// Default: 200ms. Must be > 0 if RetryAttempts > 0.
	RetryBackoff time.Duration

	// MaxBackoff caps the delay between retries.
	// Default: 5s. Must be >= RetryBackoff.
	MaxBackoff time.Duration

	// UserAgent is the User-Agent header value.
	// Required.
	UserAgent string

	// Logger receives request logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ResponseHeaderTimeout: 30 * time.Second,
		RetryAttempts:         2,
		RetryBackoff:          200 * time.Millisecond,
		MaxBackoff:            5 * time.Second,
		UserAgent:             "mcphub",
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ResponseHeaderTimeout <= 0 {
		return fmt.Errorf("response_header_timeout must be > 0, got %v", c.ResponseHeaderTimeout)
	}

	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts must be >= 0, got %d", c.RetryAttempts)
	}

	if c.RetryAttempts > 0 {
		if c.RetryBackoff <= 0 {
			return fmt.Errorf("retry_backoff must be > 0 when retry_attempts > 0, got %v", c.RetryBackoff)
		}
		if c.MaxBackoff < c.RetryBackoff {
			return fmt.Errorf("max_backoff (%v) must be >= retry_backoff (%v)", c.MaxBackoff, c.RetryBackoff)
		}
	}

	if c.UserAgent == "" {
		return fmt.Errorf("user_agent is required and must be non-empty")
	}

	return nil
}
