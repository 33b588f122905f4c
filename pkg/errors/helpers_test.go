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

package errors_test

import (
	"errors"
	"strings"
	"testing"

	mcpherrors "github.com/tombee/mcphub/pkg/errors"
)

func TestWrap(t *testing.T) {
	t.Run("wraps error with context", func(t *testing.T) {
		original := errors.New("original error")
		wrapped := mcpherrors.Wrap(original, "additional context")

		if wrapped == nil {
			t.Fatal("Wrap should not return nil for non-nil error")
		}
		msg := wrapped.Error()
		if !strings.Contains(msg, "additional context") || !strings.Contains(msg, "original error") {
			t.Errorf("unexpected message: %s", msg)
		}
		if !errors.Is(wrapped, original) {
			t.Error("wrapped error should match original with errors.Is")
		}
	})

	t.Run("returns nil for nil error", func(t *testing.T) {
		if wrapped := mcpherrors.Wrap(nil, "context"); wrapped != nil {
			t.Errorf("Wrap(nil, _) should return nil, got: %v", wrapped)
		}
	})
}

func TestWrapf(t *testing.T) {
	original := errors.New("permission denied")
	wrapped := mcpherrors.Wrapf(original, "reading %s", "mcp.json")

	if got, want := wrapped.Error(), "reading mcp.json: permission denied"; got != want {
		t.Errorf("Wrapf() = %q, want %q", got, want)
	}
	if mcpherrors.Wrapf(nil, "reading %s", "x") != nil {
		t.Error("Wrapf(nil, ...) should return nil")
	}
}
