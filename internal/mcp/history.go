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

package mcp

import (
	"sync"
	"time"
	"unicode/utf8"
)

const (
	// MaxErrorHistory is the number of entries kept per connection.
	MaxErrorHistory = 100
	// MaxErrorMessageLength is the maximum length of a stored message, in characters.
	MaxErrorMessageLength = 1000

	truncationMarker = "...(error message truncated)"
)

// ErrorLevel is the severity of an error history entry.
type ErrorLevel string

const (
	ErrorLevelError ErrorLevel = "error"
	ErrorLevelWarn  ErrorLevel = "warn"
	ErrorLevelInfo  ErrorLevel = "info"
)

// ErrorEntry is one entry in a connection's error history.
type ErrorEntry struct {
	Message string `json:"message"`
	// Timestamp is in milliseconds since the Unix epoch.
	Timestamp int64      `json:"timestamp"`
	Level     ErrorLevel `json:"level"`
}

// ErrorHistory is a fixed-size circular buffer of error entries. When full,
// the oldest entry is dropped.
type ErrorHistory struct {
	mu      sync.RWMutex
	entries []ErrorEntry
	head    int
	tail    int
	size    int
	count   int
}

// NewErrorHistory creates a history with the given capacity.
func NewErrorHistory(capacity int) *ErrorHistory {
	if capacity <= 0 {
		capacity = MaxErrorHistory
	}
	return &ErrorHistory{
		entries: make([]ErrorEntry, capacity),
		size:    capacity,
	}
}

// Add stores a message, truncated to MaxErrorMessageLength, and returns the
// stored entry.
func (h *ErrorHistory) Add(message string, level ErrorLevel, at time.Time) ErrorEntry {
	entry := ErrorEntry{
		Message:   truncateMessage(message),
		Timestamp: at.UnixMilli(),
		Level:     level,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries[h.tail] = entry
	h.tail = (h.tail + 1) % h.size

	if h.count < h.size {
		h.count++
	} else {
		h.head = (h.head + 1) % h.size
	}
	return entry
}

// Entries returns all entries, oldest first.
func (h *ErrorHistory) Entries() []ErrorEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]ErrorEntry, h.count)
	for i := 0; i < h.count; i++ {
		result[i] = h.entries[(h.head+i)%h.size]
	}
	return result
}

// Last returns the newest entry.
func (h *ErrorHistory) Last() (ErrorEntry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.count == 0 {
		return ErrorEntry{}, false
	}
	return h.entries[(h.tail-1+h.size)%h.size], true
}

// Len returns the number of stored entries.
func (h *ErrorHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

func truncateMessage(msg string) string {
	if utf8.RuneCountInString(msg) <= MaxErrorMessageLength {
		return msg
	}
	keep := MaxErrorMessageLength - utf8.RuneCountInString(truncationMarker)
	runes := []rune(msg)
	return string(runes[:keep]) + truncationMarker
}
