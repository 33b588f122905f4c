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
)

// DefaultSuppressWindow is how long watcher events stay ignored after the
// hub finishes writing a configuration file.
const DefaultSuppressWindow = 600 * time.Millisecond

// Suppressor tells the watcher to ignore file events caused by the hub's
// own writes. It stays active from Begin until window has passed after the
// last matching End.
type Suppressor struct {
	mu      sync.Mutex
	window  time.Duration
	active  bool
	pending int
	gen     uint64
	timer   *time.Timer
}

// NewSuppressor creates a suppressor; a non-positive window uses DefaultSuppressWindow.
func NewSuppressor(window time.Duration) *Suppressor {
	if window <= 0 {
		window = DefaultSuppressWindow
	}
	return &Suppressor{window: window}
}

// Begin marks the start of a program-initiated write.
func (s *Suppressor) Begin() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = true
	s.pending++
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// End marks the write as finished and arms the clear timer.
func (s *Suppressor) End() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending > 0 {
		s.pending--
	}
	if s.pending > 0 {
		return
	}
	gen := s.gen
	s.timer = time.AfterFunc(s.window, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen == gen && s.pending == 0 {
			s.active = false
			s.timer = nil
		}
	})
}

// Active reports whether events should currently be ignored.
func (s *Suppressor) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Stop cancels the clear timer.
func (s *Suppressor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
