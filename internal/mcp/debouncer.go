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

// Debouncer delays work until no new trigger arrives for the configured
// window. Each key has its own timer and only the last scheduled function
// runs. Functions for the same key never overlap.
type Debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	timers  map[string]*debounceTimer
	running map[string]*sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

type debounceTimer struct {
	timer *time.Timer
	fn    func()
}

// NewDebouncer creates a debouncer with the specified window duration.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		timers:  make(map[string]*debounceTimer),
		running: make(map[string]*sync.Mutex),
	}
}

// Trigger schedules fn for key, replacing and restarting any pending timer.
func (d *Debouncer) Trigger(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	dt, exists := d.timers[key]
	if exists {
		dt.timer.Stop()
		dt.fn = fn
	} else {
		dt = &debounceTimer{fn: fn}
		d.timers[key] = dt
	}

	dt.timer = time.AfterFunc(d.window, func() {
		d.flush(key, dt)
	})
}

func (d *Debouncer) flush(key string, dt *debounceTimer) {
	d.mu.Lock()
	if d.stopped || d.timers[key] != dt {
		d.mu.Unlock()
		return
	}
	fn := dt.fn
	delete(d.timers, key)
	run, ok := d.running[key]
	if !ok {
		run = &sync.Mutex{}
		d.running[key] = run
	}
	d.wg.Add(1)
	d.mu.Unlock()

	defer d.wg.Done()
	run.Lock()
	defer run.Unlock()
	fn()
}

// Cancel drops the pending timer for key.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if dt, ok := d.timers[key]; ok {
		dt.timer.Stop()
		delete(d.timers, key)
	}
}

// Stop discards pending timers and waits for running functions to return.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	for key, dt := range d.timers {
		dt.timer.Stop()
		delete(d.timers, key)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

// Pending returns the number of keys with pending timers.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}
