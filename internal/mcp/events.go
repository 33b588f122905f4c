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
	"log/slog"
	"sync"
	"time"
)

// EventType represents the type of hub event.
type EventType string

const (
	// EventServersChanged carries a fresh snapshot of all servers.
	EventServersChanged EventType = "servers_changed"
	// EventInfo carries an informational message for the user.
	EventInfo EventType = "info"
	// EventError carries an error message for the user.
	EventError EventType = "error"
)

// HubEvent is delivered to the host and to subscribers.
type HubEvent struct {
	Type      EventType          `json:"type"`
	Timestamp time.Time          `json:"timestamp"`
	Servers   []ServerDescriptor `json:"servers,omitempty"`
	Message   string             `json:"message,omitempty"`
}

// EventEmitter pushes hub events to the host and to subscribers. With no
// host and no subscribers it only logs.
type EventEmitter struct {
	logger *slog.Logger
	host   HostAccessor

	mu          sync.Mutex
	subscribers map[int]chan HubEvent
	nextID      int
}

// NewEventEmitter creates a new event emitter. host may be nil.
func NewEventEmitter(logger *slog.Logger, host HostAccessor) *EventEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventEmitter{
		logger:      logger,
		host:        host,
		subscribers: make(map[int]chan HubEvent),
	}
}

// Subscribe returns a channel of events and a function that unsubscribes.
// Events are dropped for subscribers whose buffer is full.
func (e *EventEmitter) Subscribe(buffer int) (<-chan HubEvent, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan HubEvent, buffer)

	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.subscribers[id] = ch
	e.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subscribers, id)
			e.mu.Unlock()
			close(ch)
		})
	}
}

// ServersChanged publishes a full snapshot.
func (e *EventEmitter) ServersChanged(servers []ServerDescriptor) {
	if h := e.currentHost(); h != nil {
		h.PostServers(servers)
	}
	e.publish(HubEvent{Type: EventServersChanged, Timestamp: time.Now(), Servers: servers})
}

// Info shows an informational message.
func (e *EventEmitter) Info(message string) {
	e.logger.Info(message)
	if h := e.currentHost(); h != nil {
		h.ShowInfo(message)
	}
	e.publish(HubEvent{Type: EventInfo, Timestamp: time.Now(), Message: message})
}

// Error shows an error message.
func (e *EventEmitter) Error(message string) {
	e.logger.Error(message)
	if h := e.currentHost(); h != nil {
		h.ShowError(message)
	}
	e.publish(HubEvent{Type: EventError, Timestamp: time.Now(), Message: message})
}

func (e *EventEmitter) currentHost() Host {
	if e.host == nil {
		return nil
	}
	return e.host()
}

func (e *EventEmitter) publish(ev HubEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, ch := range e.subscribers {
		select {
		case ch <- ev:
		default:
			e.logger.Warn("dropping hub event for slow subscriber",
				"subscriber", id,
				"type", string(ev.Type),
			)
		}
	}
}
