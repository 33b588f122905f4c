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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// connectionAttempts tracks dial outcomes by transport
	connectionAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcphub_connection_attempts_total",
			Help: "Total connection attempts by transport and result",
		},
		[]string{"transport", "result"},
	)

	// transportErrors tracks errors reported after a session was established
	transportErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcphub_transport_errors_total",
			Help: "Total transport errors by transport",
		},
		[]string{"transport"},
	)

	// reconciliations tracks reconciliation passes
	reconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcphub_reconciliations_total",
			Help: "Total reconciliation passes by source and result",
		},
		[]string{"source", "result"},
	)

	// watcherEvents tracks file events seen by the hot reload watcher
	watcherEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcphub_watcher_events_total",
			Help: "Total configuration file events by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// connectionsByStatus tracks the current number of connections per status
	connectionsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mcphub_connections",
			Help: "Current connections by status",
		},
		[]string{"status"},
	)

	// toolCalls tracks tool invocations
	toolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcphub_tool_calls_total",
			Help: "Total tool calls by result",
		},
		[]string{"result"},
	)
)

func recordConnectionAttempt(kind TransportKind, ok bool) {
	connectionAttempts.WithLabelValues(string(kind), resultLabel(ok)).Inc()
}

func recordTransportError(kind TransportKind) {
	transportErrors.WithLabelValues(string(kind)).Inc()
}

func recordReconciliation(source Source, ok bool) {
	reconciliations.WithLabelValues(string(source), resultLabel(ok)).Inc()
}

func recordWatcherEvent(kind, outcome string) {
	watcherEvents.WithLabelValues(kind, outcome).Inc()
}

func recordToolCall(ok bool) {
	toolCalls.WithLabelValues(resultLabel(ok)).Inc()
}

func recordConnectionStatus(counts map[ConnectionStatus]int) {
	for _, status := range []ConnectionStatus{StatusConnecting, StatusConnected, StatusDisconnected} {
		connectionsByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}
