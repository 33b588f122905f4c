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

package hostapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tombee/mcphub/internal/mcp"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

// handleStream handles GET /v1/servers/stream. The client receives the
// current snapshot followed by every hub event as JSON text frames.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	events, unsubscribe := s.hub.Subscribe(64)
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.logger.Debug("stream client connected", "remote", r.RemoteAddr)

	// The read loop only handles control frames and notices disconnects.
	done := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	initial := mcp.HubEvent{Type: mcp.EventServersChanged, Timestamp: time.Now(), Servers: s.hub.AllServers()}
	if err := s.writeEvent(conn, initial); err != nil {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			s.logger.Debug("stream client disconnected", "remote", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := s.writeEvent(conn, ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeEvent(conn *websocket.Conn, ev mcp.HubEvent) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(ev); err != nil {
		s.logger.Debug("stream write failed", "error", err)
		return err
	}
	return nil
}
