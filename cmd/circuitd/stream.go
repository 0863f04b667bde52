package main

import (
	"net/http"
	"time"

	"github.com/WessleyAI/wessley-circuit/engine/circuit"
	"github.com/WessleyAI/wessley-circuit/engine/events"
	"github.com/gorilla/websocket"
)

const (
	streamBuffer = 256
	writeWait    = 5 * time.Second
	pingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
}

// StreamMessage is one websocket frame on /api/stream. The first frame
// carries the snapshot; every later frame carries one power event.
type StreamMessage struct {
	Type     string             `json:"type"`
	Snapshot *circuit.Snapshot  `json:"snapshot,omitempty"`
	Event    *events.PowerEvent `json:"event,omitempty"`
}

func (s *server) handleStream(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer ws.Close()

	// Subscribe before taking the snapshot so no change falls in between.
	evs, cancel := s.feed.Subscribe(streamBuffer)
	defer cancel()

	snap, err := s.runner.Snapshot(r.Context())
	if err != nil {
		s.log.Warn("stream snapshot failed", "err", err)
		return
	}
	if err := send(ws, StreamMessage{Type: "snapshot", Snapshot: &snap}); err != nil {
		return
	}
	s.log.Info("stream client connected", "remote", r.RemoteAddr)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			s.log.Info("stream client disconnected", "remote", r.RemoteAddr)
			return
		case <-s.done:
			ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeWait))
			return
		case ev, ok := <-evs:
			if !ok {
				return
			}
			if err := send(ws, StreamMessage{Type: "power", Event: &ev}); err != nil {
				return
			}
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func send(ws *websocket.Conn, v any) error {
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteJSON(v)
}
