package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hupe1980/factoryops/core"
	"github.com/hupe1980/factoryops/transcode"
)

const wsWriteWait = 10 * time.Second

// wsMessage frames one wire event on the WebSocket transport.
type wsMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type wsWriter struct {
	conn *websocket.Conn
}

func (ww *wsWriter) WriteEvent(ev transcode.Event) error {
	data, err := ev.Payload()
	if err != nil {
		return err
	}
	if err := ww.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return ww.conn.WriteJSON(wsMessage{Event: ev.Name, Data: data})
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.allowOrigin(origin) != ""
		},
	}
}

// handleWebSocket streams one run per connection. The client sends the
// analysis request as its first message and receives the same wire events
// as the SSE endpoint.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.opts.Logger.Warn("server.ws.upgrade_failed", "error", err.Error())
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxBodyBytes)

	_, data, err := conn.ReadMessage()
	if err != nil {
		s.opts.Logger.Debug("server.ws.closed_before_request", "error", err.Error())
		return
	}

	req, err := decodeRequest(bytes.NewReader(data))
	if err != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "invalid request body")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// A read error means the client closed the connection.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	s.relay(ctx, core.NewID(), req, &wsWriter{conn: conn})

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
