package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/agentcontrol/hub/internal/fanout"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsMaxMessage = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser origins are enforced by API key auth and CORS on the REST side.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// controlMessage is a client-to-server message on the observer socket.
type controlMessage struct {
	Type string `json:"type"`
}

// WebSocket upgrades the connection and streams every hub event to the
// client. The observer is registered before the handshake completes, so the
// client sees every event published after its dial returns.
//
// Client messages: {"type":"ping"} gets {"type":"pong"};
// {"type":"subscribe_escalations"} gets {"type":"subscribed","topic":"escalations"}.
// Anything else, including malformed JSON, is ignored.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	sub := h.Hub.Subscribe()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	log.Info().Str("subscriber", sub.ID).Str("remote", r.RemoteAddr).Msg("Observer connected")

	replies := make(chan fanout.Event, 8)
	done := make(chan struct{})

	// Single writer: gorilla connections allow one concurrent writer.
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer func() {
			ticker.Stop()
			conn.Close()
		}()
		for {
			select {
			case <-done:
				return
			case ev, ok := <-sub.C():
				if !ok {
					// Pruned for falling behind.
					conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
					conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "observer too slow"))
					return
				}
				if err := writeEvent(conn, ev); err != nil {
					return
				}
			case ev := <-replies:
				if err := writeEvent(conn, ev); err != nil {
					return
				}
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	defer func() {
		close(done)
		sub.Close()
		log.Info().Str("subscriber", sub.ID).Msg("Observer disconnected")
	}()

	conn.SetReadLimit(wsMaxMessage)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("subscriber", sub.ID).Msg("WebSocket read error")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsPongWait))

		var msg controlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		var reply fanout.Event
		switch msg.Type {
		case "ping":
			reply = fanout.Event{Type: fanout.EventPong}
		case "subscribe_escalations":
			reply = fanout.Event{Type: fanout.EventSubscribed, Topic: "escalations"}
		default:
			continue
		}
		select {
		case replies <- reply:
		default:
			// Client is flooding control messages faster than we write.
		}
	}
}

func writeEvent(conn *websocket.Conn, ev fanout.Event) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(ev)
}
