package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // The exam client is served from a different origin.
	},
}

// clientMessage is sent by the exam client. Data is base64 in JSON.
type clientMessage struct {
	Type   string `json:"type"` // visibility | frame
	Hidden bool   `json:"hidden,omitempty"`
	Data   []byte `json:"data,omitempty"`
}

// serverMessage is sent to the exam client.
type serverMessage struct {
	Type     string `json:"type"` // ack | error | completed
	Error    string `json:"error,omitempty"`
	ResultID string `json:"resultId,omitempty"`
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(msg serverMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteJSON(msg)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

// clientChannel streams visibility changes and camera frames from the exam
// client. The server closes the connection once the session completes.
func (h *handlers) clientChannel(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("sessionId", c.ID()).Msg("WebSocket upgrade failed")
		return
	}
	ws := &wsConn{conn: conn}
	logger := h.logger.With().Str("sessionId", c.ID()).Str("component", "websocket").Logger()
	logger.Debug().Msg("Client connected")

	readDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-readDone:
				return
			case <-c.Done():
				msg := serverMessage{Type: "completed"}
				if res := c.Result(); res != nil {
					msg.ResultID = res.ID
				}
				_ = ws.send(msg)
				ws.mu.Lock()
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session completed"),
					time.Now().Add(wsWriteWait))
				ws.mu.Unlock()
				return
			case <-ticker.C:
				if err := ws.ping(); err != nil {
					return
				}
			}
		}
	}()

	defer func() {
		close(readDone)
		conn.Close()
		logger.Debug().Msg("Client disconnected")
	}()

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	conn.SetReadLimit(maxFrameBytes * 2)

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug().Err(err).Msg("Read failed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

		reply := serverMessage{Type: "ack"}
		switch msg.Type {
		case "visibility":
			c.Visibility(msg.Hidden)
		case "frame":
			if !c.PushFrame(msg.Data) {
				reply = serverMessage{Type: "error", Error: "frame rejected"}
			}
		default:
			reply = serverMessage{Type: "error", Error: "unknown message type " + msg.Type}
		}
		if err := ws.send(reply); err != nil {
			return
		}
	}
}
