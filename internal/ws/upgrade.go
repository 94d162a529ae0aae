package ws

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// socket puts a write deadline on every data frame.
type socket struct {
	conn *websocket.Conn
}

func (s socket) ReadMessage() (int, []byte, error) {
	return s.conn.ReadMessage()
}

func (s socket) WriteMessage(messageType int, data []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(messageType, data)
}

func (s socket) Close() error {
	return s.conn.Close()
}

// HandleConnection upgrades the request to a WebSocket and serves it until
// the viewer disconnects. The session id and viewer must already be validated.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID, viewer Viewer) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stop := make(chan struct{})
	go keepalive(conn, stop)
	defer close(stop)

	h.Serve(r.Context(), socket{conn: conn}, sessionID, viewer)
	return nil
}

// keepalive pings the peer until stop is closed or a ping fails.
// WriteControl may run concurrently with the writer loop.
func keepalive(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// SetCheckOrigin sets a custom origin checker for the WebSocket upgrader.
func SetCheckOrigin(fn func(r *http.Request) bool) {
	upgrader.CheckOrigin = fn
}
