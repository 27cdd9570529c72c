// Package ws serves the WebSocket event channels: per-session output and
// working copy change notifications.
package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	// closeGrace is how long we wait for the client to answer our close frame.
	closeGrace = time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Observer is told about connections opening and closing. Either field may
// be nil.
type Observer struct {
	OnConnect    func()
	OnDisconnect func()
}

func (o Observer) connected() {
	if o.OnConnect != nil {
		o.OnConnect()
	}
}

func (o Observer) disconnected() {
	if o.OnDisconnect != nil {
		o.OnDisconnect()
	}
}

// keepAlive extends the read deadline whenever the client answers a ping.
func keepAlive(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})
}

func writeJSON(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return conn.WriteJSON(v)
}

func writePing(conn *websocket.Conn) error {
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return conn.WriteMessage(websocket.PingMessage, nil)
}

func writeClose(conn *websocket.Conn, code int, reason string) error {
	return conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(writeDeadline))
}
