package tunnel

import (
	"io"
	"sync"

	"github.com/gorilla/websocket"
)

// WSConn carries a byte stream over binary WebSocket messages. It is the
// transport under the yamux session on both ends of the tunnel.
type WSConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
	// pending holds the unread tail of the last message.
	pending []byte
}

func NewWSConn(conn *websocket.Conn) *WSConn {
	return &WSConn{conn: conn}
}

func (w *WSConn) Read(p []byte) (int, error) {
	for len(w.pending) == 0 {
		typ, msg, err := w.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		w.pending = msg
	}
	n := copy(p, w.pending)
	w.pending = w.pending[n:]
	return n, nil
}

func (w *WSConn) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WSConn) Close() error {
	return w.conn.Close()
}

var _ io.ReadWriteCloser = (*WSConn)(nil)
