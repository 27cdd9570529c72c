package gateway

import (
	"crypto/subtle"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/yamux"
	"github.com/peterje/pocketdev/internal/tunnel"
	"go.uber.org/zap"
)

var tunnelUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Tunnel is the gateway side of the reverse tunnel. At most one dev box is
// connected; a new connection replaces the old one.
type Tunnel struct {
	secret string
	logger *zap.Logger

	mu      sync.RWMutex
	session *yamux.Session
}

func NewTunnel(secret string, logger *zap.Logger) *Tunnel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tunnel{secret: secret, logger: logger}
}

// Handler serves the /tunnel endpoint the dev box dials.
func (t *Tunnel) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(tunnel.SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(t.secret)) != 1 {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		wsConn, err := tunnelUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.logger.Warn("tunnel upgrade failed", zap.Error(err))
			return
		}

		// The gateway is the yamux client: it opens streams to the dev box.
		session, err := yamux.Client(tunnel.NewWSConn(wsConn), yamux.DefaultConfig())
		if err != nil {
			t.logger.Warn("yamux client", zap.Error(err))
			wsConn.Close()
			return
		}

		t.mu.Lock()
		if t.session != nil {
			t.session.Close()
			t.logger.Info("replaced existing tunnel connection")
		}
		t.session = session
		t.mu.Unlock()
		t.logger.Info("dev box connected", zap.String("remote", r.RemoteAddr))

		<-session.CloseChan()

		t.mu.Lock()
		if t.session == session {
			t.session = nil
		}
		t.mu.Unlock()
		t.logger.Info("dev box disconnected", zap.String("remote", r.RemoteAddr))
	}
}

// OpenStream opens a stream to the dev box, or fails with errNoTunnel.
func (t *Tunnel) OpenStream() (net.Conn, error) {
	t.mu.RLock()
	session := t.session
	t.mu.RUnlock()

	if session == nil {
		return nil, errNoTunnel
	}
	return session.Open()
}

// Connected reports whether a dev box is connected.
func (t *Tunnel) Connected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.session != nil && !t.session.IsClosed()
}

// Close drops the current connection, if any.
func (t *Tunnel) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session != nil {
		t.session.Close()
		t.session = nil
	}
}
