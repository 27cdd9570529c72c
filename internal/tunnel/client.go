// Package tunnel carries API traffic from a public gateway to this dev box
// over an outbound WebSocket multiplexed with yamux.
package tunnel

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/yamux"
	"go.uber.org/zap"
)

// SecretHeader carries the pre-shared secret on the tunnel handshake.
const SecretHeader = "X-Gateway-Secret"

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Client connects outbound to a gateway and serves the streams it opens by
// dialing the local API server.
type Client struct {
	gatewayURL string // wss://gateway.example.com/tunnel
	secret     string
	localAddr  string // e.g. localhost:8800
	logger     *zap.Logger

	connected atomic.Bool
}

func NewClient(gatewayURL, secret, localAddr string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		gatewayURL: gatewayURL,
		secret:     secret,
		localAddr:  localAddr,
		logger:     logger.With(zap.String("gateway", gatewayURL)),
	}
}

// Connected reports whether a tunnel session is currently up.
func (c *Client) Connected() bool { return c.connected.Load() }

// Run keeps the tunnel connected, reconnecting with exponential backoff,
// until ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	backoff := initialBackoff
	for ctx.Err() == nil {
		start := time.Now()
		err := c.connect(ctx)
		if ctx.Err() != nil {
			return
		}
		// A session that stayed up for a while resets the backoff.
		if time.Since(start) > maxBackoff {
			backoff = initialBackoff
		}
		c.logger.Warn("tunnel disconnected, reconnecting",
			zap.Error(err),
			zap.Duration("backoff", backoff),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (c *Client) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		// The gateway defaults to a self-signed cert; the pre-shared secret
		// authenticates the connection.
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}

	header := http.Header{}
	header.Set(SecretHeader, c.secret)

	wsConn, _, err := dialer.DialContext(ctx, c.gatewayURL, header)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	defer wsConn.Close()

	// This side is the yamux server: it accepts streams the gateway opens.
	session, err := yamux.Server(NewWSConn(wsConn), yamux.DefaultConfig())
	if err != nil {
		return fmt.Errorf("yamux server: %w", err)
	}
	defer session.Close()

	c.connected.Store(true)
	defer c.connected.Store(false)
	c.logger.Info("tunnel connected")

	stop := context.AfterFunc(ctx, func() { session.Close() })
	defer stop()

	for {
		stream, err := session.Accept()
		if err != nil {
			return fmt.Errorf("accept stream: %w", err)
		}
		go c.handleStream(stream)
	}
}

func (c *Client) handleStream(stream net.Conn) {
	defer stream.Close()

	local, err := net.Dial("tcp", c.localAddr)
	if err != nil {
		c.logger.Warn("dial local server", zap.String("addr", c.localAddr), zap.Error(err))
		return
	}
	defer local.Close()

	done := make(chan struct{})
	go func() {
		io.Copy(local, stream)
		// Let the local server see EOF on the request side.
		if tcp, ok := local.(*net.TCPConn); ok {
			tcp.CloseWrite()
		}
		close(done)
	}()
	io.Copy(stream, local)
	<-done
}
