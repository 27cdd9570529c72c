package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"strings"

	"go.uber.org/zap"
)

var errNoTunnel = errors.New("gateway: dev box not connected")

// tunnelHost addresses the transport; the dev box side dials its own
// listener, so the name is never resolved. The client's Host header is kept.
const tunnelHost = "devbox"

// Proxy forwards /api/ and /ws/ traffic to the dev box. Each backend
// connection is a yamux stream; ReverseProxy handles WebSocket upgrades on
// top of it.
type Proxy struct {
	rp     *httputil.ReverseProxy
	logger *zap.Logger
}

func NewProxy(tun *Tunnel, logger *zap.Logger) *Proxy {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Proxy{logger: logger}
	p.rp = &httputil.ReverseProxy{
		Rewrite: rewrite,
		Transport: &http.Transport{
			DialContext: func(context.Context, string, string) (net.Conn, error) {
				return tun.OpenStream()
			},
			// Streams die with the tunnel; pooling them across reconnects
			// only produces stale connections.
			DisableKeepAlives: true,
		},
		ErrorHandler: p.fail,
	}
	return p
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/api/") && !strings.HasPrefix(r.URL.Path, "/ws/") {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	p.rp.ServeHTTP(w, r)
}

// rewrite targets the tunnel and drops the gateway's credentials. Inbound
// X-Forwarded-* headers are discarded by ReverseProxy, so the dev box only
// sees the address this gateway observed.
func rewrite(pr *httputil.ProxyRequest) {
	pr.Out.URL.Scheme = "http"
	pr.Out.URL.Host = tunnelHost
	pr.SetXForwarded()

	pr.Out.Header.Del("Authorization")
	if q := pr.Out.URL.Query(); q.Has(tokenQueryParam) {
		q.Del(tokenQueryParam)
		pr.Out.URL.RawQuery = q.Encode()
	}
}

func (p *Proxy) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errNoTunnel) {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "gateway not connected to dev box"})
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	p.logger.Warn("proxy request failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeJSON(w, http.StatusBadGateway, map[string]string{"error": "tunnel request failed"})
}
