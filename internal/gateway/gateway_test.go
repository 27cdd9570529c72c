package gateway

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/peterje/pocketdev/internal/tunnel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "s3cret"

func newTestAuth(t *testing.T) *Auth {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	return NewAuth("dev", hash, testSecret, time.Hour, nil)
}

func issueToken(t *testing.T, gw *httptest.Server) string {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, gw.URL+"/auth/token", nil)
	require.NoError(t, err)
	req.SetBasicAuth("dev", "hunter2")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body tokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.Token)
	return body.Token
}

func TestTokenSignAndVerify(t *testing.T) {
	a := newTestAuth(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	token := a.Sign("dev", now.Add(time.Hour))
	assert.NoError(t, a.Verify(token))

	assert.Error(t, a.Verify(token+"x"), "tampered signature")
	assert.Error(t, a.Verify(a.Sign("mallory", now.Add(time.Hour))), "wrong user")
	assert.Error(t, a.Verify("garbage"))

	a.now = func() time.Time { return now.Add(2 * time.Hour) }
	assert.ErrorIs(t, a.Verify(token), errInvalidToken)

	other := NewAuth("dev", a.passwordHash, "another-secret", time.Hour, nil)
	other.now = func() time.Time { return now }
	assert.Error(t, other.Verify(token), "tokens are bound to the secret")
}

func TestTokenEndpoint(t *testing.T) {
	tun := NewTunnel(testSecret, nil)
	gw := httptest.NewServer(NewHandler(newTestAuth(t), tun, zapNop()))
	defer gw.Close()

	resp, err := http.Post(gw.URL+"/auth/token", "application/json", strings.NewReader(`{"username":"dev","password":"wrong"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Post(gw.URL+"/auth/token", "application/json", strings.NewReader(`{"username":"dev","password":"hunter2"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMiddlewareRequiresToken(t *testing.T) {
	tun := NewTunnel(testSecret, nil)
	gw := httptest.NewServer(NewHandler(newTestAuth(t), tun, zapNop()))
	defer gw.Close()

	resp, err := http.Get(gw.URL + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(gw.URL + "/gateway/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	token := issueToken(t, gw)
	req, _ := http.NewRequest(http.MethodGet, gw.URL+"/api/health", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode, "authorized but no dev box connected")
}

func TestTunnelRejectsWrongSecret(t *testing.T) {
	tun := NewTunnel(testSecret, nil)
	gw := httptest.NewServer(NewHandler(newTestAuth(t), tun, zapNop()))
	defer gw.Close()

	header := http.Header{}
	header.Set(tunnel.SecretHeader, "nope")
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(gw.URL, "http")+"/tunnel", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestProxyThroughTunnel(t *testing.T) {
	// The dev box API.
	var gotForwarded, gotAuth string
	local := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotForwarded = r.Header.Get("X-Forwarded-For")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer local.Close()

	tun := NewTunnel(testSecret, nil)
	gw := httptest.NewServer(NewHandler(newTestAuth(t), tun, zapNop()))
	defer gw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := tunnel.NewClient("ws"+strings.TrimPrefix(gw.URL, "http")+"/tunnel", testSecret,
		local.Listener.Addr().String(), nil)
	go client.Run(ctx)

	require.Eventually(t, func() bool { return tun.Connected() && client.Connected() }, 5*time.Second, 20*time.Millisecond)

	token := issueToken(t, gw)
	req, _ := http.NewRequest(http.MethodGet, gw.URL+"/api/health", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Empty(t, gotAuth, "token is stripped before forwarding")
	assert.NotNil(t, net.ParseIP(gotForwarded))

	cancel()
	assert.Eventually(t, func() bool { return !client.Connected() }, 5*time.Second, 20*time.Millisecond)
}

func TestProxyWebSocketThroughTunnel(t *testing.T) {
	var gotQuery string
	upgrader := websocket.Upgrader{}
	local := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
	defer local.Close()

	tun := NewTunnel(testSecret, nil)
	gw := httptest.NewServer(NewHandler(newTestAuth(t), tun, zapNop()))
	defer gw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := tunnel.NewClient("ws"+strings.TrimPrefix(gw.URL, "http")+"/tunnel", testSecret,
		local.Listener.Addr().String(), nil)
	go client.Run(ctx)
	require.Eventually(t, func() bool { return tun.Connected() && client.Connected() }, 5*time.Second, 20*time.Millisecond)

	token := issueToken(t, gw)
	url := "ws" + strings.TrimPrefix(gw.URL, "http") + "/ws/sessions/abc?token=" + token + "&x=1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(msg))
	assert.Equal(t, "x=1", gotQuery, "token is stripped from the query")
}

func TestTLSConfigSelfSigned(t *testing.T) {
	dir := t.TempDir()
	cfg, err := TLSConfig("", "", dir)
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)

	// A second call reuses the cached certificate.
	again, err := TLSConfig("", "", dir)
	require.NoError(t, err)
	assert.Equal(t, cfg.Certificates[0].Certificate[0], again.Certificates[0].Certificate[0])
}

func zapNop() *zap.Logger { return zap.NewNop() }
