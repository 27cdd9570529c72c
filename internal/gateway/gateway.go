// Package gateway is the public endpoint the mobile client talks to when
// the dev box is behind NAT. The dev box dials in over /tunnel; authenticated
// /api/ and /ws/ requests are forwarded through that tunnel.
package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/peterje/pocketdev/internal/config"
	"go.uber.org/zap"
)

// NewHandler builds the gateway router.
func NewHandler(auth *Auth, tun *Tunnel, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()

	auth.Routes(mux)

	// Authenticated by the pre-shared secret, not a user token.
	mux.HandleFunc("/tunnel", tun.Handler())

	// Liveness probe. /api/health is proxied to the dev box instead.
	mux.HandleFunc("GET /gateway/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "gateway": true, "connected": tun.Connected()})
	})

	mux.Handle("/", NewProxy(tun, logger.Named("proxy")))
	return auth.Middleware(mux)
}

// Run serves the gateway until ctx is cancelled.
func Run(ctx context.Context, cfg *config.GatewayConfig, logger *zap.Logger) error {
	hash := []byte(cfg.PasswordHash)
	if len(hash) == 0 {
		var err error
		if hash, err = HashPassword(cfg.Password); err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
	}

	secret := cfg.Secret
	if secret == "" {
		b := make([]byte, 24)
		if _, err := rand.Read(b); err != nil {
			return fmt.Errorf("generate secret: %w", err)
		}
		secret = hex.EncodeToString(b)
	}

	cacheDir, err := DefaultTLSDir()
	if err != nil {
		return err
	}
	tlsCfg, err := TLSConfig(cfg.TLSCert, cfg.TLSKey, cacheDir)
	if err != nil {
		return fmt.Errorf("TLS config: %w", err)
	}

	auth := NewAuth(cfg.Username, hash, secret, cfg.TokenTTL, logger.Named("auth"))
	tun := NewTunnel(secret, logger.Named("tunnel"))
	defer tun.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		Handler:           NewHandler(auth, tun, logger),
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
	}

	tunnelURL := fmt.Sprintf("wss://YOUR_HOST:%d/tunnel", cfg.Port)
	if cfg.Port == 443 {
		tunnelURL = "wss://YOUR_HOST/tunnel"
	}
	logger.Info("gateway listening", zap.String("addr", srv.Addr))
	if cfg.Secret == "" {
		// The generated secret is needed to connect the dev box.
		logger.Info("generated tunnel secret",
			zap.String("secret", secret),
			zap.String("connect", fmt.Sprintf("pocketdev --gateway %s --gateway-secret %s", tunnelURL, secret)),
		)
	}

	errCh := make(chan error, 1)
	go func() {
		// Certificates come from TLSConfig.
		errCh <- srv.ListenAndServeTLS("", "")
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
