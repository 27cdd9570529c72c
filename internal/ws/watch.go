package ws

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/peterje/pocketdev/internal/watcher"
	"go.uber.org/zap"
)

// WatchHandler pushes debounced change notifications for the working copy
// named by the path query parameter.
type WatchHandler struct {
	debounce time.Duration
	logger   *zap.Logger
	observer Observer
}

func NewWatchHandler(debounce time.Duration, logger *zap.Logger, observer Observer) *WatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WatchHandler{debounce: debounce, logger: logger, observer: observer}
}

func (h *WatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" || !filepath.IsAbs(path) {
		http.Error(w, "path must be an absolute directory", http.StatusBadRequest)
		return
	}

	wt, err := watcher.New(path, h.debounce, h.logger)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer wt.Close()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("upgrade failed", zap.String("path", path), zap.Error(err))
		return
	}
	defer conn.Close()

	h.observer.connected()
	defer h.observer.disconnected()

	// Drain client frames so pongs and the close handshake are processed.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		keepAlive(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-readerDone:
			return
		case ev := <-wt.Events():
			if err := writeJSON(conn, ev); err != nil {
				h.logger.Debug("write to client failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := writePing(conn); err != nil {
				return
			}
		}
	}
}
