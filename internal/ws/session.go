package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/peterje/pocketdev/internal/events"
	"github.com/peterje/pocketdev/internal/terminal"
	"go.uber.org/zap"
)

// Frame is one output line as sent to the client.
type Frame struct {
	Event     string `json:"event"`
	SessionID string `json:"sessionId"`
	Data      string `json:"data"`
}

// Subscriber hands out per-session event streams.
type Subscriber interface {
	Subscribe(sessionID string) ([]terminal.OutputEvent, <-chan terminal.OutputEvent, func())
}

// SessionHandler streams a session's output over a WebSocket and writes
// client frames to the session as input.
type SessionHandler struct {
	manager  terminal.Manager
	events   Subscriber
	logger   *zap.Logger
	observer Observer
}

func NewSessionHandler(manager terminal.Manager, sub Subscriber, logger *zap.Logger, observer Observer) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{manager: manager, events: sub, logger: logger, observer: observer}
}

func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	sess, err := h.manager.Get(sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("upgrade failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	defer conn.Close()

	h.observer.connected()
	defer h.observer.disconnected()

	log := h.logger.With(zap.String("session_id", sessionID))
	log.Debug("client connected", zap.String("remote", r.RemoteAddr))

	replay, ch, unsub := h.events.Subscribe(sessionID)
	defer unsub()

	topic := events.Topic(sessionID)
	for _, ev := range replay {
		if err := writeJSON(conn, Frame{Event: topic, SessionID: sessionID, Data: ev.Line}); err != nil {
			log.Debug("replay send failed", zap.Error(err))
			return
		}
	}

	var wg sync.WaitGroup
	readerDone := make(chan struct{})
	writerDone := make(chan struct{})

	// Client -> session input.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(readerDone)
		keepAlive(conn)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug("read from client failed", zap.Error(err))
				}
				return
			}
			if err := sess.SendInput(msg); err != nil {
				log.Debug("input dropped", zap.Error(err))
			}
		}
	}()

	send := func(ev terminal.OutputEvent) bool {
		if err := writeJSON(conn, Frame{Event: topic, SessionID: sessionID, Data: ev.Line}); err != nil {
			log.Debug("write to client failed", zap.Error(err))
			return false
		}
		return true
	}

	// Session output -> client. The channel closes when the session ends or
	// we unsubscribe. Done is watched as well, since a session removed before
	// we subscribed never closes ch.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(writerDone)
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					select {
					case <-sess.Done():
						writeClose(conn, websocket.CloseNormalClosure, "session ended")
					default:
					}
					return
				}
				if !send(ev) {
					return
				}
			case <-sess.Done():
				// Emits finish before Done closes, so whatever is buffered
				// is the rest of the output.
				for drained := false; !drained; {
					select {
					case ev, ok := <-ch:
						if !ok {
							drained = true
						} else if !send(ev) {
							return
						}
					default:
						drained = true
					}
				}
				writeClose(conn, websocket.CloseNormalClosure, "session ended")
				return
			case <-ticker.C:
				if err := writePing(conn); err != nil {
					return
				}
			case <-readerDone:
				return
			}
		}
	}()

	select {
	case <-readerDone:
		log.Debug("client disconnected")
	case <-writerDone:
		log.Debug("session stream finished")
		select {
		case <-readerDone:
		case <-time.After(closeGrace):
		}
	}
	unsub()
	conn.Close()
	wg.Wait()
}
