package api

import (
	"errors"
	"net/http"

	"github.com/peterje/pocketdev/internal/terminal"
	"go.uber.org/zap"
)

// Session error codes.
const (
	CodeSessionNotFound = "SESSION_NOT_FOUND"
	CodeInvalidState    = "INVALID_STATE"
	CodeProcessSpawn    = "PROCESS_SPAWN_ERROR"
	CodeIOWrite         = "IO_WRITE_ERROR"
	CodeTooManySessions = "TOO_MANY_SESSIONS"
	CodeCommandFailed   = "COMMAND_FAILED"
)

type SessionsHandler struct {
	manager terminal.Manager
	logger  *zap.Logger
}

func NewSessionsHandler(manager terminal.Manager, logger *zap.Logger) *SessionsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionsHandler{manager: manager, logger: logger}
}

type createSessionRequest struct {
	Command          string `json:"command"`
	WorkingDirectory string `json:"working_directory"`
}

func (h *SessionsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var body createSessionRequest
	if err := decodeJSON(w, r, &body); err != nil {
		WriteErrorCode(w, http.StatusBadRequest, CodeInvalidRequest, "invalid JSON")
		return
	}
	if body.Command == "" {
		WriteErrorCode(w, http.StatusBadRequest, CodeInvalidRequest, "command is required")
		return
	}

	id, err := h.manager.Create(body.Command, body.WorkingDirectory)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	h.logger.Debug("create session request", zap.String("session_id", id), zap.String("remote", r.RemoteAddr))
	WriteJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *SessionsHandler) HandleList(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, h.manager.List())
}

func (h *SessionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := h.manager.Get(r.PathValue("id"))
	if err != nil {
		writeSessionError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, sess.Info())
}

func (h *SessionsHandler) HandleInput(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Data string `json:"data"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		WriteErrorCode(w, http.StatusBadRequest, CodeInvalidRequest, "invalid JSON")
		return
	}
	if err := h.manager.SendInput(r.PathValue("id"), []byte(body.Data)); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.manager.Kill(id); err != nil {
		writeSessionError(w, err)
		return
	}
	h.logger.Debug("kill session request", zap.String("session_id", id), zap.String("remote", r.RemoteAddr))
	w.WriteHeader(http.StatusNoContent)
}

// writeSessionError maps terminal errors to status codes.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, terminal.ErrSessionNotFound):
		WriteErrorCode(w, http.StatusNotFound, CodeSessionNotFound, err.Error())
	case errors.Is(err, terminal.ErrInvalidState):
		WriteErrorCode(w, http.StatusConflict, CodeInvalidState, err.Error())
	case errors.Is(err, terminal.ErrProcessSpawn):
		WriteErrorCode(w, http.StatusUnprocessableEntity, CodeProcessSpawn, err.Error())
	case errors.Is(err, terminal.ErrTooManySessions):
		WriteErrorCode(w, http.StatusTooManyRequests, CodeTooManySessions, err.Error())
	case errors.Is(err, terminal.ErrIOWrite):
		WriteErrorCode(w, http.StatusInternalServerError, CodeIOWrite, err.Error())
	default:
		WriteErrorCode(w, http.StatusInternalServerError, CodeInternal, err.Error())
	}
}
