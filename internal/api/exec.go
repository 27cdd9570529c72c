package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/peterje/pocketdev/internal/models"
	"github.com/peterje/pocketdev/internal/terminal"
	"go.uber.org/zap"
)

// Runner runs one command to completion.
type Runner interface {
	Run(ctx context.Context, command, workDir string) (terminal.CommandResult, error)
}

// CommandRecorder persists executed commands.
type CommandRecorder interface {
	RecordCommand(ctx context.Context, rec models.CommandRecord) error
}

type ExecHandler struct {
	runner  Runner
	history CommandRecorder
	logger  *zap.Logger
}

// NewExecHandler returns the /api/exec handler. history may be nil.
func NewExecHandler(runner Runner, history CommandRecorder, logger *zap.Logger) *ExecHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecHandler{runner: runner, history: history, logger: logger}
}

type commandFailedResponse struct {
	Error    string `json:"error"`
	Code     string `json:"code"`
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output"`
}

func (h *ExecHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body createSessionRequest
	if err := decodeJSON(w, r, &body); err != nil {
		WriteErrorCode(w, http.StatusBadRequest, CodeInvalidRequest, "invalid JSON")
		return
	}
	if body.Command == "" {
		WriteErrorCode(w, http.StatusBadRequest, CodeInvalidRequest, "command is required")
		return
	}

	start := time.Now()
	res, err := h.runner.Run(r.Context(), body.Command, body.WorkingDirectory)

	var failed *terminal.CommandFailedError
	switch {
	case err == nil:
		h.record(r.Context(), body, 0, time.Since(start))
		WriteJSON(w, http.StatusOK, res)
	case errors.As(err, &failed):
		h.record(r.Context(), body, failed.ExitCode, time.Since(start))
		WriteJSON(w, http.StatusUnprocessableEntity, commandFailedResponse{
			Error:    err.Error(),
			Code:     CodeCommandFailed,
			ExitCode: failed.ExitCode,
			Output:   failed.Output,
		})
	case errors.Is(err, terminal.ErrProcessSpawn):
		WriteErrorCode(w, http.StatusUnprocessableEntity, CodeProcessSpawn, err.Error())
	case r.Context().Err() != nil:
		// Client went away; nobody reads the response.
		h.logger.Debug("exec canceled", zap.String("command", body.Command))
	default:
		WriteErrorCode(w, http.StatusInternalServerError, CodeInternal, err.Error())
	}
}

func (h *ExecHandler) record(ctx context.Context, body createSessionRequest, exitCode int, elapsed time.Duration) {
	if h.history == nil {
		return
	}
	rec := models.CommandRecord{
		Command:          body.Command,
		WorkingDirectory: body.WorkingDirectory,
		ExitCode:         exitCode,
		DurationMS:       elapsed.Milliseconds(),
	}
	if err := h.history.RecordCommand(context.WithoutCancel(ctx), rec); err != nil {
		h.logger.Warn("record command", zap.Error(err))
	}
}
