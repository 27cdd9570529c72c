package api

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/peterje/pocketdev/internal/models"
	"github.com/peterje/pocketdev/internal/store"
	"go.uber.org/zap"
)

// ProjectsHandler serves the project list and the session and command
// history.
type ProjectsHandler struct {
	store  *store.Store
	logger *zap.Logger
}

func NewProjectsHandler(s *store.Store, logger *zap.Logger) *ProjectsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectsHandler{store: s, logger: logger}
}

func (h *ProjectsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	projects, err := h.store.ListProjects(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, projects)
}

func (h *ProjectsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var body models.Project
	if err := decodeJSON(w, r, &body); err != nil {
		WriteErrorCode(w, http.StatusBadRequest, CodeInvalidRequest, "invalid JSON")
		return
	}
	if body.Path == "" {
		WriteErrorCode(w, http.StatusBadRequest, CodeInvalidRequest, "path is required")
		return
	}
	if !filepath.IsAbs(body.Path) {
		WriteErrorCode(w, http.StatusBadRequest, CodeInvalidRequest, "path must be absolute")
		return
	}
	body.Path = filepath.Clean(body.Path)
	if body.Name == "" {
		body.Name = filepath.Base(body.Path)
	}

	project, err := h.store.CreateProject(r.Context(), body)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	h.logger.Info("project created", zap.Int64("project_id", project.ID), zap.String("path", project.Path))
	WriteJSON(w, http.StatusCreated, project)
}

func (h *ProjectsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	project, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, project)
}

func (h *ProjectsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body store.ProjectUpdate
	if err := decodeJSON(w, r, &body); err != nil {
		WriteErrorCode(w, http.StatusBadRequest, CodeInvalidRequest, "invalid JSON")
		return
	}
	project, err := h.store.UpdateProject(r.Context(), id, body)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, project)
}

func (h *ProjectsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteProject(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProjectsHandler) HandleSessionHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListSessions(r.Context(), queryLimit(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, records)
}

func (h *ProjectsHandler) HandleCommandHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListCommands(r.Context(), queryLimit(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, records)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		WriteErrorCode(w, http.StatusBadRequest, CodeInvalidRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func queryLimit(r *http.Request) int {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return limit
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteErrorCode(w, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, store.ErrConflict):
		WriteErrorCode(w, http.StatusConflict, CodeConflict, err.Error())
	default:
		WriteErrorCode(w, http.StatusInternalServerError, CodeInternal, err.Error())
	}
}
