package api

import (
	"errors"
	"net/http"

	"github.com/peterje/pocketdev/internal/git"
	"go.uber.org/zap"
)

// GitHandler exposes git.Service under /api/git. Every request names the
// working copy by its path.
type GitHandler struct {
	svc    git.Service
	logger *zap.Logger
}

func NewGitHandler(svc git.Service, logger *zap.Logger) *GitHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GitHandler{svc: svc, logger: logger}
}

type gitRequest struct {
	Path         string           `json:"path"`
	URL          string           `json:"url"`
	Files        []string         `json:"files"`
	Message      string           `json:"message"`
	Remote       string           `json:"remote"`
	Branch       string           `json:"branch"`
	WorktreePath string           `json:"worktree_path"`
	Credentials  *git.Credentials `json:"credentials"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Routes registers the git endpoints on mux.
func (h *GitHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/git/init", h.HandleInit)
	mux.HandleFunc("POST /api/git/clone", h.HandleClone)
	mux.HandleFunc("GET /api/git/status", h.HandleStatus)
	mux.HandleFunc("POST /api/git/add", h.HandleAdd)
	mux.HandleFunc("POST /api/git/commit", h.HandleCommit)
	mux.HandleFunc("POST /api/git/push", h.HandlePush)
	mux.HandleFunc("POST /api/git/pull", h.HandlePull)
	mux.HandleFunc("POST /api/git/fetch", h.HandleFetch)
	mux.HandleFunc("GET /api/git/branches", h.HandleListBranches)
	mux.HandleFunc("POST /api/git/branches", h.HandleCreateBranch)
	mux.HandleFunc("DELETE /api/git/branches/{name...}", h.HandleDeleteBranch)
	mux.HandleFunc("GET /api/git/branch", h.HandleCurrentBranch)
	mux.HandleFunc("POST /api/git/checkout", h.HandleCheckout)
	mux.HandleFunc("POST /api/git/worktrees", h.HandleCreateWorktree)
	mux.HandleFunc("DELETE /api/git/worktrees", h.HandleRemoveWorktree)
	mux.HandleFunc("GET /api/git/info", h.HandleInfo)
	mux.HandleFunc("GET /api/git/diff", h.HandleDiff)
}

// body decodes a request and checks the path is set. It writes the error
// response itself and reports whether the handler should continue.
func (h *GitHandler) body(w http.ResponseWriter, r *http.Request) (gitRequest, bool) {
	var req gitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteErrorCode(w, http.StatusBadRequest, CodeInvalidRequest, "invalid JSON")
		return req, false
	}
	if req.Path == "" {
		WriteErrorCode(w, http.StatusBadRequest, CodeInvalidRequest, "path is required")
		return req, false
	}
	return req, true
}

func queryPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	path := r.URL.Query().Get("path")
	if path == "" {
		WriteErrorCode(w, http.StatusBadRequest, CodeInvalidRequest, "path is required")
		return "", false
	}
	return path, true
}

func (h *GitHandler) respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		writeGitError(w, err)
		return
	}
	if msg, ok := v.(string); ok {
		WriteJSON(w, http.StatusOK, messageResponse{Message: msg})
		return
	}
	WriteJSON(w, http.StatusOK, v)
}

func (h *GitHandler) HandleInit(w http.ResponseWriter, r *http.Request) {
	req, ok := h.body(w, r)
	if !ok {
		return
	}
	msg, err := h.svc.Init(r.Context(), req.Path)
	h.respond(w, msg, err)
}

func (h *GitHandler) HandleClone(w http.ResponseWriter, r *http.Request) {
	req, ok := h.body(w, r)
	if !ok {
		return
	}
	if req.URL == "" {
		WriteErrorCode(w, http.StatusBadRequest, CodeInvalidRequest, "url is required")
		return
	}
	msg, err := h.svc.Clone(r.Context(), req.URL, req.Path, req.Credentials)
	h.respond(w, msg, err)
}

func (h *GitHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	path, ok := queryPath(w, r)
	if !ok {
		return
	}
	status, err := h.svc.Status(r.Context(), path)
	h.respond(w, status, err)
}

func (h *GitHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	req, ok := h.body(w, r)
	if !ok {
		return
	}
	msg, err := h.svc.Add(r.Context(), req.Path, req.Files)
	h.respond(w, msg, err)
}

func (h *GitHandler) HandleCommit(w http.ResponseWriter, r *http.Request) {
	req, ok := h.body(w, r)
	if !ok {
		return
	}
	if req.Message == "" {
		WriteErrorCode(w, http.StatusBadRequest, CodeInvalidRequest, "message is required")
		return
	}
	hash, err := h.svc.Commit(r.Context(), req.Path, req.Message)
	if err != nil {
		writeGitError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"commit": hash})
}

func (h *GitHandler) HandlePush(w http.ResponseWriter, r *http.Request) {
	req, ok := h.body(w, r)
	if !ok {
		return
	}
	msg, err := h.svc.Push(r.Context(), req.Path, req.Remote, req.Branch, req.Credentials)
	h.respond(w, msg, err)
}

func (h *GitHandler) HandlePull(w http.ResponseWriter, r *http.Request) {
	req, ok := h.body(w, r)
	if !ok {
		return
	}
	msg, err := h.svc.Pull(r.Context(), req.Path, req.Remote, req.Branch, req.Credentials)
	h.respond(w, msg, err)
}

func (h *GitHandler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	req, ok := h.body(w, r)
	if !ok {
		return
	}
	msg, err := h.svc.Fetch(r.Context(), req.Path)
	h.respond(w, msg, err)
}

func (h *GitHandler) HandleListBranches(w http.ResponseWriter, r *http.Request) {
	path, ok := queryPath(w, r)
	if !ok {
		return
	}
	branches, err := h.svc.ListBranches(r.Context(), path)
	if branches == nil {
		branches = []git.Branch{}
	}
	h.respond(w, branches, err)
}

func (h *GitHandler) HandleCurrentBranch(w http.ResponseWriter, r *http.Request) {
	path, ok := queryPath(w, r)
	if !ok {
		return
	}
	branch, err := h.svc.CurrentBranch(r.Context(), path)
	if err != nil {
		writeGitError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"branch": branch})
}

func (h *GitHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	req, ok := h.body(w, r)
	if !ok {
		return
	}
	if req.Branch == "" {
		WriteErrorCode(w, http.StatusBadRequest, CodeInvalidRequest, "branch is required")
		return
	}
	msg, err := h.svc.Checkout(r.Context(), req.Path, req.Branch)
	h.respond(w, msg, err)
}

func (h *GitHandler) HandleCreateBranch(w http.ResponseWriter, r *http.Request) {
	req, ok := h.body(w, r)
	if !ok {
		return
	}
	if req.Branch == "" {
		WriteErrorCode(w, http.StatusBadRequest, CodeInvalidRequest, "branch is required")
		return
	}
	msg, err := h.svc.CreateBranch(r.Context(), req.Path, req.Branch)
	if err != nil {
		writeGitError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, messageResponse{Message: msg})
}

func (h *GitHandler) HandleDeleteBranch(w http.ResponseWriter, r *http.Request) {
	path, ok := queryPath(w, r)
	if !ok {
		return
	}
	msg, err := h.svc.DeleteBranch(r.Context(), path, r.PathValue("name"))
	h.respond(w, msg, err)
}

func (h *GitHandler) HandleCreateWorktree(w http.ResponseWriter, r *http.Request) {
	req, ok := h.body(w, r)
	if !ok {
		return
	}
	if req.WorktreePath == "" || req.Branch == "" {
		WriteErrorCode(w, http.StatusBadRequest, CodeInvalidRequest, "worktree_path and branch are required")
		return
	}
	msg, err := h.svc.CreateWorktree(r.Context(), req.Path, req.WorktreePath, req.Branch)
	if err != nil {
		writeGitError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, messageResponse{Message: msg})
}

func (h *GitHandler) HandleRemoveWorktree(w http.ResponseWriter, r *http.Request) {
	path, ok := queryPath(w, r)
	if !ok {
		return
	}
	worktree := r.URL.Query().Get("worktree_path")
	if worktree == "" {
		WriteErrorCode(w, http.StatusBadRequest, CodeInvalidRequest, "worktree_path is required")
		return
	}
	msg, err := h.svc.RemoveWorktree(r.Context(), path, worktree)
	h.respond(w, msg, err)
}

func (h *GitHandler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	path, ok := queryPath(w, r)
	if !ok {
		return
	}
	info, err := h.svc.RepositoryInfo(r.Context(), path)
	h.respond(w, info, err)
}

func (h *GitHandler) HandleDiff(w http.ResponseWriter, r *http.Request) {
	path, ok := queryPath(w, r)
	if !ok {
		return
	}
	diff, err := h.svc.Diff(r.Context(), path, r.URL.Query().Get("file"))
	if err != nil {
		writeGitError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"diff": diff})
}

// writeGitError maps a *git.Error to a response carrying its code.
// Conflicts with existing state are 409, everything else 422.
func writeGitError(w http.ResponseWriter, err error) {
	var gitErr *git.Error
	if !errors.As(err, &gitErr) {
		WriteErrorCode(w, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	status := http.StatusUnprocessableEntity
	switch gitErr.Code {
	case git.CodeAlreadyInitialized, git.CodeDirectoryNotEmpty:
		status = http.StatusConflict
	}
	WriteErrorCode(w, status, string(gitErr.Code), gitErr.Error())
}
