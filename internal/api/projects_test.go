package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"testing"

	"github.com/peterje/pocketdev/internal/db"
	"github.com/peterje/pocketdev/internal/models"
	"github.com/peterje/pocketdev/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	database, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.Migrate(database))
	return store.New(database, nil)
}

func TestProjectsHandler(t *testing.T) {
	h := NewProjectsHandler(newTestStore(t), nil)

	rec := do(t, h.HandleCreate, http.MethodPost, "/api/projects", `{"path":"relative/dir"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.HandleCreate, http.MethodPost, "/api/projects", `{"path":"/src/app/"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var project models.Project
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &project))
	assert.Equal(t, "app", project.Name)
	assert.Equal(t, "/src/app", project.Path)
	id := strconv.FormatInt(project.ID, 10)

	rec = do(t, h.HandleCreate, http.MethodPost, "/api/projects", `{"path":"/src/app"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h.HandleUpdate, http.MethodPatch, "/", `{"run_script":"make run"}`, "id", id)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &project))
	assert.Equal(t, "make run", project.RunScript)

	rec = do(t, h.HandleList, http.MethodGet, "/api/projects", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.Project
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = do(t, h.HandleGet, http.MethodGet, "/", "", "id", "abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.HandleDelete, http.MethodDelete, "/", "", "id", id)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h.HandleGet, http.MethodGet, "/", "", "id", id)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryHandlers(t *testing.T) {
	s := newTestStore(t)
	h := NewProjectsHandler(s, nil)

	require.NoError(t, s.RecordCommand(t.Context(), models.CommandRecord{Command: "ls"}))

	rec := do(t, h.HandleCommandHistory, http.MethodGet, "/api/history/commands?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"command":"ls"`)

	rec = do(t, h.HandleSessionHistory, http.MethodGet, "/api/history/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
