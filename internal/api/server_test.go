package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascade-labs/cascade/internal/adapters/state"
	"github.com/cascade-labs/cascade/internal/core"
)

func newTestServer(t *testing.T) (*Server, core.ExecutionStore) {
	t.Helper()
	store, err := state.NewJSONStore(t.TempDir())
	require.NoError(t, err)
	return NewServer(store), store
}

func seedRequest(t *testing.T, store core.ExecutionStore, id string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.InitRequest(ctx, id, "ship the feature"))
	ref := core.UnitRef{RequestID: id}.Child("task_1")
	require.NoError(t, store.PutUnit(ctx, ref, "Build", "build it", core.StatusCompleted))
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListRequests(t *testing.T) {
	s, store := newTestServer(t)
	seedRequest(t, store, "1")
	seedRequest(t, store, "2")

	rec := get(t, s, "/api/v1/requests/")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []requestSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Tasks)
	assert.Equal(t, "ship the feature", got[0].Content)
}

func TestGetRequest(t *testing.T) {
	s, store := newTestServer(t)
	seedRequest(t, store, "1")

	rec := get(t, s, "/api/v1/requests/1")
	require.Equal(t, http.StatusOK, rec.Code)

	var node core.RequestNode
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &node))
	require.Len(t, node.Tasks, 1)
	assert.Equal(t, "task_1", node.Tasks[0].ID)
	assert.Equal(t, core.StatusCompleted, node.Tasks[0].Status)
}

func TestGetRequestNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/api/v1/requests/missing")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, core.CodeNotFound, body.Code)
}

func TestListErrors(t *testing.T) {
	s, store := newTestServer(t)
	seedRequest(t, store, "1")
	unit := &core.WorkItem{ID: "step_1", Title: "Edit", Level: core.LevelStep}
	_, err := store.AppendError(context.Background(), unit, "disk full")
	require.NoError(t, err)

	rec := get(t, s, "/api/v1/errors")
	require.Equal(t, http.StatusOK, rec.Code)

	var recs []core.ErrorRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "disk full", recs[0].Error)
	assert.Equal(t, "error_1", recs[0].ErrorID)
}

func TestListErrorsEmptyIsArray(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/api/v1/errors")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}
