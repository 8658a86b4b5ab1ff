package group_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humangate/humangate/internal/group"
	"github.com/humangate/humangate/internal/group/repositoryimpl"
	"github.com/humangate/humangate/pkg/cerr"
	"github.com/humangate/humangate/pkg/storage"
)

func newRouter(t *testing.T) chi.Router {
	t.Helper()
	store, err := storage.NewDirStore(t.TempDir())
	require.NoError(t, err)
	srv := group.NewServer(repositoryimpl.NewYAMLRepository(store))

	r := chi.NewRouter()
	r.Use(cerr.NewJSONResponseChiMiddleware())
	srv.RegisterRoutes(r)
	return r
}

func do(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreateGroupEndpoint(t *testing.T) {
	r := newRouter(t)

	rec := do(t, r, http.MethodPost, "/groups", map[string]any{
		"name":     "Support",
		"strategy": "load_balanced",
		"members":  []string{"alice", "bob"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var g group.Group
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &g))
	assert.Equal(t, "Support", g.Name)
	assert.Equal(t, group.StrategyLoadBalanced, g.Strategy)
	assert.True(t, g.Assignable, "groups default to assignable")
	assert.Equal(t, 2, g.MemberCount)
}

func TestCreateGroupRejectsUnknownStrategy(t *testing.T) {
	r := newRouter(t)
	rec := do(t, r, http.MethodPost, "/groups", map[string]any{
		"name":     "Support",
		"strategy": "random",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMemberLifecycle(t *testing.T) {
	r := newRouter(t)

	rec := do(t, r, http.MethodPost, "/groups", map[string]any{"name": "Ops"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var g group.Group
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &g))

	rec = do(t, r, http.MethodPost, "/groups/"+g.ID+"/members", map[string]string{"personId": "alice"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, r, http.MethodDelete, "/groups/"+g.ID+"/members/alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated group.Group
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Empty(t, updated.EligibleMembers(), "removed members are no longer eligible")

	rec = do(t, r, http.MethodDelete, "/groups/"+g.ID+"/members/alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateGroupAssignableFlag(t *testing.T) {
	r := newRouter(t)

	rec := do(t, r, http.MethodPost, "/groups", map[string]any{"name": "Legacy"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var g group.Group
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &g))

	f := false
	rec = do(t, r, http.MethodPut, "/groups/"+g.ID, map[string]any{"assignable": &f})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated group.Group
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.False(t, updated.Assignable)
}
