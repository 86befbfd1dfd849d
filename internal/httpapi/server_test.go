package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tandemloop/tandem/internal/config"
	coordimpl "github.com/tandemloop/tandem/internal/coord/repositoryimpl"
	reviewimpl "github.com/tandemloop/tandem/internal/review/repositoryimpl"
	skillimpl "github.com/tandemloop/tandem/internal/skill/repositoryimpl"
	"github.com/tandemloop/tandem/internal/supervisor"
	"github.com/tandemloop/tandem/internal/task"
	taskimpl "github.com/tandemloop/tandem/internal/task/repositoryimpl"
	"github.com/tandemloop/tandem/pkg/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Env{}
	cfg.WorkDir = t.TempDir()
	cfg.StopGracePeriod = time.Second

	tasks := taskimpl.NewYAMLRepository(store)
	crd := coordimpl.NewYAMLRepository(store)
	skills := skillimpl.NewYAMLRepository(store)
	reviews := reviewimpl.NewYAMLRepository(store)
	sup := supervisor.New(cfg, store, tasks, crd, skills, reviews)
	return NewServer(cfg, sup, tasks, skills, reviews)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndGetTask(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/tasks", `{"id":"1","title":"add parser"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/tasks/1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got task.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "add parser", got.Title)
	assert.Equal(t, task.StatusPending, got.Status)
}

func TestCreateTaskValidation(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/tasks", `{"title":"missing id"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/tasks", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateDuplicateTaskConflicts(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/tasks", `{"id":"1","title":"a"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/tasks", `{"id":"1","title":"a"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetMissingTaskIs404(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv.Handler(), http.MethodGet, "/api/tasks/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code"`)
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv.Handler(), http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var rp supervisor.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rp))
	require.Len(t, rp.Roles, 2)
	assert.Zero(t, rp.Iteration)
}

func TestReportMissingIs404(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv.Handler(), http.MethodGet, "/api/report", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownAPIRouteIsJSON404(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv.Handler(), http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestUpdateTask(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/tasks", `{"id":"1","title":"add parser"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/tasks/1", `{"title":"add parser","status":"blocked"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/tasks/1", "")
	var got task.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, task.StatusBlocked, got.Status)

	rec = do(t, h, http.MethodPut, "/api/tasks/1", `{"title":"x","status":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
