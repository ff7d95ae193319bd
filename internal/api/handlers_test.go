// handlers_test.go - Shared fixtures and session handler tests
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sortflow/backend/internal/models"
	"github.com/sortflow/backend/internal/remote"
	"github.com/sortflow/backend/internal/session"
	"github.com/sortflow/backend/internal/testutil"
	"github.com/sortflow/backend/internal/upload"
	"github.com/sortflow/backend/internal/workflow"
)

func testWorkflowConfig() workflow.Config {
	cfg := workflow.DefaultConfig()
	cfg.PollDelay = time.Millisecond
	cfg.PollInterval = time.Millisecond
	cfg.PollMaxInterval = 5 * time.Millisecond
	cfg.PollTimeout = 5 * time.Second
	cfg.PollMaxAttempts = 3
	cfg.HideDelay = 20 * time.Millisecond
	return cfg
}

func newTestManager(t *testing.T, store *testutil.MockObjectStore, inv *testutil.MockInvoker) *session.Manager {
	t.Helper()
	cfg := testWorkflowConfig()
	mgr := session.NewManager(func() (*workflow.Controller, error) {
		return workflow.NewController(cfg, store, inv)
	}, 10)
	t.Cleanup(mgr.CloseAll)
	return mgr
}

// sortingInvoker writes sorted where the function would put the result for name.
func sortingInvoker(store *testutil.MockObjectStore, name, sorted string) *testutil.MockInvoker {
	inv := testutil.NewMockInvoker()
	inv.InvokeFunc = func(ctx context.Context, function string, payload []byte) (*remote.Result, error) {
		store.Put(workflow.DefaultOutputBucket, workflow.FunctionOutputKey(name), []byte(sorted))
		return &remote.Result{StatusCode: 200}, nil
	}
	return inv
}

func newSessionContext(e *echo.Echo, method, target, body, id string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id)
	return c, rec
}

func waitForStatus(t *testing.T, ctrl *workflow.Controller, status models.JobStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		job := ctrl.Current()
		return job != nil && job.Status == status
	}, 2*time.Second, 5*time.Millisecond)
}

func assertAPIError(t *testing.T, err error, wantStatus int, wantCode string) {
	t.Helper()
	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.True(t, ok, "expected APIError, got %T", err)
	assert.Equal(t, wantStatus, apiErr.Status)
	assert.Equal(t, wantCode, apiErr.Code)
}

func TestHealthHandler_HandleHealth(t *testing.T) {
	mgr := newTestManager(t, testutil.NewMockObjectStore(), testutil.NewMockInvoker())
	_, err := mgr.Create()
	require.NoError(t, err)

	handler := NewHealthHandler("1.2.3", mgr)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()

	require.NoError(t, handler.HandleHealth(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "1.2.3", resp["version"])
	assert.Equal(t, float64(1), resp["sessions"])
}

func TestSessionHandler_Lifecycle(t *testing.T) {
	mgr := newTestManager(t, testutil.NewMockObjectStore(), testutil.NewMockInvoker())
	handler := NewSessionHandler(mgr, time.Now)
	e := echo.New()

	// Create
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, handler.HandleCreateSession(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var created sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotNil(t, created.Session)
	id := created.Session.ID
	assert.NotEmpty(t, id)
	assert.Equal(t, workflow.LabelUpload, created.View.SubmitLabel)
	assert.False(t, created.View.SubmitEnabled)

	// Get
	c, rec := newSessionContext(e, http.MethodGet, "/api/sessions/"+id, "", id)
	require.NoError(t, handler.HandleGetSession(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var got sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, id, got.Session.ID)

	// Delete
	c, rec = newSessionContext(e, http.MethodDelete, "/api/sessions/"+id, "", id)
	require.NoError(t, handler.HandleDeleteSession(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, mgr.Count())

	// Gone
	c, _ = newSessionContext(e, http.MethodGet, "/api/sessions/"+id, "", id)
	assertAPIError(t, handler.HandleGetSession(c), http.StatusNotFound, "NOT_FOUND")

	c, _ = newSessionContext(e, http.MethodDelete, "/api/sessions/"+id, "", id)
	assertAPIError(t, handler.HandleDeleteSession(c), http.StatusNotFound, "NOT_FOUND")
}

func TestSessionHandler_TooManySessions(t *testing.T) {
	store := testutil.NewMockObjectStore()
	release := make(chan struct{})
	store.StoreFunc = func(ctx context.Context, bucket, key string, body []byte, contentType string, progress upload.ProgressFunc) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	defer close(release)

	cfg := testWorkflowConfig()
	mgr := session.NewManager(func() (*workflow.Controller, error) {
		return workflow.NewController(cfg, store, testutil.NewMockInvoker())
	}, 1)
	t.Cleanup(mgr.CloseAll)

	sess, err := mgr.Create()
	require.NoError(t, err)
	ctrl, _ := mgr.Controller(sess.ID)
	_, err = ctrl.Submit(&models.SelectedFile{Name: "a.txt", Content: []byte("b\na")})
	require.NoError(t, err)

	handler := NewSessionHandler(mgr, time.Now)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
	err = handler.HandleCreateSession(e.NewContext(req, httptest.NewRecorder()))
	assertAPIError(t, err, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE")
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"api error", NewConflictError("busy"), http.StatusConflict, "CONFLICT"},
		{"echo error", echo.NewHTTPError(http.StatusMethodNotAllowed, "nope"), http.StatusMethodNotAllowed, "HTTP_ERROR"},
		{"plain error", assert.AnError, http.StatusInternalServerError, "UNKNOWN_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			ErrorHandler(tt.err, e.NewContext(req, rec))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body APIError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Code)
		})
	}
}
