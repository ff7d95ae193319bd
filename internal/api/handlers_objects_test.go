// handlers_objects_test.go - Tests for signed object downloads
package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sortflow/backend/internal/models"
	"github.com/sortflow/backend/internal/remote"
	"github.com/sortflow/backend/internal/session"
	"github.com/sortflow/backend/internal/storage"
	"github.com/sortflow/backend/internal/workflow"
)

const testSecret = "test-secret"

func createObjectStore(t *testing.T) *storage.LocalStore {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir(), "http://localhost:8089", storage.NewLinkSigner(testSecret))
	require.NoError(t, err)
	return store
}

func expiredToken(t *testing.T, bucket, key string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"bkt": bucket,
		"key": key,
		"exp": time.Now().Add(-time.Minute).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestObjectHandler_HandleGetObject(t *testing.T) {
	const (
		bucket = "sort-out-bucket"
		key    = "sorted-unsorted/sorted-data.csv.srt"
	)

	store := createObjectStore(t)
	require.NoError(t, store.Store(context.Background(), bucket, key, []byte("1,2\n3,4"), "text/csv", nil))

	link, err := store.Sign(context.Background(), bucket, key, time.Minute)
	require.NoError(t, err)
	u, err := url.Parse(link)
	require.NoError(t, err)
	validToken := u.Query().Get("token")

	tests := []struct {
		name       string
		key        string
		token      string
		wantStatus int
		wantCode   string
	}{
		{"valid link", key, validToken, http.StatusOK, ""},
		{"missing token", key, "", http.StatusForbidden, "FORBIDDEN"},
		{"token for another object", "sorted-unsorted/other.srt", validToken, http.StatusForbidden, "FORBIDDEN"},
		{"expired token", key, expiredToken(t, bucket, key), http.StatusForbidden, "FORBIDDEN"},
		{"garbage token", key, "abc", http.StatusForbidden, "FORBIDDEN"},
	}

	handler := NewObjectHandler(store)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			target := "/api/objects/" + bucket + "/" + tt.key + "?token=" + url.QueryEscape(tt.token)
			req := httptest.NewRequest(http.MethodGet, target, nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.SetParamNames("bucket", "*")
			c.SetParamValues(bucket, tt.key)

			err := handler.HandleGetObject(c)
			if tt.wantCode != "" {
				assertAPIError(t, err, tt.wantStatus, tt.wantCode)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "1,2\n3,4", rec.Body.String())
			assert.Equal(t, "text/csv", rec.Header().Get(echo.HeaderContentType))
			assert.Equal(t, `attachment; filename=sorted-data.csv.srt`, rec.Header().Get("Content-Disposition"))
		})
	}
}

func TestObjectHandler_NotFound(t *testing.T) {
	store := createObjectStore(t)
	link, err := store.Sign(context.Background(), "out", "missing.srt", time.Minute)
	require.NoError(t, err)
	u, err := url.Parse(link)
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, u.RequestURI(), nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("bucket", "*")
	c.SetParamValues("out", "missing.srt")

	assertAPIError(t, NewObjectHandler(store).HandleGetObject(c), http.StatusNotFound, "NOT_FOUND")
}

func TestRoutes_ObjectDownloadThroughRouter(t *testing.T) {
	store := createObjectStore(t)
	key := "sorted-unsorted/sorted-a b.srt"
	require.NoError(t, store.Store(context.Background(), "out", key, []byte("x"), "", nil))
	link, err := store.Sign(context.Background(), "out", key, time.Minute)
	require.NoError(t, err)
	u, err := url.Parse(link)
	require.NoError(t, err)

	mgr := newTestManager(t, nil, nil)
	e := echo.New()
	SetupMiddleware(e)
	RegisterRoutes(e, NewHandlers(&Dependencies{Sessions: mgr, Objects: store, Version: "test"}))

	req := httptest.NewRequest(http.MethodGet, u.RequestURI(), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "x", rec.Body.String())

	t.Run("health through router", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unknown session maps to 404 body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/nope", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), `"code":"NOT_FOUND"`)
	})
}

func TestRoutes_DownloadIsNamedAfterUpload(t *testing.T) {
	store := createObjectStore(t)
	cfg := testWorkflowConfig()
	invoker := remote.NewLocalInvoker(store, remote.LocalConfig{
		InputBucket:  cfg.InputBucket,
		OutputBucket: cfg.OutputBucket,
		OutputKey:    workflow.FunctionOutputKey,
	})
	mgr := session.NewManager(func() (*workflow.Controller, error) {
		return workflow.NewController(cfg, store, invoker)
	}, 10)
	t.Cleanup(mgr.CloseAll)

	e := echo.New()
	SetupMiddleware(e)
	RegisterRoutes(e, NewHandlers(&Dependencies{Sessions: mgr, Objects: store, Version: "test"}))

	sess, err := mgr.Create()
	require.NoError(t, err)
	ctrl, _ := mgr.Controller(sess.ID)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, multipartRequest(t, "/api/sessions/"+sess.ID+"/submit", "report.txt", "text/plain", "b\na"))
	require.Equal(t, http.StatusAccepted, rec.Code)
	waitForStatus(t, ctrl, models.JobStatusDone)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/"+sess.ID+"/download", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	location, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	require.NoError(t, err)
	assert.Equal(t, "/api/objects/sort-out-bucket/sorted-unsorted/sorted-report.srt", location.Path)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, location.RequestURI(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "attachment; filename=sorted-report.txt", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "a\nb", rec.Body.String())
}
