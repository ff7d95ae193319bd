// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"github.com/labstack/echo/v4"

	"github.com/sortflow/backend/internal/models"
	"github.com/sortflow/backend/internal/session"
	"github.com/sortflow/backend/internal/storage"
	"github.com/sortflow/backend/internal/workflow"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// SessionHandler handles browser session lifecycle
type SessionHandler interface {
	HandleCreateSession(c echo.Context) error
	HandleGetSession(c echo.Context) error
	HandleDeleteSession(c echo.Context) error
}

// WorkflowHandler handles the upload workflow of one session
type WorkflowHandler interface {
	HandleSelectFile(c echo.Context) error
	HandleSubmit(c echo.Context) error
	HandleCheckResult(c echo.Context) error
	HandleDownload(c echo.Context) error
	HandleGetTable(c echo.Context) error
	HandleGetTableMsgpack(c echo.Context) error
	HandleViewStream(c echo.Context) error
}

// ObjectHandler serves objects behind signed links
type ObjectHandler interface {
	HandleGetObject(c echo.Context) error
}

// SessionManager defines the interface for session management
// This allows mocking in tests
type SessionManager interface {
	Create() (*models.Session, error)
	Get(id string) (*session.SessionState, bool)
	Controller(id string) (*workflow.Controller, bool)
	Touch(id string) bool
	Delete(id string) bool
	Count() int
}

// ObjectOpener opens an object after checking its link token
type ObjectOpener interface {
	Open(bucket, key, token string) (*storage.Download, error)
}

var _ SessionManager = (*session.Manager)(nil)
