// handlers_session.go - Browser session handlers
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sortflow/backend/internal/models"
	"github.com/sortflow/backend/internal/session"
)

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	sessions SessionManager
	now      func() time.Time
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions SessionManager, now func() time.Time) SessionHandler {
	return &SessionHandlerImpl{sessions: sessions, now: now}
}

// sessionResponse is a session with its current view
type sessionResponse struct {
	Session *models.Session `json:"session"`
	View    models.View     `json:"view"`
}

// HandleCreateSession starts a session with an idle controller
func (h *SessionHandlerImpl) HandleCreateSession(c echo.Context) error {
	sess, err := h.sessions.Create()
	if err != nil {
		if errors.Is(err, session.ErrTooManySessions) {
			return NewServiceUnavailableError("too many active sessions, try again later")
		}
		return NewInternalError("failed to create session", err)
	}

	ctrl, ok := h.sessions.Controller(sess.ID)
	if !ok {
		return NewNotFoundError("session", sess.ID)
	}
	return c.JSON(http.StatusCreated, sessionResponse{Session: sess, View: ctrl.View(h.now())})
}

// HandleGetSession returns the session and what its page should show
func (h *SessionHandlerImpl) HandleGetSession(c echo.Context) error {
	id := c.Param("id")
	h.sessions.Touch(id)
	state, ok := h.sessions.Get(id)
	if !ok {
		return NewNotFoundError("session", id)
	}

	return c.JSON(http.StatusOK, sessionResponse{Session: state.Session, View: state.Controller.View(h.now())})
}

// HandleDeleteSession drops the session and cancels its job
func (h *SessionHandlerImpl) HandleDeleteSession(c echo.Context) error {
	id := c.Param("id")
	if !h.sessions.Delete(id) {
		return NewNotFoundError("session", id)
	}
	return c.NoContent(http.StatusNoContent)
}
