// handlers_stream.go - Server-sent view updates
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sortflow/backend/internal/models"
	"github.com/sortflow/backend/internal/workflow"
)

// streamTimeout bounds how long one client may hold a stream open
const streamTimeout = 5 * time.Minute

// settled reports whether a view no longer changes without user action.
func settled(v models.View) bool {
	if v.Job == nil {
		return false
	}
	switch v.Job.Status {
	case models.JobStatusFailed:
		return true
	case models.JobStatusDone:
		return !v.ProgressVisible
	}
	return false
}

// watchViews sends the current view, then each changed view, until the
// view settles, ctx ends or the stream times out.
func watchViews(ctx context.Context, ctrl *workflow.Controller, interval time.Duration, now func() time.Time, send func(models.View) error) error {
	view := ctrl.View(now())
	if err := send(view); err != nil {
		return err
	}
	if settled(view) {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	timeout := time.NewTimer(streamTimeout)
	defer timeout.Stop()

	last := view
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return errStreamTimeout
		case <-ticker.C:
			view := ctrl.View(now())
			if view.Revision == last.Revision && view.ProgressVisible == last.ProgressVisible {
				continue
			}
			if err := send(view); err != nil {
				return err
			}
			if settled(view) {
				return nil
			}
			last = view
		}
	}
}

var errStreamTimeout = errors.New("stream timeout")

// HandleViewStream streams view snapshots via SSE until the job settles
func (h *WorkflowHandlerImpl) HandleViewStream(c echo.Context) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}

	// Set SSE headers
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	err = watchViews(c.Request().Context(), ctrl, h.streamInterval, h.now, func(v models.View) error {
		return h.sendSSEData(c, v)
	})
	if err == errStreamTimeout {
		_ = h.sendSSEData(c, map[string]string{"error": err.Error()})
	}
	return nil
}

func (h *WorkflowHandlerImpl) sendSSEData(c echo.Context, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Response(), "data: %s\n\n", jsonData); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}
