// handlers_workflow.go - Upload workflow handlers
package api

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/sortflow/backend/internal/models"
	"github.com/sortflow/backend/internal/workflow"
)

// WorkflowHandlerImpl implements the WorkflowHandler interface
type WorkflowHandlerImpl struct {
	sessions       SessionManager
	now            func() time.Time
	streamInterval time.Duration
}

// NewWorkflowHandler creates a new workflow handler. Streams check for
// changes every streamInterval.
func NewWorkflowHandler(sessions SessionManager, now func() time.Time, streamInterval time.Duration) WorkflowHandler {
	if streamInterval <= 0 {
		streamInterval = 100 * time.Millisecond
	}
	return &WorkflowHandlerImpl{
		sessions:       sessions,
		now:            now,
		streamInterval: streamInterval,
	}
}

// selectFileRequest describes the picker state; an empty name means cleared
type selectFileRequest struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// tableResponse is the rows displayed in one region
type tableResponse struct {
	Region string           `json:"region" msgpack:"region"`
	Rows   models.TableData `json:"rows" msgpack:"rows"`
}

// controller resolves the session in the path and marks it used
func (h *WorkflowHandlerImpl) controller(c echo.Context) (*workflow.Controller, error) {
	id := c.Param("id")
	ctrl, ok := h.sessions.Controller(id)
	if !ok {
		return nil, NewNotFoundError("session", id)
	}
	h.sessions.Touch(id)
	return ctrl, nil
}

// HandleSelectFile records a file choice and returns the new view
func (h *WorkflowHandlerImpl) HandleSelectFile(c echo.Context) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}

	var req selectFileRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	var file *models.SelectedFile
	if req.Name != "" {
		file = &models.SelectedFile{Name: filepath.Base(req.Name), Size: req.Size}
	}
	ctrl.OnFileSelected(file)

	return c.JSON(http.StatusOK, ctrl.View(h.now()))
}

// HandleSubmit accepts the file as multipart form field "file" and starts a job
func (h *WorkflowHandlerImpl) HandleSubmit(c echo.Context) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}

	file, err := readFormFile(c)
	if err != nil {
		return err
	}

	job, err := ctrl.Submit(file)
	if err != nil {
		return workflowError(err)
	}

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"job":  job,
		"view": ctrl.View(h.now()),
	})
}

// readFormFile returns nil when no file was sent so the controller can
// report the missing selection.
func readFormFile(c echo.Context) (*models.SelectedFile, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, NewBadRequestError("invalid multipart form", err)
	}

	src, err := fh.Open()
	if err != nil {
		return nil, NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		return nil, NewInternalError("failed to read uploaded file", err)
	}

	return &models.SelectedFile{
		Name:        filepath.Base(fh.Filename),
		Size:        int64(len(content)),
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Content:     content,
	}, nil
}

// HandleCheckResult reads the sorted object once and returns the view
func (h *WorkflowHandlerImpl) HandleCheckResult(c echo.Context) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}

	if err := ctrl.CheckResult(c.Request().Context()); err != nil {
		return workflowError(err)
	}
	return c.JSON(http.StatusOK, ctrl.View(h.now()))
}

// HandleDownload redirects to a short-lived link to the sorted object.
// With ?format=json the link is returned instead.
func (h *WorkflowHandlerImpl) HandleDownload(c echo.Context) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}

	link, err := ctrl.Download(c.Request().Context())
	if err != nil {
		return workflowError(err)
	}

	c.Response().Header().Set("Cache-Control", "no-store")
	if c.QueryParam("format") == "json" {
		return c.JSON(http.StatusOK, link)
	}
	return c.Redirect(http.StatusFound, link.URL)
}

// tableRows returns the rows of the region in the path
func (h *WorkflowHandlerImpl) tableRows(c echo.Context) (*tableResponse, error) {
	ctrl, err := h.controller(c)
	if err != nil {
		return nil, err
	}

	region := c.Param("region")
	if region != models.RegionUnsorted && region != models.RegionSorted {
		return nil, NewNotFoundError("table", region)
	}

	rows, ok := ctrl.Tables().Rows(region)
	if !ok {
		rows = models.TableData{}
	}
	return &tableResponse{Region: region, Rows: rows}, nil
}

// HandleGetTable returns the rows of one display region
func (h *WorkflowHandlerImpl) HandleGetTable(c echo.Context) error {
	resp, err := h.tableRows(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleGetTableMsgpack returns the rows of one display region in msgpack format
func (h *WorkflowHandlerImpl) HandleGetTableMsgpack(c echo.Context) error {
	resp, err := h.tableRows(c)
	if err != nil {
		return err
	}

	data, err := msgpack.Marshal(resp)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}
