// handlers_objects.go - Signed object downloads for the local store
package api

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// ObjectHandlerImpl implements the ObjectHandler interface
type ObjectHandlerImpl struct {
	objects ObjectOpener
	logger  *log.Logger
}

// NewObjectHandler creates a handler serving objects from objects
func NewObjectHandler(objects ObjectOpener) ObjectHandler {
	return &ObjectHandlerImpl{objects: objects, logger: log.New("api")}
}

// HandleGetObject streams an object when the token query parameter is a
// valid link for it.
func (h *ObjectHandlerImpl) HandleGetObject(c echo.Context) error {
	bucket := c.Param("bucket")
	key := c.Param("*")
	if c.Request().URL.RawPath != "" {
		unescaped, err := url.PathUnescape(key)
		if err != nil {
			return NewBadRequestError("invalid object key", err)
		}
		key = unescaped
	}

	token := c.QueryParam("token")
	if token == "" {
		return NewForbiddenError("missing download token")
	}

	dl, err := h.objects.Open(bucket, key, token)
	if err != nil {
		return storageError(err, bucket, key)
	}
	defer dl.Body.Close()

	h.logger.Infof("serving object %s/%s as %s", bucket, key, dl.FileName)

	c.Response().Header().Set("Content-Disposition", dl.ContentDisposition())
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.Stream(http.StatusOK, dl.ContentType, dl.Body)
}
