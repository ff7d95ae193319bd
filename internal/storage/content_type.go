package storage

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultContentType is used when nothing better can be detected.
const DefaultContentType = "application/octet-stream"

// DetectContentType picks a content type for an upload, preferring the
// extension for delimited text so a .csv is not reported as plain text.
func DetectContentType(name string, body []byte) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return byExt
		}
	}
	if len(body) > 0 {
		return mimetype.Detect(body).String()
	}
	return DefaultContentType
}
