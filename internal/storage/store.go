// Package storage provides the object store the workflow uploads to and
// reads results from: Amazon S3 in production and a filesystem-backed store
// for local runs and tests.
package storage

import (
	"context"
	"mime"
	"time"

	"github.com/sortflow/backend/internal/upload"
)

// ObjectStore is a key-addressed blob store grouped into buckets.
type ObjectStore interface {
	// Store writes body under bucket/key, reporting progress as bytes are sent.
	Store(ctx context.Context, bucket, key string, body []byte, contentType string, progress upload.ProgressFunc) error

	// Retrieve reads a whole object. A missing object yields ErrNotFound.
	Retrieve(ctx context.Context, bucket, key string) ([]byte, error)

	// Sign returns a URL granting read access to one object for ttl.
	Sign(ctx context.Context, bucket, key string, ttl time.Duration, opts ...SignOption) (string, error)
}

// SignOptions holds the settings applied by SignOption values.
type SignOptions struct {
	// DownloadName is the file name the browser saves the object as.
	// Empty means the last element of the key.
	DownloadName string
}

// SignOption configures a signed link.
type SignOption func(*SignOptions)

// WithDownloadName makes the link serve the object as an attachment named name.
func WithDownloadName(name string) SignOption {
	return func(o *SignOptions) {
		o.DownloadName = name
	}
}

// NewSignOptions applies opts to zero options.
func NewSignOptions(opts ...SignOption) SignOptions {
	var o SignOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// attachment formats a Content-Disposition value for name.
func attachment(name string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": name})
}
