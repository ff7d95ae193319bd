package storage

import (
	"errors"
	"fmt"
)

// Error is a failed store operation with the object it concerned.
type Error struct {
	Op     string
	Bucket string
	Key    string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage.%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	if e.Bucket != "" {
		return fmt.Sprintf("storage.%s bucket %s: %v", e.Op, e.Bucket, e.Err)
	}
	return fmt.Sprintf("storage.%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewObjectError creates an Error for bucket/key.
func NewObjectError(op, bucket, key string, err error) *Error {
	return &Error{Op: op, Bucket: bucket, Key: key, Err: err}
}

var (
	// ErrNotFound indicates the object does not exist (yet).
	ErrNotFound = errors.New("object not found")

	// ErrBucketNotFound indicates the bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrAccessDenied indicates the credentials may not touch the object.
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidInput indicates an unusable bucket name, key or ttl.
	ErrInvalidInput = errors.New("invalid input")

	// ErrExpired indicates a signed link is past its expiry.
	ErrExpired = errors.New("link expired")

	// ErrInvalidToken indicates a signed link failed verification.
	ErrInvalidToken = errors.New("invalid link token")
)

// IsNotFound reports whether err means the object is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
