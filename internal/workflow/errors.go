package workflow

import (
	"errors"
	"fmt"
)

// Kind classifies a workflow failure.
type Kind string

const (
	KindValidation Kind = "validation"
	KindTransfer   Kind = "transfer"
	KindRetrieval  Kind = "retrieval"
	KindTimeout    Kind = "timeout"
	KindCanceled   Kind = "canceled"
)

// Status texts shown to the user.
const (
	MsgNoFile          = "No file uploading"
	MsgSelectFile      = "Please select a file to upload"
	MsgUploading       = "Uploading and Sorting File"
	MsgTransferFailed  = "Error uploading or sorting the file."
	MsgSorted          = "File sorted successfully!"
	MsgRetrievalFailed = "Could not retrieve sorted file."
	MsgCanceled        = "Upload canceled."
)

var (
	// ErrNoJob is returned by operations that need a submitted job.
	ErrNoJob = errors.New("no job submitted")
	// ErrNotReady is returned when the job has not reached the needed state.
	ErrNotReady = errors.New("job not ready")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("controller closed")
)

// Error is a classified workflow failure. Message is what the user sees.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ValidationError blocks a submission before any work starts.
func ValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// TransferError is a failed upload or invocation.
func TransferError(err error) *Error {
	return &Error{Kind: KindTransfer, Message: MsgTransferFailed, Err: err}
}

// RetrievalError is a failed read of the sorted object.
func RetrievalError(err error) *Error {
	return &Error{Kind: KindRetrieval, Message: MsgRetrievalFailed, Err: err}
}

// TimeoutError means the sorted object never appeared within the poll budget.
func TimeoutError(attempts int, err error) *Error {
	return &Error{
		Kind:    KindTimeout,
		Message: MsgRetrievalFailed,
		Err:     fmt.Errorf("result not available after %d attempts: %w", attempts, err),
	}
}

// CanceledError means the job was abandoned for a newer one or shut down.
func CanceledError(err error) *Error {
	return &Error{Kind: KindCanceled, Message: MsgCanceled, Err: err}
}

// KindOf returns the kind of a workflow error, or "" for anything else.
func KindOf(err error) Kind {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Kind
	}
	return ""
}
