// Package remote invokes the sorting function, either on AWS Lambda or in
// process for local runs.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
)

// ErrFunctionFailed indicates the function ran but reported an error.
var ErrFunctionFailed = errors.New("function reported an error")

// Invoker runs a named function with a JSON payload and waits for its result.
type Invoker interface {
	Invoke(ctx context.Context, function string, payload []byte) (*Result, error)
}

// Result is the outcome of one invocation.
type Result struct {
	StatusCode    int    `json:"statusCode"`
	FunctionError string `json:"functionError,omitempty"`
	Payload       []byte `json:"-"`
}

// Response is the body shape the sorting function returns.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// Response decodes the payload as a function response.
func (r *Result) Response() (*Response, error) {
	var resp Response
	if err := json.Unmarshal(r.Payload, &resp); err != nil {
		return nil, fmt.Errorf("decoding function response: %w", err)
	}
	return &resp, nil
}

// NewStorageEvent builds the object-created notification the function
// expects for bucket/key.
func NewStorageEvent(bucket, key string) ([]byte, error) {
	event := events.S3Event{
		Records: []events.S3EventRecord{
			{
				EventSource: "aws:s3",
				EventName:   "ObjectCreated:Put",
				S3: events.S3Entity{
					Bucket: events.S3Bucket{Name: bucket},
					Object: events.S3Object{Key: key},
				},
			},
		},
	}
	return json.Marshal(event)
}
