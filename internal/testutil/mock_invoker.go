// mock_invoker.go - Function invoker double for testing
package testutil

import (
	"context"
	"sync"

	"github.com/sortflow/backend/internal/remote"
)

// InvokeCall records one Invoke invocation.
type InvokeCall struct {
	Function string
	Payload  []byte
}

// MockInvoker implements remote.Invoker. Without InvokeFunc it succeeds
// with an empty 200 result.
type MockInvoker struct {
	InvokeFunc func(ctx context.Context, function string, payload []byte) (*remote.Result, error)

	mu    sync.Mutex
	calls []InvokeCall
}

var _ remote.Invoker = (*MockInvoker)(nil)

// NewMockInvoker creates an invoker that always succeeds.
func NewMockInvoker() *MockInvoker {
	return &MockInvoker{}
}

// Calls returns the recorded invocations.
func (m *MockInvoker) Calls() []InvokeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]InvokeCall(nil), m.calls...)
}

func (m *MockInvoker) Invoke(ctx context.Context, function string, payload []byte) (*remote.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, InvokeCall{Function: function, Payload: payload})
	m.mu.Unlock()

	if m.InvokeFunc != nil {
		return m.InvokeFunc(ctx, function, payload)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &remote.Result{StatusCode: 200, Payload: []byte(`{"statusCode":200,"body":"\"ok\""}`)}, nil
}
