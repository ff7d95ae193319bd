// mock_storage.go - In-memory object store for testing
package testutil

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/sortflow/backend/internal/storage"
	"github.com/sortflow/backend/internal/upload"
)

// StoreCall records one Store invocation.
type StoreCall struct {
	Bucket      string
	Key         string
	Body        []byte
	ContentType string
}

// MockObjectStore implements storage.ObjectStore in memory. Any of the
// function fields may be set to override the default behaviour.
type MockObjectStore struct {
	StoreFunc    func(ctx context.Context, bucket, key string, body []byte, contentType string, progress upload.ProgressFunc) error
	RetrieveFunc func(ctx context.Context, bucket, key string) ([]byte, error)
	SignFunc     func(ctx context.Context, bucket, key string, ttl time.Duration, opts storage.SignOptions) (string, error)

	// ProgressSteps is how many progress events the default Store emits.
	ProgressSteps int

	mu            sync.Mutex
	objects       map[string][]byte
	storeCalls    []StoreCall
	retrieveCalls int
}

var _ storage.ObjectStore = (*MockObjectStore)(nil)

// NewMockObjectStore creates an empty store that reports progress in four steps.
func NewMockObjectStore() *MockObjectStore {
	return &MockObjectStore{
		ProgressSteps: 4,
		objects:       make(map[string][]byte),
	}
}

func objectID(bucket, key string) string {
	return bucket + "/" + key
}

// Put seeds an object without recording a call.
func (m *MockObjectStore) Put(bucket, key string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectID(bucket, key)] = append([]byte(nil), body...)
}

// Object returns a stored object.
func (m *MockObjectStore) Object(bucket, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[objectID(bucket, key)]
	return data, ok
}

// StoreCalls returns the recorded Store calls.
func (m *MockObjectStore) StoreCalls() []StoreCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StoreCall(nil), m.storeCalls...)
}

// RetrieveCalls returns how many times Retrieve was called.
func (m *MockObjectStore) RetrieveCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retrieveCalls
}

func (m *MockObjectStore) Store(ctx context.Context, bucket, key string, body []byte, contentType string, progress upload.ProgressFunc) error {
	m.mu.Lock()
	m.storeCalls = append(m.storeCalls, StoreCall{Bucket: bucket, Key: key, Body: body, ContentType: contentType})
	m.mu.Unlock()

	if m.StoreFunc != nil {
		return m.StoreFunc(ctx, bucket, key, body, contentType, progress)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	total := int64(len(body))
	if progress != nil && total > 0 && m.ProgressSteps > 0 {
		for i := 1; i <= m.ProgressSteps; i++ {
			progress(total*int64(i)/int64(m.ProgressSteps), total)
		}
	}

	m.Put(bucket, key, body)
	return nil
}

func (m *MockObjectStore) Retrieve(ctx context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	m.retrieveCalls++
	m.mu.Unlock()

	if m.RetrieveFunc != nil {
		return m.RetrieveFunc(ctx, bucket, key)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, ok := m.Object(bucket, key)
	if !ok {
		return nil, storage.NewObjectError("retrieve", bucket, key, storage.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Sign returns a fake link naming the ttl and, when set, the download name.
func (m *MockObjectStore) Sign(ctx context.Context, bucket, key string, ttl time.Duration, opts ...storage.SignOption) (string, error) {
	o := storage.NewSignOptions(opts...)
	if m.SignFunc != nil {
		return m.SignFunc(ctx, bucket, key, ttl, o)
	}
	link := fmt.Sprintf("https://signed.test/%s/%s?ttl=%d", bucket, key, int(ttl.Seconds()))
	if o.DownloadName != "" {
		link += "&filename=" + url.QueryEscape(o.DownloadName)
	}
	return link, nil
}
