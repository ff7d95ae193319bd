package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sortflow/backend/internal/upload"
)

// copyBufferSize is the write granularity, and so the progress granularity,
// of local uploads.
const copyBufferSize = 32 * 1024

// objectMeta is what LocalStore remembers about a stored object.
type objectMeta struct {
	ContentType string
	Size        int64
	StoredAt    time.Time
}

// LocalStore implements ObjectStore on the local filesystem. Buckets are
// directories under root and keys are relative paths inside them.
type LocalStore struct {
	mu      sync.RWMutex
	root    string
	baseURL string
	signer  *LinkSigner
	objects map[string]objectMeta
}

// NewLocalStore creates a LocalStore rooted at root. Signed links point at
// baseURL (for example "http://localhost:8089") and are verified by signer.
func NewLocalStore(root, baseURL string, signer *LinkSigner) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}

	return &LocalStore{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		signer:  signer,
		objects: make(map[string]objectMeta),
	}, nil
}

// Store writes body to root/bucket/key through a temporary file.
func (s *LocalStore) Store(ctx context.Context, bucket, key string, body []byte, contentType string, progress upload.ProgressFunc) error {
	p, err := s.objectPath(bucket, key)
	if err != nil {
		return NewObjectError("store", bucket, key, err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return NewObjectError("store", bucket, key, fmt.Errorf("creating directory: %w", err))
	}

	tmp := p + ".uploading"
	f, err := os.Create(tmp)
	if err != nil {
		return NewObjectError("store", bucket, key, fmt.Errorf("creating file: %w", err))
	}

	src := upload.NewReader(bytes.NewReader(body), int64(len(body)), progress)
	buf := make([]byte, copyBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			f.Close()
			os.Remove(tmp)
			return NewObjectError("store", bucket, key, err)
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := f.Write(buf[:n]); err != nil {
				f.Close()
				os.Remove(tmp)
				return NewObjectError("store", bucket, key, fmt.Errorf("writing file: %w", err))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			f.Close()
			os.Remove(tmp)
			return NewObjectError("store", bucket, key, readErr)
		}
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return NewObjectError("store", bucket, key, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return NewObjectError("store", bucket, key, err)
	}

	if contentType == "" {
		contentType = DetectContentType(key, body)
	}

	s.mu.Lock()
	s.objects[bucket+"/"+key] = objectMeta{
		ContentType: contentType,
		Size:        int64(len(body)),
		StoredAt:    time.Now(),
	}
	s.mu.Unlock()

	return nil
}

// Retrieve reads root/bucket/key.
func (s *LocalStore) Retrieve(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewObjectError("retrieve", bucket, key, err)
	}
	p, err := s.objectPath(bucket, key)
	if err != nil {
		return nil, NewObjectError("retrieve", bucket, key, err)
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewObjectError("retrieve", bucket, key, ErrNotFound)
		}
		return nil, NewObjectError("retrieve", bucket, key, err)
	}
	return data, nil
}

// Download is an object opened through a signed link.
type Download struct {
	Body        io.ReadCloser
	ContentType string
	// FileName is the name the object is served as.
	FileName string
}

// Sign returns a link to the object download route carrying a token that
// expires after ttl.
func (s *LocalStore) Sign(ctx context.Context, bucket, key string, ttl time.Duration, opts ...SignOption) (string, error) {
	if _, err := s.objectPath(bucket, key); err != nil {
		return "", NewObjectError("sign", bucket, key, err)
	}
	if s.signer == nil {
		return "", NewObjectError("sign", bucket, key, fmt.Errorf("%w: no link signer configured", ErrInvalidInput))
	}

	token, err := s.signer.Sign(bucket, key, NewSignOptions(opts...).DownloadName, ttl)
	if err != nil {
		return "", NewObjectError("sign", bucket, key, err)
	}

	return fmt.Sprintf("%s/api/objects/%s/%s?token=%s",
		s.baseURL, url.PathEscape(bucket), escapeKey(key), url.QueryEscape(token)), nil
}

// Open verifies token and opens the object for reading. The caller closes
// the body.
func (s *LocalStore) Open(bucket, key, token string) (*Download, error) {
	if s.signer == nil {
		return nil, NewObjectError("open", bucket, key, ErrInvalidToken)
	}
	name, err := s.signer.Verify(token, bucket, key)
	if err != nil {
		return nil, NewObjectError("open", bucket, key, err)
	}

	p, err := s.objectPath(bucket, key)
	if err != nil {
		return nil, NewObjectError("open", bucket, key, err)
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewObjectError("open", bucket, key, ErrNotFound)
		}
		return nil, NewObjectError("open", bucket, key, err)
	}

	s.mu.RLock()
	meta, ok := s.objects[bucket+"/"+key]
	s.mu.RUnlock()
	contentType := meta.ContentType
	if !ok || contentType == "" {
		contentType = DetectContentType(key, nil)
	}
	if name == "" {
		name = path.Base(key)
	}

	return &Download{Body: f, ContentType: contentType, FileName: name}, nil
}

// ContentDisposition is the header value serving d as an attachment.
func (d *Download) ContentDisposition() string {
	return attachment(d.FileName)
}

// objectPath maps bucket/key to a path under root, rejecting anything that
// would escape its bucket.
func (s *LocalStore) objectPath(bucket, key string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", fmt.Errorf("%w: bucket %q", ErrInvalidInput, bucket)
	}
	if key == "" || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%w: key %q", ErrInvalidInput, key)
	}
	clean := path.Clean(key)
	if clean == ".." || strings.HasPrefix(clean, "../") || clean != key {
		return "", fmt.Errorf("%w: key %q", ErrInvalidInput, key)
	}
	return filepath.Join(s.root, bucket, filepath.FromSlash(clean)), nil
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
