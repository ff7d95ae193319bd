package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/labstack/gommon/log"

	"github.com/sortflow/backend/internal/storage"
)

// InputPrefix is where the sorting function expects uploads.
const InputPrefix = "unsorted/"

// KeyFunc maps an uploaded file name to the key the sorted copy is written to.
type KeyFunc func(fileName string) string

// LocalConfig configures a LocalInvoker.
type LocalConfig struct {
	InputBucket  string
	OutputBucket string
	OutputKey    KeyFunc
}

// LocalInvoker stands in for the remote sorting function. It reads the
// uploaded object, sorts its lines and writes the result to the output
// bucket, answering like the deployed function would.
type LocalInvoker struct {
	store  storage.ObjectStore
	cfg    LocalConfig
	logger *log.Logger
}

// NewLocalInvoker creates an in-process function backed by store.
func NewLocalInvoker(store storage.ObjectStore, cfg LocalConfig) *LocalInvoker {
	return &LocalInvoker{store: store, cfg: cfg, logger: log.New("remote")}
}

// directRequest is the payload of a direct invocation.
type directRequest struct {
	Key string `json:"key"`
}

// Invoke ignores the function name; there is only one local function.
func (l *LocalInvoker) Invoke(ctx context.Context, function string, payload []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key, ok := eventKey(payload)
	if !ok {
		return respond(http.StatusBadRequest, "Bad Request: Missing file key")
	}

	outputKey, err := l.sortObject(ctx, key)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		l.logger.Warnf("local function %s failed for %s: %v", function, key, err)
		return respond(http.StatusInternalServerError, fmt.Sprintf("Error processing file %s: %v", key, err))
	}

	l.logger.Debugf("local function %s sorted %s into %s/%s", function, key, l.cfg.OutputBucket, outputKey)
	return respond(http.StatusOK, fmt.Sprintf("Successfully sorted and uploaded to %s/%s", l.cfg.OutputBucket, outputKey))
}

func (l *LocalInvoker) sortObject(ctx context.Context, key string) (string, error) {
	if !strings.HasPrefix(key, InputPrefix) {
		return "", fmt.Errorf("file is not in the expected %q folder", InputPrefix)
	}
	if l.cfg.OutputKey == nil {
		return "", errors.New("no output key rule configured")
	}

	body, err := l.store.Retrieve(ctx, l.cfg.InputBucket, key)
	if err != nil {
		return "", err
	}

	lines := strings.Split(string(body), "\n")
	sort.Strings(lines)
	sorted := []byte(strings.Join(lines, "\n"))

	outputKey := l.cfg.OutputKey(path.Base(key))
	if err := l.store.Store(ctx, l.cfg.OutputBucket, outputKey, sorted, "text/plain; charset=utf-8", nil); err != nil {
		return "", err
	}
	return outputKey, nil
}

// eventKey pulls the object key out of either a storage event or a direct
// {"key": ...} request.
func eventKey(payload []byte) (string, bool) {
	var event events.S3Event
	if err := json.Unmarshal(payload, &event); err == nil && len(event.Records) > 0 {
		return event.Records[0].S3.Object.Key, true
	}

	var req directRequest
	if err := json.Unmarshal(payload, &req); err == nil && req.Key != "" {
		return req.Key, true
	}
	return "", false
}

// respond packs a function response the way Lambda returns it: the
// invocation itself succeeds and the body carries the function status.
func respond(status int, message string) (*Result, error) {
	body, err := json.Marshal(message)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(Response{StatusCode: status, Body: string(body)})
	if err != nil {
		return nil, err
	}
	return &Result{StatusCode: http.StatusOK, Payload: payload}, nil
}
