package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sortflow/backend/internal/models"
	"github.com/sortflow/backend/internal/testutil"
	"github.com/sortflow/backend/internal/upload"
	"github.com/sortflow/backend/internal/workflow"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newTestManager(t *testing.T, store *testutil.MockObjectStore, max int) (*Manager, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	factory := func() (*workflow.Controller, error) {
		cfg := workflow.DefaultConfig()
		cfg.PollDelay = time.Millisecond
		cfg.PollInterval = time.Millisecond
		cfg.PollMaxAttempts = 1
		return workflow.NewController(cfg, store, testutil.NewMockInvoker())
	}
	m := NewManager(factory, max)
	m.now = clock.Now
	t.Cleanup(m.CloseAll)
	return m, clock
}

// blockingStore never finishes an upload until its context is cancelled.
func blockingStore() (*testutil.MockObjectStore, chan struct{}) {
	started := make(chan struct{}, 8)
	store := testutil.NewMockObjectStore()
	store.StoreFunc = func(ctx context.Context, bucket, key string, body []byte, contentType string, progress upload.ProgressFunc) error {
		started <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	}
	return store, started
}

func TestManager_CreateGetDelete(t *testing.T) {
	m, clock := newTestManager(t, testutil.NewMockObjectStore(), 0)

	sess, err := m.Create()
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, clock.now, sess.CreatedAt)
	assert.Equal(t, 1, m.Count())

	state, ok := m.Get(sess.ID)
	require.True(t, ok)
	assert.NotNil(t, state.Controller)

	ctrl, ok := m.Controller(sess.ID)
	require.True(t, ok)
	assert.Same(t, state.Controller, ctrl)

	clock.now = clock.now.Add(time.Minute)
	assert.True(t, m.Touch(sess.ID))
	state, _ = m.Get(sess.ID)
	assert.Equal(t, clock.now, state.Session.LastAccessed)

	assert.True(t, m.Delete(sess.ID))
	assert.False(t, m.Delete(sess.ID))
	assert.False(t, m.Touch(sess.ID))
	_, ok = m.Get(sess.ID)
	assert.False(t, ok)
}

func TestManager_DeleteCancelsJob(t *testing.T) {
	store, started := blockingStore()
	m, _ := newTestManager(t, store, 0)

	sess, err := m.Create()
	require.NoError(t, err)
	ctrl, _ := m.Controller(sess.ID)

	_, err = ctrl.Submit(&models.SelectedFile{Name: "data.csv", Content: []byte("a")})
	require.NoError(t, err)
	<-started

	require.True(t, m.Delete(sess.ID))
	ctrl.Wait()
	assert.Equal(t, models.JobStatusFailed, ctrl.Current().Status)
	assert.Equal(t, string(workflow.KindCanceled), ctrl.Current().ErrorKind)
}

func TestManager_EvictsIdleSessionAtCapacity(t *testing.T) {
	m, clock := newTestManager(t, testutil.NewMockObjectStore(), 2)

	first, err := m.Create()
	require.NoError(t, err)
	clock.now = clock.now.Add(time.Second)
	second, err := m.Create()
	require.NoError(t, err)
	clock.now = clock.now.Add(time.Second)
	m.Touch(first.ID)

	third, err := m.Create()
	require.NoError(t, err)

	assert.Equal(t, 2, m.Count())
	_, ok := m.Get(second.ID)
	assert.False(t, ok, "least recently used session should be evicted")
	_, ok = m.Get(first.ID)
	assert.True(t, ok)
	_, ok = m.Get(third.ID)
	assert.True(t, ok)
}

func TestManager_RefusesWhenAllBusy(t *testing.T) {
	store, started := blockingStore()
	m, _ := newTestManager(t, store, 1)

	sess, err := m.Create()
	require.NoError(t, err)
	ctrl, _ := m.Controller(sess.ID)
	_, err = ctrl.Submit(&models.SelectedFile{Name: "data.csv", Content: []byte("a")})
	require.NoError(t, err)
	<-started

	_, err = m.Create()
	assert.ErrorIs(t, err, ErrTooManySessions)
	assert.Equal(t, 1, m.Count())
}

func TestManager_CleanupOldSessions(t *testing.T) {
	store, started := blockingStore()
	m, clock := newTestManager(t, store, 0)

	stale, err := m.Create()
	require.NoError(t, err)
	busy, err := m.Create()
	require.NoError(t, err)
	ctrl, _ := m.Controller(busy.ID)
	_, err = ctrl.Submit(&models.SelectedFile{Name: "data.csv", Content: []byte("a")})
	require.NoError(t, err)
	<-started

	clock.now = clock.now.Add(10 * time.Minute)
	fresh, err := m.Create()
	require.NoError(t, err)

	// busy was touched within the keep-alive window, so only stale goes.
	clock.now = clock.now.Add(-4 * time.Minute)
	m.Touch(busy.ID)
	clock.now = clock.now.Add(4 * time.Minute)

	removed := m.CleanupOldSessions(2 * time.Minute)
	assert.Equal(t, 1, removed)

	_, ok := m.Get(stale.ID)
	assert.False(t, ok)
	_, ok = m.Get(busy.ID)
	assert.True(t, ok)
	_, ok = m.Get(fresh.ID)
	assert.True(t, ok)
}
