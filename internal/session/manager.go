package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/sortflow/backend/internal/models"
	"github.com/sortflow/backend/internal/workflow"
)

// DefaultMaxSessions limits concurrent sessions to bound memory use.
const DefaultMaxSessions = 100

// SessionMaxAge is how long an unused session is kept before cleanup.
const SessionMaxAge = 30 * time.Minute

// SessionKeepAliveWindow protects sessions with a live job that were used recently.
const SessionKeepAliveWindow = 5 * time.Minute

// ErrTooManySessions is returned when every slot holds a busy session.
var ErrTooManySessions = errors.New("too many active sessions")

// ControllerFactory builds the controller for a new session.
type ControllerFactory func() (*workflow.Controller, error)

// Manager owns the per-session workflow controllers.
type Manager struct {
	sessions      map[string]*SessionState
	mu            sync.RWMutex
	newController ControllerFactory
	maxSessions   int
	now           func() time.Time
	logger        *log.Logger
}

// SessionState holds the session metadata and its controller.
type SessionState struct {
	Session    *models.Session
	Controller *workflow.Controller
}

// NewManager creates a manager. maxSessions <= 0 selects DefaultMaxSessions.
func NewManager(factory ControllerFactory, maxSessions int) *Manager {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &Manager{
		sessions:      make(map[string]*SessionState),
		newController: factory,
		maxSessions:   maxSessions,
		now:           time.Now,
		logger:        log.New("session"),
	}
}

// Create starts a new session, evicting the least recently used idle
// session when at capacity.
func (m *Manager) Create() (*models.Session, error) {
	ctrl, err := m.newController()
	if err != nil {
		return nil, fmt.Errorf("creating controller: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= m.maxSessions && !m.evictOneLocked() {
		ctrl.Close()
		return nil, ErrTooManySessions
	}

	now := m.now()
	sess := &models.Session{
		ID:           uuid.New().String(),
		CreatedAt:    now,
		LastAccessed: now,
	}
	m.sessions[sess.ID] = &SessionState{Session: sess, Controller: ctrl}

	m.logger.Infof("created session %s (%d active)", shortID(sess.ID), len(m.sessions))
	c := *sess
	return &c, nil
}

// Get returns the session and its controller.
func (m *Manager) Get(id string) (*SessionState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	sess := *state.Session
	return &SessionState{Session: &sess, Controller: state.Controller}, true
}

// Controller returns the controller of a session.
func (m *Manager) Controller(id string) (*workflow.Controller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return state.Controller, true
}

// Touch marks a session as used now. It should be called on every request
// so an active session is not cleaned up.
func (m *Manager) Touch(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	state.Session.LastAccessed = m.now()
	return true
}

// Delete removes a session and cancels its job.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	state, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	state.Controller.Close()
	m.logger.Infof("deleted session %s", shortID(id))
	return true
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupOldSessions removes sessions unused for longer than maxAge.
// A session whose job is still running survives while it was touched
// within SessionKeepAliveWindow.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-maxAge)
	keepAliveCutoff := now.Add(-SessionKeepAliveWindow)

	removed := 0
	for id, state := range m.sessions {
		last := state.Session.LastAccessed
		if !last.Before(cutoff) {
			continue
		}
		if busy(state) && last.After(keepAliveCutoff) {
			continue
		}

		state.Controller.Close()
		delete(m.sessions, id)
		removed++
		m.logger.Infof("cleaned up aged session %s (last accessed: %s ago)",
			shortID(id), now.Sub(last).Round(time.Second))
	}
	return removed
}

// CloseAll cancels every job and forgets all sessions.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, state := range m.sessions {
		state.Controller.Close()
		delete(m.sessions, id)
	}
}

// evictOneLocked drops the least recently used session without a running
// job. It reports false when every session is busy.
func (m *Manager) evictOneLocked() bool {
	candidates := make([]*SessionState, 0, len(m.sessions))
	for _, state := range m.sessions {
		if !busy(state) {
			candidates = append(candidates, state)
		}
	}
	if len(candidates) == 0 {
		return false
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Session.LastAccessed.Before(candidates[j].Session.LastAccessed)
	})
	victim := candidates[0]
	victim.Controller.Close()
	delete(m.sessions, victim.Session.ID)
	m.logger.Infof("evicted session %s to stay under %d sessions", shortID(victim.Session.ID), m.maxSessions)
	return true
}

// busy reports whether the session has a job that has not finished.
func busy(state *SessionState) bool {
	job := state.Controller.Current()
	return job != nil && !job.Status.Terminal()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
