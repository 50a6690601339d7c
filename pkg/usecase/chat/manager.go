package chat

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/thairag/thairag/pkg/model"
	"github.com/thairag/thairag/pkg/utils/logging"
)

// Manager owns the open sessions of a process
type Manager struct {
	engine *Engine

	mu       sync.RWMutex
	sessions map[model.SessionID]*Session
}

func NewManager(engine *Engine) *Manager {
	return &Manager{
		engine:   engine,
		sessions: make(map[model.SessionID]*Session),
	}
}

// Open creates a session with a fresh id and an empty log
func (m *Manager) Open(ctx context.Context) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := model.NewSessionID()
	for m.sessions[id] != nil {
		id = model.NewSessionID()
	}

	s := newSession(id, m.engine)
	m.sessions[id] = s
	logging.From(ctx).Info("session opened", "session_id", id, "sessions", len(m.sessions))
	return s
}

// Close releases a session. Later turns on it fail with ErrSessionClosed.
func (m *Manager) Close(ctx context.Context, id model.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return goerr.Wrap(ErrSessionNotFound, "session not found", goerr.V("session_id", id))
	}
	s.closed.Store(true)
	delete(m.sessions, id)

	logging.From(ctx).Info("session closed",
		"session_id", id,
		"messages", len(s.Messages()),
		"duration", time.Since(s.CreatedAt()),
		"sessions", len(m.sessions))
	return nil
}

// Count returns the number of open sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
