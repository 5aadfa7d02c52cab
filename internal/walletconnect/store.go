package walletconnect

import (
	"context"
	"sync"
	"time"
)

// SessionStore 持久化会话，Load 在会话不存在时返回 nil, nil
type SessionStore interface {
	Save(ctx context.Context, name string, s *Session, ttl time.Duration) error
	Load(ctx context.Context, name string) (*Session, error)
	Delete(ctx context.Context, name string) error
}

type memoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// NewMemoryStore keeps sessions for the lifetime of the process only.
func NewMemoryStore() SessionStore {
	return &memoryStore{sessions: make(map[string]Session)}
}

func (m *memoryStore) Save(_ context.Context, name string, s *Session, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[name] = *s
	return nil
}

func (m *memoryStore) Load(_ context.Context, name string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[name]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memoryStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, name)
	return nil
}
