package session

import (
	"context"
	"sync"
	"time"

	"github.com/iskan70/my-logistic-bot/internal/models"
)

// MemoryStore keeps sessions in a map guarded by a read/write mutex.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

var (
	_ Store  = (*MemoryStore)(nil)
	_ Lister = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*models.Session)}
}

func (m *MemoryStore) Get(_ context.Context, conversationID string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Start(_ context.Context, conversationID string, flow models.FlowType, first models.StateType) (*models.Session, error) {
	if conversationID == "" {
		return nil, models.ErrEmptyConversationID
	}
	s := models.NewSession(conversationID, flow, first)
	m.mu.Lock()
	m.sessions[conversationID] = s
	m.mu.Unlock()
	return s.Clone(), nil
}

func (m *MemoryStore) Update(_ context.Context, conversationID string, field models.FieldName, value string, next models.StateType) (*models.Session, error) {
	return m.mutate(conversationID, setField(field, value, next))
}

func (m *MemoryStore) SetStep(_ context.Context, conversationID string, next models.StateType) (*models.Session, error) {
	return m.mutate(conversationID, setStep(next))
}

func (m *MemoryStore) AddAttachment(_ context.Context, conversationID string, att models.Attachment) (*models.Session, error) {
	return m.mutate(conversationID, addAttachment(att))
}

func (m *MemoryStore) Clear(_ context.Context, conversationID string) error {
	m.mu.Lock()
	delete(m.sessions, conversationID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	return out, nil
}

// Len returns the number of live sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// mutate applies fn to a copy and commits it only on success, so a failed
// mutation leaves the stored session untouched.
func (m *MemoryStore) mutate(conversationID string, fn func(*models.Session) error) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now()
	m.sessions[conversationID] = next
	return next.Clone(), nil
}
