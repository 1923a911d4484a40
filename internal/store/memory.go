package store

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// InMemoryStore keeps everything in process memory. It is safe for concurrent use.
type InMemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]SessionRow
	submissions []Submission
	inbound     map[string]DedupRecord
}

var _ Store = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]SessionRow),
		inbound:  make(map[string]DedupRecord),
	}
}

func (s *InMemoryStore) SaveSession(_ context.Context, row SessionRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[row.ConversationID] = row
	return nil
}

func (s *InMemoryStore) GetSession(_ context.Context, conversationID string) (*SessionRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.sessions[conversationID]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (s *InMemoryStore) ListSessions(_ context.Context) ([]SessionRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SessionRow, 0, len(s.sessions))
	for _, row := range s.sessions {
		out = append(out, row)
	}
	return out, nil
}

func (s *InMemoryStore) DeleteSession(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, conversationID)
	return nil
}

func (s *InMemoryStore) AddSubmission(_ context.Context, sub Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.Columns = append([]string(nil), sub.Columns...)
	s.submissions = append(s.submissions, sub)
	slog.Debug("InMemoryStore AddSubmission succeeded", "id", sub.ID, "kind", sub.Kind)
	return nil
}

func (s *InMemoryStore) ListSubmissions(_ context.Context, limit int) ([]Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Submission, 0, len(s.submissions))
	for i := len(s.submissions) - 1; i >= 0; i-- {
		sub := s.submissions[i]
		sub.Columns = append([]string(nil), sub.Columns...)
		out = append(out, sub)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) CountSubmissions(_ context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, sub := range s.submissions {
		counts[sub.Kind]++
	}
	return counts, nil
}

func (s *InMemoryStore) RecordInbound(_ context.Context, messageID, conversationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inbound[messageID]; ok {
		return false, nil
	}
	s.inbound[messageID] = DedupRecord{MessageID: messageID, ConversationID: conversationID, ReceivedAt: time.Now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.inbound[messageID]
	if !ok {
		return nil
	}
	now := time.Now()
	rec.ProcessedAt = &now
	s.inbound[messageID] = rec
	return nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
