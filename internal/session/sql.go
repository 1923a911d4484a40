package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/iskan70/my-logistic-bot/internal/models"
	"github.com/iskan70/my-logistic-bot/internal/store"
)

// SQLStore persists sessions through a store.SessionRepo (SQLite or PostgreSQL).
type SQLStore struct {
	repo store.SessionRepo
}

var (
	_ Store  = (*SQLStore)(nil)
	_ Lister = (*SQLStore)(nil)
)

func NewSQLStore(repo store.SessionRepo) *SQLStore {
	return &SQLStore{repo: repo}
}

func (q *SQLStore) Get(ctx context.Context, conversationID string) (*models.Session, error) {
	return q.load(ctx, conversationID)
}

func (q *SQLStore) Start(ctx context.Context, conversationID string, flow models.FlowType, first models.StateType) (*models.Session, error) {
	return start(ctx, q, conversationID, flow, first)
}

func (q *SQLStore) Update(ctx context.Context, conversationID string, field models.FieldName, value string, next models.StateType) (*models.Session, error) {
	return mutate(ctx, q, conversationID, setField(field, value, next))
}

func (q *SQLStore) SetStep(ctx context.Context, conversationID string, next models.StateType) (*models.Session, error) {
	return mutate(ctx, q, conversationID, setStep(next))
}

func (q *SQLStore) AddAttachment(ctx context.Context, conversationID string, att models.Attachment) (*models.Session, error) {
	return mutate(ctx, q, conversationID, addAttachment(att))
}

func (q *SQLStore) Clear(ctx context.Context, conversationID string) error {
	return q.remove(ctx, conversationID)
}

// List decodes every stored row. Rows that fail to decode are skipped.
func (q *SQLStore) List(ctx context.Context) ([]*models.Session, error) {
	rows, err := q.repo.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Session, 0, len(rows))
	for _, row := range rows {
		var s models.Session
		if err := json.Unmarshal([]byte(row.Data), &s); err != nil {
			slog.Warn("SQLStore List skipping undecodable session", "conversation", row.ConversationID, "error", err)
			continue
		}
		out = append(out, &s)
	}
	return out, nil
}

func (q *SQLStore) load(ctx context.Context, conversationID string) (*models.Session, error) {
	row, err := q.repo.GetSession(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrNotFound
	}
	var s models.Session
	if err := json.Unmarshal([]byte(row.Data), &s); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", conversationID, err)
	}
	return &s, nil
}

func (q *SQLStore) save(ctx context.Context, s *models.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", s.ConversationID, err)
	}
	return q.repo.SaveSession(ctx, store.SessionRow{
		ConversationID: s.ConversationID,
		Flow:           string(s.Flow),
		Step:           string(s.Step),
		Data:           string(data),
		UpdatedAt:      s.UpdatedAt,
	})
}

func (q *SQLStore) remove(ctx context.Context, conversationID string) error {
	return q.repo.DeleteSession(ctx, conversationID)
}
