// Package session implements the Session Store: the keyed, per-conversation record of the
// active flow, its current step and the fields collected so far.
//
// Three backends are provided. MemoryStore is the default and keeps nothing across restarts.
// RedisStore and SQLStore survive restarts; none of them promises more than that.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iskan70/my-logistic-bot/internal/models"
)

var (
	// ErrNotFound is returned when no session exists for a conversation.
	ErrNotFound = errors.New("session not found")
	// ErrFieldAlreadySet is returned by Update when the field was collected before.
	ErrFieldAlreadySet = errors.New("field already set")
)

// Store is the keyed session store. Every method returning a session returns a copy
// the caller may keep.
type Store interface {
	// Get returns ErrNotFound when the conversation has no session.
	Get(ctx context.Context, conversationID string) (*models.Session, error)
	// Start replaces any prior session for the conversation with an empty one positioned at first.
	Start(ctx context.Context, conversationID string, flow models.FlowType, first models.StateType) (*models.Session, error)
	// Update stores value under field and moves the step pointer to next.
	Update(ctx context.Context, conversationID string, field models.FieldName, value string, next models.StateType) (*models.Session, error)
	// SetStep moves the step pointer without collecting a field.
	SetStep(ctx context.Context, conversationID string, next models.StateType) (*models.Session, error)
	// AddAttachment appends a media item to the session.
	AddAttachment(ctx context.Context, conversationID string, att models.Attachment) (*models.Session, error)
	// Clear removes the session. Clearing a missing session is not an error.
	Clear(ctx context.Context, conversationID string) error
}

// Lister enumerates every stored session. All three stores implement it; a MemoryStore is
// always empty after a restart.
type Lister interface {
	List(ctx context.Context) ([]*models.Session, error)
}

// backend is the load/save surface shared by the persistent stores.
type backend interface {
	load(ctx context.Context, conversationID string) (*models.Session, error)
	save(ctx context.Context, s *models.Session) error
	remove(ctx context.Context, conversationID string) error
}

// mutate loads the session, applies fn and saves the result.
func mutate(ctx context.Context, b backend, conversationID string, fn func(*models.Session) error) (*models.Session, error) {
	if conversationID == "" {
		return nil, models.ErrEmptyConversationID
	}
	s, err := b.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	s.UpdatedAt = time.Now()
	if err := b.save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func start(ctx context.Context, b backend, conversationID string, flow models.FlowType, first models.StateType) (*models.Session, error) {
	if conversationID == "" {
		return nil, models.ErrEmptyConversationID
	}
	s := models.NewSession(conversationID, flow, first)
	if err := b.save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func setField(field models.FieldName, value string, next models.StateType) func(*models.Session) error {
	return func(s *models.Session) error {
		if !s.Set(field, value) {
			return fmt.Errorf("%w: %s", ErrFieldAlreadySet, field)
		}
		s.Step = next
		return nil
	}
}

func setStep(next models.StateType) func(*models.Session) error {
	return func(s *models.Session) error {
		s.Step = next
		return nil
	}
}

func addAttachment(att models.Attachment) func(*models.Session) error {
	return func(s *models.Session) error {
		s.Attachments = append(s.Attachments, att)
		return nil
	}
}
