package messaging

import (
	"context"

	"github.com/iskan70/my-logistic-bot/internal/flow"
	"github.com/iskan70/my-logistic-bot/internal/models"
)

// Sender adapts a Service to the engine's outbound contract.
type Sender struct {
	svc Service
}

var _ flow.Sender = (*Sender)(nil)

// NewSender wraps svc.
func NewSender(svc Service) *Sender {
	return &Sender{svc: svc}
}

// Send delivers text with its choices, if any, to the conversation.
func (s *Sender) Send(ctx context.Context, conversationID, text string, choices []models.Choice) error {
	if len(choices) == 0 {
		return s.svc.SendMessage(ctx, conversationID, text)
	}
	return s.svc.SendChoices(ctx, conversationID, text, choices)
}
