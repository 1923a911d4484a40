package flow

import (
	"context"

	"github.com/iskan70/my-logistic-bot/internal/models"
)

// Sender delivers a message to a conversation. choices may be nil.
type Sender interface {
	Send(ctx context.Context, conversationID, text string, choices []models.Choice) error
}

// Sink appends a finished record as an ordered list of columns.
type Sink interface {
	AppendRecord(ctx context.Context, fields []string) error
}

// Consultant answers free-form questions with the fixed business prompt.
type Consultant interface {
	Consult(ctx context.Context, question string) (string, error)
}

// DocAnalyzer summarises a batch of document images.
type DocAnalyzer interface {
	AnalyzeDocuments(ctx context.Context, images []models.Attachment) (string, error)
}
