package genai

import (
	"context"
	"fmt"

	"github.com/iskan70/my-logistic-bot/internal/catalog"
	"github.com/iskan70/my-logistic-bot/internal/flow"
	"github.com/iskan70/my-logistic-bot/internal/models"
)

// Assistant plays the three language-model roles of the bot with the catalogue prompts:
// tariff code advisor, free-form consultant and document analyst.
type Assistant struct {
	client  ClientInterface
	prompts catalog.Prompts
}

var (
	_ flow.Advisor     = (*Assistant)(nil)
	_ flow.Consultant  = (*Assistant)(nil)
	_ flow.DocAnalyzer = (*Assistant)(nil)
)

// NewAssistant binds client to the catalogue prompts.
func NewAssistant(client ClientInterface, prompts catalog.Prompts) *Assistant {
	return &Assistant{client: client, prompts: prompts}
}

// Suggest names a probable tariff code and duty rate for the cargo description.
func (a *Assistant) Suggest(ctx context.Context, cargo string) (string, error) {
	return a.client.GeneratePromptWithContext(ctx, a.prompts.Advisory, cargo)
}

// Consult answers a free-form question as the company's consultant.
func (a *Assistant) Consult(ctx context.Context, question string) (string, error) {
	return a.client.GeneratePromptWithContext(ctx, a.prompts.Consultant, question)
}

// AnalyzeDocuments summarises a batch of document photos in one request.
func (a *Assistant) AnalyzeDocuments(ctx context.Context, images []models.Attachment) (string, error) {
	urls := make([]string, 0, len(images))
	for _, img := range images {
		if img.IsImage() {
			urls = append(urls, img.URL)
		}
	}
	if len(urls) == 0 {
		return "", fmt.Errorf("analyze documents: %w", ErrNoImages)
	}
	return a.client.AnalyzeImages(ctx, a.prompts.Documents, urls)
}
