package flow

import (
	"context"

	"github.com/iskan70/my-logistic-bot/internal/catalog"
	"github.com/iskan70/my-logistic-bot/internal/models"
)

// DocFlow collects document photos into one batch. Media events append to the batch;
// the analyze choice closes it. Closing by idle timeout is driven by the Engine.
func DocFlow() *Definition {
	return NewDefinition(models.FlowDocAnalysis, models.StateDocCollecting, nil, nil,
		&Step{
			State:   models.StateDocCollecting,
			Accepts: []EventKind{EventMedia, EventChoice},
			Attach:  true,
			Prompt: func(_ context.Context, c *Collector, _ *models.Session) Prompt {
				return Prompt{
					Text:    catalog.Fill(c.cat.Texts.DocIntro, "analyze", c.cat.Texts.DocAnalyzeLabel),
					Choices: c.cat.DocChoices(),
				}
			},
			Choices: func(c *Collector, _ *models.Session) []models.Choice {
				return c.cat.DocChoices()
			},
			Validate: func(c *Collector, s *models.Session, input string) (string, error) {
				if input != catalog.DocAnalyzeValue {
					return "", reject(catalog.Fill(c.cat.Texts.DocExpectPhoto, "analyze", c.cat.Texts.DocAnalyzeLabel))
				}
				if len(s.Attachments) == 0 {
					return "", reject(c.cat.Texts.DocEmptyBatch)
				}
				return input, nil
			},
			Marker: func(string) bool { return true },
			Next:   always(models.StateDone),
		},
	)
}
