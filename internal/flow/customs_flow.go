package flow

import (
	"context"
	"slices"

	"github.com/iskan70/my-logistic-bot/internal/catalog"
	"github.com/iskan70/my-logistic-bot/internal/customs"
	"github.com/iskan70/my-logistic-bot/internal/models"
)

var customsFields = []models.FieldName{
	models.FieldCargoName,
	models.FieldDutyPercent,
	models.FieldPrice,
	models.FieldVATPercent,
}

// CustomsFlow is the duty estimate: cargo name, duty rate, price and destination region.
//
// The duty rate is the branch node. A preset stores its rate and moves on to the price;
// the manual marker stores nothing and detours through a single numeric step that stores
// the rate in the same canonical form before rejoining at the price. A number typed at the
// choice step is a rate, never an option position, and is stored the same way.
func CustomsFlow() *Definition {
	requires := map[models.StateType][]models.FieldName{
		models.StateCustomsDutyChoice: {models.FieldCargoName},
		models.StateCustomsManualDuty: {models.FieldCargoName},
		models.StateCustomsPrice:      {models.FieldCargoName, models.FieldDutyPercent},
		models.StateCustomsRegion:     {models.FieldCargoName, models.FieldDutyPercent, models.FieldPrice},
		models.StateDone:              customsFields,
	}

	return NewDefinition(models.FlowCustomsCalc, models.StateCustomsCargoName, customsFields, requires,
		textStep(models.StateCustomsCargoName, models.FieldCargoName, models.StateCustomsDutyChoice,
			func(_ context.Context, c *Collector, _ *models.Session) Prompt {
				return Prompt{Text: c.cat.Texts.CustomsCargoName}
			}),
		&Step{
			State:   models.StateCustomsDutyChoice,
			Field:   models.FieldDutyPercent,
			Accepts: []EventKind{EventChoice, EventText},
			Prompt:  dutyChoicePrompt,
			Choices: func(c *Collector, _ *models.Session) []models.Choice {
				return c.cat.DutyChoices()
			},
			Resolve:  resolveDutyChoice,
			Validate: validateDutyChoice,
			Marker:   isManualDuty,
			Next: func(value string) models.StateType {
				if isManualDuty(value) {
					return models.StateCustomsManualDuty
				}
				return models.StateCustomsPrice
			},
		},
		&Step{
			State:   models.StateCustomsManualDuty,
			Field:   models.FieldDutyPercent,
			Accepts: []EventKind{EventText},
			Prompt: func(_ context.Context, c *Collector, _ *models.Session) Prompt {
				return Prompt{Text: c.cat.Texts.CustomsManualDuty}
			},
			Validate: decimalValidator(func(t catalog.Texts) string { return t.InvalidNumber }),
			Next:     always(models.StateCustomsPrice),
		},
		&Step{
			State:   models.StateCustomsPrice,
			Field:   models.FieldPrice,
			Accepts: []EventKind{EventText},
			Prompt: func(_ context.Context, c *Collector, s *models.Session) Prompt {
				duty, _ := s.Field(models.FieldDutyPercent)
				return Prompt{Text: catalog.Fill(c.cat.Texts.CustomsDutyAccepted, "duty", duty)}
			},
			Validate: decimalValidator(func(t catalog.Texts) string { return t.InvalidPrice }),
			Next:     always(models.StateCustomsRegion),
		},
		&Step{
			State:   models.StateCustomsRegion,
			Field:   models.FieldVATPercent,
			Accepts: []EventKind{EventChoice},
			Prompt: func(_ context.Context, c *Collector, _ *models.Session) Prompt {
				return Prompt{Text: c.cat.Texts.CustomsRegion, Choices: c.cat.RegionChoices()}
			},
			Choices: func(c *Collector, _ *models.Session) []models.Choice {
				return c.cat.RegionChoices()
			},
			Validate: func(c *Collector, _ *models.Session, input string) (string, error) {
				region, ok := c.cat.Region(input)
				if !ok {
					return "", reject(c.cat.Texts.ChoiceRejected)
				}
				v, err := customs.CanonicalAmount(region.Percent)
				if err != nil {
					return "", reject(c.cat.Texts.ChoiceRejected)
				}
				return v, nil
			},
			Next: always(models.StateDone),
		},
	)
}

func isManualDuty(value string) bool {
	return value == catalog.ManualDutyValue
}

// dutyChoicePrompt runs the best-effort advisory lookup on the cargo name; the duty
// choices are shown whatever the lookup returns.
func dutyChoicePrompt(ctx context.Context, c *Collector, s *models.Session) Prompt {
	cargo, _ := s.Field(models.FieldCargoName)
	advice := c.advise(ctx, cargo)
	return Prompt{
		Text:    catalog.Fill(c.cat.Texts.CustomsDutyChoice, "advice", advice),
		Choices: c.cat.DutyChoices(),
	}
}

// resolveDutyChoice matches option values and labels but leaves numbers as typed rates.
func resolveDutyChoice(c *Collector, _ *models.Session, text string) (models.Choice, bool) {
	if _, ok := ValidateDecimal(text); ok {
		return models.Choice{}, false
	}
	return ResolveChoice(text, c.cat.DutyChoices())
}

// validateDutyChoice takes the manual marker, a preset value or a typed rate.
func validateDutyChoice(c *Collector, _ *models.Session, input string) (string, error) {
	if isManualDuty(input) {
		return input, nil
	}
	presets := c.cat.DutyChoices()
	if slices.ContainsFunc(presets, func(ch models.Choice) bool { return ch.Value == input }) {
		v, err := customs.CanonicalAmount(input)
		if err != nil {
			return "", reject(c.cat.Texts.ChoiceRejected)
		}
		return v, nil
	}
	v, ok := ValidateDecimal(input)
	if !ok {
		return "", reject(c.cat.Texts.ChoiceRejected)
	}
	return v, nil
}

func decimalValidator(msg func(catalog.Texts) string) func(*Collector, *models.Session, string) (string, error) {
	return func(c *Collector, _ *models.Session, input string) (string, error) {
		v, ok := ValidateDecimal(input)
		if !ok {
			return "", reject(msg(c.cat.Texts))
		}
		return v, nil
	}
}
