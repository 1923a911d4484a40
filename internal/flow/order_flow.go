package flow

import (
	"context"
	"fmt"
	"strconv"

	"github.com/iskan70/my-logistic-bot/internal/catalog"
	"github.com/iskan70/my-logistic-bot/internal/models"
)

var orderStates = []models.StateType{
	models.StateOrderName,
	models.StateOrderPhoneCountry,
	models.StateOrderPhone,
	models.StateOrderCargo,
	models.StateOrderValue,
	models.StateOrderOrigin,
	models.StateOrderDestination,
	models.StateOrderWeight,
	models.StateOrderVolume,
}

var orderFields = []models.FieldName{
	models.FieldFullName,
	models.FieldPhoneCountry,
	models.FieldPhone,
	models.FieldCargo,
	models.FieldCargoValue,
	models.FieldOrigin,
	models.FieldDestination,
	models.FieldWeight,
	models.FieldVolume,
}

// OrderFlow is the shipment order intake: name, phone, cargo, invoice value, route,
// weight and volume.
func OrderFlow() *Definition {
	requires := make(map[models.StateType][]models.FieldName, len(orderStates)+1)
	for i, st := range orderStates {
		requires[st] = orderFields[:i]
	}
	requires[models.StateDone] = orderFields

	text := func(get func(catalog.Texts) string) func(context.Context, *Collector, *models.Session) Prompt {
		return func(_ context.Context, c *Collector, _ *models.Session) Prompt {
			return Prompt{Text: get(c.cat.Texts)}
		}
	}

	return NewDefinition(models.FlowOrderIntake, models.StateOrderName, orderFields, requires,
		textStep(models.StateOrderName, models.FieldFullName, models.StateOrderPhoneCountry,
			text(func(t catalog.Texts) string { return t.OrderName })),
		&Step{
			State:   models.StateOrderPhoneCountry,
			Field:   models.FieldPhoneCountry,
			Accepts: []EventKind{EventChoice},
			Prompt: func(_ context.Context, c *Collector, _ *models.Session) Prompt {
				return Prompt{Text: c.cat.Texts.OrderPhoneCountry, Choices: c.cat.CountryChoices()}
			},
			Choices: func(c *Collector, _ *models.Session) []models.Choice {
				return c.cat.CountryChoices()
			},
			Validate: func(c *Collector, _ *models.Session, input string) (string, error) {
				if _, ok := c.cat.Country(input); !ok {
					return "", reject(c.cat.Texts.ChoiceRejected)
				}
				return input, nil
			},
			Next: always(models.StateOrderPhone),
		},
		&Step{
			State:    models.StateOrderPhone,
			Field:    models.FieldPhone,
			Accepts:  []EventKind{EventText},
			Prompt:   phonePrompt,
			Validate: validatePhoneStep,
			Next:     always(models.StateOrderCargo),
		},
		textStep(models.StateOrderCargo, models.FieldCargo, models.StateOrderValue,
			text(func(t catalog.Texts) string { return t.OrderCargo })),
		textStep(models.StateOrderValue, models.FieldCargoValue, models.StateOrderOrigin,
			text(func(t catalog.Texts) string { return t.OrderValue })),
		textStep(models.StateOrderOrigin, models.FieldOrigin, models.StateOrderDestination,
			text(func(t catalog.Texts) string { return t.OrderOrigin })),
		textStep(models.StateOrderDestination, models.FieldDestination, models.StateOrderWeight,
			text(func(t catalog.Texts) string { return t.OrderDestination })),
		textStep(models.StateOrderWeight, models.FieldWeight, models.StateOrderVolume,
			text(func(t catalog.Texts) string { return t.OrderWeight })),
		textStep(models.StateOrderVolume, models.FieldVolume, models.StateDone,
			text(func(t catalog.Texts) string { return t.OrderVolume })),
	)
}

func phonePrompt(_ context.Context, c *Collector, s *models.Session) Prompt {
	cc, ok := chosenCountry(c, s)
	if !ok || cc.Digits == 0 {
		return Prompt{Text: c.cat.Texts.OrderPhoneInternational}
	}
	return Prompt{Text: catalog.Fill(c.cat.Texts.OrderPhoneDigits, "code", cc.Code, "digits", strconv.Itoa(cc.Digits))}
}

func validatePhoneStep(c *Collector, s *models.Session, input string) (string, error) {
	cc, ok := chosenCountry(c, s)
	if !ok {
		return "", fmt.Errorf("%w: phone step without a known country code", ErrInvariantViolation)
	}
	phone, got, ok := ValidatePhone(input, cc)
	if ok {
		return phone, nil
	}
	if cc.Digits == 0 {
		return "", reject(c.cat.Texts.OrderPhoneWrongInternational)
	}
	return "", reject(catalog.Fill(c.cat.Texts.OrderPhoneWrongDigits, "digits", strconv.Itoa(cc.Digits), "got", strconv.Itoa(got)))
}

func chosenCountry(c *Collector, s *models.Session) (catalog.CountryCode, bool) {
	value, ok := s.Field(models.FieldPhoneCountry)
	if !ok {
		return catalog.CountryCode{}, false
	}
	return c.cat.Country(value)
}

// textStep is a free-text step accepting any non-empty input.
func textStep(state models.StateType, field models.FieldName, next models.StateType, prompt func(context.Context, *Collector, *models.Session) Prompt) *Step {
	return &Step{
		State:   state,
		Field:   field,
		Accepts: []EventKind{EventText},
		Prompt:  prompt,
		Validate: func(c *Collector, _ *models.Session, input string) (string, error) {
			v, ok := ValidateText(input)
			if !ok {
				return "", reject(c.cat.Texts.EmptyText)
			}
			return v, nil
		},
		Next: always(next),
	}
}

func always(next models.StateType) func(string) models.StateType {
	return func(string) models.StateType { return next }
}
