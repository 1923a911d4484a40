package flow

import (
	"context"
	"fmt"
	"slices"

	"github.com/iskan70/my-logistic-bot/internal/models"
)

// Prompt is what the participant sees on entering a step.
type Prompt struct {
	Text    string
	Choices []models.Choice
}

// Step is one (prompt, field, validator) unit of a flow.
//
// Validate receives the raw text for text steps and the resolved option value for choice
// steps and returns the canonical value to store. Next selects the following state from
// that value. When Marker reports true for a value, the step transitions without storing it.
// Resolve, when set, replaces ResolveChoice for text typed at a choice step; text it leaves
// unresolved reaches Validate as a text event.
type Step struct {
	State    models.StateType
	Field    models.FieldName
	Accepts  []EventKind
	Prompt   func(ctx context.Context, c *Collector, s *models.Session) Prompt
	Choices  func(c *Collector, s *models.Session) []models.Choice
	Resolve  func(c *Collector, s *models.Session, text string) (models.Choice, bool)
	Validate func(c *Collector, s *models.Session, input string) (string, error)
	Next     func(value string) models.StateType
	Marker   func(value string) bool
	Attach   bool
}

func (st *Step) accepts(kind EventKind) bool {
	return slices.Contains(st.Accepts, kind)
}

// transitionKey indexes the state table.
type transitionKey struct {
	state models.StateType
	kind  EventKind
}

// Definition is a flow's state table: (state, event kind) -> step, plus the fields that
// must already be collected on entering a state.
type Definition struct {
	Flow     models.FlowType
	First    models.StateType
	Fields   []models.FieldName
	Requires map[models.StateType][]models.FieldName

	steps map[models.StateType]*Step
	table map[transitionKey]*Step
}

// NewDefinition builds the lookup table for steps.
func NewDefinition(flow models.FlowType, first models.StateType, fields []models.FieldName, requires map[models.StateType][]models.FieldName, steps ...*Step) *Definition {
	d := &Definition{
		Flow:     flow,
		First:    first,
		Fields:   fields,
		Requires: requires,
		steps:    make(map[models.StateType]*Step, len(steps)),
		table:    make(map[transitionKey]*Step),
	}
	for _, st := range steps {
		d.steps[st.State] = st
		for _, kind := range st.Accepts {
			d.table[transitionKey{st.State, kind}] = st
		}
	}
	return d
}

// Step returns the step for state.
func (d *Definition) Step(state models.StateType) (*Step, bool) {
	st, ok := d.steps[state]
	return st, ok
}

// Lookup returns the step handling kind in state.
func (d *Definition) Lookup(state models.StateType, kind EventKind) (*Step, bool) {
	st, ok := d.table[transitionKey{state, kind}]
	return st, ok
}

// CheckEntry verifies s holds every field required on entering state.
func (d *Definition) CheckEntry(s *models.Session, state models.StateType) error {
	for _, f := range d.Requires[state] {
		if !s.Has(f) {
			return fmt.Errorf("%w: %s entered %s without %s", ErrInvariantViolation, d.Flow, state, f)
		}
	}
	return nil
}
