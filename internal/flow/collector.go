package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/iskan70/my-logistic-bot/internal/catalog"
	"github.com/iskan70/my-logistic-bot/internal/metrics"
	"github.com/iskan70/my-logistic-bot/internal/models"
	"github.com/iskan70/my-logistic-bot/internal/session"
)

// MaxBatchAttachments caps the number of images analysed together.
const MaxBatchAttachments = 20

// Advisor suggests a tariff code for a cargo description.
type Advisor interface {
	Suggest(ctx context.Context, text string) (string, error)
}

// Outcome is the result of Collector.Submit: OutcomeRejected, OutcomeAdvanced or OutcomeCompleted.
type Outcome interface {
	isOutcome()
}

// OutcomeRejected leaves the session unchanged; the caller re-prompts with Message.
type OutcomeRejected struct {
	Message string
	Choices []models.Choice
}

// OutcomeAdvanced means the value was stored and the step pointer moved. Prompt is empty
// when the step stays put to collect more media.
type OutcomeAdvanced struct {
	Session *models.Session
	Prompt  Prompt
}

// OutcomeCompleted means the flow reached its terminal step.
type OutcomeCompleted struct {
	Session *models.Session
}

func (OutcomeRejected) isOutcome()  {}
func (OutcomeAdvanced) isOutcome()  {}
func (OutcomeCompleted) isOutcome() {}

// Collector advances sessions one step per valid inbound event using the flows' state tables.
type Collector struct {
	store   session.Store
	cat     *catalog.Catalog
	advisor Advisor
	defs    map[models.FlowType]*Definition
}

// NewCollector builds a collector for the order, customs and document flows. advisor may be nil.
func NewCollector(store session.Store, cat *catalog.Catalog, advisor Advisor) *Collector {
	c := &Collector{
		store:   store,
		cat:     cat,
		advisor: advisor,
		defs:    make(map[models.FlowType]*Definition),
	}
	for _, d := range []*Definition{OrderFlow(), CustomsFlow(), DocFlow()} {
		c.defs[d.Flow] = d
	}
	return c
}

// Definition returns the state table of flow.
func (c *Collector) Definition(flow models.FlowType) (*Definition, bool) {
	d, ok := c.defs[flow]
	return d, ok
}

// Begin starts flow for the conversation, discarding any prior session, and returns the
// first prompt.
func (c *Collector) Begin(ctx context.Context, conversationID string, flow models.FlowType) (*models.Session, Prompt, error) {
	def, ok := c.defs[flow]
	if !ok {
		return nil, Prompt{}, fmt.Errorf("unknown flow %q", flow)
	}
	sess, err := c.store.Start(ctx, conversationID, flow, def.First)
	if err != nil {
		return nil, Prompt{}, fmt.Errorf("failed to start %s: %w", flow, err)
	}
	first, _ := def.Step(def.First)
	slog.Debug("Collector Begin", "conversation", conversationID, "flow", flow, "step", def.First)
	return sess, first.Prompt(ctx, c, sess), nil
}

// Submit applies ev to the conversation's active flow.
func (c *Collector) Submit(ctx context.Context, conversationID string, ev Event) (Outcome, error) {
	sess, err := c.store.Get(ctx, conversationID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrNotInFlow
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess.Flow == models.FlowNone || sess.Completed() {
		return nil, ErrNotInFlow
	}

	def, ok := c.defs[sess.Flow]
	if !ok {
		return nil, fmt.Errorf("%w: unknown flow %q", ErrInvariantViolation, sess.Flow)
	}
	current, ok := def.Step(sess.Step)
	if !ok {
		return nil, fmt.Errorf("%w: flow %s has no step %q", ErrInvariantViolation, sess.Flow, sess.Step)
	}
	if err := def.CheckEntry(sess, sess.Step); err != nil {
		return nil, err
	}

	ev = c.resolve(current, sess, ev)
	st, ok := def.Lookup(sess.Step, ev.Kind)
	if !ok {
		return c.rejected(sess, current, c.hint(ctx, sess, current)), nil
	}

	if ev.Kind == EventMedia && st.Attach {
		return c.attach(ctx, sess, st, ev)
	}

	input := ev.Text
	if ev.Kind == EventChoice {
		input = ev.Choice
	}
	value, err := st.Validate(c, sess, input)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return c.rejected(sess, st, ve.Message), nil
		}
		return nil, err
	}

	next := st.Next(value)
	marker := st.Marker != nil && st.Marker(value)

	projected := sess.Clone()
	if !marker {
		projected.Set(st.Field, value)
	}
	if err := def.CheckEntry(projected, next); err != nil {
		return nil, err
	}

	if marker {
		sess, err = c.store.SetStep(ctx, conversationID, next)
	} else {
		sess, err = c.store.Update(ctx, conversationID, st.Field, value, next)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to advance %s at %s: %w", projected.Flow, st.State, err)
	}
	slog.Debug("Collector Submit advanced", "conversation", conversationID, "flow", sess.Flow, "from", st.State, "to", next)

	if next == models.StateDone {
		return OutcomeCompleted{Session: sess}, nil
	}
	nextStep, ok := def.Step(next)
	if !ok {
		return nil, fmt.Errorf("%w: flow %s has no step %q", ErrInvariantViolation, sess.Flow, next)
	}
	return OutcomeAdvanced{Session: sess, Prompt: nextStep.Prompt(ctx, c, sess)}, nil
}

// Prompt returns the prompt of the session's current step.
func (c *Collector) Prompt(ctx context.Context, sess *models.Session) (Prompt, bool) {
	def, ok := c.defs[sess.Flow]
	if !ok {
		return Prompt{}, false
	}
	st, ok := def.Step(sess.Step)
	if !ok {
		return Prompt{}, false
	}
	return st.Prompt(ctx, c, sess), true
}

// resolve turns free text typed at a choice step into a choice event.
func (c *Collector) resolve(st *Step, sess *models.Session, ev Event) Event {
	if ev.Kind != EventText || st.Choices == nil {
		return ev
	}
	resolve := func(c *Collector, s *models.Session, text string) (models.Choice, bool) {
		return ResolveChoice(text, st.Choices(c, s))
	}
	if st.Resolve != nil {
		resolve = st.Resolve
	}
	if choice, ok := resolve(c, sess, ev.Text); ok {
		return ChoiceEvent(choice.Value)
	}
	return ev
}

func (c *Collector) attach(ctx context.Context, sess *models.Session, st *Step, ev Event) (Outcome, error) {
	added := 0
	for _, att := range ev.Attachments {
		if !att.IsImage() {
			continue
		}
		if len(sess.Attachments) >= MaxBatchAttachments {
			slog.Warn("Collector attach: batch is full, dropping attachment", "conversation", sess.ConversationID)
			break
		}
		next, err := c.store.AddAttachment(ctx, sess.ConversationID, att)
		if err != nil {
			return nil, fmt.Errorf("failed to add attachment: %w", err)
		}
		sess = next
		added++
	}
	if added == 0 {
		return c.rejected(sess, st, c.hint(ctx, sess, st)), nil
	}
	slog.Debug("Collector attach", "conversation", sess.ConversationID, "added", added, "batch", len(sess.Attachments))
	return OutcomeAdvanced{Session: sess}, nil
}

func (c *Collector) rejected(sess *models.Session, st *Step, message string) OutcomeRejected {
	metrics.ValidationRejected(string(sess.Flow), string(st.State))
	out := OutcomeRejected{Message: message}
	if st.Choices != nil {
		out.Choices = st.Choices(c, sess)
	}
	return out
}

// hint is the message for an event the step cannot take at all.
func (c *Collector) hint(ctx context.Context, sess *models.Session, st *Step) string {
	switch {
	case st.Attach:
		return catalog.Fill(c.cat.Texts.DocExpectPhoto, "analyze", c.cat.Texts.DocAnalyzeLabel)
	case st.Choices != nil:
		return c.cat.Texts.ChoiceRejected
	default:
		return st.Prompt(ctx, c, sess).Text
	}
}

// advise asks the advisor about cargo. Failures never leave this method: the catalogue
// fallback text is returned instead.
func (c *Collector) advise(ctx context.Context, cargo string) string {
	fallback := c.cat.Texts.AdvisoryFallback
	if c.advisor == nil {
		return fallback
	}
	start := time.Now()
	text, err := c.advisor.Suggest(ctx, cargo)
	metrics.ObserveCall("advisor", start)
	if err != nil {
		metrics.CollaboratorFailed("advisor")
		slog.Warn("Collector advise failed, using fallback", "error", fmt.Errorf("%w: %w", ErrCollaboratorUnavailable, err))
		return fallback
	}
	if strings.TrimSpace(text) == "" {
		return fallback
	}
	return strings.TrimSpace(text)
}
