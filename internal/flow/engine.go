package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/iskan70/my-logistic-bot/internal/catalog"
	"github.com/iskan70/my-logistic-bot/internal/customs"
	"github.com/iskan70/my-logistic-bot/internal/metrics"
	"github.com/iskan70/my-logistic-bot/internal/models"
	"github.com/iskan70/my-logistic-bot/internal/session"
	"github.com/shopspring/decimal"
)

// DefaultDocBatchIdle is how long a document batch stays open after the last photo.
const DefaultDocBatchIdle = 6 * time.Second

// Engine routes inbound events: commands, menu selections, active flows and the
// consultation fallback. Events for one conversation are handled one at a time;
// different conversations proceed in parallel.
type Engine struct {
	store      session.Store
	cat        *catalog.Catalog
	sender     Sender
	collector  *Collector
	advisor    Advisor
	sink       Sink
	consultant Consultant
	analyzer   DocAnalyzer
	timer      Timer
	batchIdle  time.Duration
	now        func() time.Time

	locks *keyedMutex

	mu      sync.Mutex
	names   map[string]string
	batches map[string]batch
}

// batch tracks the pending idle timer of a document batch.
type batch struct {
	gen     uint64
	timerID string
}

// Option configures an Engine.
type Option func(*Engine)

// WithAdvisor sets the tariff code advisor used by the customs flow.
func WithAdvisor(a Advisor) Option {
	return func(e *Engine) { e.advisor = a }
}

// WithSink sets the submission sink.
func WithSink(s Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithConsultant sets the free-form question answerer.
func WithConsultant(c Consultant) Option {
	return func(e *Engine) { e.consultant = c }
}

// WithDocAnalyzer sets the document vision analyzer.
func WithDocAnalyzer(a DocAnalyzer) Option {
	return func(e *Engine) { e.analyzer = a }
}

// WithTimer replaces the timer that closes idle document batches.
func WithTimer(t Timer) Option {
	return func(e *Engine) { e.timer = t }
}

// WithDocBatchIdle sets the idle timeout after which a document batch is analysed.
func WithDocBatchIdle(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.batchIdle = d
		}
	}
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine. Missing collaborators degrade to their fallback texts.
func NewEngine(store session.Store, cat *catalog.Catalog, sender Sender, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		cat:       cat,
		sender:    sender,
		batchIdle: DefaultDocBatchIdle,
		now:       time.Now,
		locks:     newKeyedMutex(),
		names:     make(map[string]string),
		batches:   make(map[string]batch),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.timer == nil {
		e.timer = NewSimpleTimer()
	}
	e.collector = NewCollector(store, cat, e.advisor)
	slog.Debug("NewEngine created", "sink_set", e.sink != nil, "advisor_set", e.advisor != nil,
		"consultant_set", e.consultant != nil, "analyzer_set", e.analyzer != nil, "batch_idle", e.batchIdle)
	return e
}

// Collector exposes the engine's field collector.
func (e *Engine) Collector() *Collector {
	return e.collector
}

// Stop cancels pending document batch timers.
func (e *Engine) Stop() {
	e.timer.Stop()
}

// HandleEvent processes one inbound event for the conversation.
func (e *Engine) HandleEvent(ctx context.Context, conversationID, displayName string, ev Event) error {
	if conversationID == "" {
		return models.ErrEmptyConversationID
	}
	unlock := e.locks.Lock(conversationID)
	defer unlock()

	if displayName != "" {
		e.mu.Lock()
		e.names[conversationID] = displayName
		e.mu.Unlock()
	}
	slog.Debug("Engine HandleEvent", "conversation", conversationID, "kind", ev.Kind)
	return e.handle(ctx, conversationID, ev)
}

func (e *Engine) handle(ctx context.Context, id string, ev Event) error {
	if ev.Kind == EventCommand {
		return e.command(ctx, id, ev.Text)
	}

	active, err := e.activeSession(ctx, id)
	if err != nil {
		return err
	}

	if ev.Kind == EventText {
		if choice, ok := e.menuChoice(ev.Text, active == nil); ok {
			return e.selectMenu(ctx, id, choice, active)
		}
		if active != nil && active.Flow == models.FlowDocAnalysis {
			if choice, ok := ResolveChoice(ev.Text, e.cat.DocChoices()); ok && choice.Value == catalog.DocBackValue {
				return e.cancel(ctx, id, active)
			}
		}
	}

	outcome, err := e.collector.Submit(ctx, id, ev)
	switch {
	case errors.Is(err, ErrNotInFlow):
		return e.fallback(ctx, id, ev)
	case errors.Is(err, ErrInvariantViolation):
		return e.recover(ctx, id, active, err)
	case err != nil:
		slog.Error("Engine Submit failed", "conversation", id, "error", err)
		return err
	}

	switch o := outcome.(type) {
	case OutcomeRejected:
		return e.send(ctx, id, o.Message, o.Choices)
	case OutcomeAdvanced:
		if o.Session.Flow == models.FlowDocAnalysis && o.Prompt.Text == "" {
			e.armBatch(id)
			return nil
		}
		return e.send(ctx, id, o.Prompt.Text, o.Prompt.Choices)
	case OutcomeCompleted:
		return e.finalize(ctx, id, o.Session)
	}
	return fmt.Errorf("unexpected outcome %T", outcome)
}

func (e *Engine) command(ctx context.Context, id, cmd string) error {
	active, err := e.activeSession(ctx, id)
	if err != nil {
		return err
	}
	switch cmd {
	case CommandStart:
		if err := e.discard(ctx, id, active, "restart"); err != nil {
			return err
		}
		welcome := catalog.Fill(e.cat.Texts.Welcome, "name", e.displayName(id), "company", e.cat.Company)
		return e.send(ctx, id, welcome, e.cat.MainMenu())
	case CommandCancel:
		return e.cancel(ctx, id, active)
	default:
		return e.send(ctx, id, e.cat.Texts.Menu, e.cat.MainMenu())
	}
}

func (e *Engine) cancel(ctx context.Context, id string, active *models.Session) error {
	if err := e.discard(ctx, id, active, "cancel"); err != nil {
		return err
	}
	return e.send(ctx, id, e.cat.Texts.Cancelled, e.cat.MainMenu())
}

// menuChoice matches text against the main menu. Labels match in any state, so a menu label
// typed as a free-text answer leaves the current flow and its collected fields are dropped.
// Values and option numbers match only when no flow is active, where they cannot collide
// with step input.
func (e *Engine) menuChoice(text string, idle bool) (models.Choice, bool) {
	t := strings.TrimSpace(text)
	menu := e.cat.MainMenu()
	for _, c := range menu {
		if strings.EqualFold(t, strings.TrimSpace(c.Label)) {
			return c, true
		}
	}
	if !idle {
		return models.Choice{}, false
	}
	return ResolveChoice(t, menu)
}

func (e *Engine) selectMenu(ctx context.Context, id string, choice models.Choice, active *models.Session) error {
	switch choice.Value {
	case catalog.MenuOrder:
		return e.begin(ctx, id, models.FlowOrderIntake, active)
	case catalog.MenuCustoms:
		return e.begin(ctx, id, models.FlowCustomsCalc, active)
	case catalog.MenuDocuments:
		return e.begin(ctx, id, models.FlowDocAnalysis, active)
	case catalog.MenuManager:
		return e.send(ctx, id, e.cat.Texts.Manager, e.cat.MainMenu())
	}
	return e.send(ctx, id, e.cat.Texts.Menu, e.cat.MainMenu())
}

// begin starts flow, discarding whatever the conversation was doing.
func (e *Engine) begin(ctx context.Context, id string, flow models.FlowType, active *models.Session) error {
	if active != nil {
		metrics.FlowCancelled(string(active.Flow), "superseded")
		slog.Info("Engine discarding unfinished flow", "conversation", id, "flow", active.Flow, "step", active.Step, "next_flow", flow)
	}
	e.dropBatch(id)
	_, prompt, err := e.collector.Begin(ctx, id, flow)
	if err != nil {
		return err
	}
	metrics.FlowStarted(string(flow))
	return e.send(ctx, id, prompt.Text, prompt.Choices)
}

// fallback handles events that arrive outside any flow.
func (e *Engine) fallback(ctx context.Context, id string, ev Event) error {
	switch ev.Kind {
	case EventMedia:
		if err := e.begin(ctx, id, models.FlowDocAnalysis, nil); err != nil {
			return err
		}
		return e.handle(ctx, id, ev)
	case EventText:
		if e.cat.IsGeographyQuestion(ev.Text) {
			return e.send(ctx, id, e.cat.Texts.Geography, nil)
		}
		if _, ok := ValidateText(ev.Text); !ok {
			return e.send(ctx, id, e.cat.Texts.Menu, e.cat.MainMenu())
		}
		return e.consult(ctx, id, ev.Text)
	default:
		return e.send(ctx, id, e.cat.Texts.Menu, e.cat.MainMenu())
	}
}

func (e *Engine) consult(ctx context.Context, id, question string) error {
	if e.consultant == nil {
		return e.send(ctx, id, e.cat.Texts.ConsultantFallback, nil)
	}
	start := time.Now()
	answer, err := e.consultant.Consult(ctx, question)
	metrics.ObserveCall("consultant", start)
	if err != nil || strings.TrimSpace(answer) == "" {
		if err == nil {
			err = errors.New("empty answer")
		}
		metrics.CollaboratorFailed("consultant")
		slog.Warn("Engine consult failed, sending fallback", "conversation", id, "error", fmt.Errorf("%w: %w", ErrCollaboratorUnavailable, err))
		return e.send(ctx, id, e.cat.Texts.ConsultantFallback, nil)
	}
	reply := catalog.Fill(e.cat.Texts.ConsultantReply, "company", e.cat.Company, "answer", strings.TrimSpace(answer))
	return e.send(ctx, id, reply, nil)
}

// finalize runs the terminal action of a completed flow and clears the session whatever
// the action's outcome.
func (e *Engine) finalize(ctx context.Context, id string, sess *models.Session) error {
	e.dropBatch(id)
	var err error
	switch sess.Flow {
	case models.FlowOrderIntake:
		err = e.submitOrder(ctx, id, sess)
	case models.FlowCustomsCalc:
		err = e.presentEstimate(ctx, id, sess)
	case models.FlowDocAnalysis:
		err = e.analyzeBatch(ctx, id, sess)
	default:
		err = fmt.Errorf("%w: no finalizer for flow %q", ErrInvariantViolation, sess.Flow)
	}
	if errors.Is(err, ErrInvariantViolation) {
		return e.recover(ctx, id, sess, err)
	}
	if clearErr := e.store.Clear(ctx, id); clearErr != nil {
		slog.Error("Engine failed to clear completed session", "conversation", id, "error", clearErr)
		if err == nil {
			err = clearErr
		}
	}
	metrics.FlowCompleted(string(sess.Flow))
	return err
}

func (e *Engine) submitOrder(ctx context.Context, id string, sess *models.Session) error {
	rec := models.OrderRecord(sess, e.now())
	text := e.cat.Texts.OrderAccepted
	if err := e.appendRecord(ctx, rec); err != nil {
		text = e.cat.Texts.OrderReceived
	}
	slog.Info("Engine order intake completed", "conversation", id)
	return e.send(ctx, id, text, e.cat.MainMenu())
}

func (e *Engine) presentEstimate(ctx context.Context, id string, sess *models.Session) error {
	amounts := make(map[models.FieldName]decimal.Decimal, 3)
	for _, f := range []models.FieldName{models.FieldPrice, models.FieldDutyPercent, models.FieldVATPercent} {
		raw, _ := sess.Field(f)
		v, err := customs.ParseAmount(raw)
		if err != nil {
			return fmt.Errorf("%w: field %s holds %q", ErrInvariantViolation, f, raw)
		}
		amounts[f] = v
	}
	result := customs.Calculate(amounts[models.FieldPrice], amounts[models.FieldDutyPercent], amounts[models.FieldVATPercent])
	cargo, _ := sess.Field(models.FieldCargoName)
	slog.Info("Engine customs estimate completed", "conversation", id, "total", result.Total.String())
	return e.send(ctx, id, result.Render(e.cat.Texts.CustomsResult, cargo), e.cat.MainMenu())
}

func (e *Engine) analyzeBatch(ctx context.Context, id string, sess *models.Session) error {
	report, err := e.analyze(ctx, sess.Attachments)
	if err != nil {
		metrics.CollaboratorFailed("analyzer")
		slog.Warn("Engine document analysis failed", "conversation", id, "images", len(sess.Attachments), "error", err)
		return e.send(ctx, id, e.cat.Texts.DocFailed, e.cat.MainMenu())
	}
	sendErr := e.send(ctx, id, catalog.Fill(e.cat.Texts.DocReport, "report", report), e.cat.MainMenu())
	// The participant already has the report; a sink failure is only logged.
	_ = e.appendRecord(ctx, models.DocAnalysisRecord(e.displayName(id), report, e.now()))
	return sendErr
}

func (e *Engine) analyze(ctx context.Context, images []models.Attachment) (string, error) {
	if e.analyzer == nil {
		return "", fmt.Errorf("%w: no document analyzer configured", ErrCollaboratorUnavailable)
	}
	start := time.Now()
	report, err := e.analyzer.AnalyzeDocuments(ctx, images)
	metrics.ObserveCall("analyzer", start)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCollaboratorUnavailable, err)
	}
	report = strings.TrimSpace(report)
	if report == "" {
		return "", fmt.Errorf("%w: empty report", ErrCollaboratorUnavailable)
	}
	return report, nil
}

// appendRecord writes rec to the sink exactly once. Failures are logged and counted.
func (e *Engine) appendRecord(ctx context.Context, rec models.Record) error {
	if e.sink == nil {
		err := fmt.Errorf("%w: no submission sink configured", ErrCollaboratorUnavailable)
		metrics.SinkAppend(rec.Kind, err)
		slog.Warn("Engine appendRecord skipped", "kind", rec.Kind, "error", err)
		return err
	}
	start := time.Now()
	err := e.sink.AppendRecord(ctx, rec.Columns())
	metrics.ObserveCall("sink", start)
	metrics.SinkAppend(rec.Kind, err)
	if err != nil {
		metrics.CollaboratorFailed("sink")
		slog.Error("Engine appendRecord failed", "kind", rec.Kind, "error", err)
		return fmt.Errorf("%w: %w", ErrCollaboratorUnavailable, err)
	}
	slog.Debug("Engine appendRecord succeeded", "kind", rec.Kind)
	return nil
}

// RecoverSession resumes work on a session loaded after a restart. Leftover finished
// sessions are cleared and open document batches get a fresh idle timer, so photos sent
// before the restart are still analysed.
func (e *Engine) RecoverSession(ctx context.Context, sess *models.Session) error {
	id := sess.ConversationID
	if id == "" {
		return models.ErrEmptyConversationID
	}
	unlock := e.locks.Lock(id)
	defer unlock()

	switch {
	case sess.Flow == models.FlowNone || sess.Completed():
		slog.Debug("Engine RecoverSession clearing finished session", "conversation", id, "flow", sess.Flow)
		return e.store.Clear(ctx, id)
	case sess.Flow == models.FlowDocAnalysis && len(sess.Attachments) > 0:
		slog.Info("Engine RecoverSession re-arming document batch", "conversation", id, "attachments", len(sess.Attachments))
		e.armBatch(id)
	}
	return nil
}

// recover clears a session that broke its invariants and restarts its flow from the top.
func (e *Engine) recover(ctx context.Context, id string, sess *models.Session, cause error) error {
	slog.Error("Engine restarting flow after invariant violation", "conversation", id, "error", cause)
	e.dropBatch(id)
	if err := e.store.Clear(ctx, id); err != nil {
		return fmt.Errorf("failed to clear session after %v: %w", cause, err)
	}
	if sess == nil {
		return e.send(ctx, id, e.cat.Texts.FlowRestarted, e.cat.MainMenu())
	}
	metrics.FlowCancelled(string(sess.Flow), "invariant")
	if err := e.send(ctx, id, e.cat.Texts.FlowRestarted, nil); err != nil {
		return err
	}
	_, prompt, err := e.collector.Begin(ctx, id, sess.Flow)
	if err != nil {
		return err
	}
	metrics.FlowStarted(string(sess.Flow))
	return e.send(ctx, id, prompt.Text, prompt.Choices)
}

// discard clears the conversation's session, if any.
func (e *Engine) discard(ctx context.Context, id string, active *models.Session, reason string) error {
	e.dropBatch(id)
	if active != nil {
		metrics.FlowCancelled(string(active.Flow), reason)
	}
	if err := e.store.Clear(ctx, id); err != nil {
		slog.Error("Engine failed to clear session", "conversation", id, "error", err)
		return err
	}
	return nil
}

// activeSession returns the conversation's unfinished session or nil.
func (e *Engine) activeSession(ctx context.Context, id string) (*models.Session, error) {
	sess, err := e.store.Get(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess.Flow == models.FlowNone || sess.Completed() {
		return nil, nil
	}
	return sess, nil
}

// armBatch (re)starts the idle timer of the conversation's document batch.
func (e *Engine) armBatch(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.batches[id]
	if prev.timerID != "" {
		_ = e.timer.Cancel(prev.timerID)
	}
	gen := prev.gen + 1
	timerID, err := e.timer.ScheduleAfter(e.batchIdle, func() { e.closeBatch(id, gen) })
	if err != nil {
		slog.Error("Engine armBatch failed to schedule", "conversation", id, "error", err)
		return
	}
	e.batches[id] = batch{gen: gen, timerID: timerID}
}

func (e *Engine) dropBatch(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := e.batches[id]; ok {
		if b.timerID != "" {
			_ = e.timer.Cancel(b.timerID)
		}
		delete(e.batches, id)
	}
}

// closeBatch is the idle timer callback. It analyses the batch unless a newer photo
// re-armed the timer or the flow already ended.
func (e *Engine) closeBatch(id string, gen uint64) {
	unlock := e.locks.Lock(id)
	defer unlock()

	e.mu.Lock()
	current, ok := e.batches[id]
	e.mu.Unlock()
	if !ok || current.gen != gen {
		return
	}
	ctx := context.Background()
	active, err := e.activeSession(ctx, id)
	if err != nil || active == nil || active.Flow != models.FlowDocAnalysis {
		e.dropBatch(id)
		return
	}
	slog.Debug("Engine closing idle document batch", "conversation", id)
	if err := e.handle(ctx, id, ChoiceEvent(catalog.DocAnalyzeValue)); err != nil {
		slog.Error("Engine closeBatch failed", "conversation", id, "error", err)
	}
}

func (e *Engine) displayName(id string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if name, ok := e.names[id]; ok {
		return name
	}
	return ""
}

func (e *Engine) send(ctx context.Context, id, text string, choices []models.Choice) error {
	if text == "" {
		return nil
	}
	if err := e.sender.Send(ctx, id, text, choices); err != nil {
		slog.Error("Engine send failed", "conversation", id, "error", err)
		return fmt.Errorf("failed to send to %s: %w", id, err)
	}
	return nil
}
