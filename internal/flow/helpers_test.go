package flow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/iskan70/my-logistic-bot/internal/catalog"
	"github.com/iskan70/my-logistic-bot/internal/models"
	"github.com/iskan70/my-logistic-bot/internal/session"
)

type sentMessage struct {
	To      string
	Text    string
	Choices []models.Choice
}

// mockSender records every outbound message.
type mockSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (m *mockSender) Send(_ context.Context, to, text string, choices []models.Choice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMessage{To: to, Text: text, Choices: choices})
	return nil
}

func (m *mockSender) messages(to string) []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentMessage
	for _, s := range m.sent {
		if s.To == to {
			out = append(out, s)
		}
	}
	return out
}

func (m *mockSender) last(t *testing.T, to string) sentMessage {
	t.Helper()
	msgs := m.messages(to)
	if len(msgs) == 0 {
		t.Fatalf("no message sent to %s", to)
	}
	return msgs[len(msgs)-1]
}

type mockSink struct {
	mu      sync.Mutex
	records [][]string
	err     error
}

func (m *mockSink) AppendRecord(_ context.Context, fields []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, append([]string(nil), fields...))
	return m.err
}

func (m *mockSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type mockAdvisor struct {
	reply string
	err   error
	calls int
}

func (m *mockAdvisor) Suggest(_ context.Context, text string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.reply + " " + text, nil
}

type mockConsultant struct {
	reply     string
	err       error
	questions []string
}

func (m *mockConsultant) Consult(_ context.Context, q string) (string, error) {
	m.questions = append(m.questions, q)
	return m.reply, m.err
}

type mockAnalyzer struct {
	mu      sync.Mutex
	report  string
	err     error
	batches [][]models.Attachment
}

func (m *mockAnalyzer) AnalyzeDocuments(_ context.Context, images []models.Attachment) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, images)
	return m.report, m.err
}

// manualTimer runs callbacks only when the test fires them.
type manualTimer struct {
	mu        sync.Mutex
	next      int
	pending   map[string]func()
	cancelled []string
}

func newManualTimer() *manualTimer {
	return &manualTimer{pending: make(map[string]func())}
}

func (m *manualTimer) ScheduleAfter(_ time.Duration, fn func()) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	id := fmt.Sprintf("manual_%d", m.next)
	m.pending[id] = fn
	return id, nil
}

func (m *manualTimer) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pending[id]; ok {
		delete(m.pending, id)
		m.cancelled = append(m.cancelled, id)
	}
	return nil
}

func (m *manualTimer) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = make(map[string]func())
}

func (m *manualTimer) pendingIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.pending))
	for id := range m.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// fireAll runs every pending callback.
func (m *manualTimer) fireAll() {
	m.mu.Lock()
	fns := make([]func(), 0, len(m.pending))
	for id, fn := range m.pending {
		fns = append(fns, fn)
		delete(m.pending, id)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

var errBoom = errors.New("boom")

func newTestCollector(t *testing.T, advisor Advisor) (*Collector, *session.MemoryStore) {
	t.Helper()
	store := session.NewMemoryStore()
	return NewCollector(store, catalog.Default(), advisor), store
}

// submitAll feeds inputs in order and fails on anything but an advance or completion.
func submitAll(t *testing.T, c *Collector, id string, events ...Event) Outcome {
	t.Helper()
	var out Outcome
	for i, ev := range events {
		var err error
		out, err = c.Submit(context.Background(), id, ev)
		if err != nil {
			t.Fatalf("event %d (%+v): unexpected error: %v", i, ev, err)
		}
		if r, ok := out.(OutcomeRejected); ok {
			t.Fatalf("event %d (%+v): rejected: %s", i, ev, r.Message)
		}
	}
	return out
}

func mustGet(t *testing.T, store session.Store, id string) *models.Session {
	t.Helper()
	s, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s): %v", id, err)
	}
	return s
}
