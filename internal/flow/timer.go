package flow

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Timer schedules deferred callbacks.
type Timer interface {
	ScheduleAfter(delay time.Duration, fn func()) (string, error)
	Cancel(id string) error
	Stop()
}

// SimpleTimer implements Timer with time.AfterFunc.
type SimpleTimer struct {
	timers map[string]*time.Timer
	mu     sync.Mutex
	nextID int64
}

var _ Timer = (*SimpleTimer)(nil)

// NewSimpleTimer creates a new SimpleTimer.
func NewSimpleTimer() *SimpleTimer {
	return &SimpleTimer{
		timers: make(map[string]*time.Timer),
	}
}

// ScheduleAfter schedules fn to run after delay and returns its id.
func (t *SimpleTimer) ScheduleAfter(delay time.Duration, fn func()) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := fmt.Sprintf("timer_%d", t.nextID)

	t.timers[id] = time.AfterFunc(delay, func() {
		t.mu.Lock()
		delete(t.timers, id)
		t.mu.Unlock()
		slog.Debug("SimpleTimer executing scheduled function", "id", id)
		fn()
	})
	slog.Debug("SimpleTimer ScheduleAfter", "id", id, "delay", delay)
	return id, nil
}

// Cancel stops a scheduled callback. Unknown ids are ignored.
func (t *SimpleTimer) Cancel(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tm, ok := t.timers[id]; ok {
		tm.Stop()
		delete(t.timers, id)
		slog.Debug("SimpleTimer Cancel succeeded", "id", id)
	}
	return nil
}

// Stop cancels all scheduled callbacks.
func (t *SimpleTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tm := range t.timers {
		tm.Stop()
	}
	slog.Info("SimpleTimer stopped all timers", "count", len(t.timers))
	t.timers = make(map[string]*time.Timer)
}

// Active returns the number of pending callbacks.
func (t *SimpleTimer) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}
