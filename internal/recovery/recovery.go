// Package recovery resumes conversation work after a restart.
//
// Sessions in a persistent store outlive the process, but in-process state such as document
// batch timers does not. At startup the Manager walks every stored session and hands it to
// each registered Recoverable.
package recovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/iskan70/my-logistic-bot/internal/models"
	"github.com/iskan70/my-logistic-bot/internal/session"
)

// Recoverable restores the in-process state belonging to one stored session.
type Recoverable interface {
	RecoverSession(ctx context.Context, sess *models.Session) error
}

// Manager orchestrates recovery of all registered components.
type Manager struct {
	sessions     session.Lister
	recoverables []Recoverable
}

// NewManager creates a manager reading sessions from lister.
func NewManager(lister session.Lister) *Manager {
	return &Manager{sessions: lister}
}

// Register adds a component to recover.
func (m *Manager) Register(r Recoverable) {
	m.recoverables = append(m.recoverables, r)
}

// RecoverAll hands every stored session to every registered component. A failure for one
// session does not stop the others; the error reports how many failed.
func (m *Manager) RecoverAll(ctx context.Context) error {
	sessions, err := m.sessions.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	slog.Info("Recovery starting", "sessions", len(sessions), "components", len(m.recoverables))

	failed := 0
	for _, sess := range sessions {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, r := range m.recoverables {
			if err := r.RecoverSession(ctx, sess); err != nil {
				slog.Error("Recovery failed for session", "conversation", sess.ConversationID, "component", fmt.Sprintf("%T", r), "error", err)
				failed++
			}
		}
	}

	slog.Info("Recovery completed", "sessions", len(sessions), "errors", failed)
	if failed > 0 {
		return fmt.Errorf("recovery completed with %d errors over %d sessions", failed, len(sessions))
	}
	return nil
}
