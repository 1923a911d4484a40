// Package store provides storage backends for the logistics bot.
//
// It holds conversation sessions, submitted records and the inbound message
// deduplication log. An in-memory store serves tests and single-process runs;
// SQLite and PostgreSQL stores persist across restarts.
package store

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN string
}

// Option configures a store.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") || strings.Contains(lower, "user=") {
		return "postgres"
	}
	return "sqlite3"
}

// SessionRow is the persisted form of a conversation session. Data is the JSON
// encoding produced by the session package.
type SessionRow struct {
	ConversationID string
	Flow           string
	Step           string
	Data           string
	UpdatedAt      time.Time
}

// SessionRepo persists conversation sessions keyed by conversation id.
type SessionRepo interface {
	// SaveSession inserts or replaces the row for row.ConversationID.
	SaveSession(ctx context.Context, row SessionRow) error
	// GetSession returns nil, nil when no row exists.
	GetSession(ctx context.Context, conversationID string) (*SessionRow, error)
	// DeleteSession removes the row. Deleting a missing row is not an error.
	DeleteSession(ctx context.Context, conversationID string) error
	// ListSessions returns every stored row, used to resume work after a restart.
	ListSessions(ctx context.Context) ([]SessionRow, error)
}

// Submission is one record appended to the submission log.
type Submission struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Columns   []string  `json:"columns"`
	CreatedAt time.Time `json:"created_at"`
}

// SubmissionRepo is the append-only submission log.
type SubmissionRepo interface {
	AddSubmission(ctx context.Context, sub Submission) error
	// ListSubmissions returns the most recent submissions first. limit <= 0 means no limit.
	ListSubmissions(ctx context.Context, limit int) ([]Submission, error)
	// CountSubmissions returns the number of submissions per kind.
	CountSubmissions(ctx context.Context) (map[string]int, error)
}

// Store is the full persistence surface used by the bot.
type Store interface {
	SessionRepo
	SubmissionRepo
	DedupRepo
	Close() error
}

// Open returns the store for dsn: in-memory when dsn is empty, PostgreSQL for
// connection strings and SQLite for file paths.
func Open(dsn string) (Store, error) {
	if dsn == "" {
		slog.Debug("store.Open: no DSN, using in-memory store")
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(dsn) == "postgres" {
		return NewPostgresStore(WithPostgresDSN(dsn))
	}
	return NewSQLiteStore(WithSQLiteDSN(dsn))
}
