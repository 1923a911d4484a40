package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, row SessionRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (conversation_id, flow, step, data, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (conversation_id) DO UPDATE SET
			flow = EXCLUDED.flow,
			step = EXCLUDED.step,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at`,
		row.ConversationID, row.Flow, row.Step, row.Data, row.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "conversationID", row.ConversationID)
		return fmt.Errorf("failed to save session %s: %w", row.ConversationID, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "conversationID", row.ConversationID, "flow", row.Flow, "step", row.Step)
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, conversationID string) (*SessionRow, error) {
	var row SessionRow
	err := s.db.QueryRowContext(ctx,
		`SELECT conversation_id, flow, step, data, updated_at FROM sessions WHERE conversation_id = $1`, conversationID).
		Scan(&row.ConversationID, &row.Flow, &row.Step, &row.Data, &row.UpdatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetSession not found", "conversationID", conversationID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to get session %s: %w", conversationID, err)
	}
	return &row, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context) ([]SessionRow, error) {
	return listSessions(ctx, s.db)
}

func (s *PostgresStore) DeleteSession(ctx context.Context, conversationID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE conversation_id = $1`, conversationID); err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to delete session %s: %w", conversationID, err)
	}
	return nil
}

func (s *PostgresStore) AddSubmission(ctx context.Context, sub Submission) error {
	cols, err := json.Marshal(sub.Columns)
	if err != nil {
		return fmt.Errorf("failed to encode submission columns: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO submissions (id, kind, columns, created_at) VALUES ($1, $2, $3, $4)`,
		sub.ID, sub.Kind, string(cols), sub.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AddSubmission failed", "error", err, "id", sub.ID, "kind", sub.Kind)
		return fmt.Errorf("failed to insert submission %s: %w", sub.ID, err)
	}
	slog.Debug("PostgresStore AddSubmission succeeded", "id", sub.ID, "kind", sub.Kind)
	return nil
}

func (s *PostgresStore) ListSubmissions(ctx context.Context, limit int) ([]Submission, error) {
	query := `SELECT id, kind, columns, created_at FROM submissions ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("PostgresStore ListSubmissions query failed", "error", err)
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()
	return scanSubmissions(rows)
}

func (s *PostgresStore) CountSubmissions(ctx context.Context) (map[string]int, error) {
	return countSubmissions(ctx, s.db)
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	return s.db.Close()
}
