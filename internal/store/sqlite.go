package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// SQLite allows a single writer; serialising through one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "path", dsn)

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveSession(ctx context.Context, row SessionRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (conversation_id, flow, step, data, updated_at) VALUES (?, ?, ?, ?, ?)`,
		row.ConversationID, row.Flow, row.Step, row.Data, row.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "conversationID", row.ConversationID)
		return fmt.Errorf("failed to save session %s: %w", row.ConversationID, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "conversationID", row.ConversationID, "flow", row.Flow, "step", row.Step)
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, conversationID string) (*SessionRow, error) {
	var row SessionRow
	err := s.db.QueryRowContext(ctx,
		`SELECT conversation_id, flow, step, data, updated_at FROM sessions WHERE conversation_id = ?`, conversationID).
		Scan(&row.ConversationID, &row.Flow, &row.Step, &row.Data, &row.UpdatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetSession not found", "conversationID", conversationID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to get session %s: %w", conversationID, err)
	}
	return &row, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]SessionRow, error) {
	return listSessions(ctx, s.db)
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, conversationID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE conversation_id = ?`, conversationID); err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to delete session %s: %w", conversationID, err)
	}
	slog.Debug("SQLiteStore DeleteSession succeeded", "conversationID", conversationID)
	return nil
}

func (s *SQLiteStore) AddSubmission(ctx context.Context, sub Submission) error {
	cols, err := json.Marshal(sub.Columns)
	if err != nil {
		return fmt.Errorf("failed to encode submission columns: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO submissions (id, kind, columns, created_at) VALUES (?, ?, ?, ?)`,
		sub.ID, sub.Kind, string(cols), sub.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddSubmission failed", "error", err, "id", sub.ID, "kind", sub.Kind)
		return fmt.Errorf("failed to insert submission %s: %w", sub.ID, err)
	}
	slog.Debug("SQLiteStore AddSubmission succeeded", "id", sub.ID, "kind", sub.Kind)
	return nil
}

func (s *SQLiteStore) ListSubmissions(ctx context.Context, limit int) ([]Submission, error) {
	query := `SELECT id, kind, columns, created_at FROM submissions ORDER BY created_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("SQLiteStore ListSubmissions query failed", "error", err)
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()
	return scanSubmissions(rows)
}

func (s *SQLiteStore) CountSubmissions(ctx context.Context) (map[string]int, error) {
	return countSubmissions(ctx, s.db)
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}

// listSessions reads the sessions table; the query has no placeholders so both drivers share it.
func listSessions(ctx context.Context, db *sql.DB) ([]SessionRow, error) {
	rows, err := db.QueryContext(ctx, `SELECT conversation_id, flow, step, data, updated_at FROM sessions ORDER BY updated_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()
	var out []SessionRow
	for rows.Next() {
		var row SessionRow
		if err := rows.Scan(&row.ConversationID, &row.Flow, &row.Step, &row.Data, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func scanSubmissions(rows *sql.Rows) ([]Submission, error) {
	var out []Submission
	for rows.Next() {
		var sub Submission
		var cols string
		if err := rows.Scan(&sub.ID, &sub.Kind, &cols, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan submission failed: %w", err)
		}
		if err := json.Unmarshal([]byte(cols), &sub.Columns); err != nil {
			return nil, fmt.Errorf("decode submission %s columns: %w", sub.ID, err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate submission rows: %w", err)
	}
	return out, nil
}

func countSubmissions(ctx context.Context, db *sql.DB) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM submissions GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to count submissions: %w", err)
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan submission count failed: %w", err)
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}
