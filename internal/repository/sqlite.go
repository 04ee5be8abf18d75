package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/advisor/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// SQLiteStore implements CallStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to an in-memory database is a separate database.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS relay_calls (
			call_id TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			endpoint_kind TEXT NOT NULL,
			backend TEXT NOT NULL,
			attachment_mime TEXT,
			attachment_mode TEXT,
			status TEXT NOT NULL,
			error TEXT,
			latency_ms INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			finished_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_relay_calls_started ON relay_calls(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_relay_calls_provider ON relay_calls(provider, started_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateCall inserts a new call in its started state.
func (s *SQLiteStore) CreateCall(ctx context.Context, call *domain.RelayCall) error {
	if call.StartedAt.IsZero() {
		call.StartedAt = time.Now()
	}
	if call.Status == "" {
		call.Status = domain.CallStatusStarted
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO relay_calls (call_id, provider, endpoint_kind, backend, attachment_mime, attachment_mode, status, error, latency_ms, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		call.CallID, call.Provider, string(call.EndpointKind), string(call.Backend),
		nullString(call.AttachmentMime), nullString(string(call.AttachmentMode)),
		string(call.Status), nullString(call.Error), call.LatencyMs, call.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create relay call: %w", err)
	}
	return nil
}

// CompleteCall stores the outcome of a call.
func (s *SQLiteStore) CompleteCall(ctx context.Context, callID string, status domain.CallStatus, errMsg string, latencyMs int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE relay_calls SET status = ?, error = ?, latency_ms = ?, finished_at = ? WHERE call_id = ?`,
		string(status), nullString(errMsg), latencyMs, time.Now().UTC(), callID)
	if err != nil {
		return fmt.Errorf("failed to complete relay call: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("relay call %s not found", callID)
	}
	return nil
}

// GetCall returns the call or nil when it does not exist.
func (s *SQLiteStore) GetCall(ctx context.Context, callID string) (*domain.RelayCall, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT call_id, provider, endpoint_kind, backend, attachment_mime, attachment_mode, status, error, latency_ms, started_at, finished_at
		 FROM relay_calls WHERE call_id = ?`, callID)
	call, err := scanCall(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return call, nil
}

// ListCalls returns the most recent calls, newest first.
func (s *SQLiteStore) ListCalls(ctx context.Context, limit int) ([]domain.RelayCall, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT call_id, provider, endpoint_kind, backend, attachment_mime, attachment_mode, status, error, latency_ms, started_at, finished_at
		 FROM relay_calls ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	calls := []domain.RelayCall{}
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, *call)
	}
	return calls, rows.Err()
}

// ListStaleCalls returns calls still STARTED that began before startedBefore, oldest first.
func (s *SQLiteStore) ListStaleCalls(ctx context.Context, startedBefore time.Time, limit int) ([]domain.RelayCall, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT call_id, provider, endpoint_kind, backend, attachment_mime, attachment_mode, status, error, latency_ms, started_at, finished_at
		 FROM relay_calls WHERE status = ? AND started_at < ? ORDER BY started_at ASC LIMIT ?`,
		string(domain.CallStatusStarted), startedBefore.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	calls := []domain.RelayCall{}
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, *call)
	}
	return calls, rows.Err()
}

// AbandonCall closes a call that is still STARTED. It reports false when the
// call already completed.
func (s *SQLiteStore) AbandonCall(ctx context.Context, callID string, reason string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE relay_calls SET status = ?, error = ?, finished_at = ? WHERE call_id = ? AND status = ?`,
		string(domain.CallStatusAbandoned), nullString(reason), time.Now().UTC(), callID, string(domain.CallStatusStarted))
	if err != nil {
		return false, fmt.Errorf("failed to abandon relay call: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCall(row scanner) (*domain.RelayCall, error) {
	var c domain.RelayCall
	var endpoint, backend, status string
	var mime, mode, errMsg sql.NullString
	var finishedAt sql.NullTime

	if err := row.Scan(&c.CallID, &c.Provider, &endpoint, &backend, &mime, &mode, &status, &errMsg, &c.LatencyMs, &c.StartedAt, &finishedAt); err != nil {
		return nil, err
	}
	c.EndpointKind = domain.EndpointKind(endpoint)
	c.Backend = domain.Backend(backend)
	c.Status = domain.CallStatus(status)
	c.AttachmentMime = mime.String
	c.AttachmentMode = domain.AttachmentMode(mode.String)
	c.Error = errMsg.String
	if finishedAt.Valid {
		c.FinishedAt = &finishedAt.Time
	}
	return &c, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
