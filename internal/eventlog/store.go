// Package eventlog persists triage outcomes and guard denials to SQLite.
// The engine only appends; the export and analyze commands read back.
package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"supportbot/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.EventRecorder on a local SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Set connection pool (single connection for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS support_events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		user        TEXT NOT NULL,
		user_id     TEXT NOT NULL,
		question    TEXT,
		faq_id      TEXT,
		confidence  REAL DEFAULT 0,
		action      TEXT NOT NULL,
		feedback    TEXT,
		escalated   INTEGER DEFAULT 0,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_support_time ON support_events(created_at);
	CREATE INDEX IF NOT EXISTS idx_support_action ON support_events(action);

	CREATE TABLE IF NOT EXISTS security_events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		kind        TEXT NOT NULL,
		user_id     TEXT,
		details     TEXT,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_security_time ON security_events(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// RecordSupport appends one triage outcome.
func (s *SQLiteStore) RecordSupport(ctx context.Context, ev domain.SupportEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO support_events (user, user_id, question, faq_id, confidence, action, feedback, escalated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.User, ev.UserID, ev.Question, ev.FAQID, ev.Confidence, ev.Action, ev.Feedback, ev.Escalated,
	)
	if err != nil {
		return fmt.Errorf("record support event: %w", err)
	}
	return nil
}

// RecordSecurity appends one guard denial or rejected semantic result.
func (s *SQLiteStore) RecordSecurity(ctx context.Context, ev domain.SecurityEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO security_events (kind, user_id, details) VALUES (?, ?, ?)`,
		ev.Kind, ev.UserID, ev.Details,
	)
	if err != nil {
		return fmt.Errorf("record security event: %w", err)
	}
	return nil
}

// StoredSupportEvent is a support event read back with its storage metadata.
type StoredSupportEvent struct {
	domain.SupportEvent
	ID        int64
	CreatedAt time.Time
}

// SupportEvents returns events recorded at or after since, oldest first.
// A zero since returns everything.
func (s *SQLiteStore) SupportEvents(ctx context.Context, since time.Time) ([]StoredSupportEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user, user_id, question, faq_id, confidence, action, feedback, escalated, created_at
		 FROM support_events WHERE created_at >= ? ORDER BY created_at ASC, id ASC`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("query support events: %w", err)
	}
	defer rows.Close()

	var events []StoredSupportEvent
	for rows.Next() {
		var ev StoredSupportEvent
		if err := rows.Scan(&ev.ID, &ev.User, &ev.UserID, &ev.Question, &ev.FAQID,
			&ev.Confidence, &ev.Action, &ev.Feedback, &ev.Escalated, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan support event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// StoredSecurityEvent is a security event read back with storage metadata.
type StoredSecurityEvent struct {
	domain.SecurityEvent
	ID        int64
	CreatedAt time.Time
}

// SecurityEvents returns guard denials recorded at or after since, oldest first.
func (s *SQLiteStore) SecurityEvents(ctx context.Context, since time.Time) ([]StoredSecurityEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, user_id, details, created_at
		 FROM security_events WHERE created_at >= ? ORDER BY created_at ASC, id ASC`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("query security events: %w", err)
	}
	defer rows.Close()

	var events []StoredSecurityEvent
	for rows.Next() {
		var ev StoredSecurityEvent
		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.UserID, &ev.Details, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan security event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ActionCounts aggregates support events by action.
func (s *SQLiteStore) ActionCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT action, COUNT(*) FROM support_events GROUP BY action`)
	if err != nil {
		return nil, fmt.Errorf("count actions: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var action string
		var n int
		if err := rows.Scan(&action, &n); err != nil {
			return nil, fmt.Errorf("scan action count: %w", err)
		}
		counts[action] = n
	}
	return counts, rows.Err()
}

// TopFAQs returns the most frequently matched FAQ ids across answers and
// hints, most frequent first.
func (s *SQLiteStore) TopFAQs(ctx context.Context, limit int) ([]FAQCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT faq_id, COUNT(*) AS n FROM support_events
		 WHERE faq_id != '' AND action IN (?, ?)
		 GROUP BY faq_id ORDER BY n DESC, faq_id ASC LIMIT ?`,
		domain.ActionAutoResponded, domain.ActionPartialHint, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("top faqs: %w", err)
	}
	defer rows.Close()

	var out []FAQCount
	for rows.Next() {
		var fc FAQCount
		if err := rows.Scan(&fc.FAQID, &fc.Count); err != nil {
			return nil, fmt.Errorf("scan faq count: %w", err)
		}
		out = append(out, fc)
	}
	return out, rows.Err()
}

// FAQCount pairs a FAQ id with how often it was served.
type FAQCount struct {
	FAQID string
	Count int
}
