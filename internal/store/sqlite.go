package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/helpbyexperts/ava/backend/internal/logging"
	"github.com/helpbyexperts/ava/backend/internal/model/chat"
)

const timeLayout = time.RFC3339Nano

// SQLiteStore keeps one row per session in a SQLite database.
type SQLiteStore struct {
	sql *sql.DB
	log *logging.Logger
}

// OpenSQLite opens (or creates) the database at path and runs migrations.
// Use ":memory:" for an in-memory database.
func OpenSQLite(path string, log *logging.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = logging.Nop()
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		sqlDB.SetMaxOpenConns(1)
	}

	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA busy_timeout=5000"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	db := &SQLiteStore{sql: sqlDB, log: log.Sub("store")}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	db.log.Info().Str("path", path).Msg("database opened")
	return db, nil
}

// Close closes the database connection.
func (db *SQLiteStore) Close() error {
	db.log.Info().Msg("closing database")
	return db.sql.Close()
}

// SaveSession upserts the session row. The paid flag and the category never
// regress even if an older snapshot arrives late.
func (db *SQLiteStore) SaveSession(ctx context.Context, session chat.Session) error {
	transcript, err := json.Marshal(session.Turns)
	if err != nil {
		return fmt.Errorf("encoding transcript: %w", err)
	}

	var paidAt sql.NullString
	if session.PaidAt != nil {
		paidAt = sql.NullString{String: session.PaidAt.UTC().Format(timeLayout), Valid: true}
	}

	_, err = db.sql.ExecContext(ctx, `
		INSERT INTO sessions (id, paid, paid_at, category, ready_for_payment, transcript, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			paid              = MAX(sessions.paid, excluded.paid),
			paid_at           = COALESCE(sessions.paid_at, excluded.paid_at),
			category          = CASE WHEN sessions.category = '' THEN excluded.category ELSE sessions.category END,
			ready_for_payment = MAX(sessions.ready_for_payment, excluded.ready_for_payment),
			transcript        = excluded.transcript,
			updated_at        = excluded.updated_at`,
		session.ID, boolToInt(session.Paid), paidAt, session.Category, boolToInt(session.ReadyForPayment),
		string(transcript), formatTime(session.CreatedAt), formatTime(session.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", session.ID, err)
	}
	return nil
}

// LoadSession reads one session row.
func (db *SQLiteStore) LoadSession(ctx context.Context, sessionID string) (chat.Session, error) {
	var (
		session             chat.Session
		paid, ready         int
		paidAt              sql.NullString
		transcript          string
		createdAt, updateAt string
	)

	err := db.sql.QueryRowContext(ctx, `
		SELECT id, paid, paid_at, category, ready_for_payment, transcript, created_at, updated_at
		FROM sessions WHERE id = ?`, sessionID,
	).Scan(&session.ID, &paid, &paidAt, &session.Category, &ready, &transcript, &createdAt, &updateAt)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Session{}, ErrNotFound
	}
	if err != nil {
		return chat.Session{}, fmt.Errorf("loading session %s: %w", sessionID, err)
	}

	if err := json.Unmarshal([]byte(transcript), &session.Turns); err != nil {
		return chat.Session{}, fmt.Errorf("decoding transcript of %s: %w", sessionID, err)
	}

	session.Paid = paid != 0
	session.ReadyForPayment = ready != 0
	session.CreatedAt = parseTime(createdAt)
	session.UpdatedAt = parseTime(updateAt)
	if paidAt.Valid {
		t := parseTime(paidAt.String)
		session.PaidAt = &t
	}
	return session, nil
}

// ListSessions returns the most recently updated sessions.
func (db *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]chat.Summary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.sql.QueryContext(ctx, `
		SELECT id, paid, category, ready_for_payment, json_array_length(transcript), updated_at
		FROM sessions ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []chat.Summary
	for rows.Next() {
		var (
			s           chat.Summary
			paid, ready int
			updatedAt   string
		)
		if err := rows.Scan(&s.ID, &paid, &s.Category, &ready, &s.Turns, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		s.Paid = paid != 0
		s.ReadyForPayment = ready != 0
		s.UpdatedAt = parseTime(updatedAt)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (db *SQLiteStore) migrate() error {
	if _, err := db.sql.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	for _, m := range migrations {
		applied, err := db.isMigrationApplied(m.Version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		db.log.Info().Int("version", m.Version).Str("name", m.Name).Msg("applying migration")

		tx, err := db.sql.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func (db *SQLiteStore) isMigrationApplied(version int) (bool, error) {
	var count int
	err := db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking migration %d: %w", version, err)
	}
	return count > 0, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}
