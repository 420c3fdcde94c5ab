package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jschaf/switchboard/internal/tier"
)

// SQLiteStore implements Store on a single SQLite file, keeping the
// registry human-inspectable for operational debugging.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the registry database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	// WAL mode allows readers to proceed while a write is in flight.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}

	// SQLite tolerates a single writer; keep the pool at one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping registry database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize registry schema: %w", err)
	}

	return s, nil
}

// initSchema creates the registry table if it does not exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS session_records (
		conversation_id   TEXT PRIMARY KEY,
		display_name      TEXT NOT NULL DEFAULT '',
		tier              TEXT NOT NULL,
		resume_token      TEXT NOT NULL DEFAULT '',
		created_at        INTEGER NOT NULL,
		last_activity_at  INTEGER NOT NULL,
		exempt_idle_reap  INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_session_records_activity
		ON session_records(last_activity_at DESC);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Get returns the record for a conversation, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, conversationID string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, display_name, tier, resume_token,
		       created_at, last_activity_at, exempt_idle_reap
		FROM session_records
		WHERE conversation_id = ?`, conversationID)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session record: %w", err)
	}
	return record, nil
}

// Put inserts or replaces a record.
func (s *SQLiteStore) Put(ctx context.Context, record *SessionRecord) error {
	if record == nil {
		return fmt.Errorf("cannot store nil session record")
	}
	if record.ConversationID == "" {
		return fmt.Errorf("session record requires a conversation id")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_records
			(conversation_id, display_name, tier, resume_token,
			 created_at, last_activity_at, exempt_idle_reap)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			display_name     = excluded.display_name,
			tier             = excluded.tier,
			resume_token     = excluded.resume_token,
			last_activity_at = excluded.last_activity_at,
			exempt_idle_reap = excluded.exempt_idle_reap`,
		record.ConversationID,
		record.DisplayName,
		record.Tier.String(),
		record.ResumeToken,
		record.CreatedAt.Unix(),
		record.LastActivityAt.Unix(),
		boolToInt(record.ExemptFromIdleReap),
	)
	if err != nil {
		return fmt.Errorf("failed to store session record: %w", err)
	}
	return nil
}

// Touch updates the record's last-activity timestamp.
func (s *SQLiteStore) Touch(ctx context.Context, conversationID string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE session_records SET last_activity_at = ?
		WHERE conversation_id = ?`, at.Unix(), conversationID)
	if err != nil {
		return fmt.Errorf("failed to update session activity: %w", err)
	}
	return requireRow(result)
}

// SetResumeToken updates the record's resume token.
func (s *SQLiteStore) SetResumeToken(ctx context.Context, conversationID, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE session_records SET resume_token = ?
		WHERE conversation_id = ?`, token, conversationID)
	if err != nil {
		return fmt.Errorf("failed to store resume token: %w", err)
	}
	return requireRow(result)
}

// List returns all records ordered by most recent activity.
func (s *SQLiteStore) List(ctx context.Context) ([]*SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, display_name, tier, resume_token,
		       created_at, last_activity_at, exempt_idle_reap
		FROM session_records
		ORDER BY last_activity_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list session records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*SessionRecord
	for rows.Next() {
		record, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan session record: %w", scanErr)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session records: %w", err)
	}
	return records, nil
}

// Delete removes a record.
func (s *SQLiteStore) Delete(ctx context.Context, conversationID string) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM session_records WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("failed to delete session record: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*SessionRecord, error) {
	var (
		record     SessionRecord
		tierName   string
		createdAt  int64
		activityAt int64
		exempt     int
	)
	err := row.Scan(
		&record.ConversationID,
		&record.DisplayName,
		&tierName,
		&record.ResumeToken,
		&createdAt,
		&activityAt,
		&exempt,
	)
	if err != nil {
		return nil, err
	}

	record.Tier = tier.Parse(tierName)
	record.CreatedAt = time.Unix(createdAt, 0)
	record.LastActivityAt = time.Unix(activityAt, 0)
	record.ExemptFromIdleReap = exempt != 0
	return &record, nil
}

// requireRow converts a zero-row update into ErrNotFound.
func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
