package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"loginguard/internal/models"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS block_events (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT    NOT NULL UNIQUE,
	identifier TEXT    NOT NULL,
	attempts   INTEGER NOT NULL,
	blocked_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_block_events_identifier ON block_events (identifier, seq);
`

// SQLiteStore journals events to a SQLite database. Timestamps are stored as
// Unix nanoseconds.
type SQLiteStore struct {
	db        *sql.DB
	maxEvents int
}

// NewSQLiteStore opens (and if needed creates) the database at dsn.
func NewSQLiteStore(dsn string, maxEvents int) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("connection string is required for SQLite audit store")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, maxEvents: maxEvents}, nil
}

func (s *SQLiteStore) Record(ctx context.Context, ev *models.BlockEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO block_events (id, identifier, attempts, blocked_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.Identifier, ev.Attempts, ev.BlockedAt.UnixNano(), ev.ExpiresAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert block event: %w", err)
	}

	if s.maxEvents > 0 {
		_, err = s.db.ExecContext(ctx,
			`DELETE FROM block_events WHERE seq <= (SELECT seq FROM block_events ORDER BY seq DESC LIMIT 1 OFFSET ?)`,
			s.maxEvents)
		if err != nil {
			return fmt.Errorf("failed to trim block events: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, filter models.BlockEventFilter) ([]*models.BlockEvent, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = -1 // no limit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, identifier, attempts, blocked_at, expires_at FROM block_events
		 WHERE (? = '' OR identifier = ?) ORDER BY seq DESC LIMIT ?`,
		filter.Identifier, filter.Identifier, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query block events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.BlockEvent, 0)
	for rows.Next() {
		var (
			ev                   models.BlockEvent
			blockedAt, expiresAt int64
		)
		if err := rows.Scan(&ev.ID, &ev.Identifier, &ev.Attempts, &blockedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan block event: %w", err)
		}
		ev.BlockedAt = time.Unix(0, blockedAt).UTC()
		ev.ExpiresAt = time.Unix(0, expiresAt).UTC()
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read block events: %w", err)
	}
	return events, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
