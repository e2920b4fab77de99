package audit

import (
	"context"
	"fmt"

	"loginguard/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS block_events (
	seq        BIGSERIAL   PRIMARY KEY,
	id         TEXT        NOT NULL UNIQUE,
	identifier TEXT        NOT NULL,
	attempts   INTEGER     NOT NULL,
	blocked_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_block_events_identifier ON block_events (identifier, seq DESC);
`

// PostgresStore journals events to PostgreSQL through a pgx connection pool.
type PostgresStore struct {
	pool      *pgxpool.Pool
	maxEvents int
}

// NewPostgresStore connects to dsn and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string, maxEvents int) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL audit store")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresStore{pool: pool, maxEvents: maxEvents}, nil
}

func (ps *PostgresStore) Record(ctx context.Context, ev *models.BlockEvent) error {
	tx, err := ps.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO block_events (id, identifier, attempts, blocked_at, expires_at) VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.Identifier, ev.Attempts, ev.BlockedAt, ev.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert block event: %w", err)
	}

	if ps.maxEvents > 0 {
		_, err = tx.Exec(ctx,
			`DELETE FROM block_events WHERE seq <= (SELECT seq FROM block_events ORDER BY seq DESC OFFSET $1 LIMIT 1)`,
			ps.maxEvents)
		if err != nil {
			return fmt.Errorf("failed to trim block events: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit block event: %w", err)
	}
	return nil
}

func (ps *PostgresStore) List(ctx context.Context, filter models.BlockEventFilter) ([]*models.BlockEvent, error) {
	// A NULL limit means no limit.
	var limit *int
	if filter.Limit > 0 {
		limit = &filter.Limit
	}

	rows, err := ps.pool.Query(ctx,
		`SELECT id, identifier, attempts, blocked_at, expires_at FROM block_events
		 WHERE ($1 = '' OR identifier = $1) ORDER BY seq DESC LIMIT $2`,
		filter.Identifier, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query block events: %w", err)
	}

	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.BlockEvent, error) {
		var ev models.BlockEvent
		if err := row.Scan(&ev.ID, &ev.Identifier, &ev.Attempts, &ev.BlockedAt, &ev.ExpiresAt); err != nil {
			return nil, err
		}
		ev.BlockedAt = ev.BlockedAt.UTC()
		ev.ExpiresAt = ev.ExpiresAt.UTC()
		return &ev, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read block events: %w", err)
	}
	return events, nil
}

func (ps *PostgresStore) Ping(ctx context.Context) error {
	if err := ps.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (ps *PostgresStore) Close() error {
	ps.pool.Close()
	return nil
}
