package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"voteledger/internal/pubkey"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository and verifies
// the connection.
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{
		pool: pool,
	}, nil
}

// Migrate creates the journal table if it does not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS submitted_operations (
			id UUID PRIMARY KEY,
			kind TEXT NOT NULL,
			signature TEXT NOT NULL,
			topic_address TEXT NOT NULL DEFAULT '',
			amount_raw BIGINT NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			resolved_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_submitted_operations_created_at
			ON submitted_operations (created_at DESC);
	`
	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to migrate journal schema: %w", err)
	}
	return nil
}

// RecordSubmission inserts a new journal entry.
func (r *PostgresRepository) RecordSubmission(ctx context.Context, entry *Entry) error {
	query := `
		INSERT INTO submitted_operations (
			id, kind, signature, topic_address, amount_raw, status, detail, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	topic := ""
	if !entry.Topic.IsZero() {
		topic = entry.Topic.String()
	}

	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.Kind,
		entry.Signature,
		topic,
		int64(entry.AmountRaw),
		entry.Status,
		entry.Detail,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record submission: %w", err)
	}

	return nil
}

// MarkOutcome sets the terminal status of an entry.
func (r *PostgresRepository) MarkOutcome(ctx context.Context, id uuid.UUID, status, detail string) error {
	query := `
		UPDATE submitted_operations
		SET status = $2, detail = $3, resolved_at = $4
		WHERE id = $1
	`

	_, err := r.pool.Exec(ctx, query, id, status, detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark outcome: %w", err)
	}

	return nil
}

// ListRecent returns the newest entries first.
func (r *PostgresRepository) ListRecent(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, kind, signature, topic_address, amount_raw, status, detail, created_at, resolved_at
		FROM submitted_operations
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var topic string
		var amountRaw int64

		err := rows.Scan(
			&entry.ID,
			&entry.Kind,
			&entry.Signature,
			&topic,
			&amountRaw,
			&entry.Status,
			&entry.Detail,
			&entry.CreatedAt,
			&entry.ResolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}

		if topic != "" {
			if entry.Topic, err = pubkey.Parse(topic); err != nil {
				return nil, fmt.Errorf("failed to parse topic address %q: %w", topic, err)
			}
		}
		entry.AmountRaw = uint64(amountRaw)
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate journal entries: %w", err)
	}

	return entries, nil
}

// Ping checks database connectivity.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the connection pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

var _ Repository = (*PostgresRepository)(nil)
