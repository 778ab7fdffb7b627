package persistence

import (
	"context"
	"database/sql"
	"time"
)

// PostgresDedup answers "has this operation already been logged?"
// against the durable event log. The core consults it only on an LRU
// miss, so the query path is rare and bounded by a short timeout.
type PostgresDedup struct {
	db *sql.DB
}

func NewPostgresDedup(db *sql.DB) *PostgresDedup {
	return &PostgresDedup{db: db}
}

// Seen reports whether an event with this type and idempotency key
// already exists in the log.
func (d *PostgresDedup) Seen(eventType string, idempotencyKey string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var exists int
	err := d.db.QueryRowContext(ctx, `
		SELECT 1
		FROM event_log.events
		WHERE event_type = $1 AND idempotency_key = $2
		LIMIT 1
	`, eventType, idempotencyKey).Scan(&exists)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
