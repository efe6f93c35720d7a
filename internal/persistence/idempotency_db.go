package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// PostgresIdempotencyChecker is the second dedup tier: it answers from the
// event log for transactions that aged out of the engine's LRU.
type PostgresIdempotencyChecker struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresIdempotencyChecker(db *sql.DB) *PostgresIdempotencyChecker {
	return &PostgresIdempotencyChecker{
		db:      db,
		timeout: 500 * time.Millisecond,
	}
}

// IsDuplicate reports whether the transaction is already in the event log.
func (pic *PostgresIdempotencyChecker) IsDuplicate(opType string, txID uuid.UUID) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), pic.timeout)
	defer cancel()

	var exists int
	err := pic.db.QueryRowContext(ctx, `
		SELECT 1
		FROM event_log.transactions
		WHERE op_type = $1 AND tx_id = $2
		LIMIT 1
	`, opType, txID).Scan(&exists)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RecentKeys returns the dedup keys of the newest transactions, oldest
// first, in the engine's "op:txid" form. Used to warm the LRU on a cold
// start without a checkpoint.
func (pic *PostgresIdempotencyChecker) RecentKeys(ctx context.Context, limit int) ([]string, error) {
	rows, err := pic.db.QueryContext(ctx, `
		SELECT op_type, tx_id FROM (
			SELECT op_type, tx_id, sequence
			FROM event_log.transactions
			ORDER BY sequence DESC
			LIMIT $1
		) recent
		ORDER BY sequence ASC
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]string, 0, limit)
	for rows.Next() {
		var op string
		var id uuid.UUID
		if err := rows.Scan(&op, &id); err != nil {
			return nil, err
		}
		keys = append(keys, op+":"+id.String())
	}
	return keys, rows.Err()
}
