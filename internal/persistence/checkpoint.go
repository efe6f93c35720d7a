package persistence

import (
	"NativeSwap/internal/core"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CheckpointManager records engine checkpoints. Pool state lives in the
// key-value store; a checkpoint pins the hash chain position so a restart
// can prove the store did not lose writes, and carries recent dedup keys.
type CheckpointManager struct {
	db *sql.DB
}

// CheckpointData is the JSON body of event_log.checkpoints.data.
type CheckpointData struct {
	Sequence        int64     `json:"sequence"`
	StateHash       []byte    `json:"state_hash"`
	LastBlock       uint64    `json:"last_block"`
	IdempotencyKeys []string  `json:"idempotency_keys"`
	CreatedAt       time.Time `json:"created_at"`
}

const checkpointFormatVersion = 1

func NewCheckpointManager(db *sql.DB) *CheckpointManager {
	return &CheckpointManager{db: db}
}

// FromSnapshotState converts an engine snapshot into a checkpoint body.
func FromSnapshotState(s *core.SnapshotState, now time.Time) *CheckpointData {
	return &CheckpointData{
		Sequence:        s.Sequence,
		StateHash:       append([]byte(nil), s.StateHash[:]...),
		LastBlock:       s.LastBlock,
		IdempotencyKeys: s.IdempotencyKeys,
		CreatedAt:       now,
	}
}

// SnapshotState converts the checkpoint back for Engine.RestoreFromSnapshot.
func (c *CheckpointData) SnapshotState() (*core.SnapshotState, error) {
	if len(c.StateHash) != 32 {
		return nil, fmt.Errorf("checkpoint at seq=%d: state hash has %d bytes", c.Sequence, len(c.StateHash))
	}
	s := &core.SnapshotState{
		Sequence:        c.Sequence,
		LastBlock:       c.LastBlock,
		IdempotencyKeys: c.IdempotencyKeys,
	}
	copy(s.StateHash[:], c.StateHash)
	return s, nil
}

// SaveCheckpoint persists a checkpoint. Saving the same sequence twice
// overwrites the earlier body.
func (cm *CheckpointManager) SaveCheckpoint(ctx context.Context, cp *CheckpointData) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	_, err = cm.db.ExecContext(ctx, `
		INSERT INTO event_log.checkpoints
			(checkpoint_id, sequence, state_hash, last_block, data, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8)
		ON CONFLICT (sequence) DO UPDATE
			SET data = EXCLUDED.data, state_hash = EXCLUDED.state_hash, size_bytes = EXCLUDED.size_bytes
	`, uuid.New(), cp.Sequence, cp.StateHash, int64(cp.LastBlock), data, checkpointFormatVersion, len(data), cp.CreatedAt)
	return err
}

// LoadLatestCheckpoint returns the newest checkpoint, or nil on a cold start.
func (cm *CheckpointManager) LoadLatestCheckpoint(ctx context.Context) (*CheckpointData, error) {
	var data []byte
	var version int
	err := cm.db.QueryRowContext(ctx, `
		SELECT data, format_version FROM event_log.checkpoints
		ORDER BY sequence DESC
		LIMIT 1
	`).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if version != checkpointFormatVersion {
		return nil, fmt.Errorf("checkpoint format version %d not supported", version)
	}

	var cp CheckpointData
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// MarkVerified flags a checkpoint once a restart confirmed it against the store.
func (cm *CheckpointManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := cm.db.ExecContext(ctx, `
		UPDATE event_log.checkpoints SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadTransactionsFrom loads logged transactions from a sequence onward.
func (cm *CheckpointManager) LoadTransactionsFrom(ctx context.Context, fromSequence int64, limit int) ([]TxRow, error) {
	rows, err := cm.db.QueryContext(ctx, `
		SELECT sequence, tx_id, op_type, token, block, payload, notices, state_hash, prev_hash, created_at
		FROM event_log.transactions
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TxRow
	for rows.Next() {
		var r TxRow
		var block int64
		if err := rows.Scan(
			&r.Sequence, &r.TxID, &r.OpType, &r.Token, &block,
			&r.Payload, &r.Notices, &r.StateHash, &r.PrevHash, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		r.Block = uint64(block)
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetLatestSequence returns the highest logged sequence, 0 when empty.
func (cm *CheckpointManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := cm.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM event_log.transactions`).Scan(&seq); err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}
