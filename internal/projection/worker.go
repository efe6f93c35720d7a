package projection

import (
	"NativeSwap/internal/core"
	"NativeSwap/internal/observability"
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const workerID = "main"

// ProjectionWorker updates projection tables from engine outputs. The
// projection channel drops when full; anything missed is recovered with
// Rebuild from the event log.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan core.CoreOutput
	lastSeq   int64
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan core.CoreOutput, metrics *observability.Metrics) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
		logger:    observability.NewLogger("projection"),
	}
}

// LastSequence is the newest sequence applied to the projections.
func (pw *ProjectionWorker) LastSequence() int64 {
	return pw.lastSeq
}

// Run applies outputs until ctx is cancelled or the channel closes.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}
			u := Derive(output)
			if err := pw.apply(ctx, u); err != nil {
				// projections are eventually consistent
				pw.logger.Warn().Err(err).Int64("seq", u.Sequence).Msg("projection update failed")
				continue
			}
			pw.lastSeq = u.Sequence
		}
	}
}

func (pw *ProjectionWorker) apply(ctx context.Context, u Update) error {
	start := time.Now()
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if u.Pool != nil {
		if err := upsertPool(ctx, tx, u.Pool); err != nil {
			return fmt.Errorf("pools: %w", err)
		}
	}
	if u.Quote != nil {
		if err := insertQuote(ctx, tx, u.Quote); err != nil {
			return fmt.Errorf("quote_history: %w", err)
		}
	}
	for _, c := range u.Consumption {
		if err := insertConsumption(ctx, tx, c); err != nil {
			return fmt.Errorf("provider_consumption: %w", err)
		}
	}

	// the watermark never moves backwards when outputs arrive after a rebuild
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (worker_id) DO UPDATE
			SET last_sequence = GREATEST(projections.watermark.last_sequence, EXCLUDED.last_sequence),
			    updated_at = NOW()
	`, workerID, u.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	pw.observe(workerID, start)
	return nil
}

func (pw *ProjectionWorker) observe(projection string, start time.Time) {
	if pw.metrics != nil {
		pw.metrics.ProjectionUpdateDur.WithLabelValues(projection).Observe(time.Since(start).Seconds())
	}
}

func upsertPool(ctx context.Context, tx *sql.Tx, p *PoolRow) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.pools (
			token, token_id, block, quote, liquidity, reserved_liquidity,
			virtual_token_reserve, virtual_satoshis_reserve, utilization_percent, volatility,
			max_reserves_percent, last_purged_block, priority_queue_len, normal_queue_len,
			removal_queue_len, last_sequence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW())
		ON CONFLICT (token) DO UPDATE SET
			block = EXCLUDED.block,
			quote = EXCLUDED.quote,
			liquidity = EXCLUDED.liquidity,
			reserved_liquidity = EXCLUDED.reserved_liquidity,
			virtual_token_reserve = EXCLUDED.virtual_token_reserve,
			virtual_satoshis_reserve = EXCLUDED.virtual_satoshis_reserve,
			utilization_percent = EXCLUDED.utilization_percent,
			volatility = EXCLUDED.volatility,
			max_reserves_percent = EXCLUDED.max_reserves_percent,
			last_purged_block = EXCLUDED.last_purged_block,
			priority_queue_len = EXCLUDED.priority_queue_len,
			normal_queue_len = EXCLUDED.normal_queue_len,
			removal_queue_len = EXCLUDED.removal_queue_len,
			last_sequence = EXCLUDED.last_sequence,
			updated_at = NOW()
		WHERE projections.pools.last_sequence < EXCLUDED.last_sequence
	`,
		p.Token, p.TokenID, int64(p.Block), p.Quote, p.Liquidity, p.ReservedLiquidity,
		p.VirtualTokenReserve, int64(p.VirtualSatoshisReserve), int64(p.UtilizationPercent), int64(p.Volatility),
		int64(p.MaxReservesPercent), int64(p.LastPurgedBlock), int64(p.PriorityQueueLen), int64(p.NormalQueueLen),
		int64(p.RemovalQueueLen), p.Sequence,
	)
	return err
}

func insertQuote(ctx context.Context, tx *sql.Tx, q *QuoteRow) error {
	var fee sql.NullInt64
	if q.FeeBP != nil {
		fee = sql.NullInt64{Int64: int64(*q.FeeBP), Valid: true}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.quote_history (token, sequence, block, quote, volatility, fee_bp)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (token, sequence) DO NOTHING
	`, q.Token, q.Sequence, int64(q.Block), q.Quote, int64(q.Volatility), fee)
	return err
}

func insertConsumption(ctx context.Context, tx *sql.Tx, c ConsumptionRow) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.provider_consumption (token, provider_id, sequence, block, tokens, satoshis)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (token, provider_id, sequence) DO NOTHING
	`, c.Token, c.ProviderID, c.Sequence, int64(c.Block), c.Tokens, int64(c.Satoshis))
	return err
}

// Rebuild recomputes the event-derived projections from the event log.
// projections.pools is not derivable from the log alone and is refreshed
// by the next transaction on each pool.
func Rebuild(ctx context.Context, db *sql.DB) error {
	logger := observability.NewLogger("projection")

	for _, stmt := range []string{
		`TRUNCATE projections.provider_consumption`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// fills are the provider_fill journals: pool settlement debited, provider inventory credited
	if _, err := db.ExecContext(ctx, `
		INSERT INTO projections.provider_consumption (token, provider_id, sequence, block, tokens, satoshis)
		SELECT t.token,
		       split_part(j.credit_account, ':', 2),
		       j.sequence,
		       j.block,
		       SUM(j.amount),
		       COALESCE((
		           SELECT SUM(p.amount)::BIGINT FROM event_log.journal p
		           WHERE p.sequence = j.sequence
		             AND p.journal_type = 'provider_payment'
		             AND split_part(p.debit_account, ':', 2) = split_part(j.credit_account, ':', 2)
		       ), 0)
		FROM event_log.journal j
		JOIN event_log.transactions t ON t.sequence = j.sequence
		WHERE j.journal_type = 'provider_fill'
		GROUP BY t.token, j.credit_account, j.sequence, j.block
		ON CONFLICT (token, provider_id, sequence) DO NOTHING
	`); err != nil {
		return fmt.Errorf("rebuild provider consumption: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		SELECT $1, COALESCE(MAX(sequence), 0), NOW() FROM event_log.transactions
	`, workerID); err != nil {
		return fmt.Errorf("rebuild watermark: %w", err)
	}

	logger.Info().Msg("projection rebuild complete")
	return nil
}
