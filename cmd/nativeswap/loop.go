package main

import (
	"NativeSwap/internal/core"
	"NativeSwap/internal/failure"
	"NativeSwap/internal/ingestion"
	"NativeSwap/internal/observability"
	"NativeSwap/internal/persistence"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// checkpointRequest asks the engine loop for a checkpoint between
// transactions, so the captured state is never mid-apply.
type checkpointRequest struct {
	reply chan checkpointReply
}

type checkpointReply struct {
	data *persistence.CheckpointData
	err  error
}

// engineLoop is the only goroutine that touches the engine.
type engineLoop struct {
	engine      *core.Engine
	checkpoints *persistence.CheckpointManager
	metrics     *observability.Metrics
	logger      zerolog.Logger

	interval       int64
	lastCheckpoint int64
	requests       chan checkpointRequest
}

func newEngineLoop(engine *core.Engine, checkpoints *persistence.CheckpointManager, interval int64, metrics *observability.Metrics) *engineLoop {
	return &engineLoop{
		engine:         engine,
		checkpoints:    checkpoints,
		metrics:        metrics,
		logger:         observability.NewLogger("engine-loop"),
		interval:       interval,
		lastCheckpoint: engine.GetSequence() - 1,
		requests:       make(chan checkpointRequest),
	}
}

// run applies queued transactions until ctx is cancelled or txChan closes.
// A message is acked once the engine committed, deduplicated or rejected
// it, and nacked when the engine could not reach a verdict.
func (l *engineLoop) run(ctx context.Context, txChan <-chan ingestion.RawTx) {
	for {
		select {
		case <-ctx.Done():
			return

		case req := <-l.requests:
			data, err := l.checkpoint(ctx)
			req.reply <- checkpointReply{data: data, err: err}

		case raw, ok := <-txChan:
			if !ok {
				return
			}
			if l.metrics != nil {
				l.metrics.ChannelSize.WithLabelValues("ingest").Set(float64(len(txChan)))
			}
			l.apply(raw)
			l.maybeCheckpoint(ctx)
		}
	}
}

func (l *engineLoop) apply(raw ingestion.RawTx) {
	op, err := ingestion.ParseRawTx(raw)
	if err != nil {
		l.logger.Warn().Err(err).Str("subject", raw.Subject).Msg("unparseable transaction")
		if l.metrics != nil {
			l.metrics.ParseErrors.WithLabelValues(raw.Op.String()).Inc()
		}
		// redelivery cannot fix a malformed payload
		raw.AckFunc()
		return
	}

	if _, err := l.engine.ProcessTransaction(op); err != nil && failure.KindOf(err) == failure.KindUnknown {
		l.logger.Error().Err(err).Str("op", op.OpType().String()).Msg("transaction not applied, requesting redelivery")
		raw.NakFunc()
		return
	}
	raw.AckFunc()

	if l.metrics != nil && !raw.Timestamp.IsZero() {
		l.metrics.IngestToApply.WithLabelValues(op.OpType().String()).Observe(time.Since(raw.Timestamp).Seconds())
	}
}

func (l *engineLoop) maybeCheckpoint(ctx context.Context) {
	if l.checkpoints == nil || l.interval <= 0 {
		return
	}
	if l.engine.GetSequence()-1-l.lastCheckpoint < l.interval {
		return
	}
	if _, err := l.checkpoint(ctx); err != nil {
		l.logger.Warn().Err(err).Msg("periodic checkpoint failed")
	}
}

// checkpoint saves the engine position. Must run on the loop goroutine.
func (l *engineLoop) checkpoint(ctx context.Context) (*persistence.CheckpointData, error) {
	if l.checkpoints == nil {
		return nil, fmt.Errorf("checkpoint store not configured")
	}
	data := persistence.FromSnapshotState(l.engine.CreateSnapshotState(), time.Now())
	if err := l.checkpoints.SaveCheckpoint(ctx, data); err != nil {
		return nil, fmt.Errorf("save checkpoint: %w", err)
	}
	// taken from live state
	if err := l.checkpoints.MarkVerified(ctx, data.Sequence); err != nil {
		l.logger.Warn().Err(err).Int64("seq", data.Sequence).Msg("mark checkpoint verified failed")
	}
	l.lastCheckpoint = data.Sequence
	if l.metrics != nil {
		l.metrics.CheckpointTaken.Inc()
	}
	l.logger.Info().Int64("seq", data.Sequence).Uint64("last_block", data.LastBlock).Msg("checkpoint saved")
	return data, nil
}

// requestCheckpoint is the server's handle on checkpoint.
func (l *engineLoop) requestCheckpoint(ctx context.Context) (*persistence.CheckpointData, error) {
	req := checkpointRequest{reply: make(chan checkpointReply, 1)}
	select {
	case l.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
