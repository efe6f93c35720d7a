package core

import (
	"NativeSwap/internal/failure"
	"NativeSwap/internal/observability"
	"sync/atomic"
)

// BlockValidator enforces the monotonic block counter the ledger supplies.
// Several transactions may share a block; a block may never go backwards.
// Only the engine goroutine writes; LastBlock may be read from query handlers.
type BlockValidator struct {
	lastBlock atomic.Uint64
	metrics   *observability.Metrics
}

func NewBlockValidator(metrics *observability.Metrics) *BlockValidator {
	return &BlockValidator{metrics: metrics}
}

// Validate accepts block when it does not precede the last applied block.
func (bv *BlockValidator) Validate(block uint64) error {
	if last := bv.lastBlock.Load(); block < last {
		if bv.metrics != nil {
			bv.metrics.BlockRegressions.Inc()
		}
		return failure.Precondition("block %d precedes last applied block %d", block, last)
	}
	return nil
}

// Advance records block as applied.
func (bv *BlockValidator) Advance(block uint64) {
	if block > bv.lastBlock.Load() {
		bv.lastBlock.Store(block)
	}
}

// LastBlock returns the newest applied block
func (bv *BlockValidator) LastBlock() uint64 {
	return bv.lastBlock.Load()
}

// Restore sets the last applied block during recovery.
func (bv *BlockValidator) Restore(block uint64) {
	bv.lastBlock.Store(block)
}
