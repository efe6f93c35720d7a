package core

import (
	"NativeSwap/internal/event"
	"NativeSwap/internal/failure"
	"NativeSwap/internal/ledger"
	"NativeSwap/internal/observability"
	"NativeSwap/internal/state"
	"NativeSwap/internal/storage"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"
)

// Engine is the single-threaded transaction processor. Every call runs on
// its own overlay and either commits as a whole or leaves no trace.
type Engine struct {
	store  storage.KVStore
	params state.Params

	sequence    int64 // next sequence to assign
	hasher      *StateHasher
	journalGen  *ledger.JournalGenerator
	validator   *ledger.InvariantValidator
	idempotency *IdempotencyChecker
	blocks      *BlockValidator
	metrics     *observability.Metrics
	logger      zerolog.Logger

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
	noticeChan     chan<- CoreOutput
}

// CoreOutput is everything downstream workers learn about one committed
// transaction.
type CoreOutput struct {
	Envelope *event.TxEnvelope
	Batch    *ledger.Batch
	Notices  []event.Notice
	Pool     *PoolView
}

// EngineConfig wires the engine's collaborators. Nil channels are skipped.
type EngineConfig struct {
	Store          storage.KVStore
	Params         state.Params
	LRUCapacity    int
	DBChecker      DBIdempotencyChecker
	Metrics        *observability.Metrics
	PersistChan    chan<- CoreOutput
	ProjectionChan chan<- CoreOutput
	NoticeChan     chan<- CoreOutput
}

// NewEngine resumes from the meta record in the store, or from genesis on
// an empty store.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.LRUCapacity <= 0 {
		cfg.LRUCapacity = 1_000_000
	}
	e := &Engine{
		store:          cfg.Store,
		params:         cfg.Params,
		sequence:       1,
		hasher:         NewStateHasher(),
		validator:      ledger.NewInvariantValidator(),
		idempotency:    NewIdempotencyChecker(cfg.LRUCapacity, cfg.DBChecker, cfg.Metrics),
		blocks:         NewBlockValidator(cfg.Metrics),
		metrics:        cfg.Metrics,
		logger:         observability.NewLogger("engine"),
		persistChan:    cfg.PersistChan,
		projectionChan: cfg.ProjectionChan,
		noticeChan:     cfg.NoticeChan,
	}

	meta, ok, err := readEngineMeta(cfg.Store)
	if err != nil {
		return nil, err
	}
	if ok {
		e.sequence = meta.Sequence + 1
		e.hasher.Advance(meta.StateHash)
		e.blocks.Restore(meta.LastBlock)
		e.logger.Info().
			Int64("sequence", meta.Sequence).
			Uint64("last_block", meta.LastBlock).
			Str("state_hash", fmt.Sprintf("%x", meta.StateHash)).
			Msg("resumed from store")
	}
	e.journalGen = ledger.NewJournalGenerator(e.sequence)
	return e, nil
}

// ProcessTransaction applies op. A duplicate returns (nil, nil). A rejected
// transaction returns an error carrying its failure kind and changes
// nothing.
func (e *Engine) ProcessTransaction(op event.Operation) (*CoreOutput, error) {
	start := time.Now()
	opName := op.OpType().String()
	txID := op.TxID()
	ctx := op.Context()

	// Step 1: Idempotency check (two-tier)
	if e.idempotency.IsDuplicate(opName, txID) {
		return nil, nil
	}

	// Step 2: Block ordering
	if err := e.blocks.Validate(ctx.Block); err != nil {
		return nil, e.reject(op, err)
	}

	// Step 3: Apply on a fresh overlay
	overlay := storage.NewOverlay(e.store)
	notices, view, err := e.apply(overlay, op)
	if err != nil {
		overlay.Discard()
		return nil, e.reject(op, err)
	}

	// Step 4: Journals
	batch, err := e.journalGen.Generate(ledger.TxInfo{
		TxID:     txID,
		Sequence: e.sequence,
		Block:    ctx.Block,
		Token:    op.Token(),
		Owner:    ctx.Sender,
	}, notices)
	if err == nil {
		err = e.validator.ValidateBatch(batch)
	}
	if err != nil {
		overlay.Discard()
		return nil, e.reject(op, failure.ImpossibleState("journal batch for %s: %v", txID, err))
	}

	// Step 5: Hash chain and engine meta ride in the same commit
	prevHash := e.hasher.GetPrevHash()
	stateHash := e.hasher.ComputeHash(e.sequence, overlay.Digest())
	writeEngineMeta(overlay, engineMeta{Sequence: e.sequence, StateHash: stateHash, LastBlock: max(ctx.Block, e.blocks.LastBlock())})
	writes := overlay.Size()
	if err := overlay.Commit(e.store); err != nil {
		overlay.Discard()
		return nil, e.reject(op, fmt.Errorf("commit: %w", err))
	}
	e.hasher.Advance(stateHash)
	e.blocks.Advance(ctx.Block)

	payload, err := event.MarshalOperation(op)
	if err != nil {
		// committed state is authoritative; the log keeps an empty payload
		e.logger.Error().Err(err).Str("tx_id", txID.String()).Msg("encode payload")
	}
	output := CoreOutput{
		Envelope: &event.TxEnvelope{
			Sequence:  e.sequence,
			TxID:      txID,
			OpType:    op.OpType(),
			Token:     op.Token(),
			Block:     ctx.Block,
			Payload:   payload,
			StateHash: stateHash,
			PrevHash:  prevHash,
		},
		Batch:   batch,
		Notices: notices,
		Pool:    view,
	}
	e.sequence++

	// Step 6: Emit. Persistence blocks for backpressure; projection and
	// publishing drop when full and catch up from the event log.
	if e.persistChan != nil {
		e.persistChan <- output
	}
	e.offer(e.projectionChan, "projection", output)
	e.offer(e.noticeChan, "notices", output)

	e.idempotency.MarkProcessed(opName, txID)
	e.observe(op, output, writes, start)
	return &output, nil
}

// apply runs op against overlay and returns what it emitted.
func (e *Engine) apply(overlay *storage.Overlay, op event.Operation) ([]event.Notice, *PoolView, error) {
	ctx := op.Context()
	recorder := event.NewRecorder()
	repo := state.NewProviderRepository(overlay)

	lq, err := OpenLiquidityQueue(LiquidityQueueDeps{
		Tx:      overlay,
		Token:   state.NewTokenID(op.Token()),
		Block:   ctx.Block,
		Params:  e.params,
		Repo:    repo,
		Staking: state.NewStakingVault(overlay),
		Events:  recorder,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := dispatch(lq, op); err != nil {
		return nil, nil, err
	}
	lq.Save()
	repo.Flush()
	if err := overlay.Err(); err != nil {
		return nil, nil, fmt.Errorf("read state: %w", err)
	}

	view, err := lq.View(op.Token())
	if err != nil {
		return nil, nil, err
	}
	return recorder.Notices(), view, nil
}

func dispatch(lq *LiquidityQueue, op event.Operation) error {
	switch o := op.(type) {
	case *event.CreatePool:
		return createPool(lq, o)
	case *event.ListLiquidity:
		return listLiquidity(lq, o)
	case *event.Reserve:
		return reserve(lq, o)
	case *event.Swap:
		_, err := swap(lq, o)
		return err
	case *event.CancelListing:
		return cancelListing(lq, o)
	case *event.RemoveLiquidity:
		return removeLiquidity(lq, o)
	default:
		return failure.Precondition("unknown operation %T", op)
	}
}

func (e *Engine) reject(op event.Operation, err error) error {
	kind := failure.KindOf(err)
	if e.metrics != nil {
		e.metrics.TxRejected.WithLabelValues(op.OpType().String(), kind.String()).Inc()
	}
	logEvt := e.logger.Info()
	if kind == failure.KindImpossibleState || kind == failure.KindUnknown || kind == failure.KindArithmetic {
		logEvt = e.logger.Error()
	}
	logEvt.Err(err).
		Str("tx_id", op.TxID().String()).
		Str("op", op.OpType().String()).
		Str("token", op.Token()).
		Str("kind", kind.String()).
		Msg("transaction rejected")
	return fmt.Errorf("%s %s: %w", op.OpType(), op.TxID(), err)
}

func (e *Engine) offer(ch chan<- CoreOutput, name string, output CoreOutput) {
	if ch == nil {
		return
	}
	select {
	case ch <- output:
	default:
		switch {
		case e.metrics == nil:
		case ch == e.noticeChan:
			e.metrics.PublishDrops.Inc()
		default:
			e.metrics.ProjectionDrops.WithLabelValues(name).Inc()
		}
	}
}

func (e *Engine) observe(op event.Operation, output CoreOutput, writes int, start time.Time) {
	if e.metrics == nil {
		return
	}
	opName := op.OpType().String()
	e.metrics.TxApplied.WithLabelValues(opName).Inc()
	e.metrics.TxDuration.WithLabelValues(opName).Observe(time.Since(start).Seconds())
	e.metrics.EngineSequence.Set(float64(output.Envelope.Sequence))
	e.metrics.LastBlock.Set(float64(e.blocks.LastBlock()))
	e.metrics.OverlayWrites.Observe(float64(writes))
	for _, j := range output.Batch.Journals {
		e.metrics.Journals.WithLabelValues(j.JournalType.String()).Inc()
	}

	token := op.Token()
	for _, n := range output.Notices {
		switch v := n.(type) {
		case *event.ProviderConsumed:
			e.metrics.ProvidersConsumed.WithLabelValues(token).Inc()
		case *event.ProviderActivated:
			e.metrics.ProvidersActivated.WithLabelValues(token).Inc()
		case *event.ReservationsPurged:
			e.metrics.ReservationsPurged.WithLabelValues(token).Add(float64(v.Reservations))
		case *event.SwapExecuted:
			e.metrics.FeeBasisPoints.WithLabelValues(token).Observe(float64(v.FeeBP))
		}
	}
	if p := output.Pool; p != nil && p.Created {
		q, _ := new(big.Float).SetInt(p.Quote.ToBig()).Float64()
		e.metrics.PoolQuote.WithLabelValues(token).Set(q)
		e.metrics.ReservedUtilization.WithLabelValues(token).Set(float64(p.UtilizationPercent))
	}
}

// --- Engine meta ---

// engineMeta is committed with every transaction so a restart resumes the
// hash chain from the store alone.
type engineMeta struct {
	Sequence  int64
	StateHash [32]byte
	LastBlock uint64
}

const engineMetaSize = 8 + 32 + 8

func engineMetaKey() []byte {
	return storage.Key(storage.PointerEngineMeta)
}

func writeEngineMeta(tx storage.Tx, m engineMeta) {
	buf := make([]byte, engineMetaSize)
	binary.BigEndian.PutUint64(buf[0:8], uint64(m.Sequence))
	copy(buf[8:40], m.StateHash[:])
	binary.BigEndian.PutUint64(buf[40:48], m.LastBlock)
	tx.Set(engineMetaKey(), buf)
}

func readEngineMeta(r storage.Reader) (engineMeta, bool, error) {
	buf, err := r.Get(engineMetaKey())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return engineMeta{}, false, nil
		}
		return engineMeta{}, false, err
	}
	if len(buf) != engineMetaSize {
		return engineMeta{}, false, fmt.Errorf("engine meta: want %d bytes, got %d", engineMetaSize, len(buf))
	}
	var m engineMeta
	m.Sequence = int64(binary.BigEndian.Uint64(buf[0:8]))
	copy(m.StateHash[:], buf[8:40])
	m.LastBlock = binary.BigEndian.Uint64(buf[40:48])
	return m, true, nil
}

// --- Checkpoint & Startup Methods ---

// SnapshotState is what a checkpoint records about the engine. Pool state
// itself lives in the key-value store.
type SnapshotState struct {
	Sequence        int64 // last applied sequence
	StateHash       [32]byte
	LastBlock       uint64
	IdempotencyKeys []string
}

// CreateSnapshotState captures the engine position for a checkpoint.
func (e *Engine) CreateSnapshotState() *SnapshotState {
	return &SnapshotState{
		Sequence:        e.sequence - 1,
		StateHash:       e.hasher.GetPrevHash(),
		LastBlock:       e.blocks.LastBlock(),
		IdempotencyKeys: e.idempotency.lru.Keys(),
	}
}

// RestoreFromSnapshot checks a checkpoint against the store and warms the
// dedup cache from it. A checkpoint ahead of the store, or one whose hash
// disagrees at the same sequence, means the store lost writes.
func (e *Engine) RestoreFromSnapshot(snap *SnapshotState) error {
	last := e.sequence - 1
	if snap.Sequence > last {
		return fmt.Errorf("checkpoint at sequence %d is ahead of store at %d", snap.Sequence, last)
	}
	if snap.Sequence == last && snap.StateHash != e.hasher.GetPrevHash() {
		return fmt.Errorf("checkpoint hash %x disagrees with store hash %x at sequence %d",
			snap.StateHash, e.hasher.GetPrevHash(), last)
	}
	e.idempotency.lru.WarmFromKeys(snap.IdempotencyKeys)
	return nil
}

// WarmLRU loads recent idempotency keys into the LRU cache.
func (e *Engine) WarmLRU(keys []string) {
	e.idempotency.lru.WarmFromKeys(keys)
}

// GetSequence returns the next sequence to assign.
func (e *Engine) GetSequence() int64 {
	return e.sequence
}

// GetStateHash returns the current state hash (chain tip).
func (e *Engine) GetStateHash() [32]byte {
	return e.hasher.GetPrevHash()
}

// LastBlock returns the newest applied block.
func (e *Engine) LastBlock() uint64 {
	return e.blocks.LastBlock()
}
