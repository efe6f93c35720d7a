package main

import (
	"NativeSwap/internal/core"
	"NativeSwap/internal/event"
	"NativeSwap/internal/ingestion"
	"NativeSwap/internal/state"
	"NativeSwap/internal/storage"
	"NativeSwap/internal/testutil"
	"context"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type acks struct {
	acked, nacked int
}

func rawTx(t *testing.T, op event.Operation, a *acks) ingestion.RawTx {
	t.Helper()
	data, err := event.MarshalOperation(op)
	require.NoError(t, err)
	return ingestion.RawTx{
		Subject:   ingestion.TxSubject(op.OpType(), op.Token()),
		Op:        op.OpType(),
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() { a.acked++ },
		NakFunc:   func() { a.nacked++ },
	}
}

func newLoop(t *testing.T) (*engineLoop, *core.Engine) {
	t.Helper()
	e, err := core.NewEngine(core.EngineConfig{Store: storage.NewMemStore(), Params: state.DefaultParams()})
	require.NoError(t, err)
	return newEngineLoop(e, nil, 0, nil), e
}

func createPool(block uint64) *event.CreatePool {
	return &event.CreatePool{
		Meta:               testutil.Meta("MOTO", testutil.Ctx(block, "alice")),
		FloorPrice:         uint256.NewInt(100),
		InitialLiquidity:   uint256.NewInt(1_000_000_000),
		Receiver:           "alice-btc",
		MaxReservesPercent: 50,
	}
}

func TestEngineLoop_AcksCommittedAndRejected(t *testing.T) {
	loop, e := newLoop(t)
	a := &acks{}

	loop.apply(rawTx(t, createPool(100), a))
	assert.Equal(t, int64(2), e.GetSequence())

	// rejected: the pool already exists
	loop.apply(rawTx(t, createPool(101), a))
	assert.Equal(t, int64(2), e.GetSequence())

	assert.Equal(t, 2, a.acked)
	assert.Zero(t, a.nacked)
}

func TestEngineLoop_AcksMalformed(t *testing.T) {
	loop, e := newLoop(t)
	a := &acks{}
	raw := rawTx(t, createPool(100), a)
	raw.Data = []byte("{not json")

	loop.apply(raw)
	assert.Equal(t, 1, a.acked)
	assert.Equal(t, int64(1), e.GetSequence())
}

func TestEngineLoop_RunDrainsChannel(t *testing.T) {
	loop, e := newLoop(t)
	a := &acks{}
	txChan := make(chan ingestion.RawTx, 2)
	txChan <- rawTx(t, createPool(100), a)
	close(txChan)

	loop.run(context.Background(), txChan)
	assert.Equal(t, int64(2), e.GetSequence())
	assert.Equal(t, 1, a.acked)
}

func TestEngineLoop_CheckpointWithoutStore(t *testing.T) {
	loop, _ := newLoop(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.run(ctx, make(chan ingestion.RawTx))

	_, err := loop.requestCheckpoint(ctx)
	assert.Error(t, err)
}
