package state

import (
	"testing"

	"NativeSwap/internal/failure"
	"NativeSwap/internal/storage"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var maxU256 = new(uint256.Int).SetAllOne()

func TestMemoryReserve_AddOverflowIsArithmetic(t *testing.T) {
	r := NewMemoryReserve()
	r.SetLiquidity(maxU256)

	err := r.AddToTotalReserve(uint256.NewInt(1))
	require.Error(t, err)
	assert.Equal(t, failure.KindArithmetic, failure.KindOf(err))
	assert.Equal(t, maxU256, r.Liquidity())
}

func TestMemoryReserve_SubUnderflowIsArithmetic(t *testing.T) {
	r := NewMemoryReserve()
	r.SetLiquidity(uint256.NewInt(5))

	err := r.SubFromTotalReserve(uint256.NewInt(6))
	assert.Equal(t, failure.KindArithmetic, failure.KindOf(err))
}

func TestMemoryReserve_Availability(t *testing.T) {
	r := NewMemoryReserve()
	r.SetLiquidity(uint256.NewInt(1000))
	require.NoError(t, r.AddToReservedLiquidity(uint256.NewInt(400)))

	avail, err := r.AvailableLiquidity()
	require.NoError(t, err)
	assert.Equal(t, uint64(600), avail.Uint64())

	require.NoError(t, r.SubFromReservedLiquidity(uint256.NewInt(400)))
	avail, err = r.AvailableLiquidity()
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), avail.Uint64())
}

func TestMemoryReserve_ReservedCannotExceedLiquidity(t *testing.T) {
	r := NewMemoryReserve()
	r.SetLiquidity(uint256.NewInt(100))

	err := r.AddToReservedLiquidity(uint256.NewInt(101))
	assert.Equal(t, failure.KindImpossibleState, failure.KindOf(err))
	assert.True(t, r.ReservedLiquidity().IsZero())
}

func TestMemoryReserve_LiquidityCannotDropBelowReserved(t *testing.T) {
	r := NewMemoryReserve()
	r.SetLiquidity(uint256.NewInt(100))
	r.SetReservedLiquidity(uint256.NewInt(80))

	err := r.SubFromTotalReserve(uint256.NewInt(30))
	assert.Equal(t, failure.KindImpossibleState, failure.KindOf(err))
	assert.Equal(t, uint64(100), r.Liquidity().Uint64())
}

func TestMemoryReserve_ResetAccumulators(t *testing.T) {
	r := NewMemoryReserve()
	require.NoError(t, r.AddToDeltaTokensAdd(uint256.NewInt(7)))
	require.NoError(t, r.AddToDeltaTokensBuy(uint256.NewInt(8)))
	require.NoError(t, r.AddToDeltaSatoshisBuy(9))

	r.ResetAccumulators()
	assert.True(t, r.DeltaTokensAdd().IsZero())
	assert.True(t, r.DeltaTokensBuy().IsZero())
	assert.Zero(t, r.DeltaSatoshisBuy())
}

func TestStoredReserve_PersistsThroughOverlay(t *testing.T) {
	store := storage.NewMemStore()
	token := NewTokenID("MOTO")

	o := storage.NewOverlay(store)
	r := NewStoredReserve(o, token)
	require.NoError(t, r.AddToTotalReserve(uint256.NewInt(5000)))
	r.SetVirtualSatoshisReserve(42)
	require.NoError(t, o.Commit(store))

	again := NewStoredReserve(storage.NewOverlay(store), token)
	assert.Equal(t, uint64(5000), again.Liquidity().Uint64())
	assert.Equal(t, uint64(42), again.VirtualSatoshisReserve())

	other := NewStoredReserve(storage.NewOverlay(store), NewTokenID("PILL"))
	assert.True(t, other.Liquidity().IsZero())
}

func TestOwedLedger_ReserveAndSettle(t *testing.T) {
	o := storage.NewOverlay(storage.NewMemStore())
	l := NewOwedLedger(o)
	id := NewProviderID("carol", "MOTO")

	l.SetOwed(id, 1000)
	require.NoError(t, l.AddReserved(id, 700))
	avail, err := l.Available(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), avail)

	err = l.AddReserved(id, 301)
	assert.Equal(t, failure.KindImpossibleState, failure.KindOf(err))

	require.NoError(t, l.Settle(id, 700, 500))
	assert.Equal(t, uint64(500), l.Owed(id))
	assert.Zero(t, l.Reserved(id))

	l.Clear(id)
	assert.Zero(t, l.Owed(id))
}
