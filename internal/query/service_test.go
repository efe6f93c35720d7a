package query_test

import (
	"NativeSwap/internal/core"
	"NativeSwap/internal/event"
	"NativeSwap/internal/query"
	"NativeSwap/internal/state"
	"NativeSwap/internal/storage"
	"NativeSwap/internal/testutil"
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const token = "MOTO"

func setup(t *testing.T) (*query.QueryService, *core.Engine) {
	t.Helper()
	store := storage.NewMemStore()
	params := state.DefaultParams()
	e, err := core.NewEngine(core.EngineConfig{Store: store, Params: params, LRUCapacity: 16})
	require.NoError(t, err)
	return query.NewQueryService(store, params, e, nil), e
}

func createPool(t *testing.T, e *core.Engine, block uint64) {
	t.Helper()
	_, err := e.ProcessTransaction(&event.CreatePool{
		Meta:               testutil.Meta(token, testutil.Ctx(block, "alice")),
		FloorPrice:         uint256.NewInt(100),
		InitialLiquidity:   uint256.NewInt(1_000_000_000),
		Receiver:           "alice-btc",
		MaxReservesPercent: 50,
	})
	require.NoError(t, err)
}

func TestGetPool_NotFound(t *testing.T) {
	qs, _ := setup(t)
	_, err := qs.GetPool(context.Background(), token, 0)
	assert.ErrorIs(t, err, query.ErrPoolNotFound)
	assert.True(t, query.IsNotFound(err))
}

func TestGetPool_AfterCreate(t *testing.T) {
	qs, e := setup(t)
	createPool(t, e, 100)

	pool, err := qs.GetPool(context.Background(), token, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), pool.Block)
	assert.Equal(t, "20000000000", pool.Quote)
	assert.Equal(t, "200", pool.TokensPerSatoshi)
	assert.Equal(t, "0.005", pool.SatoshisPerToken)
	assert.Equal(t, "1000000000", pool.Liquidity)
	assert.Equal(t, "0", pool.ReservedLiquidity)
	assert.Equal(t, uint64(10_000_000), pool.VirtualSatoshisReserve)
}

func TestGetQuote(t *testing.T) {
	qs, e := setup(t)
	createPool(t, e, 100)

	q, err := qs.GetQuote(context.Background(), token, 10_000)
	require.NoError(t, err)
	assert.Equal(t, "2000000", q.TokensGross)
	assert.False(t, q.CapLimited)

	gross, err := uint256.FromDecimal(q.TokensGross)
	require.NoError(t, err)
	fee, err := uint256.FromDecimal(q.FeeTokens)
	require.NoError(t, err)
	net, err := uint256.FromDecimal(q.TokensNet)
	require.NoError(t, err)
	assert.Equal(t, gross, new(uint256.Int).Add(net, fee))
}

func TestGetQuote_RejectsZero(t *testing.T) {
	qs, e := setup(t)
	createPool(t, e, 100)

	_, err := qs.GetQuote(context.Background(), token, 0)
	assert.ErrorIs(t, err, query.ErrInvalidArgument)
	assert.True(t, query.IsInvalid(err))
}

func TestGetProvider_InitialProvider(t *testing.T) {
	qs, e := setup(t)
	createPool(t, e, 100)

	p, err := qs.GetProvider(context.Background(), token, "alice")
	require.NoError(t, err)
	assert.True(t, p.InitialProvider)
	assert.Equal(t, "alice-btc", p.Receiver)
	assert.Equal(t, "1000000000", p.Liquidity)
	assert.Equal(t, state.NewProviderID("alice", token).String(), p.ProviderID)
}

func TestGetReservation(t *testing.T) {
	qs, e := setup(t)
	createPool(t, e, 100)

	none, err := qs.GetReservation(context.Background(), token, "bob")
	require.NoError(t, err)
	assert.False(t, none.Exists)
	assert.Empty(t, none.Entries)

	_, err = e.ProcessTransaction(&event.Reserve{
		Meta:             testutil.Meta(token, testutil.Ctx(101, "bob")),
		MaximumAmountIn:  100_000,
		MinimumAmountOut: new(uint256.Int),
	})
	require.NoError(t, err)

	r, err := qs.GetReservation(context.Background(), token, "bob")
	require.NoError(t, err)
	assert.True(t, r.Exists)
	assert.True(t, r.Valid)
	assert.Equal(t, uint64(101), r.CreationBlock)
	assert.Equal(t, uint64(101), r.AsOfBlock)
	require.Len(t, r.Entries, 1)
	assert.True(t, r.Entries[0].InitialProvider)
	assert.Equal(t, r.TotalReserved, r.Entries[0].ProvidedAmount)
}

func TestQueriesDoNotWrite(t *testing.T) {
	store := storage.NewMemStore()
	params := state.DefaultParams()
	e, err := core.NewEngine(core.EngineConfig{Store: store, Params: params})
	require.NoError(t, err)
	qs := query.NewQueryService(store, params, e, nil)
	createPool(t, e, 100)

	before := store.Len()
	_, err = qs.GetPool(context.Background(), token, 500)
	require.NoError(t, err)
	_, err = qs.GetQuote(context.Background(), token, 50_000)
	require.NoError(t, err)
	assert.Equal(t, before, store.Len())
}

func TestHistoryWithoutDatabase(t *testing.T) {
	qs, _ := setup(t)
	_, err := qs.GetQuoteHistory(context.Background(), token, 10)
	assert.ErrorIs(t, err, query.ErrUnavailable)
	_, err = qs.VerifyIntegrity(context.Background())
	assert.ErrorIs(t, err, query.ErrUnavailable)
}
