package projection

import (
	"NativeSwap/internal/core"
	"NativeSwap/internal/event"
	"testing"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func output(pool *core.PoolView, notices ...event.Notice) core.CoreOutput {
	return core.CoreOutput{
		Envelope: &event.TxEnvelope{Sequence: 7, TxID: uuid.New(), OpType: event.OpSwap, Token: "MOTO", Block: 120},
		Notices:  notices,
		Pool:     pool,
	}
}

func createdPool() *core.PoolView {
	return &core.PoolView{
		Token:                  "MOTO",
		TokenID:                "ab",
		Block:                  120,
		Created:                true,
		Quote:                  uint256.NewInt(20_000_000_000),
		Liquidity:              uint256.NewInt(980_000_000),
		ReservedLiquidity:      uint256.NewInt(0),
		VirtualTokenReserve:    uint256.NewInt(1_000_000_000),
		VirtualSatoshisReserve: 10_000_000,
		Volatility:             uint256.NewInt(250),
		MaxReservesPercent:     50,
		NormalQueueLen:         2,
	}
}

func TestDerive_SwapProducesAllRows(t *testing.T) {
	u := Derive(output(createdPool(),
		&event.ProviderConsumed{ProviderID: "p1", Amount: uint256.NewInt(1000), Satoshis: 50},
		&event.ProviderConsumed{ProviderID: "p2", Amount: uint256.NewInt(2000), Satoshis: 100},
		&event.SwapExecuted{FeeBP: 42},
	))

	assert.Equal(t, int64(7), u.Sequence)
	require.NotNil(t, u.Pool)
	assert.Equal(t, "20000000000", u.Pool.Quote)
	assert.Equal(t, "980000000", u.Pool.Liquidity)
	assert.Equal(t, uint64(250), u.Pool.Volatility)
	assert.Equal(t, uint64(2), u.Pool.NormalQueueLen)
	assert.Equal(t, int64(7), u.Pool.Sequence)

	require.NotNil(t, u.Quote)
	require.NotNil(t, u.Quote.FeeBP)
	assert.Equal(t, uint64(42), *u.Quote.FeeBP)
	assert.Equal(t, uint64(120), u.Quote.Block)

	require.Len(t, u.Consumption, 2)
	assert.Equal(t, ConsumptionRow{Token: "MOTO", ProviderID: "p2", Sequence: 7, Block: 120, Tokens: "2000", Satoshis: 100}, u.Consumption[1])
}

func TestDerive_NonSwapHasNoFee(t *testing.T) {
	u := Derive(output(createdPool(), &event.LiquidityListed{ProviderID: "p1", Amount: uint256.NewInt(5)}))
	require.NotNil(t, u.Quote)
	assert.Nil(t, u.Quote.FeeBP)
	assert.Empty(t, u.Consumption)
}

func TestDerive_UncreatedPoolSkipsPoolRows(t *testing.T) {
	u := Derive(output(&core.PoolView{Token: "MOTO"}))
	assert.Nil(t, u.Pool)
	assert.Nil(t, u.Quote)

	u = Derive(output(nil))
	assert.Nil(t, u.Pool)
}
