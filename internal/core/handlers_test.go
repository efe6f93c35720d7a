package core

import (
	"NativeSwap/internal/event"
	"NativeSwap/internal/state"
	"NativeSwap/internal/testutil"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserve_SkipsRemovalProviderOwedTooLittle(t *testing.T) {
	f := newManagerFixture(t)
	token := state.NewTokenID(fixtureToken)
	pool := state.NewPoolSettings(f.tx, token)
	pool.MarkCreated()
	pool.SetMaxReservesPercent(100)
	pool.SetLastVirtualUpdateBlock(3)
	state.NewQuoteManager(f.tx, token).SetBlockQuote(3, fixtureQuote)

	// erin is owed less than a provider minimum but heads the purge queue
	erin := f.pendingRemoval(t, "erin", 10_000_000, 100)
	require.NoError(t, f.providers.AddToPurgeQueue(erin))
	frank := f.pendingRemoval(t, "frank", 10_000_000, 50_000)
	f.repo.Flush()

	lq := openQueue(t, f.tx, 3, f.reserve)
	err := reserve(lq, &event.Reserve{
		Meta:             testutil.Meta(fixtureToken, testutil.Ctx(3, "bob")),
		MaximumAmountIn:  100_000,
		MinimumAmountOut: new(uint256.Int),
	})
	require.NoError(t, err)

	r := f.load(t, "bob")
	require.Len(t, r.Entries, 1)
	assert.Equal(t, state.QueueRemoval, r.Entries[0].ProviderType)
	frankIndex, _ := frank.Membership.Index()
	assert.Equal(t, frankIndex, r.Entries[0].ProviderIndex)
	assert.Equal(t, "10000000", r.Entries[0].ProvidedAmount.Dec())

	pm := lq.Providers().(*state.ProviderManager)
	assert.Equal(t, uint64(50_000), pm.Owed().Reserved(frank.ID))
	assert.Zero(t, pm.PurgeQueue(state.QueueRemoval).Len())
	got, err := pm.GetProvider(erin.ID)
	require.NoError(t, err)
	assert.False(t, got.Purged)
	assert.True(t, got.Reserved().IsZero())
}
