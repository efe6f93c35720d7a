package core

import (
	"NativeSwap/internal/event"
	"NativeSwap/internal/failure"
	"NativeSwap/internal/state"
	"NativeSwap/internal/testutil"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSatoshisSent(t *testing.T) {
	ctx := testutil.Ctx(10, "bob", testutil.Pay("carol-btc", 200), testutil.Pay("carol-btc", 100), testutil.Pay("dave-btc", 50))
	tm := NewTradeManager(nil, nil, nil, nil, ctx, nil, state.DefaultParams())

	sent, err := tm.getSatoshisSent("carol-btc")
	require.NoError(t, err)
	assert.Equal(t, uint64(300), sent)

	sent, err = tm.getSatoshisSent("nobody")
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestGetSatoshisSent_ExactlyConsumed(t *testing.T) {
	ctx := testutil.Ctx(10, "bob", testutil.Pay("carol-btc", 300))
	tm := NewTradeManager(nil, nil, nil, nil, ctx, nil, state.DefaultParams())
	require.NoError(t, tm.reportConsumed("carol-btc", 300))

	sent, err := tm.getSatoshisSent("carol-btc")
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestGetSatoshisSent_DoubleSpend(t *testing.T) {
	ctx := testutil.Ctx(10, "bob", testutil.Pay("carol-btc", 300))
	tm := NewTradeManager(nil, nil, nil, nil, ctx, nil, state.DefaultParams())
	require.NoError(t, tm.reportConsumed("carol-btc", 301))

	_, err := tm.getSatoshisSent("carol-btc")
	assert.ErrorIs(t, err, failure.ErrImpossibleState)
}

func TestGetSatoshisSent_Overflow(t *testing.T) {
	ctx := testutil.Ctx(10, "bob", testutil.Pay("carol-btc", ^uint64(0)), testutil.Pay("carol-btc", 1))
	tm := NewTradeManager(nil, nil, nil, nil, ctx, nil, state.DefaultParams())

	_, err := tm.getSatoshisSent("carol-btc")
	assert.ErrorIs(t, err, failure.ErrArithmetic)
}

func (f *managerFixture) trader(block uint64, outputs ...event.PaymentOutput) *TradeManager {
	ctx := testutil.Ctx(block, "bob", outputs...)
	return NewTradeManager(f.providers, f.reserve, f.quotes, f.reservations(block), ctx, f.events, f.params)
}

// expiredTombstone leaves bob's reservation on carol purged at block 16.
func (f *managerFixture) expiredTombstone(t *testing.T, carol *state.Provider) *state.Reservation {
	t.Helper()
	f.reserveFrom(t, 10, "bob", carol, 4_000_000)
	_, err := f.reservations(16).PurgeReservationsAndRestoreProviders(0)
	require.NoError(t, err)
	r := f.load(t, "bob")
	require.True(t, r.Purged)
	return r
}

func TestExecuteTradeNotExpired_NormalProvider(t *testing.T) {
	tests := []struct {
		name          string
		liquidity     uint64
		paid          uint64
		wantPurchased uint64
		wantSpent     uint64
		wantRefunded  uint64
		wantLiquidity uint64
		wantPurged    bool
		wantQueued    bool
	}{
		{
			name:      "full fill keeps provider queued",
			liquidity: 10_000_000, paid: 20_000,
			wantPurchased: 4_000_000, wantSpent: 20_000, wantLiquidity: 6_000_000,
			wantQueued: true,
		},
		{
			name:      "partial fill queues provider for purge",
			liquidity: 10_000_000, paid: 10_000,
			wantPurchased: 2_000_000, wantSpent: 10_000, wantRefunded: 2_000_000, wantLiquidity: 8_000_000,
			wantPurged: true, wantQueued: true,
		},
		{
			name:      "full fill resets dust provider",
			liquidity: 4_050_000, paid: 20_000,
			wantPurchased: 4_000_000, wantSpent: 20_000, wantLiquidity: 0,
		},
		{
			name:      "no payment refunds the hold",
			liquidity: 10_000_000, paid: 0,
			wantRefunded: 4_000_000, wantLiquidity: 10_000_000,
			wantPurged: true, wantQueued: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newManagerFixture(t)
			carol := f.listed(t, "carol", state.QueueNormal, tt.liquidity)
			r := f.reserveFrom(t, 10, "bob", carol, 4_000_000)

			var outputs []event.PaymentOutput
			if tt.paid > 0 {
				outputs = append(outputs, testutil.Pay("carol-btc", tt.paid))
			}
			result, err := f.trader(12, outputs...).ExecuteTradeNotExpired(r)
			require.NoError(t, err)

			assert.Equal(t, tt.wantPurchased, result.TokensPurchased.Uint64())
			assert.Equal(t, tt.wantSpent, result.SatoshisSpent)
			assert.Equal(t, tt.wantRefunded, result.TokensRefunded.Uint64())
			assert.Equal(t, uint64(4_000_000), result.TokensReserved.Uint64())
			assert.Equal(t, fixtureQuote.Dec(), result.Quote.Dec())
			assert.False(t, result.Expired)

			assert.Equal(t, tt.wantLiquidity, carol.Liquidity().Uint64())
			assert.True(t, carol.Reserved().IsZero())
			assert.Equal(t, tt.wantPurged, carol.Purged)
			assert.Equal(t, tt.wantQueued, carol.Membership.Kind() == state.QueueNormal)
			assert.Equal(t, tt.wantLiquidity, f.reserve.Liquidity().Uint64())
			assert.True(t, f.reserve.ReservedLiquidity().IsZero())
			assert.Equal(t, tt.wantPurchased, f.reserve.DeltaTokensBuy().Uint64())
			assert.Equal(t, tt.wantSpent, f.reserve.DeltaSatoshisBuy())
		})
	}
}

func TestExecuteTradeNotExpired_ActivatesPendingCredit(t *testing.T) {
	f := newManagerFixture(t)
	carol := f.listed(t, "carol", state.QueueNormal, 10_000_000)
	require.NoError(t, carol.AddPendingCredit(testutil.U(5_000_000)))
	r := f.reserveFrom(t, 10, "bob", carol, 4_000_000)

	_, err := f.trader(12, testutil.Pay("carol-btc", 20_000)).ExecuteTradeNotExpired(r)
	require.NoError(t, err)

	assert.True(t, carol.LiquidityProvisionAllowed)
	assert.True(t, carol.PendingCredit.IsZero())
	assert.Equal(t, uint64(5_000_000), f.reserve.DeltaTokensAdd().Uint64())

	var activated *event.ProviderActivated
	for _, n := range f.events.Notices() {
		if v, ok := n.(*event.ProviderActivated); ok {
			activated = v
		}
	}
	require.NotNil(t, activated)
	assert.Equal(t, carol.ID.String(), activated.ProviderID)
	assert.Equal(t, uint64(5_000_000), activated.CreditedTokens.Uint64())
	assert.Equal(t, uint64(25_000), activated.CreditedSatoshis)
}

func TestExecuteTradeNotExpired_ActivatedProviderCreditsTopUp(t *testing.T) {
	f := newManagerFixture(t)
	carol := f.listed(t, "carol", state.QueueNormal, 10_000_000)
	carol.LiquidityProvisionAllowed = true
	require.NoError(t, carol.AddPendingCredit(testutil.U(3_000_000)))
	r := f.reserveFrom(t, 10, "bob", carol, 4_000_000)

	_, err := f.trader(12, testutil.Pay("carol-btc", 20_000)).ExecuteTradeNotExpired(r)
	require.NoError(t, err)
	assert.Equal(t, uint64(3_000_000), f.reserve.DeltaTokensAdd().Uint64())
	for _, n := range f.events.Notices() {
		_, ok := n.(*event.ProviderActivated)
		assert.False(t, ok, "an activated provider is not activated again")
	}
}

func TestExecuteTradeNotExpired_RejectsEarlyOrInvalid(t *testing.T) {
	f := newManagerFixture(t)
	carol := f.listed(t, "carol", state.QueueNormal, 10_000_000)
	r := f.reserveFrom(t, 10, "bob", carol, 4_000_000)

	_, err := f.trader(10, testutil.Pay("carol-btc", 20_000)).ExecuteTradeNotExpired(r)
	assert.ErrorIs(t, err, failure.ErrPrecondition)

	_, err = f.trader(16, testutil.Pay("carol-btc", 20_000)).ExecuteTradeNotExpired(r)
	assert.ErrorIs(t, err, failure.ErrPrecondition)
}

func TestExecuteTradeNotExpired_RemovalProvider(t *testing.T) {
	tests := []struct {
		name          string
		owed          uint64
		paid          uint64
		wantPurchased uint64
		wantOwed      uint64
		wantLiquidity uint64
		wantPurged    bool
		wantQueued    bool
	}{
		{
			name: "payment settles owed satoshis",
			owed: 50_000, paid: 10_000,
			wantPurchased: 2_000_000, wantOwed: 40_000, wantLiquidity: 8_000_000,
			wantQueued: true,
		},
		{
			name: "partial payment releases the rest of the hold",
			owed: 50_000, paid: 4_000,
			wantPurchased: 800_000, wantOwed: 46_000, wantLiquidity: 9_200_000,
			wantPurged: true, wantQueued: true,
		},
		{
			name: "paid off provider leaves the queue",
			owed: 10_000, paid: 10_000,
			wantPurchased: 2_000_000, wantOwed: 0, wantLiquidity: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newManagerFixture(t)
			erin := f.pendingRemoval(t, "erin", 10_000_000, tt.owed)
			r := f.reserveFrom(t, 10, "bob", erin, 2_000_000)

			result, err := f.trader(12, testutil.Pay("erin-btc", tt.paid)).ExecuteTradeNotExpired(r)
			require.NoError(t, err)

			assert.Equal(t, tt.wantPurchased, result.TokensPurchased.Uint64())
			assert.Equal(t, tt.paid, result.SatoshisSpent)
			assert.Equal(t, tt.wantOwed, f.providers.Owed().Owed(erin.ID))
			assert.Zero(t, f.providers.Owed().Reserved(erin.ID))
			assert.Equal(t, tt.wantLiquidity, erin.Liquidity().Uint64())
			assert.Equal(t, tt.wantPurged, erin.Purged)
			assert.Equal(t, tt.wantQueued, erin.Membership.Kind() == state.QueueRemoval)
			assert.Equal(t, tt.wantLiquidity, f.reserve.Liquidity().Uint64())
		})
	}
}

func TestExecuteTradeExpired_FillsFromAvailableInventory(t *testing.T) {
	f := newManagerFixture(t)
	carol := f.listed(t, "carol", state.QueueNormal, 10_000_000)
	r := f.expiredTombstone(t, carol)

	result, err := f.trader(16, testutil.Pay("carol-btc", 10_000)).ExecuteTradeExpired(r, fixtureQuote)
	require.NoError(t, err)
	assert.True(t, result.Expired)
	assert.Equal(t, uint64(2_000_000), result.TokensPurchased.Uint64())
	assert.Equal(t, uint64(10_000), result.SatoshisSpent)
	assert.Equal(t, uint64(8_000_000), carol.Liquidity().Uint64())
}

func TestExecuteTradeExpired_SkipsProviderThatLeftItsSlot(t *testing.T) {
	tests := []struct {
		name    string
		cleanUp bool
	}{
		{name: "slot vacated", cleanUp: false},
		{name: "slot shifted away", cleanUp: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newManagerFixture(t)
			carol := f.listed(t, "carol", state.QueueNormal, 10_000_000)
			r := f.expiredTombstone(t, carol)
			require.NoError(t, f.providers.ResetProvider(carol, true, true))
			if tt.cleanUp {
				require.NoError(t, f.providers.CleanUpQueues())
				require.Equal(t, uint64(1), f.providers.Queue(state.QueueNormal).Start())
			}

			result, err := f.trader(16, testutil.Pay("carol-btc", 10_000)).ExecuteTradeExpired(r, fixtureQuote)
			require.NoError(t, err)
			assert.True(t, result.TokensPurchased.IsZero())
			assert.Equal(t, uint64(4_000_000), result.TokensReserved.Uint64())
		})
	}
}

func TestExecuteTradeExpired_MembershipMismatch(t *testing.T) {
	f := newManagerFixture(t)
	carol := f.listed(t, "carol", state.QueueNormal, 10_000_000)
	r := f.expiredTombstone(t, carol)
	carol.Membership = state.Queued(state.QueueNormal, 3)

	_, err := f.trader(16, testutil.Pay("carol-btc", 10_000)).ExecuteTradeExpired(r, fixtureQuote)
	assert.ErrorIs(t, err, failure.ErrImpossibleState)
}
