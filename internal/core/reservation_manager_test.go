package core

import (
	"NativeSwap/internal/event"
	"NativeSwap/internal/failure"
	fpmath "NativeSwap/internal/math"
	"NativeSwap/internal/state"
	"NativeSwap/internal/storage"
	"NativeSwap/internal/testutil"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureToken = "MOTO"

// 200 tokens per satoshi
var fixtureQuote = uint256.NewInt(20_000_000_000)

// --- Test helpers ---

// managerFixture wires a ProviderManager over an overlay with in-memory
// reserve and quote history.
type managerFixture struct {
	tx        *storage.Overlay
	params    state.Params
	repo      *state.ProviderRepository
	reserve   *state.MemoryReserve
	quotes    state.MemoryQuoteHistory
	events    *event.Recorder
	providers *state.ProviderManager
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	tx, _ := testutil.NewOverlay()
	f := &managerFixture{
		tx:      tx,
		params:  state.DefaultParams(),
		repo:    state.NewProviderRepository(tx),
		reserve: state.NewMemoryReserve(),
		quotes:  state.MemoryQuoteHistory{},
		events:  event.NewRecorder(),
	}
	f.reopen()
	return f
}

// reopen rebuilds the provider manager the way the next call would see it.
func (f *managerFixture) reopen() {
	token := state.NewTokenID(fixtureToken)
	f.providers = state.NewProviderManager(f.tx, token, f.repo, f.reserve, state.NewOwedLedger(f.tx),
		state.NewPoolSettings(f.tx, token), f.events, f.params)
}

func (f *managerFixture) reservations(block uint64) *ReservationManager {
	return NewReservationManager(f.tx, state.NewTokenID(fixtureToken), block, f.providers, f.reserve, f.quotes, f.events, f.params)
}

// listed queues owner with liquidity tokens.
func (f *managerFixture) listed(t *testing.T, owner string, kind state.QueueKind, liquidity uint64) *state.Provider {
	t.Helper()
	p, err := f.providers.GetProvider(state.NewProviderID(owner, fixtureToken))
	require.NoError(t, err)
	_, err = f.providers.AddToQueue(p, kind)
	require.NoError(t, err)
	require.NoError(t, p.AddLiquidity(testutil.U(liquidity)))
	require.NoError(t, f.reserve.AddToTotalReserve(testutil.U(liquidity)))
	p.Active = true
	p.Receiver = owner + "-btc"
	return p
}

// pendingRemoval queues owner in the removal queue, owed satoshis.
func (f *managerFixture) pendingRemoval(t *testing.T, owner string, liquidity, owed uint64) *state.Provider {
	t.Helper()
	p := f.listed(t, owner, state.QueueRemoval, liquidity)
	p.PendingRemoval = true
	p.LiquidityProvisionAllowed = true
	f.providers.Owed().SetOwed(p.ID, owed)
	return p
}

// reserveFrom holds amount of p for owner at block and registers the
// reservation the way the reserve operation does.
func (f *managerFixture) reserveFrom(t *testing.T, block uint64, owner string, p *state.Provider, amount uint64) *state.Reservation {
	t.Helper()
	f.quotes.SetBlockQuote(block, fixtureQuote)
	kind := p.Membership.Kind()
	index, _ := p.Membership.Index()
	require.NoError(t, p.AddReserved(testutil.U(amount)))
	require.NoError(t, f.reserve.AddToReservedLiquidity(testutil.U(amount)))
	if kind == state.QueueRemoval {
		sats, err := fpmath.TokensToSatoshis(testutil.U(amount), fixtureQuote, fpmath.RoundDown)
		require.NoError(t, err)
		require.NoError(t, f.providers.Owed().AddReserved(p.ID, sats))
	}

	id := state.NewReservationID(fixtureToken, owner)
	r := state.NewReservation(id, block, f.params.ReservationExpireAfterBlocks, 0, false)
	require.NoError(t, r.AddProvider(state.ReservationEntry{
		ProviderIndex:  index,
		ProvidedAmount: testutil.U(amount),
		ProviderType:   kind,
		CreationBlock:  block,
	}))
	purgeIndex, err := f.reservations(block).AddActiveReservation(block, id)
	require.NoError(t, err)
	r.PurgeIndex = purgeIndex
	r.Save(f.tx)
	return r
}

func (f *managerFixture) load(t *testing.T, owner string) *state.Reservation {
	t.Helper()
	r, err := state.LoadReservation(f.tx, state.NewReservationID(fixtureToken, owner))
	require.NoError(t, err)
	return r
}

// --- Active reservation index ---

func TestAddActiveReservation_IndexesPerBlock(t *testing.T) {
	f := newManagerFixture(t)
	rm := f.reservations(10)

	i, err := rm.AddActiveReservation(10, state.NewReservationID(fixtureToken, "bob"))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), i)
	i, err = rm.AddActiveReservation(10, state.NewReservationID(fixtureToken, "dave"))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), i)
	i, err = rm.AddActiveReservation(11, state.NewReservationID(fixtureToken, "eve"))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), i)

	blocks := rm.blocksWithReservations()
	require.Equal(t, uint64(2), blocks.Len())
	first, err := blocks.Get(blocks.Start())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), first)
}

func TestAddActiveReservation_FlagsOutOfStep(t *testing.T) {
	f := newManagerFixture(t)
	rm := f.reservations(10)
	_, err := rm.blockFlags(10).Push(true)
	require.NoError(t, err)

	_, err = rm.AddActiveReservation(10, state.NewReservationID(fixtureToken, "bob"))
	assert.ErrorIs(t, err, failure.ErrImpossibleState)
}

func TestDeactivateReservation_Twice(t *testing.T) {
	f := newManagerFixture(t)
	carol := f.listed(t, "carol", state.QueueNormal, 10_000_000)
	r := f.reserveFrom(t, 10, "bob", carol, 4_000_000)
	rm := f.reservations(11)

	require.NoError(t, rm.DeactivateReservation(r))
	assert.ErrorIs(t, rm.DeactivateReservation(r), failure.ErrImpossibleState)
}

// --- Purge sweep ---

func TestPurge_NothingBeforeWindow(t *testing.T) {
	f := newManagerFixture(t)
	carol := f.listed(t, "carol", state.QueueNormal, 10_000_000)
	f.reserveFrom(t, 10, "bob", carol, 4_000_000)

	// expires after block 15, so block 15 has nothing to sweep
	last, err := f.reservations(15).PurgeReservationsAndRestoreProviders(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), last)
	assert.Equal(t, "4000000", carol.Reserved().Dec())
	assert.True(t, f.load(t, "bob").IsValid(15))
}

func TestPurge_ReleasesExpiredHolds(t *testing.T) {
	f := newManagerFixture(t)
	carol := f.listed(t, "carol", state.QueueNormal, 10_000_000)
	f.reserveFrom(t, 10, "bob", carol, 4_000_000)

	last, err := f.reservations(16).PurgeReservationsAndRestoreProviders(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), last)

	assert.True(t, carol.Reserved().IsZero())
	assert.Equal(t, "10000000", carol.Liquidity().Dec())
	assert.True(t, f.reserve.ReservedLiquidity().IsZero())
	assert.True(t, carol.Purged)
	assert.Equal(t, uint64(1), f.providers.PurgeQueue(state.QueueNormal).Len())

	r := f.load(t, "bob")
	assert.True(t, r.Purged)
	assert.Equal(t, state.IndexNotSet, r.PurgeIndex)
	require.Len(t, r.Entries, 1)

	blocks := f.reservations(16).blocksWithReservations()
	assert.Zero(t, blocks.Len())

	notices := f.events.Notices()
	require.NotEmpty(t, notices)
	purged, ok := notices[len(notices)-1].(*event.ReservationsPurged)
	require.True(t, ok)
	assert.Equal(t, 1, purged.Reservations)
	assert.Equal(t, "4000000", purged.FreedTokens.Dec())
}

func TestPurge_ResetsDustProvider(t *testing.T) {
	f := newManagerFixture(t)
	// 100_000 tokens are worth 500 satoshis, below the provider minimum
	carol := f.listed(t, "carol", state.QueueNormal, 100_000)
	f.reserveFrom(t, 10, "bob", carol, 100_000)

	_, err := f.reservations(16).PurgeReservationsAndRestoreProviders(0)
	require.NoError(t, err)
	assert.True(t, carol.Liquidity().IsZero())
	assert.Equal(t, state.QueueNone, carol.Membership.Kind())
	assert.True(t, f.reserve.Liquidity().IsZero())
	assert.Zero(t, f.providers.PurgeQueue(state.QueueNormal).Len())
}

func TestPurge_RestoresOwedSatoshis(t *testing.T) {
	f := newManagerFixture(t)
	erin := f.pendingRemoval(t, "erin", 10_000_000, 50_000)
	f.reserveFrom(t, 10, "bob", erin, 2_000_000)
	require.Equal(t, uint64(10_000), f.providers.Owed().Reserved(erin.ID))

	_, err := f.reservations(16).PurgeReservationsAndRestoreProviders(0)
	require.NoError(t, err)
	assert.Zero(t, f.providers.Owed().Reserved(erin.ID))
	assert.Equal(t, uint64(50_000), f.providers.Owed().Owed(erin.ID))
	assert.True(t, erin.Reserved().IsZero())
	assert.Equal(t, uint64(1), f.providers.PurgeQueue(state.QueueRemoval).Len())
}

func TestPurge_ResumesAfterPerCallLimit(t *testing.T) {
	f := newManagerFixture(t)
	f.params.MaxPurgePerCall = 2
	f.reopen()
	carol := f.listed(t, "carol", state.QueueNormal, 10_000_000)
	for _, owner := range []string{"bob", "dave", "eve"} {
		f.reserveFrom(t, 10, owner, carol, 1_000_000)
	}

	last, err := f.reservations(16).PurgeReservationsAndRestoreProviders(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), last, "block 10 is not fully swept")
	assert.Equal(t, "1000000", carol.Reserved().Dec())
	assert.True(t, f.load(t, "bob").Purged)
	assert.True(t, f.load(t, "dave").Purged)
	assert.False(t, f.load(t, "eve").Purged)

	last, err = f.reservations(16).PurgeReservationsAndRestoreProviders(last)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), last)
	assert.True(t, carol.Reserved().IsZero())
	assert.True(t, f.load(t, "eve").Purged)
	assert.Zero(t, f.reservations(16).blocksWithReservations().Len())
}

func TestPurge_PurgeIndexMismatch(t *testing.T) {
	f := newManagerFixture(t)
	carol := f.listed(t, "carol", state.QueueNormal, 10_000_000)
	r := f.reserveFrom(t, 10, "bob", carol, 4_000_000)
	r, err := state.LoadReservation(f.tx, r.ID)
	require.NoError(t, err)
	r.PurgeIndex = 7
	r.Save(f.tx)

	_, err = f.reservations(16).PurgeReservationsAndRestoreProviders(0)
	assert.ErrorIs(t, err, failure.ErrImpossibleState)
}

func TestPurge_ReservationStillValid(t *testing.T) {
	f := newManagerFixture(t)
	carol := f.listed(t, "carol", state.QueueNormal, 10_000_000)
	id := state.NewReservationID(fixtureToken, "bob")
	// indexed at block 10 but with a window that outlives the sweep
	r := state.NewReservation(id, 10, 50, 0, false)
	require.NoError(t, carol.AddReserved(testutil.U(1_000_000)))
	require.NoError(t, r.AddProvider(state.ReservationEntry{
		ProviderIndex:  0,
		ProvidedAmount: testutil.U(1_000_000),
		ProviderType:   state.QueueNormal,
		CreationBlock:  10,
	}))
	purgeIndex, err := f.reservations(10).AddActiveReservation(10, id)
	require.NoError(t, err)
	r.PurgeIndex = purgeIndex
	r.Save(f.tx)

	_, err = f.reservations(16).PurgeReservationsAndRestoreProviders(0)
	assert.ErrorIs(t, err, failure.ErrImpossibleState)
}

func TestPurge_CursorRewindsOnlyWhenTokensFreed(t *testing.T) {
	tests := []struct {
		name       string
		expired    bool
		wantCursor uint64
	}{
		{name: "freed tokens rewind to head", expired: true, wantCursor: 0},
		{name: "nothing freed restores cursor", expired: false, wantCursor: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newManagerFixture(t)
			carol := f.listed(t, "carol", state.QueueNormal, 10_000_000)
			dave := f.listed(t, "dave", state.QueueNormal, 10_000_000)
			if tt.expired {
				f.reserveFrom(t, 10, "bob", carol, 10_000_000)
			} else {
				require.NoError(t, carol.AddReserved(testutil.U(10_000_000)))
			}

			// carol is fully held, so the traversal settles on dave
			next, err := f.providers.GetNextProviderWithLiquidity(fixtureQuote)
			require.NoError(t, err)
			require.Equal(t, dave.ID, next.ID)
			f.providers.Save()
			f.reopen()
			// dave fully held too: this call's traversal runs off the end
			require.NoError(t, dave.AddReserved(testutil.U(10_000_000)))
			next, err = f.providers.GetNextProviderWithLiquidity(fixtureQuote)
			require.NoError(t, err)
			require.Nil(t, next)
			require.Equal(t, uint64(2), f.providers.Queue(state.QueueNormal).Cursor())

			_, err = f.reservations(16).PurgeReservationsAndRestoreProviders(0)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCursor, f.providers.Queue(state.QueueNormal).Cursor())
		})
	}
}
