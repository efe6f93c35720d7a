package state

import (
	"testing"

	"NativeSwap/internal/failure"
	"NativeSwap/internal/storage"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_EncodeDecodeRoundTrip(t *testing.T) {
	p := NewProvider(NewProviderID("carol", "MOTO"))
	p.Receiver = "bc1qcarol"
	require.NoError(t, p.AddLiquidity(uint256.NewInt(5000)))
	require.NoError(t, p.AddReserved(uint256.NewInt(1200)))
	require.NoError(t, p.AddProvided(uint256.NewInt(300)))
	require.NoError(t, p.AddPendingCredit(uint256.NewInt(2500)))
	p.Active = true
	p.Priority = true
	p.LiquidityProvider = true
	p.Membership = Queued(QueuePriority, 4)

	got, err := decodeProvider(p.ID, p.encode())
	require.NoError(t, err)
	assert.Equal(t, p.Receiver, got.Receiver)
	assert.Equal(t, uint64(5000), got.Liquidity().Uint64())
	assert.Equal(t, uint64(1200), got.Reserved().Uint64())
	assert.Equal(t, uint64(300), got.Provided().Uint64())
	assert.Equal(t, uint64(2500), got.PendingCredit.Uint64())
	assert.True(t, got.Active)
	assert.True(t, got.Priority)
	assert.False(t, got.PendingRemoval)
	assert.True(t, got.Membership.Is(QueuePriority, 4))
}

func TestProvider_DecodeRejectsTruncatedRecord(t *testing.T) {
	p := NewProvider(NewProviderID("carol", "MOTO"))
	enc := p.encode()
	_, err := decodeProvider(p.ID, enc[:len(enc)-3])
	assert.Equal(t, failure.KindImpossibleState, failure.KindOf(err))
}

func TestProvider_ReservedBoundedByLiquidity(t *testing.T) {
	p := NewProvider(NewProviderID("carol", "MOTO"))
	require.NoError(t, p.AddLiquidity(uint256.NewInt(100)))

	err := p.AddReserved(uint256.NewInt(101))
	assert.Equal(t, failure.KindImpossibleState, failure.KindOf(err))

	require.NoError(t, p.AddReserved(uint256.NewInt(60)))
	err = p.SubtractLiquidity(uint256.NewInt(50))
	assert.Equal(t, failure.KindImpossibleState, failure.KindOf(err))

	err = p.SubtractReserved(uint256.NewInt(61))
	assert.Equal(t, failure.KindImpossibleState, failure.KindOf(err))
}

func TestProvider_IsDust(t *testing.T) {
	p := NewProvider(NewProviderID("carol", "MOTO"))
	quote := uint256.NewInt(100_000_000 * 100)

	dust, err := p.IsDust(quote, 600)
	require.NoError(t, err)
	assert.True(t, dust)

	require.NoError(t, p.AddLiquidity(uint256.NewInt(59_900)))
	dust, err = p.IsDust(quote, 600)
	require.NoError(t, err)
	assert.True(t, dust)

	require.NoError(t, p.AddLiquidity(uint256.NewInt(100)))
	dust, err = p.IsDust(quote, 600)
	require.NoError(t, err)
	assert.False(t, dust)

	require.NoError(t, p.AddReserved(uint256.NewInt(1)))
	dust, err = p.IsDust(quote, 600)
	require.NoError(t, err)
	assert.False(t, dust)
}

func TestProviderRepository_FlushWritesOnlyChanges(t *testing.T) {
	store := storage.NewMemStore()
	o := storage.NewOverlay(store)
	repo := NewProviderRepository(o)
	id := NewProviderID("carol", "MOTO")

	p, err := repo.Get(id)
	require.NoError(t, err)
	same, err := repo.Get(id)
	require.NoError(t, err)
	assert.Same(t, p, same)

	assert.Zero(t, repo.Flush())
	require.NoError(t, p.AddLiquidity(uint256.NewInt(10)))
	assert.Equal(t, 1, repo.Flush())
	assert.Zero(t, repo.Flush())

	p.Reset()
	assert.Equal(t, 1, repo.Flush())
	assert.Nil(t, o.Get(providerKey(id)))
}

func newActiveProvider(t *testing.T, repo *ProviderRepository, owner string, liquidity uint64) *Provider {
	t.Helper()
	p, err := repo.Get(NewProviderID(owner, "MOTO"))
	require.NoError(t, err)
	require.NoError(t, p.AddLiquidity(uint256.NewInt(liquidity)))
	p.Active = true
	return p
}

func TestProviderQueue_AddNextRemoveCleanUp(t *testing.T) {
	o := storage.NewOverlay(storage.NewMemStore())
	repo := NewProviderRepository(o)
	q := NewProviderQueue(o, NewTokenID("MOTO"), QueueNormal, 100)

	a := newActiveProvider(t, repo, "a", 1_000_000)
	b := newActiveProvider(t, repo, "b", 1_000_000)

	ia, err := q.Add(a)
	require.NoError(t, err)
	ib, err := q.Add(b)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), ia)
	assert.Equal(t, uint32(1), ib)
	assert.Equal(t, uint64(2), q.Len())

	_, err = q.Add(a)
	assert.Equal(t, failure.KindImpossibleState, failure.KindOf(err))

	next, err := q.Next(repo, nil, 600)
	require.NoError(t, err)
	assert.Same(t, a, next)

	require.NoError(t, q.Remove(a))
	_, queued := a.Membership.Index()
	assert.False(t, queued)

	next, err = q.Next(repo, nil, 600)
	require.NoError(t, err)
	assert.Same(t, b, next)

	require.NoError(t, q.CleanUp())
	assert.Equal(t, uint64(1), q.Len())
	assert.Equal(t, uint64(1), q.Start())

	require.NoError(t, q.Remove(b))
	next, err = q.Next(repo, nil, 600)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestProviderQueue_SkipsProvidersWithoutTradableLiquidity(t *testing.T) {
	o := storage.NewOverlay(storage.NewMemStore())
	repo := NewProviderRepository(o)
	q := NewProviderQueue(o, NewTokenID("MOTO"), QueueNormal, 100)

	inactive := newActiveProvider(t, repo, "a", 1_000_000)
	inactive.Active = false
	tiny := newActiveProvider(t, repo, "b", 100)
	good := newActiveProvider(t, repo, "c", 1_000_000)
	for _, p := range []*Provider{inactive, tiny, good} {
		_, err := q.Add(p)
		require.NoError(t, err)
	}

	quote := uint256.NewInt(100_000_000 * 100)
	next, err := q.Next(repo, quote, 600)
	require.NoError(t, err)
	assert.Same(t, good, next)
	assert.Equal(t, uint64(2), q.Cursor())

	q.RestoreCurrentIndex()
	assert.Equal(t, uint64(0), q.Cursor())
}

func TestPurgeQueue_PushIsIdempotentAndNextDropsStaleHeads(t *testing.T) {
	o := storage.NewOverlay(storage.NewMemStore())
	repo := NewProviderRepository(o)
	token := NewTokenID("MOTO")
	queue := NewProviderQueue(o, token, QueueNormal, 100)
	purge := NewPurgeQueue(o, token, QueueNormal, 100)

	stale := newActiveProvider(t, repo, "a", 1_000_000)
	live := newActiveProvider(t, repo, "b", 1_000_000)
	for _, p := range []*Provider{stale, live} {
		_, err := queue.Add(p)
		require.NoError(t, err)
		require.NoError(t, purge.Push(p))
	}
	require.NoError(t, purge.Push(live))
	assert.Equal(t, uint64(2), purge.Len())
	assert.True(t, live.Purged)

	stale.Active = false
	next, err := purge.Next(repo, nil, 600)
	require.NoError(t, err)
	assert.Same(t, live, next)
	assert.Equal(t, uint64(1), purge.Len())
	assert.False(t, stale.Purged)
}

func TestProviderQueue_RewindOnlyMovesBack(t *testing.T) {
	o := storage.NewOverlay(storage.NewMemStore())
	repo := NewProviderRepository(o)
	q := NewProviderQueue(o, NewTokenID("MOTO"), QueueNormal, 100)

	held := newActiveProvider(t, repo, "a", 1_000_000)
	require.NoError(t, held.AddReserved(uint256.NewInt(1_000_000)))
	_, err := q.Add(held)
	require.NoError(t, err)

	next, err := q.Next(repo, nil, 600)
	require.NoError(t, err)
	require.Nil(t, next)
	require.Equal(t, uint64(1), q.Cursor())

	q.Rewind(5)
	assert.Equal(t, uint64(1), q.Cursor())

	require.NoError(t, held.AddLiquidity(uint256.NewInt(1_000_000)))
	q.Rewind(0)
	assert.Equal(t, uint64(0), q.Cursor())
	next, err = q.Next(repo, nil, 600)
	require.NoError(t, err)
	assert.Same(t, held, next)
}

func newTestManager(o *storage.Overlay) (*ProviderManager, *ProviderRepository) {
	token := NewTokenID("MOTO")
	repo := NewProviderRepository(o)
	pm := NewProviderManager(o, token, repo, NewMemoryReserve(), NewOwedLedger(o), NewPoolSettings(o, token), nil, DefaultParams())
	return pm, repo
}

func TestProviderManager_SkipRemovalProvider(t *testing.T) {
	o := storage.NewOverlay(storage.NewMemStore())
	pm, repo := newTestManager(o)
	quote := uint256.NewInt(100_000_000 * 100)

	a := newActiveProvider(t, repo, "a", 1_000_000)
	b := newActiveProvider(t, repo, "b", 1_000_000)
	for _, p := range []*Provider{a, b} {
		_, err := pm.AddToQueue(p, QueueRemoval)
		require.NoError(t, err)
		pm.Owed().SetOwed(p.ID, 5_000)
	}
	require.NoError(t, pm.AddToPurgeQueue(a))

	next, err := pm.GetNextRemovalProvider(quote)
	require.NoError(t, err)
	require.Same(t, a, next)
	require.NoError(t, pm.SkipRemovalProvider(a))
	assert.False(t, a.Purged)
	assert.Zero(t, pm.PurgeQueue(QueueRemoval).Len())

	next, err = pm.GetNextRemovalProvider(quote)
	require.NoError(t, err)
	require.Same(t, a, next)
	require.NoError(t, pm.SkipRemovalProvider(a))

	next, err = pm.GetNextRemovalProvider(quote)
	require.NoError(t, err)
	assert.Same(t, b, next)

	err = pm.SkipRemovalProvider(a)
	assert.Equal(t, failure.KindImpossibleState, failure.KindOf(err))
}

func TestProviderManager_GetProviderFromQueue(t *testing.T) {
	o := storage.NewOverlay(storage.NewMemStore())
	pm, repo := newTestManager(o)

	a := newActiveProvider(t, repo, "a", 1_000_000)
	b := newActiveProvider(t, repo, "b", 1_000_000)
	for _, p := range []*Provider{a, b} {
		_, err := pm.AddToQueue(p, QueueNormal)
		require.NoError(t, err)
	}

	got, err := pm.GetProviderFromQueue(1, QueueNormal)
	require.NoError(t, err)
	assert.Same(t, b, got)

	require.NoError(t, pm.RemoveFromQueue(a))
	got, err = pm.GetProviderFromQueue(0, QueueNormal)
	require.NoError(t, err)
	assert.Nil(t, got, "vacated slot")

	require.NoError(t, pm.CleanUpQueues())
	got, err = pm.GetProviderFromQueue(0, QueueNormal)
	require.NoError(t, err)
	assert.Nil(t, got, "shifted slot")

	_, err = pm.GetProviderFromQueue(9, QueueNormal)
	assert.Equal(t, failure.KindImpossibleState, failure.KindOf(err))

	b.Membership = Queued(QueueNormal, 4)
	_, err = pm.GetProviderFromQueue(1, QueueNormal)
	assert.Equal(t, failure.KindImpossibleState, failure.KindOf(err))
}
