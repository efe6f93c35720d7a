package state

import (
	"NativeSwap/internal/event"
	"NativeSwap/internal/failure"
	"NativeSwap/internal/storage"

	"github.com/holiman/uint256"
)

// ProviderManager owns the three provider queues of one token, their purge
// queues and the initial-provider fallback.
type ProviderManager struct {
	repo    *ProviderRepository
	reserve Reserve
	owed    *OwedLedger
	pool    *PoolSettings
	events  *event.Recorder
	params  Params

	queues map[QueueKind]*ProviderQueue
	purges map[QueueKind]*PurgeQueue
}

func NewProviderManager(
	tx storage.Tx,
	token TokenID,
	repo *ProviderRepository,
	reserve Reserve,
	owed *OwedLedger,
	pool *PoolSettings,
	events *event.Recorder,
	params Params,
) *ProviderManager {
	pm := &ProviderManager{
		repo:    repo,
		reserve: reserve,
		owed:    owed,
		pool:    pool,
		events:  events,
		params:  params,
		queues:  make(map[QueueKind]*ProviderQueue, 3),
		purges:  make(map[QueueKind]*PurgeQueue, 3),
	}
	for _, kind := range []QueueKind{QueuePriority, QueueNormal, QueueRemoval} {
		pm.queues[kind] = NewProviderQueue(tx, token, kind, params.MaxQueueLength)
		pm.purges[kind] = NewPurgeQueue(tx, token, kind, params.MaxQueueLength)
	}
	return pm
}

func (pm *ProviderManager) Repository() *ProviderRepository { return pm.repo }

func (pm *ProviderManager) Queue(kind QueueKind) *ProviderQueue { return pm.queues[kind] }

func (pm *ProviderManager) PurgeQueue(kind QueueKind) *PurgeQueue { return pm.purges[kind] }

func (pm *ProviderManager) Owed() *OwedLedger { return pm.owed }

// GetProvider loads a provider by id.
func (pm *ProviderManager) GetProvider(id ProviderID) (*Provider, error) {
	return pm.repo.Get(id)
}

// InitialProvider returns the pool's initial provider, or nil.
func (pm *ProviderManager) InitialProvider() (*Provider, error) {
	id, ok := pm.pool.InitialProvider()
	if !ok {
		return nil, nil
	}
	return pm.repo.Get(id)
}

// AddToQueue places the provider at the tail of the queue of kind.
func (pm *ProviderManager) AddToQueue(p *Provider, kind QueueKind) (uint32, error) {
	q, ok := pm.queues[kind]
	if !ok {
		return 0, failure.ImpossibleState("no queue of kind %s", kind)
	}
	return q.Add(p)
}

// RemoveFromQueue vacates the provider's slot.
func (pm *ProviderManager) RemoveFromQueue(p *Provider) error {
	kind := p.Membership.Kind()
	if kind == QueueNone {
		return nil
	}
	return pm.queues[kind].Remove(p)
}

// GetProviderFromQueue resolves a reservation entry back to its provider and
// checks that the provider still occupies that slot. A vacated slot, or one
// CleanUp already shifted away, yields nil.
func (pm *ProviderManager) GetProviderFromQueue(index uint32, kind QueueKind) (*Provider, error) {
	if index == InitialProviderIndex {
		p, err := pm.InitialProvider()
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, failure.ImpossibleState("reservation references an initial provider but none is set")
		}
		return p, nil
	}
	q, ok := pm.queues[kind]
	if !ok {
		return nil, failure.ImpossibleState("reservation entry has provider type %s", kind)
	}
	if uint64(index) < q.Start() {
		return nil, nil
	}
	id, err := q.ProviderAt(index)
	if err != nil {
		return nil, err
	}
	if id.IsZero() {
		return nil, nil
	}
	p, err := pm.repo.Get(id)
	if err != nil {
		return nil, err
	}
	if !p.Membership.Is(kind, index) {
		return nil, failure.ImpossibleState("provider %s at %s slot %d records membership %s",
			id, kind, index, p.Membership.Kind())
	}
	return p, nil
}

// GetNextProviderWithLiquidity returns the next provider a reservation may
// draw from: purge queues first, then priority, then normal, then the
// initial provider. Nil means the pool is exhausted.
func (pm *ProviderManager) GetNextProviderWithLiquidity(quote *uint256.Int) (*Provider, error) {
	minSats := pm.params.MinimumProviderSatoshis
	for _, kind := range []QueueKind{QueuePriority, QueueNormal} {
		p, err := pm.purges[kind].Next(pm.repo, quote, minSats)
		if err != nil || p != nil {
			return p, err
		}
	}
	for _, kind := range []QueueKind{QueuePriority, QueueNormal} {
		p, err := pm.queues[kind].Next(pm.repo, quote, minSats)
		if err != nil || p != nil {
			return p, err
		}
	}
	p, err := pm.InitialProvider()
	if err != nil || p == nil {
		return nil, err
	}
	ok, err := hasTradableLiquidity(p, quote, minSats)
	if err != nil || !ok {
		return nil, err
	}
	return p, nil
}

// GetNextRemovalProvider returns the next provider waiting to be paid out.
func (pm *ProviderManager) GetNextRemovalProvider(quote *uint256.Int) (*Provider, error) {
	minSats := pm.params.MinimumProviderSatoshis
	p, err := pm.purges[QueueRemoval].Next(pm.repo, quote, minSats)
	if err != nil || p != nil {
		return p, err
	}
	for {
		p, err = pm.queues[QueueRemoval].Next(pm.repo, quote, minSats)
		if err != nil || p == nil {
			return nil, err
		}
		avail, err := pm.owed.Available(p.ID)
		if err != nil {
			return nil, err
		}
		if avail >= minSats {
			return p, nil
		}
		pm.queues[QueueRemoval].current++
	}
}

// RewindToProvider lets the next traversal of p's queue reach p again, for
// a provider whose inventory grew after the cursor moved past it.
func (pm *ProviderManager) RewindToProvider(p *Provider) {
	idx, queued := p.Membership.Index()
	if !queued {
		return
	}
	if q, ok := pm.queues[p.Membership.Kind()]; ok {
		q.Rewind(idx)
	}
}

// SkipRemovalProvider passes over p, the provider GetNextRemovalProvider just
// returned, so the next call moves on to the one behind it.
func (pm *ProviderManager) SkipRemovalProvider(p *Provider) error {
	if pq := pm.purges[QueueRemoval]; pq.Len() > 0 {
		head, err := pq.ids.Get(pq.ids.Start())
		if err != nil {
			return err
		}
		if ProviderIDFromU256(head) == p.ID {
			if _, err := pq.ids.Shift(); err != nil {
				return err
			}
			p.Purged = false
			return nil
		}
	}
	q := pm.queues[QueueRemoval]
	if idx, queued := p.Membership.Index(); queued && p.Membership.Kind() == QueueRemoval && uint64(idx) == q.current {
		q.current++
		return nil
	}
	return failure.ImpossibleState("provider %s is not the next removal provider", p.ID)
}

// AddToPurgeQueue offers the provider again ahead of the main queues.
// The initial provider is always the last fallback and never queued.
func (pm *ProviderManager) AddToPurgeQueue(p *Provider) error {
	kind := p.Membership.Kind()
	if kind == QueueNone {
		return nil
	}
	return pm.purges[kind].Push(p)
}

// ResetProvider zeroes the listing and vacates its queue slot. With burn the
// remaining liquidity also leaves the reserve.
func (pm *ProviderManager) ResetProvider(p *Provider, burnRemainingFunds, canceled bool) error {
	if !p.reserved.IsZero() {
		return failure.ImpossibleState("provider %s reset with %s still reserved", p.ID, p.reserved.Dec())
	}
	if err := pm.RemoveFromQueue(p); err != nil {
		return err
	}
	if p.PendingRemoval {
		pm.owed.Clear(p.ID)
	}
	burned := new(uint256.Int)
	if burnRemainingFunds && !p.liquidity.IsZero() {
		burned = p.Liquidity()
		if err := pm.reserve.SubFromTotalReserve(burned); err != nil {
			return err
		}
	}
	if pm.events != nil {
		pm.events.Emit(&event.ProviderFulfilled{
			ProviderID: p.ID.String(),
			Canceled:   canceled,
			Burned:     burned,
		})
	}
	p.Reset()
	return nil
}

// ResetDustProvider resets p when what is left is not worth trading.
func (pm *ProviderManager) ResetDustProvider(p *Provider, quote *uint256.Int) (bool, error) {
	dust, err := p.IsDust(quote, pm.params.MinimumProviderSatoshis)
	if err != nil || !dust {
		return false, err
	}
	return true, pm.ResetProvider(p, true, false)
}

// CleanUpQueues drops vacated leading slots from every queue.
func (pm *ProviderManager) CleanUpQueues() error {
	for _, kind := range []QueueKind{QueuePriority, QueueNormal, QueueRemoval} {
		if err := pm.queues[kind].CleanUp(); err != nil {
			return err
		}
	}
	return nil
}

func (pm *ProviderManager) RestoreCurrentIndex() {
	for _, q := range pm.queues {
		q.RestoreCurrentIndex()
	}
}

func (pm *ProviderManager) ResetStartingIndex() {
	for _, q := range pm.queues {
		q.ResetStartingIndex()
	}
}

// Save persists every cursor.
func (pm *ProviderManager) Save() {
	for _, kind := range []QueueKind{QueuePriority, QueueNormal, QueueRemoval} {
		pm.queues[kind].Save()
	}
}
