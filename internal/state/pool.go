package state

import (
	"NativeSwap/internal/storage"
)

// PoolSettings are the per-token scalars outside the reserve.
type PoolSettings struct {
	created            *storage.StoredBool
	maxReservesPercent *storage.StoredU64
	lastVirtualUpdate  *storage.StoredU64
	lastPurgedBlock    *storage.StoredU64
	initialProvider    *storage.StoredBytes
}

func NewPoolSettings(tx storage.Tx, token TokenID) *PoolSettings {
	t := token.Bytes()
	return &PoolSettings{
		created:            storage.NewStoredBool(tx, storage.Key(storage.PointerPoolCreated, t)),
		maxReservesPercent: storage.NewStoredU64(tx, storage.Key(storage.PointerMaxReservesPercent, t)),
		lastVirtualUpdate:  storage.NewStoredU64(tx, storage.Key(storage.PointerLastVirtualUpdateBlock, t)),
		lastPurgedBlock:    storage.NewStoredU64(tx, storage.Key(storage.PointerLastPurgedBlock, t)),
		initialProvider:    storage.NewStoredBytes(tx, storage.Key(storage.PointerInitialProvider, t)),
	}
}

func (p *PoolSettings) Created() bool { return p.created.Get() }
func (p *PoolSettings) MarkCreated()  { p.created.Set(true) }
func (p *PoolSettings) MaxReservesPercent() uint64 {
	return p.maxReservesPercent.Get()
}
func (p *PoolSettings) SetMaxReservesPercent(v uint64)     { p.maxReservesPercent.Set(v) }
func (p *PoolSettings) LastVirtualUpdateBlock() uint64     { return p.lastVirtualUpdate.Get() }
func (p *PoolSettings) SetLastVirtualUpdateBlock(v uint64) { p.lastVirtualUpdate.Set(v) }
func (p *PoolSettings) LastPurgedBlock() uint64            { return p.lastPurgedBlock.Get() }
func (p *PoolSettings) SetLastPurgedBlock(v uint64)        { p.lastPurgedBlock.Set(v) }

// InitialProvider returns the initial liquidity provider, if one was set.
func (p *PoolSettings) InitialProvider() (ProviderID, bool) {
	b := p.initialProvider.Get()
	if len(b) != 32 {
		return ProviderID{}, false
	}
	return ProviderID(b), true
}

func (p *PoolSettings) SetInitialProvider(id ProviderID) {
	p.initialProvider.Set(id.Bytes())
}
