package core

import (
	"NativeSwap/internal/event"
	"NativeSwap/internal/state"
	"NativeSwap/internal/storage"

	"github.com/holiman/uint256"
)

// PoolView is a read-only snapshot of one pool, shared by projections and
// the query surface.
type PoolView struct {
	Token                  string
	TokenID                string
	Block                  uint64
	Created                bool
	Quote                  *uint256.Int
	Liquidity              *uint256.Int
	ReservedLiquidity      *uint256.Int
	VirtualTokenReserve    *uint256.Int
	VirtualSatoshisReserve uint64
	UtilizationPercent     uint64
	Volatility             *uint256.Int
	MaxReservesPercent     uint64
	LastPurgedBlock        uint64
	PriorityQueueLen       uint64
	NormalQueueLen         uint64
	RemovalQueueLen        uint64
}

// View captures the pool as the current call sees it.
func (lq *LiquidityQueue) View(token string) (*PoolView, error) {
	v := &PoolView{
		Token:   token,
		TokenID: lq.token.String(),
		Block:   lq.block,
		Created: lq.pool.Created(),
	}
	if !v.Created {
		return v, nil
	}
	quote, err := lq.Quote()
	if err != nil {
		return nil, err
	}
	util, err := lq.GetUtilizationRatio()
	if err != nil {
		return nil, err
	}
	v.Quote = quote
	v.Liquidity = lq.reserve.Liquidity()
	v.ReservedLiquidity = lq.reserve.ReservedLiquidity()
	v.VirtualTokenReserve = lq.reserve.VirtualTokenReserve()
	v.VirtualSatoshisReserve = lq.reserve.VirtualSatoshisReserve()
	v.UtilizationPercent = util.Uint64()
	v.Volatility = lq.fee.Volatility()
	v.MaxReservesPercent = lq.pool.MaxReservesPercent()
	v.LastPurgedBlock = lq.pool.LastPurgedBlock()
	v.PriorityQueueLen = lq.queueLen(state.QueuePriority)
	v.NormalQueueLen = lq.queueLen(state.QueueNormal)
	v.RemovalQueueLen = lq.queueLen(state.QueueRemoval)
	return v, nil
}

func (lq *LiquidityQueue) queueLen(kind state.QueueKind) uint64 {
	return state.NewProviderQueue(lq.tx, lq.token, kind, lq.params.MaxQueueLength).Len()
}

// ReadOnlyQueue is a liquidity queue over a throwaway overlay. Nothing it
// does reaches the store.
type ReadOnlyQueue struct {
	*LiquidityQueue
	Repo    *state.ProviderRepository
	Overlay *storage.Overlay
}

// OpenReadOnly opens token as a transaction at block would see it, minus
// the reservation purge. Callers must Close it.
func OpenReadOnly(r storage.Reader, params state.Params, token string, block uint64) (*ReadOnlyQueue, error) {
	overlay := storage.NewOverlay(r)
	repo := state.NewProviderRepository(overlay)
	lq, err := OpenLiquidityQueue(LiquidityQueueDeps{
		Tx:        overlay,
		Token:     state.NewTokenID(token),
		Block:     block,
		Params:    params,
		Repo:      repo,
		Staking:   state.NewStakingVault(overlay),
		Events:    event.NewRecorder(),
		SkipPurge: true,
	})
	if err == nil {
		err = overlay.Err()
	}
	if err != nil {
		overlay.Discard()
		return nil, err
	}
	return &ReadOnlyQueue{LiquidityQueue: lq, Repo: repo, Overlay: overlay}, nil
}

func (q *ReadOnlyQueue) Close() {
	q.Overlay.Discard()
}
