package event

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Meta carries the fields every operation shares.
type Meta struct {
	ID   uuid.UUID
	Pool string
	Ctx  ExecutionContext
}

func (m *Meta) TxID() uuid.UUID           { return m.ID }
func (m *Meta) Token() string             { return m.Pool }
func (m *Meta) Context() ExecutionContext { return m.Ctx }

// CreatePool opens a pool with the sender as initial provider.
type CreatePool struct {
	Meta
	FloorPrice         *uint256.Int // tokens per satoshi
	InitialLiquidity   *uint256.Int
	Receiver           string
	MaxReservesPercent uint64
}

func (*CreatePool) OpType() OpType { return OpCreatePool }

// ListLiquidity queues the sender's tokens for sale.
type ListLiquidity struct {
	Meta
	Amount   *uint256.Int
	Receiver string
	Priority bool
}

func (*ListLiquidity) OpType() OpType { return OpListLiquidity }

// Reserve holds provider inventory for the sender.
type Reserve struct {
	Meta
	MaximumAmountIn  uint64
	MinimumAmountOut *uint256.Int
	ActivationDelay  uint8
	ForLiquidityPool bool
}

func (*Reserve) OpType() OpType { return OpReserve }

// Swap settles the sender's reservation against the call's outputs.
type Swap struct {
	Meta
}

func (*Swap) OpType() OpType { return OpSwap }

// CancelListing withdraws the sender's unreserved listing.
type CancelListing struct {
	Meta
}

func (*CancelListing) OpType() OpType { return OpCancelListing }

// RemoveLiquidity moves the sender's provided liquidity to the removal queue.
type RemoveLiquidity struct {
	Meta
}

func (*RemoveLiquidity) OpType() OpType { return OpRemoveLiquidity }

var (
	_ Operation = (*CreatePool)(nil)
	_ Operation = (*ListLiquidity)(nil)
	_ Operation = (*Reserve)(nil)
	_ Operation = (*Swap)(nil)
	_ Operation = (*CancelListing)(nil)
	_ Operation = (*RemoveLiquidity)(nil)
)
