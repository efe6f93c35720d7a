package event

import "github.com/google/uuid"

// OpType discriminator for transaction payloads
type OpType int32

const (
	OpUnknown OpType = iota
	OpCreatePool
	OpListLiquidity
	OpReserve
	OpSwap
	OpCancelListing
	OpRemoveLiquidity
)

// TxEnvelope wraps every applied transaction in the log
type TxEnvelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64

	// Stable idempotency key from upstream
	TxID uuid.UUID

	OpType OpType

	Token string

	// Ledger block the transaction executed in
	Block uint64

	// JSON-encoded operation
	Payload []byte

	// SHA-256 chain over committed write sets
	StateHash [32]byte
	PrevHash  [32]byte
}

// Operation is the interface all transaction payloads implement
type Operation interface {
	// TxID returns the stable dedup key
	TxID() uuid.UUID

	// OpType returns the discriminator
	OpType() OpType

	// Token returns the pool the operation targets
	Token() string

	// Context returns what the ledger supplied for this call
	Context() ExecutionContext
}

func (op OpType) String() string {
	switch op {
	case OpCreatePool:
		return "CreatePool"
	case OpListLiquidity:
		return "ListLiquidity"
	case OpReserve:
		return "Reserve"
	case OpSwap:
		return "Swap"
	case OpCancelListing:
		return "CancelListing"
	case OpRemoveLiquidity:
		return "RemoveLiquidity"
	default:
		return "Unknown"
	}
}

// ParseOpType is the inverse of String.
func ParseOpType(s string) OpType {
	for op := OpCreatePool; op <= OpRemoveLiquidity; op++ {
		if op.String() == s {
			return op
		}
	}
	return OpUnknown
}
