package storage

import "encoding/binary"

// Pointer is the fixed logical address of one stateful field. Keys are the
// big-endian pointer followed by per-token / per-block suffixes.
type Pointer uint16

const (
	PointerPoolCreated Pointer = iota + 1
	PointerLiquidity
	PointerReservedLiquidity
	PointerVirtualTokenReserve
	PointerVirtualSatoshisReserve
	PointerDeltaTokensAdd
	PointerDeltaTokensBuy
	PointerDeltaSatoshisBuy
	PointerMaxReservesPercent
	PointerLastVirtualUpdateBlock
	PointerLastPurgedBlock
	PointerInitialProvider
	PointerVolatility
	PointerQuoteHistory
	PointerProvider
	PointerPriorityQueue
	PointerNormalQueue
	PointerRemovalQueue
	PointerPriorityPurgeQueue
	PointerNormalPurgeQueue
	PointerRemovalPurgeQueue
	PointerQueueCursor
	PointerReservation
	PointerBlockReservationIDs
	PointerBlockReservationFlags
	PointerBlocksWithReservations
	PointerOwedSatoshis
	PointerReservedSatoshis
	PointerStakingBalance
	PointerEngineMeta
)

// Key builds the storage key for p with the given suffixes.
func Key(p Pointer, suffixes ...[]byte) []byte {
	n := 2
	for _, s := range suffixes {
		n += len(s)
	}
	out := make([]byte, 2, n)
	binary.BigEndian.PutUint16(out, uint16(p))
	for _, s := range suffixes {
		out = append(out, s...)
	}
	return out
}

// U64Suffix encodes a block height or index as a key suffix.
func U64Suffix(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

// Prefix returns the key prefix shared by every key under p.
func Prefix(p Pointer) []byte {
	return Key(p)
}
