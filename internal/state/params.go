package state

import "math"

// Params holds the engine constants. Every node must run with the same values.
type Params struct {
	ReservationExpireAfterBlocks uint64
	VolatilityWindowBlocks       uint64
	MaxActivationDelay           uint8
	MinimumTradeSatoshis         uint64
	MinimumProviderSatoshis      uint64
	MaxReservationsPerBlock      uint64
	MaxPurgePerCall              int
	MaxQueueLength               uint64
	MaxTotalSatoshis             uint64
	CancelPenaltyBP              uint64
	Fee                          FeeParams
}

// FeeParams are the DynamicFee coefficients.
type FeeParams struct {
	BaseFeeBP    uint64
	MinFeeBP     uint64
	MaxFeeBP     uint64
	Alpha        uint64
	Beta         uint64
	Gamma        uint64
	RefTradeSize uint64
}

// InitialProviderIndex marks a reservation entry held by the initial
// liquidity provider, which never sits in a queue.
const InitialProviderIndex uint32 = math.MaxUint32

// IndexNotSet is the unset purge-index / queue-index sentinel.
const IndexNotSet uint32 = math.MaxUint32

func DefaultParams() Params {
	return Params{
		ReservationExpireAfterBlocks: 5,
		VolatilityWindowBlocks:       5,
		MaxActivationDelay:           3,
		MinimumTradeSatoshis:         10_000,
		MinimumProviderSatoshis:      600,
		MaxReservationsPerBlock:      2_048,
		MaxPurgePerCall:              256,
		MaxQueueLength:               math.MaxUint32 - 1,
		MaxTotalSatoshis:             2_100_000_000_000_000,
		CancelPenaltyBP:              500,
		Fee:                          DefaultFeeParams(),
	}
}

func DefaultFeeParams() FeeParams {
	return FeeParams{
		BaseFeeBP:    30,
		MinFeeBP:     15,
		MaxFeeBP:     150,
		Alpha:        20,
		Beta:         25,
		Gamma:        13,
		RefTradeSize: 100_000,
	}
}
