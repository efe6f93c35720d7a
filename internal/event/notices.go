package event

import "github.com/holiman/uint256"

// Notice is a fact emitted while applying a transaction, published to
// off-ledger observers after commit.
type Notice interface {
	NoticeType() string
}

type ProviderActivated struct {
	ProviderID     string       `json:"provider_id"`
	ListingAmount  *uint256.Int `json:"listing_amount"`
	CreditedTokens *uint256.Int `json:"credited_tokens"`
	// CreditedSatoshis is CreditedTokens priced at the settlement quote.
	CreditedSatoshis uint64 `json:"credited_satoshis"`
}

func (*ProviderActivated) NoticeType() string { return "ProviderActivated" }

type ProviderConsumed struct {
	ProviderID string       `json:"provider_id"`
	Amount     *uint256.Int `json:"amount"`
	Satoshis   uint64       `json:"satoshis"`
}

func (*ProviderConsumed) NoticeType() string { return "ProviderConsumed" }

type ProviderFulfilled struct {
	ProviderID string       `json:"provider_id"`
	Canceled   bool         `json:"canceled"`
	Burned     *uint256.Int `json:"burned"`
}

func (*ProviderFulfilled) NoticeType() string { return "ProviderFulfilled" }

type PoolCreated struct {
	InitialProvider  string       `json:"initial_provider"`
	InitialLiquidity *uint256.Int `json:"initial_liquidity"`
	VirtualSatoshis  uint64       `json:"virtual_satoshis"`
}

func (*PoolCreated) NoticeType() string { return "PoolCreated" }

type LiquidityListed struct {
	ProviderID string       `json:"provider_id"`
	Amount     *uint256.Int `json:"amount"`
	Priority   bool         `json:"priority"`
	QueueIndex uint32       `json:"queue_index"`
}

func (*LiquidityListed) NoticeType() string { return "LiquidityListed" }

type ReservationCreated struct {
	ReservationID  string       `json:"reservation_id"`
	Owner          string       `json:"owner"`
	ExpectedTokens *uint256.Int `json:"expected_tokens"`
	TotalSatoshis  uint64       `json:"total_satoshis"`
	Providers      int          `json:"providers"`
	Block          uint64       `json:"block"`
}

func (*ReservationCreated) NoticeType() string { return "ReservationCreated" }

type SwapExecuted struct {
	Owner        string       `json:"owner"`
	SatoshisIn   uint64       `json:"satoshis_in"`
	TokensOut    *uint256.Int `json:"tokens_out"`
	FeeTokens    *uint256.Int `json:"fee_tokens"`
	FeeBP        uint64       `json:"fee_bp"`
	Expired      bool         `json:"expired"`
	ConsumedFrom []string     `json:"consumed_from"`
}

func (*SwapExecuted) NoticeType() string { return "SwapExecuted" }

type ListingCanceled struct {
	ProviderID string       `json:"provider_id"`
	Refunded   *uint256.Int `json:"refunded"`
	Penalty    *uint256.Int `json:"penalty"`
}

func (*ListingCanceled) NoticeType() string { return "ListingCanceled" }

type ReservationsPurged struct {
	Reservations    int          `json:"reservations"`
	FreedTokens     *uint256.Int `json:"freed_tokens"`
	LastPurgedBlock uint64       `json:"last_purged_block"`
}

func (*ReservationsPurged) NoticeType() string { return "ReservationsPurged" }

type LiquidityRemovalQueued struct {
	ProviderID   string `json:"provider_id"`
	OwedSatoshis uint64 `json:"owed_satoshis"`
	QueueIndex   uint32 `json:"queue_index"`
}

func (*LiquidityRemovalQueued) NoticeType() string { return "LiquidityRemovalQueued" }

// Recorder buffers notices for one call. The engine drops them when the
// call fails.
type Recorder struct {
	notices []Notice
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(n Notice) {
	r.notices = append(r.notices, n)
}

// Notices returns what was emitted so far.
func (r *Recorder) Notices() []Notice {
	return r.notices
}

// Reset drops everything buffered.
func (r *Recorder) Reset() {
	r.notices = nil
}
