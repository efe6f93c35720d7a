package core

import (
	"NativeSwap/internal/event"
	"NativeSwap/internal/failure"
	fpmath "NativeSwap/internal/math"
	"NativeSwap/internal/state"
	"NativeSwap/internal/storage"

	"github.com/holiman/uint256"
)

// LiquidityQueue is the per-call view of one token's pool. Opening it sweeps
// expired reservations and rolls the virtual pool forward to the current
// block.
type LiquidityQueue struct {
	token  state.TokenID
	block  uint64
	params state.Params

	reserve      state.Reserve
	quotes       state.QuoteHistory
	fee          *state.DynamicFee
	pool         *state.PoolSettings
	providers    ProviderManager
	reservations *ReservationManager
	staking      state.Staking
	events       *event.Recorder
	tx           storage.Tx
}

// LiquidityQueueDeps are the collaborators of a LiquidityQueue.
type LiquidityQueueDeps struct {
	Tx        storage.Tx
	Token     state.TokenID
	Block     uint64
	Params    state.Params
	Repo      *state.ProviderRepository
	Staking   state.Staking
	Events    *event.Recorder
	Reserve   state.Reserve      // defaults to StoredReserve
	Quotes    state.QuoteHistory // defaults to QuoteManager
	SkipPurge bool
}

// OpenLiquidityQueue builds the queue and runs the lazy per-block steps.
func OpenLiquidityQueue(d LiquidityQueueDeps) (*LiquidityQueue, error) {
	if d.Reserve == nil {
		d.Reserve = state.NewStoredReserve(d.Tx, d.Token)
	}
	if d.Quotes == nil {
		d.Quotes = state.NewQuoteManager(d.Tx, d.Token)
	}
	pool := state.NewPoolSettings(d.Tx, d.Token)
	providers := state.NewProviderManager(d.Tx, d.Token, d.Repo, d.Reserve, state.NewOwedLedger(d.Tx), pool, d.Events, d.Params)

	lq := &LiquidityQueue{
		token:     d.Token,
		block:     d.Block,
		params:    d.Params,
		reserve:   d.Reserve,
		quotes:    d.Quotes,
		fee:       state.NewDynamicFee(d.Tx, d.Token, d.Params.Fee),
		pool:      pool,
		providers: providers,
		staking:   d.Staking,
		events:    d.Events,
		tx:        d.Tx,
	}
	lq.reservations = NewReservationManager(d.Tx, d.Token, d.Block, providers, d.Reserve, d.Quotes, d.Events, d.Params)

	if !pool.Created() {
		return lq, nil
	}
	if !d.SkipPurge {
		last, err := lq.reservations.PurgeReservationsAndRestoreProviders(pool.LastPurgedBlock())
		if err != nil {
			return nil, err
		}
		if last != pool.LastPurgedBlock() {
			pool.SetLastPurgedBlock(last)
		}
	}
	if err := lq.UpdateVirtualPoolIfNeeded(); err != nil {
		return nil, err
	}
	return lq, nil
}

func (lq *LiquidityQueue) Token() state.TokenID              { return lq.token }
func (lq *LiquidityQueue) Block() uint64                     { return lq.block }
func (lq *LiquidityQueue) Reserve() state.Reserve            { return lq.reserve }
func (lq *LiquidityQueue) Pool() *state.PoolSettings         { return lq.pool }
func (lq *LiquidityQueue) Providers() ProviderManager        { return lq.providers }
func (lq *LiquidityQueue) Reservations() *ReservationManager { return lq.reservations }
func (lq *LiquidityQueue) Quotes() state.QuoteHistory        { return lq.quotes }
func (lq *LiquidityQueue) Fee() *state.DynamicFee            { return lq.fee }
func (lq *LiquidityQueue) Params() state.Params              { return lq.params }
func (lq *LiquidityQueue) Events() *event.Recorder           { return lq.events }

// Quote returns tokens per satoshi scaled by QuoteScale. Queued liquidity
// counts through its harmonic mean with the virtual token reserve.
func (lq *LiquidityQueue) Quote() (*uint256.Int, error) {
	t := lq.reserve.VirtualTokenReserve()
	b := lq.reserve.VirtualSatoshisReserve()
	if b == 0 {
		if t.IsZero() {
			return new(uint256.Int), nil
		}
		return nil, failure.ImpossibleState("virtual satoshis reserve is zero with %s virtual tokens", t.Dec())
	}
	impact, err := fpmath.HarmonicMean(lq.reserve.Liquidity(), t)
	if err != nil {
		return nil, err
	}
	tokens, err := fpmath.Add(t, impact)
	if err != nil {
		return nil, err
	}
	return fpmath.MulDiv(tokens, fpmath.Scale(), uint256.NewInt(b))
}

// InitializeInitialLiquidity seeds the virtual pool of a new token.
func (lq *LiquidityQueue) InitializeInitialLiquidity(floorPrice *uint256.Int, providerID state.ProviderID, initialLiquidity *uint256.Int, maxReservesPercent uint64) error {
	if floorPrice.IsZero() {
		return failure.Precondition("floor price must be positive")
	}
	sats, err := fpmath.Div(initialLiquidity, floorPrice)
	if err != nil {
		return err
	}
	if sats.Gt(uint256.NewInt(lq.params.MaxTotalSatoshis)) {
		return failure.Precondition("virtual satoshis reserve %s exceeds %d", sats.Dec(), lq.params.MaxTotalSatoshis)
	}
	lq.reserve.SetVirtualTokenReserve(initialLiquidity.Clone())
	lq.reserve.SetVirtualSatoshisReserve(sats.Uint64())
	lq.pool.SetInitialProvider(providerID)
	lq.pool.SetMaxReservesPercent(maxReservesPercent)
	return nil
}

// UpdateVirtualPoolIfNeeded applies the cycle's activated and bought tokens
// to the virtual curve, at most once per block.
func (lq *LiquidityQueue) UpdateVirtualPoolIfNeeded() error {
	if lq.block <= lq.pool.LastVirtualUpdateBlock() {
		return nil
	}

	t := lq.reserve.VirtualTokenReserve()
	b := uint256.NewInt(lq.reserve.VirtualSatoshisReserve())
	k, err := fpmath.Mul(b, t)
	if err != nil {
		return err
	}

	if add := lq.reserve.DeltaTokensAdd(); !add.IsZero() {
		if t, err = fpmath.Add(t, add); err != nil {
			return err
		}
		if b, err = fpmath.Div(k, t); err != nil {
			return err
		}
		if err := checkProductDrift(k, b, t); err != nil {
			return err
		}
	}

	if bought := lq.reserve.DeltaTokensBuy(); !bought.IsZero() {
		kBefore, err := fpmath.Mul(b, t)
		if err != nil {
			return err
		}
		if bought.Lt(t) {
			t = new(uint256.Int).Sub(t, bought)
		} else {
			t = uint256.NewInt(1)
		}
		if b, err = fpmath.Div(kBefore, t); err != nil {
			return err
		}
		if err := checkProductDrift(kBefore, b, t); err != nil {
			return err
		}
	}

	if t.IsZero() {
		t = uint256.NewInt(1)
	}
	if b.Gt(uint256.NewInt(lq.params.MaxTotalSatoshis)) {
		return failure.ImpossibleState("virtual satoshis reserve %s exceeds %d", b.Dec(), lq.params.MaxTotalSatoshis)
	}

	lq.reserve.SetVirtualTokenReserve(t)
	lq.reserve.SetVirtualSatoshisReserve(b.Uint64())
	lq.reserve.ResetAccumulators()

	quote, err := lq.Quote()
	if err != nil {
		return err
	}
	lq.quotes.SetBlockQuote(lq.block, quote)
	vol, err := lq.ComputeVolatility(lq.block, lq.params.VolatilityWindowBlocks)
	if err != nil {
		return err
	}
	lq.fee.SetVolatility(vol)
	lq.pool.SetLastVirtualUpdateBlock(lq.block)
	return nil
}

// checkProductDrift fails when b*t moved more than 1/100000 away from k.
func checkProductDrift(k, b, t *uint256.Int) error {
	if k.IsZero() {
		return nil
	}
	got, err := fpmath.Mul(b, t)
	if err != nil {
		return err
	}
	var diff uint256.Int
	if got.Gt(k) {
		diff.Sub(got, k)
	} else {
		diff.Sub(k, got)
	}
	scaled, err := fpmath.Mul(&diff, uint256.NewInt(100_000))
	if err != nil {
		return err
	}
	if scaled.Gt(k) {
		return failure.ImpossibleState("constant product drifted: k=%s, b*t=%s", k.Dec(), got.Dec())
	}
	return nil
}

// ComputeVolatility is the relative quote change over window blocks in basis points.
func (lq *LiquidityQueue) ComputeVolatility(current, window uint64) (*uint256.Int, error) {
	if current < window {
		return new(uint256.Int), nil
	}
	now := lq.quotes.BlockQuote(current)
	old := lq.quotes.BlockQuote(current - window)
	if now.IsZero() || old.IsZero() {
		return new(uint256.Int), nil
	}
	var diff uint256.Int
	if now.Gt(old) {
		diff.Sub(now, old)
	} else {
		diff.Sub(old, now)
	}
	return fpmath.MulDiv(&diff, uint256.NewInt(fpmath.BasisPoints), old)
}

// GetMaximumTokensLeftBeforeCap is how many more tokens may be reserved
// before reservations reach maxReservesPercent of liquidity.
func (lq *LiquidityQueue) GetMaximumTokensLeftBeforeCap() (*uint256.Int, error) {
	capScale := uint256.NewInt(fpmath.CapScale)
	liquidity, err := fpmath.Mul(lq.reserve.Liquidity(), capScale)
	if err != nil {
		return nil, err
	}
	reserved, err := fpmath.Mul(lq.reserve.ReservedLiquidity(), capScale)
	if err != nil {
		return nil, err
	}
	limit, err := fpmath.MulDiv(liquidity, uint256.NewInt(lq.pool.MaxReservesPercent()), uint256.NewInt(100))
	if err != nil {
		return nil, err
	}
	if !reserved.Lt(limit) {
		return new(uint256.Int), nil
	}
	left := new(uint256.Int).Sub(limit, reserved)
	return left.Div(left, capScale), nil
}

// GetUtilizationRatio is reserved liquidity as a percentage of liquidity.
func (lq *LiquidityQueue) GetUtilizationRatio() (*uint256.Int, error) {
	liquidity := lq.reserve.Liquidity()
	if liquidity.IsZero() {
		return new(uint256.Int), nil
	}
	reserved := lq.reserve.ReservedLiquidity()
	limit := new(uint256.Int).Div(fpmath.MaxU256, uint256.NewInt(100))
	if reserved.Gt(limit) {
		return nil, failure.Arithmetic("reserved liquidity %s too large for utilization", reserved.Dec())
	}
	return new(uint256.Int).Div(new(uint256.Int).Mul(reserved, uint256.NewInt(100)), liquidity), nil
}

// ComputeFees returns the fee in tokens and the basis points applied.
func (lq *LiquidityQueue) ComputeFees(tokensPurchased *uint256.Int, satoshisSpent uint64) (*uint256.Int, uint64, error) {
	util, err := lq.GetUtilizationRatio()
	if err != nil {
		return nil, 0, err
	}
	bp, err := lq.fee.FeeBP(satoshisSpent, util)
	if err != nil {
		return nil, 0, err
	}
	amount, err := lq.fee.FeeAmount(tokensPurchased, bp)
	if err != nil {
		return nil, 0, err
	}
	return amount, bp, nil
}

// DistributeFee forwards the fee to staking.
func (lq *LiquidityQueue) DistributeFee(fee *uint256.Int) error {
	if lq.staking == nil || fee.IsZero() {
		return nil
	}
	return lq.staking.Deposit(lq.token, fee)
}

// AccruePenalty removes a forfeited penalty from the pool. penalty-half also
// leaves the virtual token side, with satoshis removed at the ratio before
// the change so the price holds. The whole penalty goes to staking.
func (lq *LiquidityQueue) AccruePenalty(penalty, half *uint256.Int) error {
	if penalty.Lt(half) {
		return failure.ImpossibleState("penalty %s smaller than its half %s", penalty.Dec(), half.Dec())
	}
	if penalty.IsZero() {
		return nil
	}
	if err := lq.reserve.SubFromTotalReserve(penalty); err != nil {
		return err
	}

	virtual := new(uint256.Int).Sub(penalty, half)
	if !virtual.IsZero() {
		t := lq.reserve.VirtualTokenReserve()
		b := uint256.NewInt(lq.reserve.VirtualSatoshisReserve())
		sats, err := fpmath.MulDiv(virtual, b, t)
		if err != nil {
			return err
		}
		newT, err := fpmath.Sub(t, virtual)
		if err != nil {
			return err
		}
		newB, err := fpmath.Sub(b, sats)
		if err != nil {
			return err
		}
		if newT.IsZero() {
			newT = uint256.NewInt(1)
		}
		lq.reserve.SetVirtualTokenReserve(newT)
		lq.reserve.SetVirtualSatoshisReserve(newB.Uint64())
	}

	if lq.staking != nil {
		return lq.staking.Deposit(lq.token, penalty)
	}
	return nil
}

// Save flushes queue cursors; the provider repository is flushed by the engine.
func (lq *LiquidityQueue) Save() {
	lq.providers.Save()
}
