package core

import (
	"NativeSwap/internal/event"
	"NativeSwap/internal/failure"
	fpmath "NativeSwap/internal/math"
	"NativeSwap/internal/state"

	"github.com/holiman/uint256"
)

// TradeResult is what one settlement moved.
type TradeResult struct {
	TokensPurchased  *uint256.Int
	TokensRefunded   *uint256.Int
	TokensReserved   *uint256.Int
	SatoshisSpent    uint64
	SatoshisRefunded uint64
	Quote            *uint256.Int
	Expired          bool
	Consumed         []state.ProviderID
}

func newTradeResult() *TradeResult {
	return &TradeResult{
		TokensPurchased: new(uint256.Int),
		TokensRefunded:  new(uint256.Int),
		TokensReserved:  new(uint256.Int),
		Quote:           new(uint256.Int),
	}
}

// reservationDeactivator is the part of ReservationManager settlement needs.
type reservationDeactivator interface {
	DeactivateReservation(r *state.Reservation) error
}

// TradeManager settles reservations against the payment outputs of the
// current call. One TradeManager serves one call.
type TradeManager struct {
	providers    ProviderManager
	reserve      state.Reserve
	quotes       state.QuoteHistory
	reservations reservationDeactivator
	ctx          event.ExecutionContext
	events       *event.Recorder
	params       state.Params

	// satoshis already attributed per receiver during this call
	consumed map[string]uint64
	seen     map[string]struct{}

	result *TradeResult
}

func NewTradeManager(
	providers ProviderManager,
	reserve state.Reserve,
	quotes state.QuoteHistory,
	reservations reservationDeactivator,
	ctx event.ExecutionContext,
	events *event.Recorder,
	params state.Params,
) *TradeManager {
	return &TradeManager{
		providers:    providers,
		reserve:      reserve,
		quotes:       quotes,
		reservations: reservations,
		ctx:          ctx,
		events:       events,
		params:       params,
		consumed:     make(map[string]uint64),
		seen:         make(map[string]struct{}),
	}
}

// ExecuteTradeNotExpired settles a reservation that is still inside its window.
func (tm *TradeManager) ExecuteTradeNotExpired(r *state.Reservation) (*TradeResult, error) {
	tm.result = newTradeResult()

	if !r.IsValid(tm.ctx.Block) {
		return nil, failure.Precondition("reservation %s is not valid at block %d", r.ID, tm.ctx.Block)
	}
	if r.PurgeIndex == state.IndexNotSet {
		return nil, failure.ImpossibleState("reservation %s has no purge index", r.ID)
	}
	if err := r.EnsureCanBeConsumed(tm.ctx.Block); err != nil {
		return nil, err
	}
	quote := tm.quotes.BlockQuote(r.CreationBlock)
	if quote.IsZero() {
		return nil, failure.ImpossibleState("no quote recorded at reservation block %d", r.CreationBlock)
	}
	tm.result.Quote = quote
	if err := tm.reservations.DeactivateReservation(r); err != nil {
		return nil, err
	}

	for _, e := range r.Entries {
		tm.result.TokensReserved.Add(tm.result.TokensReserved, e.ProvidedAmount)

		p, err := tm.providers.GetProviderFromQueue(e.ProviderIndex, e.ProviderType)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, failure.ImpossibleState("reservation %s holds %s slot %d which is empty", r.ID, e.ProviderType, e.ProviderIndex)
		}
		sent, err := tm.getSatoshisSent(p.Receiver)
		if err != nil {
			return nil, err
		}
		if e.ProviderType == state.QueueRemoval {
			err = tm.executeRemovalTrade(p, e, sent, quote)
		} else {
			err = tm.executeNormalOrPriorityTrade(p, e, sent, quote)
		}
		if err != nil {
			return nil, err
		}
	}
	tm.finish()
	return tm.result, nil
}

// ExecuteTradeExpired settles a reservation whose window already closed.
// Holds are gone or about to be released, so it trades against whatever
// the providers still have available at the current quote.
func (tm *TradeManager) ExecuteTradeExpired(r *state.Reservation, currentQuote *uint256.Int) (*TradeResult, error) {
	tm.result = newTradeResult()
	tm.result.Expired = true

	if !r.Exists() {
		return nil, failure.Precondition("reservation %s does not exist", r.ID)
	}
	if currentQuote == nil || currentQuote.IsZero() {
		return nil, failure.ImpossibleState("expired settlement without a current quote")
	}
	tm.result.Quote = currentQuote

	if !r.Purged {
		if err := tm.reservations.DeactivateReservation(r); err != nil {
			return nil, err
		}
	}

	for _, e := range r.Entries {
		tm.result.TokensReserved.Add(tm.result.TokensReserved, e.ProvidedAmount)

		p, err := tm.providers.GetProviderFromQueue(e.ProviderIndex, e.ProviderType)
		if err != nil {
			return nil, err
		}
		// the provider left its slot after the reservation expired
		if p == nil {
			continue
		}
		if !r.Purged {
			if err := tm.releaseHold(p, e); err != nil {
				return nil, err
			}
		}
		if !p.Active || p.Liquidity().IsZero() {
			continue
		}
		sent, err := tm.getSatoshisSent(p.Receiver)
		if err != nil {
			return nil, err
		}
		if sent == 0 {
			if !r.Purged {
				if err := tm.providers.AddToPurgeQueue(p); err != nil {
					return nil, err
				}
			}
			continue
		}
		if err := tm.executeExpiredTrade(p, e, sent, currentQuote); err != nil {
			return nil, err
		}
	}
	tm.finish()
	return tm.result, nil
}

// executeNormalOrPriorityTrade fills one entry of a not-expired reservation.
func (tm *TradeManager) executeNormalOrPriorityTrade(p *state.Provider, e state.ReservationEntry, sent uint64, quote *uint256.Int) error {
	if sent == 0 {
		return tm.refundEntry(p, e)
	}
	want, err := fpmath.SatoshisToTokens(sent, quote)
	if err != nil {
		return err
	}
	actual := fpmath.Min(fpmath.Min(e.ProvidedAmount, want), p.Liquidity())
	if actual.IsZero() {
		return tm.refundEntry(p, e)
	}
	if p.Reserved().Lt(e.ProvidedAmount) {
		return failure.ImpossibleState("provider %s holds %s reserved, entry needs %s", p.ID, p.Reserved().Dec(), e.ProvidedAmount.Dec())
	}
	if err := tm.releaseHold(p, e); err != nil {
		return err
	}
	spent, err := spentFor(actual, quote, sent)
	if err != nil {
		return err
	}
	partial := actual.Lt(e.ProvidedAmount)
	return tm.fill(p, actual, spent, quote, partial)
}

// executeRemovalTrade fills one entry held by a provider in the removal queue.
// The buyer's satoshis pay down what the pool owes that provider.
func (tm *TradeManager) executeRemovalTrade(p *state.Provider, e state.ReservationEntry, sent uint64, quote *uint256.Int) error {
	if sent == 0 {
		return tm.refundEntry(p, e)
	}
	held, err := removalHoldSatoshis(e, tm.quotes)
	if err != nil {
		return err
	}
	paid := min(sent, held)
	want, err := fpmath.SatoshisToTokens(paid, quote)
	if err != nil {
		return err
	}
	actual := fpmath.Min(fpmath.Min(e.ProvidedAmount, want), p.Liquidity())
	if actual.IsZero() {
		return tm.refundEntry(p, e)
	}
	if err := p.SubtractReserved(e.ProvidedAmount); err != nil {
		return err
	}
	if err := tm.reserve.SubFromReservedLiquidity(e.ProvidedAmount); err != nil {
		return err
	}
	if err := tm.providers.Owed().Settle(p.ID, held, paid); err != nil {
		return err
	}
	partial := actual.Lt(e.ProvidedAmount)
	return tm.fill(p, actual, paid, quote, partial)
}

// executeExpiredTrade fills against the provider's unreserved inventory.
func (tm *TradeManager) executeExpiredTrade(p *state.Provider, e state.ReservationEntry, sent uint64, quote *uint256.Int) error {
	avail, err := p.Available()
	if err != nil {
		return err
	}
	budget := sent
	if p.PendingRemoval {
		owedAvail, err := tm.providers.Owed().Available(p.ID)
		if err != nil {
			return err
		}
		budget = min(budget, owedAvail)
	}
	want, err := fpmath.SatoshisToTokens(budget, quote)
	if err != nil {
		return err
	}
	actual := fpmath.Min(fpmath.Min(e.ProvidedAmount, want), avail)
	if actual.IsZero() {
		return nil
	}
	spent, err := spentFor(actual, quote, budget)
	if err != nil {
		return err
	}
	if p.PendingRemoval {
		if err := tm.providers.Owed().Settle(p.ID, 0, spent); err != nil {
			return err
		}
	}
	return tm.fill(p, actual, spent, quote, actual.Lt(e.ProvidedAmount))
}

// fill moves actual tokens out of the provider and the reserve once the
// hold has been released.
func (tm *TradeManager) fill(p *state.Provider, actual *uint256.Int, spent uint64, quote *uint256.Int, partial bool) error {
	if err := p.SubtractLiquidity(actual); err != nil {
		return err
	}
	if err := tm.reserve.SubFromTotalReserve(actual); err != nil {
		return err
	}
	if err := p.AddProvided(actual); err != nil {
		return err
	}
	if err := tm.reserve.AddToDeltaTokensBuy(actual); err != nil {
		return err
	}
	if err := tm.reserve.AddToDeltaSatoshisBuy(spent); err != nil {
		return err
	}
	if err := tm.activate(p, quote); err != nil {
		return err
	}
	if err := tm.reportConsumed(p.Receiver, spent); err != nil {
		return err
	}

	tm.result.TokensPurchased.Add(tm.result.TokensPurchased, actual)
	tm.result.SatoshisSpent += spent
	tm.result.Consumed = append(tm.result.Consumed, p.ID)
	if tm.events != nil {
		tm.events.Emit(&event.ProviderConsumed{ProviderID: p.ID.String(), Amount: actual.Clone(), Satoshis: spent})
	}

	if p.PendingRemoval && tm.providers.Owed().Owed(p.ID) == 0 && p.Reserved().IsZero() {
		return tm.providers.ResetProvider(p, true, false)
	}
	if partial {
		return tm.providers.AddToPurgeQueue(p)
	}
	if !p.Purged {
		_, err := tm.providers.ResetDustProvider(p, quote)
		return err
	}
	return nil
}

// activate credits the provider's pending listing to the virtual pool. The
// first trade also allows the provider to take part in pool provision.
func (tm *TradeManager) activate(p *state.Provider, quote *uint256.Int) error {
	first := !p.LiquidityProvisionAllowed
	credit := p.TakePendingCredit()
	if !credit.IsZero() {
		if err := tm.reserve.AddToDeltaTokensAdd(credit); err != nil {
			return err
		}
	}
	if !first {
		return nil
	}
	p.LiquidityProvisionAllowed = true
	p.LiquidityProvider = true
	sats, err := fpmath.TokensToSatoshis(credit, quote, fpmath.RoundDown)
	if err != nil {
		return err
	}
	if tm.events != nil {
		tm.events.Emit(&event.ProviderActivated{
			ProviderID:       p.ID.String(),
			ListingAmount:    p.Liquidity(),
			CreditedTokens:   credit,
			CreditedSatoshis: sats,
		})
	}
	return nil
}

func (tm *TradeManager) refundEntry(p *state.Provider, e state.ReservationEntry) error {
	if err := tm.releaseHold(p, e); err != nil {
		return err
	}
	return tm.providers.AddToPurgeQueue(p)
}

func (tm *TradeManager) releaseHold(p *state.Provider, e state.ReservationEntry) error {
	if err := p.SubtractReserved(e.ProvidedAmount); err != nil {
		return err
	}
	if err := tm.reserve.SubFromReservedLiquidity(e.ProvidedAmount); err != nil {
		return err
	}
	if e.ProviderType != state.QueueRemoval {
		return nil
	}
	sats, err := removalHoldSatoshis(e, tm.quotes)
	if err != nil {
		return err
	}
	return tm.providers.Owed().SubReserved(p.ID, sats)
}

// getSatoshisSent returns what receiver got in this call that has not yet
// been attributed to an earlier entry.
func (tm *TradeManager) getSatoshisSent(receiver string) (uint64, error) {
	tm.seen[receiver] = struct{}{}
	total, ok := tm.ctx.SentTo(receiver)
	if !ok {
		return 0, failure.Arithmetic("outputs to %s overflow u64", receiver)
	}
	already := tm.consumed[receiver]
	if already > total {
		return 0, failure.ImpossibleState("double spend: %d attributed to %s but only %d received", already, receiver, total)
	}
	return total - already, nil
}

// reportConsumed attributes spent satoshis of receiver's outputs.
func (tm *TradeManager) reportConsumed(receiver string, spent uint64) error {
	v, err := fpmath.AddU64(tm.consumed[receiver], spent)
	if err != nil {
		return err
	}
	tm.consumed[receiver] = v
	return nil
}

// spentFor prices actual tokens in satoshis, never more than was sent.
func spentFor(actual, quote *uint256.Int, sent uint64) (uint64, error) {
	sats, err := fpmath.TokensToSatoshis(actual, quote, fpmath.RoundUp)
	if err != nil {
		return 0, err
	}
	return min(sats, sent), nil
}

// finish derives the refund totals of the settlement.
func (tm *TradeManager) finish() {
	r := tm.result
	r.TokensRefunded = new(uint256.Int)
	if r.TokensReserved.Gt(r.TokensPurchased) {
		r.TokensRefunded.Sub(r.TokensReserved, r.TokensPurchased)
	}
	var unused uint64
	for receiver := range tm.seen {
		total, _ := tm.ctx.SentTo(receiver)
		if total > tm.consumed[receiver] {
			unused += total - tm.consumed[receiver]
		}
	}
	r.SatoshisRefunded = unused
}
