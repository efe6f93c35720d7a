package core

import (
	"NativeSwap/internal/event"
	"NativeSwap/internal/failure"
	fpmath "NativeSwap/internal/math"
	"NativeSwap/internal/state"

	"github.com/holiman/uint256"
)

// createPool opens the pool with the sender as initial liquidity provider.
func createPool(lq *LiquidityQueue, op *event.CreatePool) error {
	if lq.pool.Created() {
		return failure.Precondition("pool %s already exists", op.Token())
	}
	if op.Receiver == "" {
		return failure.Precondition("receiver is required")
	}
	if op.InitialLiquidity == nil || op.InitialLiquidity.IsZero() {
		return failure.Precondition("initial liquidity must be positive")
	}
	if err := fpmath.CheckU128(op.InitialLiquidity); err != nil {
		return err
	}
	if op.FloorPrice == nil {
		return failure.Precondition("floor price is required")
	}
	if op.MaxReservesPercent == 0 || op.MaxReservesPercent > 100 {
		return failure.Precondition("max reserves percent %d outside 1..100", op.MaxReservesPercent)
	}

	id := state.NewProviderID(op.Context().Sender, op.Token())
	if err := lq.InitializeInitialLiquidity(op.FloorPrice, id, op.InitialLiquidity, op.MaxReservesPercent); err != nil {
		return err
	}
	if lq.reserve.VirtualSatoshisReserve() == 0 {
		return failure.Precondition("floor price %s leaves no virtual satoshis", op.FloorPrice.Dec())
	}

	p, err := lq.providers.GetProvider(id)
	if err != nil {
		return err
	}
	if err := p.AddLiquidity(op.InitialLiquidity); err != nil {
		return err
	}
	if err := lq.reserve.AddToTotalReserve(op.InitialLiquidity); err != nil {
		return err
	}
	p.Receiver = op.Receiver
	p.Active = true
	p.InitialProvider = true
	p.LiquidityProvisionAllowed = true
	p.LiquidityProvider = true

	lq.pool.MarkCreated()
	quote, err := lq.Quote()
	if err != nil {
		return err
	}
	lq.quotes.SetBlockQuote(lq.block, quote)
	lq.pool.SetLastVirtualUpdateBlock(lq.block)

	lq.events.Emit(&event.PoolCreated{
		InitialProvider:  id.String(),
		InitialLiquidity: op.InitialLiquidity.Clone(),
		VirtualSatoshis:  lq.reserve.VirtualSatoshisReserve(),
	})
	return nil
}

// listLiquidity queues the sender's tokens. Nothing reaches the virtual pool
// until the provider trades: a first normal listing is then credited at half
// its amount, a priority listing or a top-up of an activated provider in full.
func listLiquidity(lq *LiquidityQueue, op *event.ListLiquidity) error {
	if err := requirePool(lq); err != nil {
		return err
	}
	if op.Amount == nil || op.Amount.IsZero() {
		return failure.Precondition("amount must be positive")
	}
	if err := fpmath.CheckU128(op.Amount); err != nil {
		return err
	}
	if op.Receiver == "" {
		return failure.Precondition("receiver is required")
	}

	id := state.NewProviderID(op.Context().Sender, op.Token())
	p, err := lq.providers.GetProvider(id)
	if err != nil {
		return err
	}
	if p.InitialProvider {
		return failure.Precondition("initial provider cannot list")
	}
	if p.PendingRemoval {
		return failure.Precondition("provider %s is pending removal", id)
	}

	quote, err := lq.Quote()
	if err != nil {
		return err
	}
	total, err := fpmath.Add(p.Liquidity(), op.Amount)
	if err != nil {
		return err
	}
	value, err := fpmath.TokensToSatoshis(total, quote, fpmath.RoundDown)
	if err != nil {
		return err
	}
	if value < lq.params.MinimumTradeSatoshis {
		return failure.Precondition("listing worth %d satoshis, minimum is %d", value, lq.params.MinimumTradeSatoshis)
	}

	var index uint32
	if p.Active {
		if p.Priority != op.Priority {
			return failure.Precondition("provider %s is already listed in the %s queue", id, p.Membership.Kind())
		}
		if p.Receiver != op.Receiver {
			return failure.Precondition("receiver cannot change while listed")
		}
		index, _ = p.Membership.Index()
		lq.providers.RewindToProvider(p)
	} else {
		kind := state.QueueNormal
		if op.Priority {
			kind = state.QueuePriority
		}
		if index, err = lq.providers.AddToQueue(p, kind); err != nil {
			return err
		}
		p.Active = true
		p.Priority = op.Priority
		p.Receiver = op.Receiver
	}

	if err := p.AddLiquidity(op.Amount); err != nil {
		return err
	}
	if err := lq.reserve.AddToTotalReserve(op.Amount); err != nil {
		return err
	}

	credit := op.Amount
	if !p.LiquidityProvisionAllowed && !op.Priority {
		credit = new(uint256.Int).Rsh(op.Amount, 1)
	}
	if err := p.AddPendingCredit(credit); err != nil {
		return err
	}

	lq.events.Emit(&event.LiquidityListed{
		ProviderID: id.String(),
		Amount:     op.Amount.Clone(),
		Priority:   op.Priority,
		QueueIndex: index,
	})
	return nil
}

// reserve holds provider inventory for the sender at the current block quote.
func reserve(lq *LiquidityQueue, op *event.Reserve) error {
	if err := requirePool(lq); err != nil {
		return err
	}
	ctx := op.Context()
	if op.ActivationDelay > lq.params.MaxActivationDelay {
		return failure.Precondition("activation delay %d exceeds %d", op.ActivationDelay, lq.params.MaxActivationDelay)
	}
	if op.MaximumAmountIn < lq.params.MinimumTradeSatoshis {
		return failure.Precondition("maximum amount in %d below minimum trade %d", op.MaximumAmountIn, lq.params.MinimumTradeSatoshis)
	}

	id := state.NewReservationID(op.Token(), ctx.Sender)
	existing, err := state.LoadReservation(lq.tx, id)
	if err != nil {
		return err
	}
	if existing.Exists() {
		switch {
		case existing.Purged:
			existing.Delete(lq.tx)
		case existing.IsExpired(lq.block):
			return failure.Precondition("previous reservation %s is awaiting purge", id)
		default:
			return failure.Precondition("reservation %s is still active", id)
		}
	}

	quote := lq.quotes.BlockQuote(lq.block)
	if quote.IsZero() {
		return failure.Precondition("pool has no quote at block %d", lq.block)
	}
	wanted, err := fpmath.SatoshisToTokens(op.MaximumAmountIn, quote)
	if err != nil {
		return err
	}
	capLeft, err := lq.GetMaximumTokensLeftBeforeCap()
	if err != nil {
		return err
	}
	if capLeft.IsZero() {
		return failure.Precondition("reservation cap reached")
	}
	remaining := fpmath.Min(wanted, capLeft)

	r := state.NewReservation(id, lq.block, lq.params.ReservationExpireAfterBlocks, op.ActivationDelay, op.ForLiquidityPool)
	total := new(uint256.Int)
	var totalSats uint64

	hold := func(p *state.Provider, amount *uint256.Int, kind state.QueueKind, index uint32) error {
		if err := p.AddReserved(amount); err != nil {
			return err
		}
		if err := r.AddProvider(state.ReservationEntry{
			ProviderIndex:  index,
			ProvidedAmount: amount,
			ProviderType:   kind,
			CreationBlock:  lq.block,
		}); err != nil {
			return err
		}
		total.Add(total, amount)
		remaining.Sub(remaining, amount)
		sats, err := fpmath.TokensToSatoshis(amount, quote, fpmath.RoundUp)
		if err != nil {
			return err
		}
		totalSats += sats
		return nil
	}

	if !op.ForLiquidityPool {
		owed := lq.providers.Owed()
		for !remaining.IsZero() {
			value, err := fpmath.TokensToSatoshis(remaining, quote, fpmath.RoundDown)
			if err != nil {
				return err
			}
			if value < lq.params.MinimumProviderSatoshis {
				break
			}
			p, err := lq.providers.GetNextRemovalProvider(quote)
			if err != nil {
				return err
			}
			if p == nil {
				break
			}
			avail, err := p.Available()
			if err != nil {
				return err
			}
			owedAvail, err := owed.Available(p.ID)
			if err != nil {
				return err
			}
			owedTokens, err := fpmath.SatoshisToTokens(owedAvail, quote)
			if err != nil {
				return err
			}
			amount := fpmath.Min(fpmath.Min(avail, owedTokens), remaining)
			sats, err := fpmath.TokensToSatoshis(amount, quote, fpmath.RoundDown)
			if err != nil {
				return err
			}
			if sats < lq.params.MinimumProviderSatoshis {
				if err := lq.providers.SkipRemovalProvider(p); err != nil {
					return err
				}
				continue
			}
			index, _ := p.Membership.Index()
			if err := hold(p, amount, state.QueueRemoval, index); err != nil {
				return err
			}
			if err := owed.AddReserved(p.ID, sats); err != nil {
				return err
			}
		}
	}

	for !remaining.IsZero() {
		value, err := fpmath.TokensToSatoshis(remaining, quote, fpmath.RoundDown)
		if err != nil {
			return err
		}
		if value < lq.params.MinimumProviderSatoshis {
			break
		}
		p, err := lq.providers.GetNextProviderWithLiquidity(quote)
		if err != nil {
			return err
		}
		if p == nil {
			break
		}
		avail, err := p.Available()
		if err != nil {
			return err
		}
		amount := fpmath.Min(avail, remaining)
		kind, index := p.Membership.Kind(), state.InitialProviderIndex
		if p.InitialProvider {
			kind = state.QueueNormal
		} else if index, _ = p.Membership.Index(); kind == state.QueueNone {
			return failure.ImpossibleState("provider %s offered without a queue", p.ID)
		}
		if err := hold(p, amount, kind, index); err != nil {
			return err
		}
	}

	if !r.Exists() {
		return failure.Precondition("no liquidity available")
	}
	if op.MinimumAmountOut != nil && total.Lt(op.MinimumAmountOut) {
		return failure.Precondition("reserved %s tokens, minimum out is %s", total.Dec(), op.MinimumAmountOut.Dec())
	}
	if err := lq.reserve.AddToReservedLiquidity(total); err != nil {
		return err
	}
	purgeIndex, err := lq.reservations.AddActiveReservation(lq.block, id)
	if err != nil {
		return err
	}
	r.PurgeIndex = purgeIndex
	r.Save(lq.tx)

	lq.events.Emit(&event.ReservationCreated{
		ReservationID:  id.String(),
		Owner:          ctx.Sender,
		ExpectedTokens: total,
		TotalSatoshis:  totalSats,
		Providers:      len(r.Entries),
		Block:          lq.block,
	})
	return nil
}

// swap settles the sender's reservation, charges the fee and deletes it.
func swap(lq *LiquidityQueue, op *event.Swap) (*TradeResult, error) {
	if err := requirePool(lq); err != nil {
		return nil, err
	}
	ctx := op.Context()
	id := state.NewReservationID(op.Token(), ctx.Sender)
	r, err := state.LoadReservation(lq.tx, id)
	if err != nil {
		return nil, err
	}
	if !r.Exists() {
		return nil, failure.Precondition("no reservation for %s", ctx.Sender)
	}

	tm := NewTradeManager(lq.providers, lq.reserve, lq.quotes, lq.reservations, ctx, lq.events, lq.params)
	var result *TradeResult
	if r.Purged || r.IsExpired(lq.block) {
		quote, qerr := lq.Quote()
		if qerr != nil {
			return nil, qerr
		}
		result, err = tm.ExecuteTradeExpired(r, quote)
	} else {
		result, err = tm.ExecuteTradeNotExpired(r)
	}
	if err != nil {
		return nil, err
	}
	if result.TokensPurchased.IsZero() {
		return nil, failure.Precondition("no tokens purchased for reservation %s", id)
	}

	fee, feeBP, err := lq.ComputeFees(result.TokensPurchased, result.SatoshisSpent)
	if err != nil {
		return nil, err
	}
	if err := lq.DistributeFee(fee); err != nil {
		return nil, err
	}
	r.Delete(lq.tx)
	if err := lq.providers.CleanUpQueues(); err != nil {
		return nil, err
	}

	consumed := make([]string, len(result.Consumed))
	for i, pid := range result.Consumed {
		consumed[i] = pid.String()
	}
	lq.events.Emit(&event.SwapExecuted{
		Owner:        ctx.Sender,
		SatoshisIn:   result.SatoshisSpent,
		TokensOut:    new(uint256.Int).Sub(result.TokensPurchased, fee),
		FeeTokens:    fee,
		FeeBP:        feeBP,
		Expired:      result.Expired,
		ConsumedFrom: consumed,
	})
	return result, nil
}

// cancelListing returns the sender's listing minus the cancel penalty.
func cancelListing(lq *LiquidityQueue, op *event.CancelListing) error {
	if err := requirePool(lq); err != nil {
		return err
	}
	id := state.NewProviderID(op.Context().Sender, op.Token())
	p, err := lq.providers.GetProvider(id)
	if err != nil {
		return err
	}
	switch {
	case !p.Active:
		return failure.Precondition("provider %s has no listing", id)
	case p.InitialProvider:
		return failure.Precondition("initial provider cannot cancel")
	case p.PendingRemoval:
		return failure.Precondition("provider %s is pending removal", id)
	case !p.Reserved().IsZero():
		return failure.Precondition("provider %s has active reservations", id)
	}

	penalty := new(uint256.Int)
	if p.LiquidityProvisionAllowed {
		if penalty, err = fpmath.ApplyBasisPoints(p.Liquidity(), lq.params.CancelPenaltyBP); err != nil {
			return err
		}
	}
	half := new(uint256.Int).Rsh(penalty, 1)
	if err := lq.AccruePenalty(penalty, half); err != nil {
		return err
	}
	if err := p.SubtractLiquidity(penalty); err != nil {
		return err
	}
	refund := p.Liquidity()
	if err := lq.providers.ResetProvider(p, true, true); err != nil {
		return err
	}
	if err := lq.providers.CleanUpQueues(); err != nil {
		return err
	}

	lq.events.Emit(&event.ListingCanceled{
		ProviderID: id.String(),
		Refunded:   refund,
		Penalty:    penalty,
	})
	return nil
}

// removeLiquidity moves an activated provider to the removal queue. Its
// tokens stay in the pool and buyers pay it the satoshis it is owed.
func removeLiquidity(lq *LiquidityQueue, op *event.RemoveLiquidity) error {
	if err := requirePool(lq); err != nil {
		return err
	}
	id := state.NewProviderID(op.Context().Sender, op.Token())
	p, err := lq.providers.GetProvider(id)
	if err != nil {
		return err
	}
	switch {
	case !p.Active || !p.LiquidityProvider:
		return failure.Precondition("provider %s has no provided liquidity", id)
	case p.InitialProvider:
		return failure.Precondition("initial provider cannot remove liquidity")
	case p.PendingRemoval:
		return failure.Precondition("provider %s is already pending removal", id)
	case !p.Reserved().IsZero():
		return failure.Precondition("provider %s has active reservations", id)
	}

	quote, err := lq.Quote()
	if err != nil {
		return err
	}
	owed, err := fpmath.TokensToSatoshis(p.Liquidity(), quote, fpmath.RoundDown)
	if err != nil {
		return err
	}
	if owed < lq.params.MinimumProviderSatoshis {
		return failure.Precondition("remaining liquidity worth %d satoshis is below %d", owed, lq.params.MinimumProviderSatoshis)
	}

	if err := lq.providers.RemoveFromQueue(p); err != nil {
		return err
	}
	index, err := lq.providers.AddToQueue(p, state.QueueRemoval)
	if err != nil {
		return err
	}
	p.PendingRemoval = true
	p.FromRemovalQueue = true
	p.Purged = false
	lq.providers.Owed().SetOwed(p.ID, owed)
	if err := lq.providers.CleanUpQueues(); err != nil {
		return err
	}

	lq.events.Emit(&event.LiquidityRemovalQueued{
		ProviderID:   id.String(),
		OwedSatoshis: owed,
		QueueIndex:   index,
	})
	return nil
}

func requirePool(lq *LiquidityQueue) error {
	if !lq.pool.Created() {
		return failure.Precondition("pool does not exist")
	}
	return nil
}
