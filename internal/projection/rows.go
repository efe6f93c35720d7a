package projection

import (
	"NativeSwap/internal/core"
	"NativeSwap/internal/event"
)

// PoolRow is the latest view of one pool in projections.pools.
type PoolRow struct {
	Token                  string
	TokenID                string
	Block                  uint64
	Quote                  string
	Liquidity              string
	ReservedLiquidity      string
	VirtualTokenReserve    string
	VirtualSatoshisReserve uint64
	UtilizationPercent     uint64
	Volatility             uint64
	MaxReservesPercent     uint64
	LastPurgedBlock        uint64
	PriorityQueueLen       uint64
	NormalQueueLen         uint64
	RemovalQueueLen        uint64
	Sequence               int64
}

// QuoteRow is one point of projections.quote_history. FeeBP is set only
// when the transaction was a swap.
type QuoteRow struct {
	Token      string
	Sequence   int64
	Block      uint64
	Quote      string
	Volatility uint64
	FeeBP      *uint64
}

// ConsumptionRow records tokens one provider delivered in one transaction.
type ConsumptionRow struct {
	Token      string
	ProviderID string
	Sequence   int64
	Block      uint64
	Tokens     string
	Satoshis   uint64
}

// Update is everything the projections learn from one output.
type Update struct {
	Sequence    int64
	Pool        *PoolRow
	Quote       *QuoteRow
	Consumption []ConsumptionRow
}

// Derive turns an engine output into projection rows. Outputs for pools
// that do not exist yet carry no pool or quote row.
func Derive(out core.CoreOutput) Update {
	env := out.Envelope
	u := Update{Sequence: env.Sequence}

	var feeBP *uint64
	for _, n := range out.Notices {
		switch v := n.(type) {
		case *event.ProviderConsumed:
			row := ConsumptionRow{
				Token:      env.Token,
				ProviderID: v.ProviderID,
				Sequence:   env.Sequence,
				Block:      env.Block,
				Tokens:     "0",
				Satoshis:   v.Satoshis,
			}
			if v.Amount != nil {
				row.Tokens = v.Amount.Dec()
			}
			u.Consumption = append(u.Consumption, row)
		case *event.SwapExecuted:
			bp := v.FeeBP
			feeBP = &bp
		}
	}

	p := out.Pool
	if p == nil || !p.Created {
		return u
	}
	u.Pool = &PoolRow{
		Token:                  p.Token,
		TokenID:                p.TokenID,
		Block:                  p.Block,
		Quote:                  p.Quote.Dec(),
		Liquidity:              p.Liquidity.Dec(),
		ReservedLiquidity:      p.ReservedLiquidity.Dec(),
		VirtualTokenReserve:    p.VirtualTokenReserve.Dec(),
		VirtualSatoshisReserve: p.VirtualSatoshisReserve,
		UtilizationPercent:     p.UtilizationPercent,
		Volatility:             p.Volatility.Uint64(),
		MaxReservesPercent:     p.MaxReservesPercent,
		LastPurgedBlock:        p.LastPurgedBlock,
		PriorityQueueLen:       p.PriorityQueueLen,
		NormalQueueLen:         p.NormalQueueLen,
		RemovalQueueLen:        p.RemovalQueueLen,
		Sequence:               env.Sequence,
	}
	u.Quote = &QuoteRow{
		Token:      p.Token,
		Sequence:   env.Sequence,
		Block:      p.Block,
		Quote:      u.Pool.Quote,
		Volatility: u.Pool.Volatility,
		FeeBP:      feeBP,
	}
	return u
}
