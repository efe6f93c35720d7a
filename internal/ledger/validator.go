package ledger

import (
	"fmt"

	"github.com/holiman/uint256"
)

// InvariantValidator checks ledger invariants of a batch
type InvariantValidator struct{}

func NewInvariantValidator() *InvariantValidator {
	return &InvariantValidator{}
}

// ValidateBatch runs every batch-level check.
func (v *InvariantValidator) ValidateBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return err
	}
	return v.ValidateSettlementNetsToZero(batch)
}

// ValidateSettlementNetsToZero verifies everything filled from providers
// into pool settlement left it again as delivery or fee.
func (v *InvariantValidator) ValidateSettlementNetsToZero(batch *Batch) error {
	in := make(map[string]*uint256.Int)
	out := make(map[string]*uint256.Int)
	for _, j := range batch.Journals {
		if j.DebitAccount.Scope == AccountScopePool && j.DebitAccount.SubType == SubTypeSettlement {
			add(in, j.DebitAccount.Asset, j.Amount)
		}
		if j.CreditAccount.Scope == AccountScopePool && j.CreditAccount.SubType == SubTypeSettlement {
			add(out, j.CreditAccount.Asset, j.Amount)
		}
	}
	for asset, total := range in {
		got, ok := out[asset]
		if !ok {
			got = new(uint256.Int)
		}
		if !got.Eq(total) {
			return fmt.Errorf("settlement for %s does not net to zero: in %s, out %s", asset, total.Dec(), got.Dec())
		}
	}
	for asset, total := range out {
		if _, ok := in[asset]; !ok && !total.IsZero() {
			return fmt.Errorf("settlement for %s paid %s with nothing filled", asset, total.Dec())
		}
	}
	return nil
}

func add(m map[string]*uint256.Int, asset string, v *uint256.Int) {
	cur, ok := m[asset]
	if !ok {
		cur = new(uint256.Int)
		m[asset] = cur
	}
	cur.Add(cur, v)
}
