package state

import (
	fpmath "NativeSwap/internal/math"
	"NativeSwap/internal/storage"

	"github.com/holiman/uint256"
)

// Staking receives fees and penalties.
type Staking interface {
	Deposit(token TokenID, amount *uint256.Int) error
}

// StakingVault accumulates staking deposits per token.
type StakingVault struct {
	tx storage.Tx
}

func NewStakingVault(tx storage.Tx) *StakingVault {
	return &StakingVault{tx: tx}
}

func (v *StakingVault) slot(token TokenID) *storage.StoredU256 {
	return storage.NewStoredU256(v.tx, storage.Key(storage.PointerStakingBalance, token.Bytes()))
}

func (v *StakingVault) Balance(token TokenID) *uint256.Int {
	return v.slot(token).Get()
}

func (v *StakingVault) Deposit(token TokenID, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	s := v.slot(token)
	sum, err := fpmath.Add(s.Get(), amount)
	if err != nil {
		return err
	}
	s.Set(sum)
	return nil
}
