package state

import (
	"NativeSwap/internal/failure"
	fpmath "NativeSwap/internal/math"
	"NativeSwap/internal/storage"

	"github.com/holiman/uint256"
)

// DynamicFee prices trades in basis points from trade size, recent
// volatility and pool utilization.
type DynamicFee struct {
	params     FeeParams
	volatility *storage.StoredU256
}

func NewDynamicFee(tx storage.Tx, token TokenID, params FeeParams) *DynamicFee {
	return &DynamicFee{
		params:     params,
		volatility: storage.NewStoredU256(tx, storage.Key(storage.PointerVolatility, token.Bytes())),
	}
}

func (d *DynamicFee) Volatility() *uint256.Int { return d.volatility.Get() }

func (d *DynamicFee) SetVolatility(v *uint256.Int) { d.volatility.Set(v) }

// FeeBP returns clamp(base + a*ln(size/ref) + b*vol/10000 + g*util/10, min, max).
// utilization is a percentage.
func (d *DynamicFee) FeeBP(tradeSize uint64, utilization *uint256.Int) (uint64, error) {
	p := d.params
	fee := uint256.NewInt(p.BaseFeeBP)

	if p.RefTradeSize > 0 && tradeSize > p.RefTradeSize {
		ratio := uint256.NewInt(tradeSize / p.RefTradeSize)
		lnScaled := fpmath.PreciseLn(ratio)
		term, err := fpmath.MulDiv(uint256.NewInt(p.Alpha), uint256.NewInt(lnScaled), uint256.NewInt(uint64(fpmath.LnScale)))
		if err != nil {
			return 0, err
		}
		if fee, err = fpmath.Add(fee, term); err != nil {
			return 0, err
		}
	}

	volTerm, err := fpmath.MulDiv(uint256.NewInt(p.Beta), d.Volatility(), uint256.NewInt(fpmath.BasisPoints))
	if err != nil {
		return 0, err
	}
	if fee, err = fpmath.Add(fee, volTerm); err != nil {
		return 0, err
	}

	utilTerm, err := fpmath.MulDiv(uint256.NewInt(p.Gamma), utilization, uint256.NewInt(10))
	if err != nil {
		return 0, err
	}
	if fee, err = fpmath.Add(fee, utilTerm); err != nil {
		return 0, err
	}

	if fee.Lt(uint256.NewInt(p.MinFeeBP)) {
		return p.MinFeeBP, nil
	}
	if fee.Gt(uint256.NewInt(p.MaxFeeBP)) {
		return p.MaxFeeBP, nil
	}
	return fee.Uint64(), nil
}

// FeeAmount returns amount*feeBP/10000.
func (d *DynamicFee) FeeAmount(amount *uint256.Int, feeBP uint64) (*uint256.Int, error) {
	if feeBP > fpmath.BasisPoints {
		return nil, failure.Precondition("fee %d bp exceeds 100%%", feeBP)
	}
	return fpmath.ApplyBasisPoints(amount, feeBP)
}
