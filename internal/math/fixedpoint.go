// internal/math/fixedpoint.go
package math

import (
	"github.com/holiman/uint256"
)

const (
	// QuoteScale is the fixed-point scale of every quote (tokens per satoshi).
	QuoteScale uint64 = 100_000_000

	// CapScale is the fixed-point factor used by the rolling reservation cap.
	CapScale uint64 = 1_000_000

	// BasisPoints is the denominator of every fee and penalty ratio.
	BasisPoints uint64 = 10_000
)

// RoundingMode selects how a division remainder is handled.
type RoundingMode int

const (
	RoundDown RoundingMode = iota
	RoundUp
)

var scale = uint256.NewInt(QuoteScale)

// Scale returns SCALE as a fresh value.
func Scale() *uint256.Int {
	return scale.Clone()
}

// SatoshisToTokens converts a satoshi amount at quote (tokens per satoshi, scaled).
func SatoshisToTokens(satoshis uint64, quote *uint256.Int) (*uint256.Int, error) {
	return MulDiv(uint256.NewInt(satoshis), quote, scale)
}

// TokensToSatoshis converts a token amount at quote into satoshis.
func TokensToSatoshis(tokens, quote *uint256.Int, mode RoundingMode) (uint64, error) {
	num, err := Mul(tokens, scale)
	if err != nil {
		return 0, err
	}
	q, err := Div(num, quote)
	if err != nil {
		return 0, err
	}
	if mode == RoundUp {
		rem := new(uint256.Int).Mod(num, quote)
		if !rem.IsZero() {
			if q, err = Add(q, uint256.NewInt(1)); err != nil {
				return 0, err
			}
		}
	}
	return ToU64(q)
}

// HarmonicMean returns 2ab/(a+b), zero when both are zero.
func HarmonicMean(a, b *uint256.Int) (*uint256.Int, error) {
	sum, err := Add(a, b)
	if err != nil {
		return nil, err
	}
	if sum.IsZero() {
		return Zero(), nil
	}
	prod, err := Mul(a, b)
	if err != nil {
		return nil, err
	}
	twice, err := Mul(prod, uint256.NewInt(2))
	if err != nil {
		return nil, err
	}
	return Div(twice, sum)
}

// ApplyBasisPoints returns amount * bp / 10000 rounded down.
func ApplyBasisPoints(amount *uint256.Int, bp uint64) (*uint256.Int, error) {
	return MulDiv(amount, uint256.NewInt(bp), uint256.NewInt(BasisPoints))
}
