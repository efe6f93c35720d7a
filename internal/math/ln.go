package math

import "github.com/holiman/uint256"

const (
	// LnScale is the fixed-point scale of PreciseLn results.
	LnScale int64 = 1_000_000

	ln2Scaled int64 = 693_147
)

// PreciseLn approximates ln(x) scaled by 1e6. The integer part comes from the
// bit length (k·ln2) and the fractional remainder x/2^k - 1 from a 5-term
// Taylor expansion of ln(1+y). ln(0) and ln(1) are reported as 0.
func PreciseLn(x *uint256.Int) uint64 {
	if x.IsZero() || x.IsUint64() && x.Uint64() == 1 {
		return 0
	}

	k := x.BitLen() - 1
	result := int64(k) * ln2Scaled

	// y = (x - 2^k) / 2^k scaled by 1e6, always in [0, 1e6)
	pow := new(uint256.Int).Lsh(uint256.NewInt(1), uint(k))
	rem := new(uint256.Int).Sub(x, pow)
	if k > 64 {
		shift := uint(k - 64)
		pow.Rsh(pow, shift)
		rem.Rsh(rem, shift)
	}
	y := new(uint256.Int).Mul(rem, uint256.NewInt(uint64(LnScale)))
	y.Div(y, pow)
	ys := int64(y.Uint64())

	y2 := ys * ys / LnScale
	y3 := y2 * ys / LnScale
	y4 := y3 * ys / LnScale
	y5 := y4 * ys / LnScale

	frac := ys - y2/2 + y3/3 - y4/4 + y5/5
	result += frac
	if result < 0 {
		return 0
	}
	return uint64(result)
}
