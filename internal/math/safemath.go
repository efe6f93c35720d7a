// internal/math/safemath.go
package math

import (
	"NativeSwap/internal/failure"

	"github.com/holiman/uint256"
)

var (
	// MaxU128 is the largest value a provider or reservation amount may hold.
	MaxU128 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))

	// MaxU256 is the largest aggregate amount.
	MaxU256 = new(uint256.Int).SetAllOne()
)

// Zero returns a fresh zero value.
func Zero() *uint256.Int {
	return new(uint256.Int)
}

// U64 wraps a uint64 into a fresh 256-bit value.
func U64(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

// Add returns a + b, failing on overflow.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	r, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, failure.Arithmetic("add overflow: %s + %s", a.Dec(), b.Dec())
	}
	return r, nil
}

// Sub returns a - b, failing on underflow.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	if a.Lt(b) {
		return nil, failure.Arithmetic("sub underflow: %s - %s", a.Dec(), b.Dec())
	}
	return new(uint256.Int).Sub(a, b), nil
}

// Mul returns a * b, failing on overflow.
func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	r, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, failure.Arithmetic("mul overflow: %s * %s", a.Dec(), b.Dec())
	}
	return r, nil
}

// Div returns a / b rounded down, failing when b is zero.
func Div(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, failure.Arithmetic("division by zero")
	}
	return new(uint256.Int).Div(a, b), nil
}

// MulDiv returns a * b / c rounded down, failing on overflow or zero divisor.
func MulDiv(a, b, c *uint256.Int) (*uint256.Int, error) {
	p, err := Mul(a, b)
	if err != nil {
		return nil, err
	}
	return Div(p, c)
}

// Min returns a copy of the smaller value.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return a.Clone()
	}
	return b.Clone()
}

// CheckU128 fails when v does not fit in 128 bits.
func CheckU128(v *uint256.Int) error {
	if v.BitLen() > 128 {
		return failure.Arithmetic("value %s exceeds u128", v.Dec())
	}
	return nil
}

// Add128 is Add constrained to the u128 range.
func Add128(a, b *uint256.Int) (*uint256.Int, error) {
	r, err := Add(a, b)
	if err != nil {
		return nil, err
	}
	if err := CheckU128(r); err != nil {
		return nil, err
	}
	return r, nil
}

// ToU64 narrows v, failing when it does not fit.
func ToU64(v *uint256.Int) (uint64, error) {
	if !v.IsUint64() {
		return 0, failure.Arithmetic("value %s exceeds u64", v.Dec())
	}
	return v.Uint64(), nil
}

// AddU64 returns a + b, failing on overflow.
func AddU64(a, b uint64) (uint64, error) {
	r := a + b
	if r < a {
		return 0, failure.Arithmetic("u64 add overflow: %d + %d", a, b)
	}
	return r, nil
}

// SubU64 returns a - b, failing on underflow.
func SubU64(a, b uint64) (uint64, error) {
	if b > a {
		return 0, failure.Arithmetic("u64 sub underflow: %d - %d", a, b)
	}
	return a - b, nil
}
