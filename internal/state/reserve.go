package state

import (
	"NativeSwap/internal/failure"
	fpmath "NativeSwap/internal/math"
	"NativeSwap/internal/storage"

	"github.com/holiman/uint256"
)

// Reserve is the virtual-pool state of one token: real liquidity, reserved
// liquidity, both virtual sides and the per-cycle accumulators.
type Reserve interface {
	Liquidity() *uint256.Int
	ReservedLiquidity() *uint256.Int
	AvailableLiquidity() (*uint256.Int, error)
	VirtualTokenReserve() *uint256.Int
	VirtualSatoshisReserve() uint64
	DeltaTokensAdd() *uint256.Int
	DeltaTokensBuy() *uint256.Int
	DeltaSatoshisBuy() uint64

	SetVirtualTokenReserve(v *uint256.Int)
	SetVirtualSatoshisReserve(v uint64)

	AddToTotalReserve(v *uint256.Int) error
	SubFromTotalReserve(v *uint256.Int) error
	AddToReservedLiquidity(v *uint256.Int) error
	SubFromReservedLiquidity(v *uint256.Int) error
	AddToDeltaTokensAdd(v *uint256.Int) error
	AddToDeltaTokensBuy(v *uint256.Int) error
	AddToDeltaSatoshisBuy(v uint64) error
	ResetAccumulators()
}

// reserveFields holds the arithmetic shared by both Reserve implementations.
type reserveFields struct {
	get func(f reserveField) *uint256.Int
	set func(f reserveField, v *uint256.Int)
}

type reserveField int

const (
	fieldLiquidity reserveField = iota
	fieldReserved
	fieldVirtualTokens
	fieldVirtualSatoshis
	fieldDeltaTokensAdd
	fieldDeltaTokensBuy
	fieldDeltaSatoshisBuy
	reserveFieldCount
)

func (r reserveFields) available() (*uint256.Int, error) {
	l, res := r.get(fieldLiquidity), r.get(fieldReserved)
	if res.Gt(l) {
		return nil, failure.ImpossibleState("reserved liquidity %s exceeds liquidity %s", res.Dec(), l.Dec())
	}
	return new(uint256.Int).Sub(l, res), nil
}

func (r reserveFields) add(f reserveField, v *uint256.Int) error {
	sum, err := fpmath.Add(r.get(f), v)
	if err != nil {
		return err
	}
	r.set(f, sum)
	return nil
}

func (r reserveFields) sub(f reserveField, v *uint256.Int) error {
	diff, err := fpmath.Sub(r.get(f), v)
	if err != nil {
		return err
	}
	r.set(f, diff)
	return nil
}

func (r reserveFields) addU64(f reserveField, v uint64) error {
	sum, err := fpmath.AddU64(r.get(f).Uint64(), v)
	if err != nil {
		return err
	}
	r.set(f, uint256.NewInt(sum))
	return nil
}

func (r reserveFields) subTotal(v *uint256.Int) error {
	l, err := fpmath.Sub(r.get(fieldLiquidity), v)
	if err != nil {
		return err
	}
	if r.get(fieldReserved).Gt(l) {
		return failure.ImpossibleState("liquidity %s would drop below reserved %s", l.Dec(), r.get(fieldReserved).Dec())
	}
	r.set(fieldLiquidity, l)
	return nil
}

func (r reserveFields) addReserved(v *uint256.Int) error {
	res, err := fpmath.Add(r.get(fieldReserved), v)
	if err != nil {
		return err
	}
	if res.Gt(r.get(fieldLiquidity)) {
		return failure.ImpossibleState("reserved liquidity %s would exceed liquidity %s", res.Dec(), r.get(fieldLiquidity).Dec())
	}
	r.set(fieldReserved, res)
	return nil
}

func (r reserveFields) reset() {
	r.set(fieldDeltaTokensAdd, new(uint256.Int))
	r.set(fieldDeltaTokensBuy, new(uint256.Int))
	r.set(fieldDeltaSatoshisBuy, new(uint256.Int))
}

// StoredReserve persists the reserve of one token through the call's overlay.
type StoredReserve struct {
	reserveFields
	slots [reserveFieldCount]*storage.StoredU256
}

var reservePointers = [reserveFieldCount]storage.Pointer{
	fieldLiquidity:        storage.PointerLiquidity,
	fieldReserved:         storage.PointerReservedLiquidity,
	fieldVirtualTokens:    storage.PointerVirtualTokenReserve,
	fieldVirtualSatoshis:  storage.PointerVirtualSatoshisReserve,
	fieldDeltaTokensAdd:   storage.PointerDeltaTokensAdd,
	fieldDeltaTokensBuy:   storage.PointerDeltaTokensBuy,
	fieldDeltaSatoshisBuy: storage.PointerDeltaSatoshisBuy,
}

func NewStoredReserve(tx storage.Tx, token TokenID) *StoredReserve {
	s := &StoredReserve{}
	for f, p := range reservePointers {
		s.slots[f] = storage.NewStoredU256(tx, storage.Key(p, token.Bytes()))
	}
	s.reserveFields = reserveFields{
		get: func(f reserveField) *uint256.Int { return s.slots[f].Get() },
		set: func(f reserveField, v *uint256.Int) { s.slots[f].Set(v) },
	}
	return s
}

// MemoryReserve keeps the reserve in memory. Tests use it in place of StoredReserve.
type MemoryReserve struct {
	reserveFields
	vals [reserveFieldCount]*uint256.Int
}

func NewMemoryReserve() *MemoryReserve {
	m := &MemoryReserve{}
	for i := range m.vals {
		m.vals[i] = new(uint256.Int)
	}
	m.reserveFields = reserveFields{
		get: func(f reserveField) *uint256.Int { return m.vals[f].Clone() },
		set: func(f reserveField, v *uint256.Int) { m.vals[f] = v.Clone() },
	}
	return m
}

// SetLiquidity and SetReservedLiquidity seed a MemoryReserve directly.
func (m *MemoryReserve) SetLiquidity(v *uint256.Int) { m.vals[fieldLiquidity] = v.Clone() }

func (m *MemoryReserve) SetReservedLiquidity(v *uint256.Int) { m.vals[fieldReserved] = v.Clone() }

func (r reserveFields) Liquidity() *uint256.Int         { return r.get(fieldLiquidity) }
func (r reserveFields) ReservedLiquidity() *uint256.Int { return r.get(fieldReserved) }
func (r reserveFields) AvailableLiquidity() (*uint256.Int, error) {
	return r.available()
}
func (r reserveFields) VirtualTokenReserve() *uint256.Int { return r.get(fieldVirtualTokens) }
func (r reserveFields) VirtualSatoshisReserve() uint64 {
	return r.get(fieldVirtualSatoshis).Uint64()
}
func (r reserveFields) DeltaTokensAdd() *uint256.Int { return r.get(fieldDeltaTokensAdd) }
func (r reserveFields) DeltaTokensBuy() *uint256.Int { return r.get(fieldDeltaTokensBuy) }
func (r reserveFields) DeltaSatoshisBuy() uint64     { return r.get(fieldDeltaSatoshisBuy).Uint64() }

func (r reserveFields) SetVirtualTokenReserve(v *uint256.Int) { r.set(fieldVirtualTokens, v) }
func (r reserveFields) SetVirtualSatoshisReserve(v uint64) {
	r.set(fieldVirtualSatoshis, uint256.NewInt(v))
}

func (r reserveFields) AddToTotalReserve(v *uint256.Int) error   { return r.add(fieldLiquidity, v) }
func (r reserveFields) SubFromTotalReserve(v *uint256.Int) error { return r.subTotal(v) }
func (r reserveFields) AddToReservedLiquidity(v *uint256.Int) error {
	return r.addReserved(v)
}
func (r reserveFields) SubFromReservedLiquidity(v *uint256.Int) error {
	return r.sub(fieldReserved, v)
}
func (r reserveFields) AddToDeltaTokensAdd(v *uint256.Int) error {
	return r.add(fieldDeltaTokensAdd, v)
}
func (r reserveFields) AddToDeltaTokensBuy(v *uint256.Int) error {
	return r.add(fieldDeltaTokensBuy, v)
}
func (r reserveFields) AddToDeltaSatoshisBuy(v uint64) error {
	return r.addU64(fieldDeltaSatoshisBuy, v)
}
func (r reserveFields) ResetAccumulators() { r.reset() }

var (
	_ Reserve = (*StoredReserve)(nil)
	_ Reserve = (*MemoryReserve)(nil)
)
