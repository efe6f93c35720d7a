package state

import (
	"encoding/hex"

	"github.com/holiman/uint256"
	"lukechampine.com/blake3"
)

// TokenID is the storage suffix of every per-token field.
type TokenID [32]byte

// ProviderID identifies one owner's listing for one token.
type ProviderID [32]byte

// ReservationID identifies one owner's reservation for one token.
type ReservationID [32]byte

const (
	providerDomain    byte = 0x01
	reservationDomain byte = 0x02
)

func NewTokenID(token string) TokenID {
	return blake3.Sum256([]byte(token))
}

func NewProviderID(owner, token string) ProviderID {
	return ProviderID(derive(providerDomain, owner, token))
}

func NewReservationID(token, owner string) ReservationID {
	return ReservationID(derive(reservationDomain, token, owner))
}

func derive(domain byte, a, b string) [32]byte {
	buf := make([]byte, 0, 1+len(a)+1+len(b))
	buf = append(buf, domain)
	buf = append(buf, a...)
	buf = append(buf, 0)
	buf = append(buf, b...)
	return blake3.Sum256(buf)
}

func (t TokenID) Bytes() []byte { return t[:] }

func (t TokenID) String() string { return hex.EncodeToString(t[:]) }

func (p ProviderID) Bytes() []byte { return p[:] }

func (p ProviderID) String() string { return hex.EncodeToString(p[:]) }

func (p ProviderID) IsZero() bool { return p == ProviderID{} }

// U256 encodes the id for storage in a provider queue.
func (p ProviderID) U256() *uint256.Int {
	return new(uint256.Int).SetBytes32(p[:])
}

// ProviderIDFromU256 decodes a queue slot.
func ProviderIDFromU256(v *uint256.Int) ProviderID {
	return ProviderID(v.Bytes32())
}

func (r ReservationID) Bytes() []byte { return r[:] }

func (r ReservationID) String() string { return hex.EncodeToString(r[:]) }

func (r ReservationID) U256() *uint256.Int {
	return new(uint256.Int).SetBytes32(r[:])
}

func ReservationIDFromU256(v *uint256.Int) ReservationID {
	return ReservationID(v.Bytes32())
}
