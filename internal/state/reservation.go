package state

import (
	"encoding/binary"
	"math"

	"NativeSwap/internal/failure"
	"NativeSwap/internal/storage"

	"github.com/holiman/uint256"
)

// ReservationEntry is one provider's share of a reservation.
type ReservationEntry struct {
	ProviderIndex  uint32
	ProvidedAmount *uint256.Int
	ProviderType   QueueKind
	CreationBlock  uint64
}

// Reservation is a time-boxed hold on provider inventory.
type Reservation struct {
	ID               ReservationID
	CreationBlock    uint64
	ExpirationBlock  uint64
	ActivationDelay  uint8
	PurgeIndex       uint32
	ForLiquidityPool bool
	Purged           bool
	Entries          []ReservationEntry

	saved bool
}

const (
	reservationRecordVersion byte = 1
	reservationHeaderLen          = 1 + 8 + 8 + 1 + 4 + 1 + 2
	reservationEntryLen           = 4 + 16 + 1 + 8

	resFlagForLiquidityPool byte = 1 << 0
	resFlagPurged           byte = 1 << 1
)

// NewReservation opens a reservation at block.
func NewReservation(id ReservationID, block uint64, window uint64, activationDelay uint8, forLiquidityPool bool) *Reservation {
	return &Reservation{
		ID:               id,
		CreationBlock:    block,
		ExpirationBlock:  block + window,
		ActivationDelay:  activationDelay,
		PurgeIndex:       IndexNotSet,
		ForLiquidityPool: forLiquidityPool,
	}
}

func reservationKey(id ReservationID) []byte {
	return storage.Key(storage.PointerReservation, id.Bytes())
}

// LoadReservation reads a reservation. A missing one comes back empty and
// default-valued.
func LoadReservation(tx storage.Tx, id ReservationID) (*Reservation, error) {
	raw := tx.Get(reservationKey(id))
	r := &Reservation{ID: id, PurgeIndex: IndexNotSet}
	if len(raw) == 0 {
		return r, nil
	}
	if len(raw) < reservationHeaderLen || raw[0] != reservationRecordVersion {
		return nil, failure.ImpossibleState("reservation %s: malformed record (%d bytes)", id, len(raw))
	}
	off := 1
	r.CreationBlock = binary.BigEndian.Uint64(raw[off:])
	off += 8
	r.ExpirationBlock = binary.BigEndian.Uint64(raw[off:])
	off += 8
	r.ActivationDelay = raw[off]
	off++
	r.PurgeIndex = binary.BigEndian.Uint32(raw[off:])
	off += 4
	flags := raw[off]
	off++
	r.ForLiquidityPool = flags&resFlagForLiquidityPool != 0
	r.Purged = flags&resFlagPurged != 0
	n := int(binary.BigEndian.Uint16(raw[off:]))
	off += 2
	if len(raw) != off+n*reservationEntryLen {
		return nil, failure.ImpossibleState("reservation %s: %d entries do not fit %d bytes", id, n, len(raw))
	}
	r.Entries = make([]ReservationEntry, n)
	for i := range r.Entries {
		e := &r.Entries[i]
		e.ProviderIndex = binary.BigEndian.Uint32(raw[off:])
		off += 4
		e.ProvidedAmount = new(uint256.Int).SetBytes(raw[off : off+16])
		off += 16
		e.ProviderType = QueueKind(raw[off])
		off++
		e.CreationBlock = binary.BigEndian.Uint64(raw[off:])
		off += 8
	}
	r.saved = true
	return r, nil
}

// AddProvider attaches an entry. Entries are frozen once the reservation is saved.
func (r *Reservation) AddProvider(e ReservationEntry) error {
	if r.saved {
		return failure.ImpossibleState("reservation %s: entries are frozen after save", r.ID)
	}
	if len(r.Entries) >= math.MaxUint16 {
		return failure.Capacity("reservation %s: too many providers", r.ID)
	}
	if e.ProvidedAmount == nil || e.ProvidedAmount.BitLen() > 128 {
		return failure.Arithmetic("reservation %s: provided amount outside u128", r.ID)
	}
	e.ProvidedAmount = e.ProvidedAmount.Clone()
	r.Entries = append(r.Entries, e)
	return nil
}

// Exists reports whether the reservation holds any inventory.
func (r *Reservation) Exists() bool {
	return len(r.Entries) > 0
}

func (r *Reservation) IsExpired(block uint64) bool {
	return block > r.ExpirationBlock
}

// IsValid reports whether the reservation may be settled on the normal path.
func (r *Reservation) IsValid(block uint64) bool {
	return r.Exists() && !r.Purged && !r.IsExpired(block)
}

// EnsureCanBeConsumed fails until the activation delay has elapsed. A
// reservation can never be consumed in its own creation block.
func (r *Reservation) EnsureCanBeConsumed(block uint64) error {
	if block <= r.CreationBlock+uint64(r.ActivationDelay) {
		return failure.Precondition("reservation %s created at block %d with delay %d cannot be consumed at block %d",
			r.ID, r.CreationBlock, r.ActivationDelay, block)
	}
	return nil
}

// MarkPurged turns the reservation into a tombstone: entries are kept so a
// late settlement can still be priced, but it leaves the purge index.
func (r *Reservation) MarkPurged() {
	r.Purged = true
	r.PurgeIndex = IndexNotSet
}

// TotalReserved sums the entry amounts.
func (r *Reservation) TotalReserved() *uint256.Int {
	sum := new(uint256.Int)
	for _, e := range r.Entries {
		sum.Add(sum, e.ProvidedAmount)
	}
	return sum
}

func (r *Reservation) Save(tx storage.Tx) {
	out := make([]byte, reservationHeaderLen, reservationHeaderLen+len(r.Entries)*reservationEntryLen)
	out[0] = reservationRecordVersion
	off := 1
	binary.BigEndian.PutUint64(out[off:], r.CreationBlock)
	off += 8
	binary.BigEndian.PutUint64(out[off:], r.ExpirationBlock)
	off += 8
	out[off] = r.ActivationDelay
	off++
	binary.BigEndian.PutUint32(out[off:], r.PurgeIndex)
	off += 4
	var flags byte
	if r.ForLiquidityPool {
		flags |= resFlagForLiquidityPool
	}
	if r.Purged {
		flags |= resFlagPurged
	}
	out[off] = flags
	off++
	binary.BigEndian.PutUint16(out[off:], uint16(len(r.Entries)))

	var entry [reservationEntryLen]byte
	for _, e := range r.Entries {
		binary.BigEndian.PutUint32(entry[0:], e.ProviderIndex)
		amt := e.ProvidedAmount.Bytes32()
		copy(entry[4:20], amt[16:])
		entry[20] = byte(e.ProviderType)
		binary.BigEndian.PutUint64(entry[21:], e.CreationBlock)
		out = append(out, entry[:]...)
	}
	tx.Set(reservationKey(r.ID), out)
	r.saved = true
}

// Delete removes the reservation; a reload yields an empty default value.
func (r *Reservation) Delete(tx storage.Tx) {
	tx.Delete(reservationKey(r.ID))
	id := r.ID
	*r = Reservation{ID: id, PurgeIndex: IndexNotSet}
}
