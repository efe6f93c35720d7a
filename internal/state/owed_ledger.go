package state

import (
	"NativeSwap/internal/failure"
	fpmath "NativeSwap/internal/math"
	"NativeSwap/internal/storage"
)

// OwedLedger tracks, per removal-queue provider, the satoshis still owed for
// withdrawn liquidity and the part of that already held by reservations.
type OwedLedger struct {
	tx storage.Tx
}

func NewOwedLedger(tx storage.Tx) *OwedLedger {
	return &OwedLedger{tx: tx}
}

func (l *OwedLedger) owed(id ProviderID) *storage.StoredU64 {
	return storage.NewStoredU64(l.tx, storage.Key(storage.PointerOwedSatoshis, id.Bytes()))
}

func (l *OwedLedger) reserved(id ProviderID) *storage.StoredU64 {
	return storage.NewStoredU64(l.tx, storage.Key(storage.PointerReservedSatoshis, id.Bytes()))
}

func (l *OwedLedger) Owed(id ProviderID) uint64 { return l.owed(id).Get() }

func (l *OwedLedger) Reserved(id ProviderID) uint64 { return l.reserved(id).Get() }

func (l *OwedLedger) SetOwed(id ProviderID, v uint64) { l.owed(id).Set(v) }

// Available is owed minus reserved.
func (l *OwedLedger) Available(id ProviderID) (uint64, error) {
	owed, res := l.Owed(id), l.Reserved(id)
	if res > owed {
		return 0, failure.ImpossibleState("provider %s reserved %d of %d owed satoshis", id, res, owed)
	}
	return owed - res, nil
}

func (l *OwedLedger) AddReserved(id ProviderID, v uint64) error {
	res, err := fpmath.AddU64(l.Reserved(id), v)
	if err != nil {
		return err
	}
	if res > l.Owed(id) {
		return failure.ImpossibleState("provider %s reserved %d exceeds owed %d", id, res, l.Owed(id))
	}
	l.reserved(id).Set(res)
	return nil
}

func (l *OwedLedger) SubReserved(id ProviderID, v uint64) error {
	res, err := fpmath.SubU64(l.Reserved(id), v)
	if err != nil {
		return failure.ImpossibleState("provider %s releasing %d owed satoshis with %d reserved", id, v, l.Reserved(id))
	}
	l.reserved(id).Set(res)
	return nil
}

// Settle records a payment: owed and reserved both drop by paid, and reserved
// releases whatever the reservation held beyond it.
func (l *OwedLedger) Settle(id ProviderID, held, paid uint64) error {
	if err := l.SubReserved(id, held); err != nil {
		return err
	}
	owed, err := fpmath.SubU64(l.Owed(id), paid)
	if err != nil {
		return err
	}
	l.owed(id).Set(owed)
	return nil
}

// Clear drops both balances.
func (l *OwedLedger) Clear(id ProviderID) {
	l.tx.Delete(storage.Key(storage.PointerOwedSatoshis, id.Bytes()))
	l.tx.Delete(storage.Key(storage.PointerReservedSatoshis, id.Bytes()))
}
