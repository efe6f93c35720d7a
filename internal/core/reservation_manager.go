package core

import (
	"NativeSwap/internal/event"
	"NativeSwap/internal/failure"
	fpmath "NativeSwap/internal/math"
	"NativeSwap/internal/state"
	"NativeSwap/internal/storage"

	"github.com/holiman/uint256"
)

// ReservationManager indexes active reservations per block and sweeps the
// expired ones back into provider inventory.
type ReservationManager struct {
	tx        storage.Tx
	token     state.TokenID
	block     uint64
	providers ProviderManager
	reserve   state.Reserve
	quotes    state.QuoteHistory
	events    *event.Recorder
	params    state.Params
}

func NewReservationManager(
	tx storage.Tx,
	token state.TokenID,
	block uint64,
	providers ProviderManager,
	reserve state.Reserve,
	quotes state.QuoteHistory,
	events *event.Recorder,
	params state.Params,
) *ReservationManager {
	return &ReservationManager{
		tx:        tx,
		token:     token,
		block:     block,
		providers: providers,
		reserve:   reserve,
		quotes:    quotes,
		events:    events,
		params:    params,
	}
}

func (rm *ReservationManager) blockIDs(block uint64) *storage.StoredArray[*uint256.Int] {
	key := storage.Key(storage.PointerBlockReservationIDs, rm.token.Bytes(), storage.U64Suffix(block))
	return storage.NewStoredArray(rm.tx, key, storage.U256Codec, rm.params.MaxReservationsPerBlock, "block reservations")
}

func (rm *ReservationManager) blockFlags(block uint64) *storage.StoredArray[bool] {
	key := storage.Key(storage.PointerBlockReservationFlags, rm.token.Bytes(), storage.U64Suffix(block))
	return storage.NewStoredArray(rm.tx, key, storage.BoolCodec, rm.params.MaxReservationsPerBlock, "block reservation flags")
}

func (rm *ReservationManager) blocksWithReservations() *storage.StoredArray[uint64] {
	key := storage.Key(storage.PointerBlocksWithReservations, rm.token.Bytes())
	return storage.NewStoredArray(rm.tx, key, storage.U64Codec, ^uint64(0), "blocks with reservations")
}

// AddActiveReservation registers id in block's list and returns its purge index.
func (rm *ReservationManager) AddActiveReservation(block uint64, id state.ReservationID) (uint32, error) {
	ids, flags := rm.blockIDs(block), rm.blockFlags(block)
	first := ids.Len() == 0 && ids.Start() == 0

	idIndex, err := ids.Push(id.U256())
	if err != nil {
		return 0, err
	}
	flagIndex, err := flags.Push(true)
	if err != nil {
		return 0, err
	}
	if idIndex != flagIndex {
		return 0, failure.ImpossibleState("block %d: reservation index %d does not match flag index %d", block, idIndex, flagIndex)
	}
	if first {
		if _, err := rm.blocksWithReservations().Push(block); err != nil {
			return 0, err
		}
	}
	return uint32(idIndex), nil
}

// DeactivateReservation clears the active flag so the sweep skips it.
func (rm *ReservationManager) DeactivateReservation(r *state.Reservation) error {
	if r.PurgeIndex == state.IndexNotSet {
		return failure.ImpossibleState("reservation %s has no purge index", r.ID)
	}
	flags := rm.blockFlags(r.CreationBlock)
	active, err := flags.Get(uint64(r.PurgeIndex))
	if err != nil {
		return err
	}
	if !active {
		return failure.ImpossibleState("reservation %s already inactive at block %d index %d", r.ID, r.CreationBlock, r.PurgeIndex)
	}
	return flags.Set(uint64(r.PurgeIndex), false)
}

// PurgeReservationsAndRestoreProviders releases every active reservation
// created before the expiration boundary and returns the new last-purged
// marker. Blocks strictly below the marker are fully swept.
func (rm *ReservationManager) PurgeReservationsAndRestoreProviders(lastPurgedBlock uint64) (uint64, error) {
	window := rm.params.ReservationExpireAfterBlocks
	if rm.block <= window {
		return lastPurgedBlock, nil
	}
	boundary := rm.block - window
	if boundary <= lastPurgedBlock {
		return lastPurgedBlock, nil
	}

	blocks := rm.blocksWithReservations()
	freed := new(uint256.Int)
	purged := 0
	processed := uint64(0)
	newLastPurged := boundary

sweep:
	for i := blocks.Start(); i < blocks.End(); i++ {
		block, err := blocks.Get(i)
		if err != nil {
			return 0, err
		}
		if block >= boundary {
			break
		}
		ids, flags := rm.blockIDs(block), rm.blockFlags(block)
		for j := ids.Start(); j < ids.End(); j++ {
			active, err := flags.Get(j)
			if err != nil {
				return 0, err
			}
			if !active {
				continue
			}
			if purged >= rm.params.MaxPurgePerCall {
				newLastPurged = block
				break sweep
			}
			raw, err := ids.Get(j)
			if err != nil {
				return 0, err
			}
			amount, err := rm.purgeReservation(state.ReservationIDFromU256(raw), j)
			if err != nil {
				return 0, err
			}
			if err := flags.Set(j, false); err != nil {
				return 0, err
			}
			freed.Add(freed, amount)
			purged++
		}
		ids.Clear()
		flags.Clear()
		processed++
	}

	if err := blocks.ShiftN(processed); err != nil {
		return 0, err
	}

	if freed.IsZero() {
		rm.providers.RestoreCurrentIndex()
	} else {
		rm.providers.ResetStartingIndex()
	}

	if purged > 0 && rm.events != nil {
		rm.events.Emit(&event.ReservationsPurged{
			Reservations:    purged,
			FreedTokens:     freed,
			LastPurgedBlock: newLastPurged,
		})
	}
	return newLastPurged, nil
}

func (rm *ReservationManager) purgeReservation(id state.ReservationID, index uint64) (*uint256.Int, error) {
	r, err := state.LoadReservation(rm.tx, id)
	if err != nil {
		return nil, err
	}
	if !r.Exists() {
		return nil, failure.ImpossibleState("active reservation %s has no record", id)
	}
	if !r.IsExpired(rm.block) {
		return nil, failure.ImpossibleState("reservation %s is still valid at block %d", id, rm.block)
	}
	if r.PurgeIndex != uint32(index) {
		return nil, failure.ImpossibleState("reservation %s purge index %d, found at %d", id, r.PurgeIndex, index)
	}

	freed := new(uint256.Int)
	for _, e := range r.Entries {
		p, err := rm.providers.GetProviderFromQueue(e.ProviderIndex, e.ProviderType)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, failure.ImpossibleState("reservation %s holds %s slot %d which is empty", id, e.ProviderType, e.ProviderIndex)
		}
		if err := rm.releaseHold(p, e); err != nil {
			return nil, err
		}
		freed.Add(freed, e.ProvidedAmount)

		quote := rm.quotes.BlockQuote(e.CreationBlock)
		reset, err := rm.providers.ResetDustProvider(p, quote)
		if err != nil {
			return nil, err
		}
		if !reset {
			if err := rm.providers.AddToPurgeQueue(p); err != nil {
				return nil, err
			}
		}
	}

	r.MarkPurged()
	r.Save(rm.tx)
	return freed, nil
}

// releaseHold returns an entry's tokens to the provider and the reserve and,
// for a removal provider, the matching owed satoshis.
func (rm *ReservationManager) releaseHold(p *state.Provider, e state.ReservationEntry) error {
	if err := p.SubtractReserved(e.ProvidedAmount); err != nil {
		return err
	}
	if err := rm.reserve.SubFromReservedLiquidity(e.ProvidedAmount); err != nil {
		return failure.ImpossibleState("releasing %s from reserved liquidity: %v", e.ProvidedAmount.Dec(), err)
	}
	if e.ProviderType != state.QueueRemoval {
		return nil
	}
	sats, err := removalHoldSatoshis(e, rm.quotes)
	if err != nil {
		return err
	}
	return rm.providers.Owed().SubReserved(p.ID, sats)
}

// removalHoldSatoshis is the owed amount a removal entry reserved when it
// was created.
func removalHoldSatoshis(e state.ReservationEntry, quotes state.QuoteHistory) (uint64, error) {
	quote := quotes.BlockQuote(e.CreationBlock)
	if quote.IsZero() {
		return 0, failure.ImpossibleState("no quote recorded at block %d", e.CreationBlock)
	}
	return fpmath.TokensToSatoshis(e.ProvidedAmount, quote, fpmath.RoundDown)
}
