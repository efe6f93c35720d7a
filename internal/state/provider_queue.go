package state

import (
	"NativeSwap/internal/failure"
	fpmath "NativeSwap/internal/math"
	"NativeSwap/internal/storage"

	"github.com/holiman/uint256"
)

// ProviderQueue is one FIFO of provider ids. Slots keep their absolute index
// for the lifetime of the queue; a removed provider leaves a zero slot that
// CleanUp eventually shifts away.
type ProviderQueue struct {
	kind   QueueKind
	ids    *storage.StoredArray[*uint256.Int]
	cursor *storage.StoredU64

	previous uint64
	current  uint64
}

func queuePointer(kind QueueKind) storage.Pointer {
	switch kind {
	case QueuePriority:
		return storage.PointerPriorityQueue
	case QueueRemoval:
		return storage.PointerRemovalQueue
	default:
		return storage.PointerNormalQueue
	}
}

func NewProviderQueue(tx storage.Tx, token TokenID, kind QueueKind, maxLen uint64) *ProviderQueue {
	q := &ProviderQueue{
		kind:   kind,
		ids:    storage.NewStoredArray(tx, storage.Key(queuePointer(kind), token.Bytes()), storage.U256Codec, maxLen, kind.String()+" queue"),
		cursor: storage.NewStoredU64(tx, storage.Key(storage.PointerQueueCursor, token.Bytes(), []byte{byte(kind)})),
	}
	q.previous = q.cursor.Get()
	q.current = max(q.previous, q.ids.Start())
	return q
}

func (q *ProviderQueue) Kind() QueueKind { return q.kind }

func (q *ProviderQueue) Len() uint64 { return q.ids.Len() }

func (q *ProviderQueue) Start() uint64 { return q.ids.Start() }

func (q *ProviderQueue) End() uint64 { return q.ids.End() }

// Cursor is the first slot the next traversal looks at.
func (q *ProviderQueue) Cursor() uint64 { return q.current }

// Add appends the provider and records its membership.
func (q *ProviderQueue) Add(p *Provider) (uint32, error) {
	if _, queued := p.Membership.Index(); queued {
		return 0, failure.ImpossibleState("provider %s already in %s queue", p.ID, p.Membership.Kind())
	}
	idx, err := q.ids.Push(p.ID.U256())
	if err != nil {
		return 0, err
	}
	if idx >= uint64(IndexNotSet) {
		return 0, failure.Capacity("%s queue index space exhausted", q.kind)
	}
	p.Membership = Queued(q.kind, uint32(idx))
	return uint32(idx), nil
}

// Remove clears the provider's slot and membership.
func (q *ProviderQueue) Remove(p *Provider) error {
	idx, queued := p.Membership.Index()
	if !queued || p.Membership.Kind() != q.kind {
		return failure.ImpossibleState("provider %s is not in %s queue", p.ID, q.kind)
	}
	id, err := q.ProviderAt(idx)
	if err != nil {
		return err
	}
	if id != p.ID {
		return failure.ImpossibleState("%s queue slot %d holds %s, not %s", q.kind, idx, id, p.ID)
	}
	if err := q.ids.Set(uint64(idx), new(uint256.Int)); err != nil {
		return err
	}
	p.Membership = NotQueued()
	return nil
}

// ProviderAt returns the id in slot idx; a zero id means the slot was vacated.
func (q *ProviderQueue) ProviderAt(idx uint32) (ProviderID, error) {
	v, err := q.ids.Get(uint64(idx))
	if err != nil {
		return ProviderID{}, err
	}
	return ProviderIDFromU256(v), nil
}

// Next walks from the cursor to the first provider with tradable inventory.
// The cursor stops on the returned provider since it may still have some
// left after this reservation.
func (q *ProviderQueue) Next(repo *ProviderRepository, quote *uint256.Int, minSatoshis uint64) (*Provider, error) {
	q.current = max(q.current, q.ids.Start())
	end := q.ids.End()
	for ; q.current < end; q.current++ {
		id, err := q.ProviderAt(uint32(q.current))
		if err != nil {
			return nil, err
		}
		if id.IsZero() {
			continue
		}
		p, err := repo.Get(id)
		if err != nil {
			return nil, err
		}
		if !p.Membership.Is(q.kind, uint32(q.current)) {
			return nil, failure.ImpossibleState("%s queue slot %d: provider %s records membership %s",
				q.kind, q.current, id, p.Membership.Kind())
		}
		ok, err := hasTradableLiquidity(p, quote, minSatoshis)
		if err != nil {
			return nil, err
		}
		if ok {
			return p, nil
		}
	}
	return nil, nil
}

// Rewind moves the cursor back to idx when the traversal already passed it.
func (q *ProviderQueue) Rewind(idx uint32) {
	if uint64(idx) < q.current {
		q.current = max(uint64(idx), q.ids.Start())
	}
}

// CleanUp shifts away vacated leading slots.
func (q *ProviderQueue) CleanUp() error {
	for q.ids.Len() > 0 {
		v, err := q.ids.Get(q.ids.Start())
		if err != nil {
			return err
		}
		if !v.IsZero() {
			break
		}
		if _, err := q.ids.Shift(); err != nil {
			return err
		}
	}
	q.current = max(q.current, q.ids.Start())
	return nil
}

// RestoreCurrentIndex rolls the cursor back to where this call found it.
func (q *ProviderQueue) RestoreCurrentIndex() {
	q.current = max(q.previous, q.ids.Start())
}

// ResetStartingIndex rewinds the cursor to the head so freed inventory
// behind it is seen again.
func (q *ProviderQueue) ResetStartingIndex() {
	q.current = q.ids.Start()
}

// Save persists the cursor.
func (q *ProviderQueue) Save() {
	if q.current != q.cursor.Get() {
		q.cursor.Set(q.current)
	}
}

// hasTradableLiquidity reports whether p can back a new reservation.
func hasTradableLiquidity(p *Provider, quote *uint256.Int, minSatoshis uint64) (bool, error) {
	if !p.Active {
		return false, nil
	}
	avail, err := p.Available()
	if err != nil {
		return false, err
	}
	if avail.IsZero() {
		return false, nil
	}
	if quote == nil || quote.IsZero() {
		return true, nil
	}
	sats, err := fpmath.TokensToSatoshis(avail, quote, fpmath.RoundDown)
	if err != nil {
		return false, err
	}
	return sats >= minSatoshis, nil
}

// PurgeQueue lists providers whose holds were released without being
// consumed. They are offered again before the main queues.
type PurgeQueue struct {
	kind QueueKind
	ids  *storage.StoredArray[*uint256.Int]
}

func purgePointer(kind QueueKind) storage.Pointer {
	switch kind {
	case QueuePriority:
		return storage.PointerPriorityPurgeQueue
	case QueueRemoval:
		return storage.PointerRemovalPurgeQueue
	default:
		return storage.PointerNormalPurgeQueue
	}
}

func NewPurgeQueue(tx storage.Tx, token TokenID, kind QueueKind, maxLen uint64) *PurgeQueue {
	return &PurgeQueue{
		kind: kind,
		ids:  storage.NewStoredArray(tx, storage.Key(purgePointer(kind), token.Bytes()), storage.U256Codec, maxLen, kind.String()+" purge queue"),
	}
}

func (q *PurgeQueue) Len() uint64 { return q.ids.Len() }

func (q *PurgeQueue) Push(p *Provider) error {
	if p.Purged {
		return nil
	}
	if _, err := q.ids.Push(p.ID.U256()); err != nil {
		return err
	}
	p.Purged = true
	return nil
}

// Next returns the head provider if it can still trade, dropping heads
// that cannot.
func (q *PurgeQueue) Next(repo *ProviderRepository, quote *uint256.Int, minSatoshis uint64) (*Provider, error) {
	for q.ids.Len() > 0 {
		v, err := q.ids.Get(q.ids.Start())
		if err != nil {
			return nil, err
		}
		p, err := repo.Get(ProviderIDFromU256(v))
		if err != nil {
			return nil, err
		}
		if p.Membership.Kind() == q.kind {
			ok, err := hasTradableLiquidity(p, quote, minSatoshis)
			if err != nil {
				return nil, err
			}
			if ok {
				return p, nil
			}
		}
		if _, err := q.ids.Shift(); err != nil {
			return nil, err
		}
		p.Purged = false
	}
	return nil, nil
}
