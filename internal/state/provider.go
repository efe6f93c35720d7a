package state

import (
	"encoding/binary"

	"NativeSwap/internal/failure"
	fpmath "NativeSwap/internal/math"

	"github.com/holiman/uint256"
)

// QueueKind names the queue a provider sits in. It doubles as the provider
// type recorded on reservation entries.
type QueueKind uint8

const (
	QueueNone QueueKind = iota
	QueuePriority
	QueueNormal
	QueueRemoval
)

func (k QueueKind) String() string {
	switch k {
	case QueuePriority:
		return "priority"
	case QueueNormal:
		return "normal"
	case QueueRemoval:
		return "removal"
	default:
		return "none"
	}
}

// QueueMembership is the single queue slot a provider may occupy.
// The zero value is "not queued".
type QueueMembership struct {
	kind  QueueKind
	index uint32
}

func NotQueued() QueueMembership {
	return QueueMembership{kind: QueueNone, index: IndexNotSet}
}

func Queued(kind QueueKind, index uint32) QueueMembership {
	return QueueMembership{kind: kind, index: index}
}

func (m QueueMembership) Kind() QueueKind { return m.kind }

// Index returns the slot and whether the provider is queued at all.
func (m QueueMembership) Index() (uint32, bool) {
	if m.kind == QueueNone {
		return IndexNotSet, false
	}
	return m.index, true
}

// Is reports whether the membership is exactly (kind, index).
func (m QueueMembership) Is(kind QueueKind, index uint32) bool {
	return m.kind == kind && m.kind != QueueNone && m.index == index
}

const (
	flagActive uint16 = 1 << iota
	flagPriority
	flagPendingRemoval
	flagLiquidityProvider
	flagProvisionAllowed
	flagPurged
	flagFromRemovalQueue
	flagInitialProvider
)

const providerRecordVersion byte = 1

// Provider is one owner's listing for one token.
type Provider struct {
	ID       ProviderID
	Receiver string

	liquidity *uint256.Int
	reserved  *uint256.Int
	provided  *uint256.Int

	Active                    bool
	Priority                  bool
	PendingRemoval            bool
	LiquidityProvider         bool
	LiquidityProvisionAllowed bool
	Purged                    bool
	FromRemovalQueue          bool
	InitialProvider           bool

	Membership QueueMembership

	// PendingCredit is listed inventory not yet credited to the virtual pool.
	PendingCredit *uint256.Int
}

// NewProvider returns the zero-valued provider every id starts as.
func NewProvider(id ProviderID) *Provider {
	return &Provider{
		ID:            id,
		liquidity:     new(uint256.Int),
		reserved:      new(uint256.Int),
		provided:      new(uint256.Int),
		PendingCredit: new(uint256.Int),
		Membership:    NotQueued(),
	}
}

func (p *Provider) Liquidity() *uint256.Int { return p.liquidity.Clone() }

func (p *Provider) Reserved() *uint256.Int { return p.reserved.Clone() }

func (p *Provider) Provided() *uint256.Int { return p.provided.Clone() }

// Available is liquidity minus reserved.
func (p *Provider) Available() (*uint256.Int, error) {
	if p.reserved.Gt(p.liquidity) {
		return nil, failure.ImpossibleState("provider %s reserved %s exceeds liquidity %s",
			p.ID, p.reserved.Dec(), p.liquidity.Dec())
	}
	return new(uint256.Int).Sub(p.liquidity, p.reserved), nil
}

func (p *Provider) AddLiquidity(amount *uint256.Int) error {
	v, err := fpmath.Add128(p.liquidity, amount)
	if err != nil {
		return err
	}
	p.liquidity = v
	return nil
}

func (p *Provider) SubtractLiquidity(amount *uint256.Int) error {
	v, err := fpmath.Sub(p.liquidity, amount)
	if err != nil {
		return err
	}
	if p.reserved.Gt(v) {
		return failure.ImpossibleState("provider %s liquidity %s would drop below reserved %s",
			p.ID, v.Dec(), p.reserved.Dec())
	}
	p.liquidity = v
	return nil
}

func (p *Provider) AddReserved(amount *uint256.Int) error {
	v, err := fpmath.Add128(p.reserved, amount)
	if err != nil {
		return err
	}
	if v.Gt(p.liquidity) {
		return failure.ImpossibleState("provider %s reserved %s would exceed liquidity %s",
			p.ID, v.Dec(), p.liquidity.Dec())
	}
	p.reserved = v
	return nil
}

func (p *Provider) SubtractReserved(amount *uint256.Int) error {
	v, err := fpmath.Sub(p.reserved, amount)
	if err != nil {
		return failure.ImpossibleState("provider %s releasing %s with only %s reserved",
			p.ID, amount.Dec(), p.reserved.Dec())
	}
	p.reserved = v
	return nil
}

func (p *Provider) AddProvided(amount *uint256.Int) error {
	v, err := fpmath.Add128(p.provided, amount)
	if err != nil {
		return err
	}
	p.provided = v
	return nil
}

// Reset zeroes the listing. Identity survives.
func (p *Provider) Reset() {
	id := p.ID
	*p = *NewProvider(id)
}

// IsDust reports whether the unreserved remainder is worth less than
// minSatoshis at quote.
func (p *Provider) IsDust(quote *uint256.Int, minSatoshis uint64) (bool, error) {
	if !p.reserved.IsZero() {
		return false, nil
	}
	if p.liquidity.IsZero() {
		return true, nil
	}
	sats, err := fpmath.TokensToSatoshis(p.liquidity, quote, fpmath.RoundDown)
	if err != nil {
		return false, err
	}
	return sats < minSatoshis, nil
}

func (p *Provider) flags() uint16 {
	var f uint16
	set := func(on bool, bit uint16) {
		if on {
			f |= bit
		}
	}
	set(p.Active, flagActive)
	set(p.Priority, flagPriority)
	set(p.PendingRemoval, flagPendingRemoval)
	set(p.LiquidityProvider, flagLiquidityProvider)
	set(p.LiquidityProvisionAllowed, flagProvisionAllowed)
	set(p.Purged, flagPurged)
	set(p.FromRemovalQueue, flagFromRemovalQueue)
	set(p.InitialProvider, flagInitialProvider)
	return f
}

func (p *Provider) setFlags(f uint16) {
	p.Active = f&flagActive != 0
	p.Priority = f&flagPriority != 0
	p.PendingRemoval = f&flagPendingRemoval != 0
	p.LiquidityProvider = f&flagLiquidityProvider != 0
	p.LiquidityProvisionAllowed = f&flagProvisionAllowed != 0
	p.Purged = f&flagPurged != 0
	p.FromRemovalQueue = f&flagFromRemovalQueue != 0
	p.InitialProvider = f&flagInitialProvider != 0
}

// Layout: version | liquidity 16 | reserved 16 | provided 16 | listed 16 |
// flags 2 | queue kind 1 | queue index 4 | receiver len 2 | receiver.
const providerFixedLen = 1 + 16*4 + 2 + 1 + 4 + 2

func (p *Provider) encode() []byte {
	out := make([]byte, providerFixedLen, providerFixedLen+len(p.Receiver))
	out[0] = providerRecordVersion
	off := 1
	for _, v := range []*uint256.Int{p.liquidity, p.reserved, p.provided, p.PendingCredit} {
		b := v.Bytes32()
		copy(out[off:off+16], b[16:])
		off += 16
	}
	binary.BigEndian.PutUint16(out[off:], p.flags())
	off += 2
	out[off] = byte(p.Membership.kind)
	off++
	binary.BigEndian.PutUint32(out[off:], p.Membership.index)
	off += 4
	binary.BigEndian.PutUint16(out[off:], uint16(len(p.Receiver)))
	return append(out, p.Receiver...)
}

func decodeProvider(id ProviderID, b []byte) (*Provider, error) {
	p := NewProvider(id)
	if len(b) == 0 {
		return p, nil
	}
	if len(b) < providerFixedLen || b[0] != providerRecordVersion {
		return nil, failure.ImpossibleState("provider %s: malformed record (%d bytes)", id, len(b))
	}
	off := 1
	vals := make([]*uint256.Int, 4)
	for i := range vals {
		vals[i] = new(uint256.Int).SetBytes(b[off : off+16])
		off += 16
	}
	p.liquidity, p.reserved, p.provided, p.PendingCredit = vals[0], vals[1], vals[2], vals[3]
	p.setFlags(binary.BigEndian.Uint16(b[off:]))
	off += 2
	kind := QueueKind(b[off])
	off++
	index := binary.BigEndian.Uint32(b[off:])
	off += 4
	if kind == QueueNone {
		p.Membership = NotQueued()
	} else {
		p.Membership = Queued(kind, index)
	}
	n := int(binary.BigEndian.Uint16(b[off:]))
	off += 2
	if len(b) != off+n {
		return nil, failure.ImpossibleState("provider %s: receiver length mismatch", id)
	}
	p.Receiver = string(b[off:])
	return p, nil
}

// AddPendingCredit records listed inventory to credit on activation.
func (p *Provider) AddPendingCredit(amount *uint256.Int) error {
	v, err := fpmath.Add128(p.PendingCredit, amount)
	if err != nil {
		return err
	}
	p.PendingCredit = v
	return nil
}

// TakePendingCredit returns and clears the pending credit.
func (p *Provider) TakePendingCredit() *uint256.Int {
	v := p.PendingCredit
	p.PendingCredit = new(uint256.Int)
	return v
}
