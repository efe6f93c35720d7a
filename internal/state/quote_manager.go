package state

import (
	"NativeSwap/internal/storage"

	"github.com/holiman/uint256"
)

// QuoteHistory is the append-only block -> quote map of one token.
type QuoteHistory interface {
	BlockQuote(block uint64) *uint256.Int
	// SetBlockQuote records the quote for block unless one is already set.
	SetBlockQuote(block uint64, quote *uint256.Int) bool
}

// QuoteManager stores quote history under PointerQuoteHistory.
type QuoteManager struct {
	tx    storage.Tx
	token TokenID
}

func NewQuoteManager(tx storage.Tx, token TokenID) *QuoteManager {
	return &QuoteManager{tx: tx, token: token}
}

func (q *QuoteManager) slot(block uint64) *storage.StoredU256 {
	return storage.NewStoredU256(q.tx, storage.Key(storage.PointerQuoteHistory, q.token.Bytes(), storage.U64Suffix(block)))
}

// BlockQuote returns the recorded quote, zero when none was written.
func (q *QuoteManager) BlockQuote(block uint64) *uint256.Int {
	return q.slot(block).Get()
}

func (q *QuoteManager) SetBlockQuote(block uint64, quote *uint256.Int) bool {
	s := q.slot(block)
	if !s.Get().IsZero() {
		return false
	}
	s.Set(quote)
	return true
}

// MemoryQuoteHistory is an in-memory QuoteHistory.
type MemoryQuoteHistory map[uint64]*uint256.Int

func (m MemoryQuoteHistory) BlockQuote(block uint64) *uint256.Int {
	if q, ok := m[block]; ok {
		return q.Clone()
	}
	return new(uint256.Int)
}

func (m MemoryQuoteHistory) SetBlockQuote(block uint64, quote *uint256.Int) bool {
	if q, ok := m[block]; ok && !q.IsZero() {
		return false
	}
	m[block] = quote.Clone()
	return true
}

var (
	_ QuoteHistory = (*QuoteManager)(nil)
	_ QuoteHistory = MemoryQuoteHistory(nil)
)
