package core

import (
	"NativeSwap/internal/observability"
	"container/list"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// IdempotencyChecker implements two-tier deduplication on transaction ids
type IdempotencyChecker struct {
	// Tier 1: In-memory LRU
	lru *IdempotencyLRU

	// Tier 2: Postgres (injected via interface)
	dbChecker DBIdempotencyChecker

	metrics *observability.Metrics
	logger  zerolog.Logger
}

// DBIdempotencyChecker is the interface for Postgres dedup lookup
type DBIdempotencyChecker interface {
	IsDuplicate(opType string, txID uuid.UUID) (bool, error)
}

func NewIdempotencyChecker(capacity int, dbChecker DBIdempotencyChecker, metrics *observability.Metrics) *IdempotencyChecker {
	return &IdempotencyChecker{
		lru:       NewIdempotencyLRU(capacity),
		dbChecker: dbChecker,
		metrics:   metrics,
		logger:    observability.NewLogger("idempotency"),
	}
}

func compositeKey(opType string, txID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", opType, txID)
}

// IsDuplicate checks if the transaction was already applied
func (ic *IdempotencyChecker) IsDuplicate(opType string, txID uuid.UUID) bool {
	key := compositeKey(opType, txID)

	if ic.lru.Contains(key) {
		ic.record(opType, "lru")
		return true
	}

	if ic.dbChecker != nil {
		isDup, err := ic.dbChecker.IsDuplicate(opType, txID)
		if err != nil {
			// a DB outage must not stall the engine; the unique
			// constraint on tx_id still rejects the write
			ic.logger.Warn().Err(err).Str("tx_id", txID.String()).Msg("tier-2 dedup lookup failed")
			ic.record(opType, "postgres_error")
			return false
		}
		if isDup {
			ic.record(opType, "postgres")
			ic.lru.Add(key)
			return true
		}
	}
	return false
}

// MarkProcessed adds the transaction to the LRU after commit
func (ic *IdempotencyChecker) MarkProcessed(opType string, txID uuid.UUID) {
	ic.lru.Add(compositeKey(opType, txID))
	if ic.metrics != nil {
		ic.metrics.DedupLRUSize.Set(float64(ic.lru.Size()))
	}
}

func (ic *IdempotencyChecker) record(opType, tier string) {
	if ic.metrics != nil {
		ic.metrics.Duplicates.WithLabelValues(opType, tier).Inc()
	}
}

// IdempotencyLRU is an LRU cache for idempotency keys.
// Not thread-safe; only the engine goroutine touches it.
type IdempotencyLRU struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List

	evictions int64
}

func NewIdempotencyLRU(capacity int) *IdempotencyLRU {
	return &IdempotencyLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		lruList:  list.New(),
	}
}

// Contains checks if key exists (promotes to front)
func (lru *IdempotencyLRU) Contains(key string) bool {
	elem, exists := lru.cache[key]
	if exists {
		lru.lruList.MoveToFront(elem)
	}
	return exists
}

// Add inserts a key (or promotes if exists)
func (lru *IdempotencyLRU) Add(key string) {
	if elem, exists := lru.cache[key]; exists {
		lru.lruList.MoveToFront(elem)
		return
	}
	lru.cache[key] = lru.lruList.PushFront(key)
	if lru.lruList.Len() > lru.capacity {
		lru.evictOldest()
	}
}

func (lru *IdempotencyLRU) evictOldest() {
	elem := lru.lruList.Back()
	if elem == nil {
		return
	}
	lru.lruList.Remove(elem)
	delete(lru.cache, elem.Value.(string))
	lru.evictions++
}

// WarmFromKeys loads composite keys, oldest first, so the newest end up
// most recently used.
func (lru *IdempotencyLRU) WarmFromKeys(keys []string) {
	for _, key := range keys {
		lru.Add(key)
	}
}

// Keys returns every key from least to most recently used.
func (lru *IdempotencyLRU) Keys() []string {
	out := make([]string, 0, lru.lruList.Len())
	for e := lru.lruList.Back(); e != nil; e = e.Prev() {
		out = append(out, e.Value.(string))
	}
	return out
}

// Size returns current number of entries
func (lru *IdempotencyLRU) Size() int {
	return lru.lruList.Len()
}

// Evictions returns total evictions
func (lru *IdempotencyLRU) Evictions() int64 {
	return lru.evictions
}
