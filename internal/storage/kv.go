package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned by Reader.Get for a missing key.
var ErrNotFound = errors.New("key not found")

// Reader is the read side of a key-value store.
type Reader interface {
	Get(key []byte) ([]byte, error)
}

// KVStore is the persistent key-value collaborator. Writes from one engine
// call are handed over as a single batch so they land atomically.
type KVStore interface {
	Reader
	WriteBatch(writes []Write) error
	Snapshot() (ReadSnapshot, error)
	Close() error
}

// ReadSnapshot is a consistent read-only view of the store.
type ReadSnapshot interface {
	Reader
	Release()
}

// Write is one buffered mutation. A nil Value deletes the key.
type Write struct {
	Key   []byte
	Value []byte
}

// --- In-Memory store (for tests) ---

type MemStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (m *MemStore) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemStore) WriteBatch(writes []Write) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range writes {
		if w.Value == nil {
			delete(m.data, string(w.Key))
			continue
		}
		m.data[string(w.Key)] = append([]byte(nil), w.Value...)
	}
	return nil
}

// Snapshot copies the map; fine for test-sized data.
func (m *MemStore) Snapshot() (ReadSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := make(map[string][]byte, len(m.data))
	for k, v := range m.data {
		cp[k] = v
	}
	return &memSnapshot{data: cp}, nil
}

func (m *MemStore) Close() error { return nil }

// Len returns the number of stored keys.
func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Keys returns every key with the given prefix, sorted.
func (m *MemStore) Keys(prefix []byte) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for k := range m.data {
		if strings.HasPrefix(k, string(prefix)) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

type memSnapshot struct {
	data map[string][]byte
}

func (s *memSnapshot) Get(key []byte) ([]byte, error) {
	v, ok := s.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *memSnapshot) Release() {}

// --- Persistent store ---

// LevelStore is a persistent KVStore backed by LevelDB.
type LevelStore struct {
	db *leveldb.DB
}

// OpenLevelStore creates or opens a LevelDB database at path.
func OpenLevelStore(path string) (*LevelStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("leveldb path required")
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &LevelStore{db: db}, nil
}

func (l *LevelStore) Get(key []byte) ([]byte, error) {
	v, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return v, err
}

// WriteBatch applies every write in one LevelDB batch.
func (l *LevelStore) WriteBatch(writes []Write) error {
	batch := new(leveldb.Batch)
	for _, w := range writes {
		if w.Value == nil {
			batch.Delete(w.Key)
		} else {
			batch.Put(w.Key, w.Value)
		}
	}
	return l.db.Write(batch, nil)
}

func (l *LevelStore) Snapshot() (ReadSnapshot, error) {
	snap, err := l.db.GetSnapshot()
	if err != nil {
		return nil, fmt.Errorf("leveldb snapshot: %w", err)
	}
	return &levelSnapshot{snap: snap}, nil
}

// CountPrefix returns the number of keys under prefix (used by metrics).
func (l *LevelStore) CountPrefix(prefix []byte) int {
	it := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()
	n := 0
	for it.Next() {
		n++
	}
	return n
}

func (l *LevelStore) Close() error {
	return l.db.Close()
}

type levelSnapshot struct {
	snap *leveldb.Snapshot
}

func (s *levelSnapshot) Get(key []byte) ([]byte, error) {
	v, err := s.snap.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return v, err
}

func (s *levelSnapshot) Release() {
	s.snap.Release()
}
