package storage

import (
	"encoding/binary"

	"github.com/holiman/uint256"
)

// Tx is the per-call view the typed stored values read and write through.
// *Overlay implements it.
type Tx interface {
	Get(key []byte) []byte
	Set(key, value []byte)
	Delete(key []byte)
}

// StoredU256 is a 256-bit scalar; absent reads as zero.
type StoredU256 struct {
	tx  Tx
	key []byte
}

func NewStoredU256(tx Tx, key []byte) *StoredU256 {
	return &StoredU256{tx: tx, key: key}
}

func (s *StoredU256) Get() *uint256.Int {
	return decodeU256(s.tx.Get(s.key))
}

func (s *StoredU256) Set(v *uint256.Int) {
	s.tx.Set(s.key, encodeU256(v))
}

// StoredU64 is a 64-bit scalar; absent reads as zero.
type StoredU64 struct {
	tx  Tx
	key []byte
}

func NewStoredU64(tx Tx, key []byte) *StoredU64 {
	return &StoredU64{tx: tx, key: key}
}

func (s *StoredU64) Get() uint64 {
	return decodeU64(s.tx.Get(s.key))
}

func (s *StoredU64) Set(v uint64) {
	s.tx.Set(s.key, encodeU64(v))
}

// StoredBool is a flag; absent reads as false.
type StoredBool struct {
	tx  Tx
	key []byte
}

func NewStoredBool(tx Tx, key []byte) *StoredBool {
	return &StoredBool{tx: tx, key: key}
}

func (s *StoredBool) Get() bool {
	return decodeBool(s.tx.Get(s.key))
}

func (s *StoredBool) Set(v bool) {
	s.tx.Set(s.key, encodeBool(v))
}

// StoredBytes is an opaque record; absent reads as nil.
type StoredBytes struct {
	tx  Tx
	key []byte
}

func NewStoredBytes(tx Tx, key []byte) *StoredBytes {
	return &StoredBytes{tx: tx, key: key}
}

func (s *StoredBytes) Get() []byte {
	return s.tx.Get(s.key)
}

func (s *StoredBytes) Set(v []byte) {
	s.tx.Set(s.key, v)
}

func (s *StoredBytes) Delete() {
	s.tx.Delete(s.key)
}

func encodeU256(v *uint256.Int) []byte {
	b := v.Bytes32()
	return b[:]
}

func decodeU256(b []byte) *uint256.Int {
	if len(b) == 0 {
		return new(uint256.Int)
	}
	return new(uint256.Int).SetBytes(b)
}

func encodeU64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func decodeU64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func encodeBool(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

func decodeBool(b []byte) bool {
	return len(b) == 1 && b[0] == 1
}
