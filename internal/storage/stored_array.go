package storage

import (
	"encoding/binary"

	"NativeSwap/internal/failure"

	"github.com/holiman/uint256"
)

// Codec converts array elements to and from their stored bytes.
type Codec[T any] struct {
	Encode func(T) []byte
	Decode func([]byte) T
}

var (
	U256Codec = Codec[*uint256.Int]{Encode: encodeU256, Decode: decodeU256}
	U64Codec  = Codec[uint64]{Encode: encodeU64, Decode: decodeU64}
	BoolCodec = Codec[bool]{Encode: encodeBool, Decode: decodeBool}
)

var metaSuffix = []byte{0xff}

// StoredArray is a growable array addressed by absolute index. Shift drops
// the head without renumbering, so indexes handed out by Push stay valid
// until the element is shifted away.
type StoredArray[T any] struct {
	tx     Tx
	base   []byte
	codec  Codec[T]
	maxLen uint64
	name   string
}

func NewStoredArray[T any](tx Tx, base []byte, codec Codec[T], maxLen uint64, name string) *StoredArray[T] {
	return &StoredArray[T]{tx: tx, base: base, codec: codec, maxLen: maxLen, name: name}
}

func (a *StoredArray[T]) metaKey() []byte {
	return append(append([]byte(nil), a.base...), metaSuffix...)
}

func (a *StoredArray[T]) elemKey(i uint64) []byte {
	return append(append([]byte(nil), a.base...), U64Suffix(i)...)
}

func (a *StoredArray[T]) meta() (start, length uint64) {
	b := a.tx.Get(a.metaKey())
	if len(b) != 16 {
		return 0, 0
	}
	return binary.BigEndian.Uint64(b[:8]), binary.BigEndian.Uint64(b[8:])
}

func (a *StoredArray[T]) setMeta(start, length uint64) {
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], start)
	binary.BigEndian.PutUint64(b[8:], length)
	a.tx.Set(a.metaKey(), b[:])
}

// Start is the absolute index of the first live element.
func (a *StoredArray[T]) Start() uint64 {
	s, _ := a.meta()
	return s
}

// Len is the number of live elements.
func (a *StoredArray[T]) Len() uint64 {
	_, l := a.meta()
	return l
}

// End is one past the absolute index of the last element.
func (a *StoredArray[T]) End() uint64 {
	s, l := a.meta()
	return s + l
}

func (a *StoredArray[T]) inRange(i uint64) bool {
	s, l := a.meta()
	return i >= s && i < s+l
}

func (a *StoredArray[T]) Get(i uint64) (T, error) {
	if !a.inRange(i) {
		var zero T
		return zero, failure.ImpossibleState("%s: index %d out of range [%d,%d)", a.name, i, a.Start(), a.End())
	}
	return a.codec.Decode(a.tx.Get(a.elemKey(i))), nil
}

func (a *StoredArray[T]) Set(i uint64, v T) error {
	if !a.inRange(i) {
		return failure.ImpossibleState("%s: index %d out of range [%d,%d)", a.name, i, a.Start(), a.End())
	}
	a.tx.Set(a.elemKey(i), a.codec.Encode(v))
	return nil
}

// Push appends v and returns its absolute index.
func (a *StoredArray[T]) Push(v T) (uint64, error) {
	s, l := a.meta()
	if s+l >= a.maxLen {
		return 0, failure.Capacity("%s is full (%d)", a.name, a.maxLen)
	}
	idx := s + l
	a.tx.Set(a.elemKey(idx), a.codec.Encode(v))
	a.setMeta(s, l+1)
	return idx, nil
}

// Shift removes and returns the head element.
func (a *StoredArray[T]) Shift() (T, error) {
	s, l := a.meta()
	var zero T
	if l == 0 {
		return zero, failure.ImpossibleState("%s: shift on empty array", a.name)
	}
	v := a.codec.Decode(a.tx.Get(a.elemKey(s)))
	a.tx.Delete(a.elemKey(s))
	a.setMeta(s+1, l-1)
	return v, nil
}

// ShiftN drops the first n elements.
func (a *StoredArray[T]) ShiftN(n uint64) error {
	s, l := a.meta()
	if n > l {
		return failure.ImpossibleState("%s: shift %d of %d elements", a.name, n, l)
	}
	for i := uint64(0); i < n; i++ {
		a.tx.Delete(a.elemKey(s + i))
	}
	a.setMeta(s+n, l-n)
	return nil
}

// Clear deletes every element and the metadata.
func (a *StoredArray[T]) Clear() {
	s, l := a.meta()
	for i := s; i < s+l; i++ {
		a.tx.Delete(a.elemKey(i))
	}
	a.tx.Delete(a.metaKey())
}
