package storage

import (
	"path/filepath"
	"testing"

	"NativeSwap/internal/failure"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlay_BuffersUntilCommit(t *testing.T) {
	store := NewMemStore()
	o := NewOverlay(store)

	o.Set([]byte("a"), []byte{1})
	assert.Equal(t, []byte{1}, o.Get([]byte("a")))
	_, err := store.Get([]byte("a"))
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, o.Commit(store))
	v, err := store.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, v)
	assert.Equal(t, 0, o.Size())
}

func TestOverlay_DiscardDropsWrites(t *testing.T) {
	store := NewMemStore()
	require.NoError(t, store.WriteBatch([]Write{{Key: []byte("k"), Value: []byte("base")}}))

	o := NewOverlay(store)
	o.Set([]byte("k"), []byte("changed"))
	o.Delete([]byte("k"))
	assert.Nil(t, o.Get([]byte("k")))

	o.Discard()
	assert.Equal(t, []byte("base"), o.Get([]byte("k")))
}

func TestOverlay_DigestIsOrderIndependent(t *testing.T) {
	a := NewOverlay(NewMemStore())
	a.Set([]byte("x"), []byte{1})
	a.Set([]byte("y"), []byte{2})

	b := NewOverlay(NewMemStore())
	b.Set([]byte("y"), []byte{2})
	b.Set([]byte("x"), []byte{1})

	assert.Equal(t, a.Digest(), b.Digest())
}

func TestStoredScalars(t *testing.T) {
	o := NewOverlay(NewMemStore())

	u := NewStoredU256(o, Key(PointerLiquidity, []byte("tok")))
	assert.True(t, u.Get().IsZero())
	u.Set(uint256.NewInt(42))
	assert.Equal(t, uint64(42), u.Get().Uint64())

	n := NewStoredU64(o, Key(PointerLastPurgedBlock))
	n.Set(7)
	assert.Equal(t, uint64(7), n.Get())

	f := NewStoredBool(o, Key(PointerPoolCreated))
	assert.False(t, f.Get())
	f.Set(true)
	assert.True(t, f.Get())
}

func TestStoredArray_PushShiftKeepsAbsoluteIndexes(t *testing.T) {
	o := NewOverlay(NewMemStore())
	arr := NewStoredArray(o, Key(PointerNormalQueue, []byte("tok")), U64Codec, 100, "queue")

	for i := uint64(0); i < 5; i++ {
		idx, err := arr.Push(i * 10)
		require.NoError(t, err)
		assert.Equal(t, i, idx)
	}

	require.NoError(t, arr.ShiftN(2))
	assert.Equal(t, uint64(2), arr.Start())
	assert.Equal(t, uint64(3), arr.Len())

	v, err := arr.Get(3)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), v)

	_, err = arr.Get(1)
	assert.Equal(t, failure.KindImpossibleState, failure.KindOf(err))

	head, err := arr.Shift()
	require.NoError(t, err)
	assert.Equal(t, uint64(20), head)

	idx, err := arr.Push(99)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), idx)
}

func TestStoredArray_Capacity(t *testing.T) {
	o := NewOverlay(NewMemStore())
	arr := NewStoredArray(o, Key(PointerBlockReservationFlags), BoolCodec, 2, "flags")

	_, err := arr.Push(true)
	require.NoError(t, err)
	_, err = arr.Push(false)
	require.NoError(t, err)
	_, err = arr.Push(true)
	assert.Equal(t, failure.KindCapacity, failure.KindOf(err))
}

func TestStoredArray_Clear(t *testing.T) {
	o := NewOverlay(NewMemStore())
	arr := NewStoredArray(o, Key(PointerBlockReservationIDs), U256Codec, 10, "ids")
	_, _ = arr.Push(uint256.NewInt(1))
	_, _ = arr.Push(uint256.NewInt(2))

	arr.Clear()
	assert.Equal(t, uint64(0), arr.Len())
	idx, err := arr.Push(uint256.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), idx)
}

func TestLevelStore_BatchAndSnapshot(t *testing.T) {
	store, err := OpenLevelStore(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	defer store.Close()

	o := NewOverlay(store)
	o.Set([]byte("k1"), []byte("v1"))
	o.Set([]byte("k2"), []byte("v2"))
	require.NoError(t, o.Commit(store))

	snap, err := store.Snapshot()
	require.NoError(t, err)
	defer snap.Release()

	o2 := NewOverlay(store)
	o2.Delete([]byte("k1"))
	require.NoError(t, o2.Commit(store))

	v, err := snap.Get([]byte("k1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v)

	_, err = store.Get([]byte("k1"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, store.CountPrefix([]byte("k")))
}
