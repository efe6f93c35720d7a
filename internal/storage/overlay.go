package storage

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"sort"
)

// Overlay buffers every write of one engine call on top of a Reader.
// Nothing reaches the base store until Commit; Discard drops the lot.
type Overlay struct {
	base    Reader
	writes  map[string][]byte
	deleted map[string]bool
	err     error
}

func NewOverlay(base Reader) *Overlay {
	return &Overlay{
		base:    base,
		writes:  make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// Get returns the buffered value if any, otherwise the base value.
// A missing key yields (nil, nil).
func (o *Overlay) Get(key []byte) []byte {
	k := string(key)
	if o.deleted[k] {
		return nil
	}
	if v, ok := o.writes[k]; ok {
		return v
	}
	v, err := o.base.Get(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) && o.err == nil {
			o.err = err
		}
		return nil
	}
	return v
}

// Err returns the first base read failure seen by Get. The engine refuses
// to commit an overlay whose reads were incomplete.
func (o *Overlay) Err() error {
	return o.err
}

func (o *Overlay) Set(key, value []byte) {
	k := string(key)
	delete(o.deleted, k)
	o.writes[k] = append([]byte(nil), value...)
}

func (o *Overlay) Delete(key []byte) {
	k := string(key)
	delete(o.writes, k)
	o.deleted[k] = true
}

// Writes returns the buffered mutations sorted by key.
func (o *Overlay) Writes() []Write {
	out := make([]Write, 0, len(o.writes)+len(o.deleted))
	for k, v := range o.writes {
		out = append(out, Write{Key: []byte(k), Value: v})
	}
	for k := range o.deleted {
		out = append(out, Write{Key: []byte(k)})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Key, out[j].Key) < 0
	})
	return out
}

// Digest hashes the sorted write set.
func (o *Overlay) Digest() []byte {
	h := sha256.New()
	for _, w := range o.Writes() {
		h.Write(w.Key)
		if w.Value == nil {
			h.Write([]byte{0})
			continue
		}
		h.Write([]byte{1})
		h.Write(w.Value)
	}
	return h.Sum(nil)
}

// Commit writes the buffered mutations to store in one batch.
func (o *Overlay) Commit(store KVStore) error {
	if o.err != nil {
		return o.err
	}
	if len(o.writes) == 0 && len(o.deleted) == 0 {
		return nil
	}
	if err := store.WriteBatch(o.Writes()); err != nil {
		return err
	}
	o.Discard()
	return nil
}

// Discard drops every buffered write.
func (o *Overlay) Discard() {
	o.writes = make(map[string][]byte)
	o.deleted = make(map[string]bool)
}

// Size returns the number of buffered mutations.
func (o *Overlay) Size() int {
	return len(o.writes) + len(o.deleted)
}
