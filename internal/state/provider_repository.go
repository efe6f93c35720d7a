package state

import (
	"bytes"
	"sort"

	"NativeSwap/internal/storage"
)

// ProviderRepository caches providers for a single call. Repeated lookups
// return the same *Provider so mutations made early in a call are visible
// later in it. A repository must not outlive the call that created it.
type ProviderRepository struct {
	tx       storage.Tx
	loaded   map[ProviderID]*Provider
	original map[ProviderID][]byte
}

func NewProviderRepository(tx storage.Tx) *ProviderRepository {
	return &ProviderRepository{
		tx:       tx,
		loaded:   make(map[ProviderID]*Provider),
		original: make(map[ProviderID][]byte),
	}
}

func providerKey(id ProviderID) []byte {
	return storage.Key(storage.PointerProvider, id.Bytes())
}

// Get loads the provider, creating a zero-valued one on first reference.
func (r *ProviderRepository) Get(id ProviderID) (*Provider, error) {
	if p, ok := r.loaded[id]; ok {
		return p, nil
	}
	raw := r.tx.Get(providerKey(id))
	p, err := decodeProvider(id, raw)
	if err != nil {
		return nil, err
	}
	r.loaded[id] = p
	r.original[id] = raw
	return p, nil
}

// Flush writes every provider whose record changed. Zeroed providers are
// deleted instead of stored.
func (r *ProviderRepository) Flush() int {
	ids := make([]ProviderID, 0, len(r.loaded))
	for id := range r.loaded {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })

	written := 0
	for _, id := range ids {
		p := r.loaded[id]
		enc := p.encode()
		empty := NewProvider(id).encode()
		orig := r.original[id]
		switch {
		case bytes.Equal(enc, empty):
			if orig != nil {
				r.tx.Delete(providerKey(id))
				written++
			}
			r.original[id] = nil
			continue
		case !bytes.Equal(enc, orig):
			r.tx.Set(providerKey(id), enc)
			written++
		}
		r.original[id] = enc
	}
	return written
}

// Len is the number of cached providers.
func (r *ProviderRepository) Len() int {
	return len(r.loaded)
}
