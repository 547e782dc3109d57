package storage

import "golang.org/x/crypto/sha3"

// HashedStore stores each value under H(key) to bound key length, at the
// cost of losing meaningful ordered iteration over the plaintext keys
// (spec.md §4.1). It is used wherever caller-supplied keys may exceed a
// store's key-size budget.
type HashedStore struct {
	inner Store
}

// NewHashedStore wraps inner so every key is hashed before use.
func NewHashedStore(inner Store) *HashedStore {
	return &HashedStore{inner: inner}
}

func hashKey(key []byte) []byte {
	sum := sha3.Sum256(key)
	return sum[:]
}

// Get implements Store.
func (h *HashedStore) Get(key []byte) ([]byte, bool) {
	return h.inner.Get(hashKey(key))
}

// Insert implements Store.
func (h *HashedStore) Insert(key, value []byte) {
	h.inner.Insert(hashKey(key), value)
}

// Remove implements Store.
func (h *HashedStore) Remove(key []byte) {
	h.inner.Remove(hashKey(key))
}

// NewIterator implements Store. Iteration ranges over hashed keys, which
// carry no semantic ordering relative to the plaintext keys; callers
// needing meaningful ordering must not rely on a HashedStore layer.
func (h *HashedStore) NewIterator(start, end []byte) Iterator {
	return h.inner.NewIterator(start, end)
}
