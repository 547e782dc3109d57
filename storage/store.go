// Package storage implements the layered key/value store stack of
// spec.md §4.1 (C1): a plain mapping from byte keys to byte values with
// lexicographically ordered iteration, and a set of composable layers
// (PrefixStore, HashedStore, TypedStore, ConfidentialStore, OverlayStore)
// that each wrap an inner Store and re-expose the same interface.
//
// The underlying Merkle key/value store is an external collaborator
// (spec.md §1); this package only defines the Store interface it is
// consumed through, plus an in-memory MemStore reference implementation
// used by tests and by callers that embed the runtime without a real
// Merkle backend.
package storage

// Store is the mapping every layer wraps and re-exposes. Ordering is
// lexicographic on the encoded (post-layer) key bytes.
type Store interface {
	// Get returns the value stored under key, or ok=false if absent.
	Get(key []byte) (value []byte, ok bool)
	// Insert writes value under key, replacing any existing value.
	Insert(key, value []byte)
	// Remove deletes key. It is not an error for key to be absent.
	Remove(key []byte)
	// NewIterator returns an Iterator ranging over [start, end) in
	// lexicographic key order. A nil end means unbounded.
	NewIterator(start, end []byte) Iterator
}

// Iterator walks a Store's keys in lexicographic order.
type Iterator interface {
	// Rewind resets the iterator to the first key in range.
	Rewind()
	// Seek positions the iterator at the first key >= target.
	Seek(target []byte)
	// Next advances the iterator by one key.
	Next()
	// IsValid reports whether the iterator is positioned at a key.
	IsValid() bool
	// Key returns the current key. Valid only while IsValid().
	Key() []byte
	// Value returns the current value. Valid only while IsValid().
	Value() []byte
	// Close releases iterator resources.
	Close()
}
