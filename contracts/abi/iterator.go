package abi

import (
	errorsmod "cosmossdk.io/errors"

	"github.com/oasisprotocol/oasis-core-rofl/storage"
)

// MaxOpenIterators bounds how many concurrently open iterators a single
// call into a guest may hold, preventing unbounded host-side memory
// growth from a guest that opens scans without ever exhausting them.
const MaxOpenIterators = 32

// IteratorRegistry hands out stable handles for storage.Iterator values
// so they can cross the host/guest boundary as a plain uint64, since
// WASM has no notion of a live Go object reference. One registry is
// created per call into an instance (CallContext.Iterators) and
// discarded when the call returns.
type IteratorRegistry struct {
	next  uint64
	open  map[uint64]storage.Iterator
}

// NewIteratorRegistry creates an empty registry.
func NewIteratorRegistry() *IteratorRegistry {
	return &IteratorRegistry{open: make(map[uint64]storage.Iterator)}
}

// Open registers it and returns its handle, or an error if the registry
// is already at MaxOpenIterators.
func (r *IteratorRegistry) Open(it storage.Iterator) (uint64, error) {
	if len(r.open) >= MaxOpenIterators {
		return 0, errorsmod.Wrap(ErrHostFunctionFailed, "too many open iterators")
	}
	r.next++
	handle := r.next
	r.open[handle] = it
	return handle, nil
}

// Get returns the iterator registered under handle, or false if absent
// (already closed, or never opened — treated as a guest ABI violation
// by the caller).
func (r *IteratorRegistry) Get(handle uint64) (storage.Iterator, bool) {
	it, ok := r.open[handle]
	return it, ok
}

// Close releases the iterator registered under handle.
func (r *IteratorRegistry) Close(handle uint64) {
	if it, ok := r.open[handle]; ok {
		it.Close()
		delete(r.open, handle)
	}
}

// CloseAll releases every iterator still open at the end of a call.
func (r *IteratorRegistry) CloseAll() {
	for handle := range r.open {
		r.Close(handle)
	}
}
