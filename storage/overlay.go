package storage

import (
	"bytes"
	"sort"
)

// OverlayStore is a transactional frame that buffers writes and deletion
// tombstones in memory, forwarding reads through to the parent on a
// local miss, per spec.md §4.1. Commit flushes the buffer into the
// parent; Rollback discards it. An OverlayStore is itself a Store, so
// overlays compose: a transaction within a transaction is just another
// OverlayStore wrapping the first.
type OverlayStore struct {
	parent    Store
	writes    map[string][]byte
	tombstone map[string]struct{}
}

// NewOverlayStore pushes a new transactional frame on top of parent.
func NewOverlayStore(parent Store) *OverlayStore {
	return &OverlayStore{
		parent:    parent,
		writes:    make(map[string][]byte),
		tombstone: make(map[string]struct{}),
	}
}

// Get implements Store: local writes and tombstones shadow the parent.
func (o *OverlayStore) Get(key []byte) ([]byte, bool) {
	k := string(key)
	if _, deleted := o.tombstone[k]; deleted {
		return nil, false
	}
	if v, ok := o.writes[k]; ok {
		out := make([]byte, len(v))
		copy(out, v)
		return out, true
	}
	return o.parent.Get(key)
}

// Insert implements Store.
func (o *OverlayStore) Insert(key, value []byte) {
	k := string(key)
	delete(o.tombstone, k)
	v := make([]byte, len(value))
	copy(v, value)
	o.writes[k] = v
}

// Remove implements Store, recording a tombstone so the parent's value
// (if any) does not resurface through this frame.
func (o *OverlayStore) Remove(key []byte) {
	k := string(key)
	delete(o.writes, k)
	o.tombstone[k] = struct{}{}
}

// NewIterator implements Store, merging local writes/tombstones over the
// parent's range.
func (o *OverlayStore) NewIterator(start, end []byte) Iterator {
	parentIt := o.parent.NewIterator(start, end)

	type entry struct {
		key     []byte
		value   []byte
		deleted bool
	}
	local := make([]entry, 0, len(o.writes)+len(o.tombstone))
	for k, v := range o.writes {
		kb := []byte(k)
		if inRange(kb, start, end) {
			local = append(local, entry{key: kb, value: v})
		}
	}
	for k := range o.tombstone {
		kb := []byte(k)
		if inRange(kb, start, end) {
			local = append(local, entry{key: kb, deleted: true})
		}
	}
	sort.Slice(local, func(i, j int) bool { return bytes.Compare(local[i].key, local[j].key) < 0 })

	merged := make([]kv, 0)
	localIdx := 0
	for parentIt.Rewind(); parentIt.IsValid(); parentIt.Next() {
		pk := parentIt.Key()
		for localIdx < len(local) && bytes.Compare(local[localIdx].key, pk) < 0 {
			if !local[localIdx].deleted {
				merged = append(merged, kv{key: local[localIdx].key, value: local[localIdx].value})
			}
			localIdx++
		}
		if localIdx < len(local) && bytes.Equal(local[localIdx].key, pk) {
			if !local[localIdx].deleted {
				merged = append(merged, kv{key: local[localIdx].key, value: local[localIdx].value})
			}
			localIdx++
			continue
		}
		merged = append(merged, kv{key: append([]byte(nil), pk...), value: append([]byte(nil), parentIt.Value()...)})
	}
	parentIt.Close()
	for ; localIdx < len(local); localIdx++ {
		if !local[localIdx].deleted {
			merged = append(merged, kv{key: local[localIdx].key, value: local[localIdx].value})
		}
	}

	return &memIterator{items: merged}
}

// Commit flushes every buffered write and tombstone into the parent
// store. It is the caller's responsibility (storage/current.Context) to
// ensure Commit and Rollback are mutually exclusive and called at most
// once per frame.
func (o *OverlayStore) Commit() {
	for k := range o.tombstone {
		o.parent.Remove([]byte(k))
	}
	for k, v := range o.writes {
		o.parent.Insert([]byte(k), v)
	}
}

// Rollback discards every buffered write and tombstone, leaving the
// parent untouched.
func (o *OverlayStore) Rollback() {
	o.writes = make(map[string][]byte)
	o.tombstone = make(map[string]struct{})
}
